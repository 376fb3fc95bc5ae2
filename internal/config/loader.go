package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/orderimport/internal/db"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. ORDIMPORT_DATABASE_HOST.
const EnvPrefix = "ORDIMPORT"

// Config is the full runtime configuration of the server.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Import   ImportConfig   `mapstructure:"import"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname" validate:"required"`
	SSLMode  string `mapstructure:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=1"`
	MinConns int32  `mapstructure:"min_conns" validate:"gte=0,ltefield=MaxConns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// DB converts the section into connection settings.
func (d DatabaseConfig) DB() db.Config {
	return db.Config{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		DBName:   d.DBName,
		SSLMode:  d.SSLMode,
		MaxConns: d.MaxConns,
		MinConns: d.MinConns,
	}
}

type StorageConfig struct {
	Driver    string `mapstructure:"driver" validate:"oneof=s3 memory"`
	Endpoint  string `mapstructure:"endpoint" validate:"required_if=Driver s3"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket" validate:"required_if=Driver s3"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type ImportConfig struct {
	MaxFileSize    int64         `mapstructure:"max_file_size" validate:"gt=0"`
	SampleSize     int           `mapstructure:"sample_size" validate:"gte=0"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout" validate:"gt=0"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level" validate:"oneof=debug info warn error"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	database := db.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Host:     database.Host,
			Port:     database.Port,
			User:     database.User,
			Password: database.Password,
			DBName:   database.DBName,
			SSLMode:  database.SSLMode,
			MaxConns: database.MaxConns,
			MinConns: database.MinConns,
			Migrate:  true,
		},
		Storage: StorageConfig{
			Driver: "memory",
			Bucket: "imports",
			Region: "us-east-1",
		},
		Import: ImportConfig{
			MaxFileSize:    20 << 20,
			SampleSize:     10,
			ProcessTimeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads config.yaml from configPath when present, applies environment
// overrides on top of the defaults and validates the result.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validateStruct(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply to keys
// that are absent from the config file.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)

	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)
	v.SetDefault("database.min_conns", cfg.Database.MinConns)
	v.SetDefault("database.migrate", cfg.Database.Migrate)

	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.endpoint", cfg.Storage.Endpoint)
	v.SetDefault("storage.access_key", cfg.Storage.AccessKey)
	v.SetDefault("storage.secret_key", cfg.Storage.SecretKey)
	v.SetDefault("storage.bucket", cfg.Storage.Bucket)
	v.SetDefault("storage.region", cfg.Storage.Region)
	v.SetDefault("storage.use_ssl", cfg.Storage.UseSSL)

	v.SetDefault("import.max_file_size", cfg.Import.MaxFileSize)
	v.SetDefault("import.sample_size", cfg.Import.SampleSize)
	v.SetDefault("import.process_timeout", cfg.Import.ProcessTimeout)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
}
