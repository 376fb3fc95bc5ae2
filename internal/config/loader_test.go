package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}

	want := DefaultConfig()
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("expected defaults\n got %+v\nwant %+v", cfg, want)
	}
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
server:
  addr: ":9090"
database:
  host: db.internal
  port: 6543
storage:
  driver: s3
  endpoint: minio:9000
  bucket: order-imports
import:
  sample_size: 25
  process_timeout: 90s
logging:
  level: debug
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("ORDIMPORT_DATABASE_PASSWORD", "from-env")
	t.Setenv("ORDIMPORT_IMPORT_MAX_FILE_SIZE", "1048576")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 6543 {
		t.Fatalf("unexpected database section %+v", cfg.Database)
	}
	if cfg.Database.Password != "from-env" {
		t.Fatalf("expected env override for password, got %q", cfg.Database.Password)
	}
	if cfg.Storage.Driver != "s3" || cfg.Storage.Bucket != "order-imports" {
		t.Fatalf("unexpected storage section %+v", cfg.Storage)
	}
	if cfg.Import.SampleSize != 25 || cfg.Import.ProcessTimeout != 90*time.Second || cfg.Import.MaxFileSize != 1<<20 {
		t.Fatalf("unexpected import section %+v", cfg.Import)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging level %q", cfg.Logging.Level)
	}

	db := cfg.Database.DB()
	if db.Host != "db.internal" || db.MaxConns != cfg.Database.MaxConns {
		t.Fatalf("unexpected db config %+v", db)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	content := []byte("storage:\n  driver: s3\n  endpoint: \"\"\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := Load(dir)
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	if validationErrs[0].Field() != "Endpoint" {
		t.Fatalf("expected endpoint to fail validation, got %s", validationErrs[0].Field())
	}
}

func TestValidateRejectsUnknownDriverAndLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Driver = "ftp"
	cfg.Logging.Level = "verbose"

	err := validateStruct(&cfg)
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) != 2 {
		t.Fatalf("expected two validation errors, got %v", err)
	}
}
