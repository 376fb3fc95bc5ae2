package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rpattn/orderimport/internal/auth"
	"github.com/rpattn/orderimport/internal/config"
	"github.com/rpattn/orderimport/internal/db"
	"github.com/rpattn/orderimport/internal/imports"
	"github.com/rpattn/orderimport/internal/logger"
	"github.com/rpattn/orderimport/internal/middleware"
	"github.com/rpattn/orderimport/internal/repository"
	"github.com/rpattn/orderimport/internal/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("ORDIMPORT_CONFIG_PATH"), "directory containing config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database.DB())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer conn.Close()

	if cfg.Database.Migrate {
		if err := db.Migrate(cfg.Database.DB()); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		log.Info("database migrations applied")
	}

	store, err := newObjectStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}

	// Create repositories and the import service
	service := imports.NewService(
		repository.NewImportRecordRepository(conn),
		repository.NewFieldMappingRepository(conn),
		repository.NewClientRepository(conn),
		store,
		imports.WithLogger(log.Named("imports")),
		imports.WithMaxFileSize(cfg.Import.MaxFileSize),
		imports.WithSampleSize(cfg.Import.SampleSize),
		imports.WithProcessTimeout(cfg.Import.ProcessTimeout),
	)

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.LoggingMiddleware(log.Named("http")))
	router.Use(middleware.Recoverer(log))
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	}).Handler)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := conn.Ping(pingCtx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Mount("/api/imports", auth.Middleware(imports.NewHTTPHandler(service, log.Named("imports"))))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("starting import server", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server exited")
	return nil
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig, log *zap.SugaredLogger) (storage.ObjectStore, error) {
	switch cfg.Driver {
	case "s3":
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
		return store, nil
	default:
		log.Warn("using in-memory object store, uploads are lost on restart")
		return storage.NewMemoryStore(), nil
	}
}
