/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the research incentive claim server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, then environment)
  2. Initialize logger and tracing
  3. Open the SQLite store
  4. Choose counter, file store and email sender backends
  5. Build the claim and EMR services
  6. Configure HTTP router and start the server

COMMAND-LINE FLAGS:
  -port        Overrides PORT
  -db          Overrides DATABASE_PATH. Use ":memory:" for an in-memory database
  -scenarios   Mounts /api/scenarios (default: on when ENVIRONMENT=development)

BACKENDS:
  Counter:  Redis when REDIS_ADDR is set, otherwise the SQLite counters table
  Files:    S3 when STORAGE_PROVIDER=s3, otherwise in memory
  Email:    SendGrid when EMAIL_PROVIDER=sendgrid, otherwise logged

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Flush pending spans
  4. Close Redis and database connections

EXAMPLES:
  # Run with file database
  ./server -db="./data/incentives.db"

  # Local demo with scenarios
  ENVIRONMENT=development ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/rdc/incentive-engine/api"
	"github.com/rdc/incentive-engine/claim"
	"github.com/rdc/incentive-engine/config"
	"github.com/rdc/incentive-engine/counter"
	"github.com/rdc/incentive-engine/emr"
	"github.com/rdc/incentive-engine/export"
	"github.com/rdc/incentive-engine/filestore"
	"github.com/rdc/incentive-engine/incentive"
	"github.com/rdc/incentive-engine/notify"
	"github.com/rdc/incentive-engine/store/sqlite"
	"github.com/rdc/incentive-engine/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	// Flags
	port := flag.String("port", cfg.Server.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path")
	scenarios := flag.Bool("scenarios", cfg.Tracing.Environment == "development", "mount demo scenario routes")
	flag.Parse()

	logger := config.NewLogger(cfg.Log)

	shutdownTracing, err := tracing.Init(cfg.Tracing)
	if err != nil {
		logger.WithError(err).Warn("tracing disabled")
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	ctx := context.Background()

	var seq claim.Counter = store
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = counter.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize counter")
		}
		defer redisClient.Close()
		seq = counter.NewRedis(redisClient, counter.DefaultPrefix)
		logger.WithField("addr", cfg.Redis.Addr).Info("using Redis sequence counter")
	}

	var files claim.FileStore = filestore.NewMemory()
	if cfg.Storage.Provider == "s3" {
		s3, err := filestore.NewS3(ctx, cfg.Storage)
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize file storage")
		}
		files = s3
		logger.WithField("bucket", cfg.Storage.Bucket).Info("storing proofs in S3")
	}

	var sender notify.Sender = notify.NewConsole(logger)
	if cfg.Email.Provider == "sendgrid" {
		sender = notify.NewSendGrid(cfg.Email.SendGridAPIKey, "Research Portal")
	}
	dispatcher := notify.NewDispatcher(store, sender, cfg.Email, logger)

	policies := incentive.DefaultPolicies()
	if cfg.Workflow.PolicyFile != "" {
		policies, err = incentive.LoadPolicyFile(cfg.Workflow.PolicyFile)
		if err != nil {
			logger.WithError(err).WithField("file", cfg.Workflow.PolicyFile).Fatal("failed to load incentive policy")
		}
	}

	excel := export.NewExcel()
	claims := claim.NewService(claim.Deps{
		Store:           store,
		Counter:         seq,
		Batches:         store,
		Profiles:        store,
		Activity:        store,
		Files:           files,
		Renderer:        excel,
		Notifier:        dispatcher,
		Calculator:      incentive.New(policies),
		ReferencePrefix: cfg.Workflow.ReferencePrefix,
		Logger:          logger,
	})
	emrService := emr.NewService(emr.Deps{
		Store:    store,
		Counter:  seq,
		Profiles: store,
		Activity: store,
		Notifier: dispatcher,
		Logger:   logger,
	})

	handler := api.NewHandler(api.Deps{
		Claims:  claims,
		EMR:     emrService,
		DB:      store,
		Notices: store,
		Reports: excel,
		Logger:  logger,
	})

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		EnableScenarios: *scenarios,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"port":      *port,
			"db":        *dbPath,
			"scenarios": *scenarios,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("failed to flush spans")
	}

	logger.Info("server stopped")
}
