package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailvault/config"
	"github.com/customeros/mailvault/internal/database"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/server"
	"github.com/customeros/mailvault/services"
	"github.com/customeros/mailvault/services/reindex"
)

func usage() {
	fmt.Println("Usage: mailvault <command>")
	fmt.Println("Commands:")
	fmt.Println("  migrate   Run database migrations")
	fmt.Println("  sync      Run one mailbox sync pass and exit")
	fmt.Println("  serve     Start the application server with scheduled syncs")
	fmt.Println("  reindex   Rebuild missing index rows from artifacts on disk")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}
	if cfg == nil {
		log.Fatalf("config is empty")
	}

	// Setup the database
	db, err := database.NewConnection(&database.DatabaseConfig{
		DBName:          cfg.DatabaseConfig.DBName,
		Host:            cfg.DatabaseConfig.Host,
		Port:            cfg.DatabaseConfig.Port,
		User:            cfg.DatabaseConfig.User,
		Password:        cfg.DatabaseConfig.Password,
		MaxConn:         cfg.DatabaseConfig.MaxConn,
		MaxIdleConn:     cfg.DatabaseConfig.MaxIdleConn,
		ConnMaxLifetime: cfg.DatabaseConfig.ConnMaxLifetime,
		LogLevel:        cfg.DatabaseConfig.LogLevel,
		SSLMode:         cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}

	switch os.Args[1] {
	case "migrate":

		err := repository.MigrateDB(db)
		if err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		log.Println("Database migration completed successfully")

	case "sync":

		runSyncOnce(cfg, db)

	case "serve":

		log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
		log.Println("MailVault starting up...")

		srv, err := server.NewServer(cfg, db)
		if err != nil {
			log.Fatalf("Server setup failed: %v", err)
		}

		err = srv.Run()
		if err != nil {
			log.Fatalf("Server startup failed: %v", err)
		}

		log.Println("Shutdown complete")

	case "reindex":

		runReindex(cfg, db)

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

// runSyncOnce performs a single sync pass in the foreground. Ctrl+C cancels
// cleanly; the last checkpoint survives for the next invocation.
func runSyncOnce(cfg *config.Config, db *gorm.DB) {
	appLogger := initLogger(cfg)

	tracer, tracerCloser, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Tracer initialization failed: %v", err)
	}
	defer tracerCloser.Close()
	opentracing.SetGlobalTracer(tracer)

	repositories := repository.InitRepositories(db)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := services.InitServices(ctx, appLogger, repositories, cfg.AppConfig, cfg.GraphConfig, cfg.ArchiveConfig, cfg.R2Storage)
	if err != nil {
		log.Fatalf("Services initialization failed: %v", err)
	}
	defer svcs.Close()

	summary, err := svcs.ArchiveService.SyncMailbox(ctx)
	if err != nil {
		log.Fatalf("Sync failed: %v", err)
	}

	appLogger.Infof("Sync finished: %d folders, %d synced, %d skipped, %d moved, %d deleted, %d errors in %s",
		summary.Folders, summary.Synced, summary.Skipped, summary.Moved, summary.Deleted, summary.Errors, summary.Elapsed)
	if summary.Cancelled {
		appLogger.Warn("Sync was cancelled; progress checkpoints were kept for the next run")
	}
	if summary.Errors > 0 {
		os.Exit(1)
	}
}

// runReindex walks the archive tree and recreates index rows for artifacts
// the database does not know about.
func runReindex(cfg *config.Config, db *gorm.DB) {
	appLogger := initLogger(cfg)

	repositories := repository.InitRepositories(db)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := reindex.NewReindexService(cfg.ArchiveConfig.ArchiveRoot, appLogger, repositories).Run(ctx)
	if err != nil {
		log.Fatalf("Reindex failed: %v", err)
	}

	appLogger.Infof("Reindex finished: %d scanned, %d indexed, %d skipped, %d failures",
		result.Scanned, result.Indexed, result.Skipped, result.Failures)
	if result.Failures > 0 {
		os.Exit(1)
	}
}

func initLogger(cfg *config.Config) *logger.AppLogger {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()
	return appLogger
}
