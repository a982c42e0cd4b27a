package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/trade-enricher/internal/api"
	"github.com/Checker-Finance/trade-enricher/internal/enrich"
	"github.com/Checker-Finance/trade-enricher/internal/jobs"
	"github.com/Checker-Finance/trade-enricher/internal/metrics"
	"github.com/Checker-Finance/trade-enricher/internal/publisher"
	"github.com/Checker-Finance/trade-enricher/internal/registry"
	"github.com/Checker-Finance/trade-enricher/internal/store"
	"github.com/Checker-Finance/trade-enricher/pkg/config"
	"github.com/Checker-Finance/trade-enricher/pkg/logger"
	"github.com/Checker-Finance/trade-enricher/pkg/secrets"
	"github.com/Checker-Finance/trade-enricher/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [trade-enricher]...")

	// --- Resolve DB credentials from AWS Secrets Manager when configured ---
	dbURL := cfg.DatabaseURL
	if cfg.DBSecretName != "" {
		awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to init AWS provider", "error", err)
		}
		resolver := secrets.NewResolver(awsProvider, secrets.NewCache[map[string]string](30*time.Minute))
		dbURL, err = resolver.DatabaseURL(ctx, cfg.DatabaseURL, cfg.DBSecretName)
		if err != nil {
			logg.Fatalw("failed to resolve db credentials", "error", err)
		}
	}
	logg.Info("connection to DSN: ", utils.MaskDSN(dbURL))

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}
	defer nc.Drain() //nolint:errcheck

	pub, err := publisher.New(nc, cfg.ServiceName)
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Store (Redis + Postgres hybrid) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, dbURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, cfg.RunTTL, logger.L())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}
	defer st.Close() //nolint:errcheck

	// --- Product registry + optional bootstrap load ---
	reg := registry.New(logger.L())
	if cfg.BootstrapProductFile != "" {
		n, err := reg.LoadFile(cfg.BootstrapProductFile)
		if err != nil {
			// The registry never reaches a usable state without its
			// bootstrap dataset; refuse to start.
			logg.Fatalw("failed to load bootstrap product data",
				"file", cfg.BootstrapProductFile, "error", err)
		}
		logg.Infow("bootstrap product data loaded",
			"file", cfg.BootstrapProductFile, "rows", n)
	}

	pipeline := enrich.NewPipeline(reg, logger.L(), cfg.FlushBatchSize)

	metrics.StartServer(cfg.MetricsAddr)

	// StreamRequestBody keeps million-row uploads off the heap.
	app := fiber.New(fiber.Config{
		StreamRequestBody: true,
		BodyLimit:         cfg.HTTPBodyLimit,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	})
	h := &api.Handler{
		Logger:         logger.L(),
		Registry:       reg,
		Pipeline:       pipeline,
		Store:          st,
		Publisher:      pub,
		ProductSubject: cfg.ProductSubject,
		RunSubject:     cfg.RunSubject,
	}
	api.RegisterRoutes(app, h)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	reporter := jobs.NewStatsReporter(logger.L(), reg, pub, "evt.enricher.registry.stats.v1", cfg.StatsInterval)
	go reporter.Start(ctx)

	logg.Infow("[trade-enricher] running",
		"nats", cfg.NATSURL,
		"flush_batch_size", cfg.FlushBatchSize,
		"registry_entries", reg.Size())

	<-ctx.Done()
	stop()
	logg.Info("shutting down [trade-enricher]...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.ShutdownWithContext(shutdownCtx) //nolint:errcheck
}
