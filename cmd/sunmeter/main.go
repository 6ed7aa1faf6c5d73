package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	corecfg "github.com/sunmeter-lab/sunmeter/internal/core/config"
	"github.com/sunmeter-lab/sunmeter/internal/core/storage/postgres"
	"github.com/sunmeter-lab/sunmeter/internal/dashboard"
	"github.com/sunmeter-lab/sunmeter/internal/ingest"
	"github.com/sunmeter-lab/sunmeter/internal/migrations"
	"github.com/sunmeter-lab/sunmeter/internal/rollup"
	"github.com/sunmeter-lab/sunmeter/internal/server"
)

func main() {
	configPath := flag.String("config", "sunmeter.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"series", len(cfg.Series.Policies),
		"timezone", cfg.Display.Timezone,
		"mqtt_enabled", cfg.MQTT.Enabled,
	)

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Initialize Services
	aggregator := ingest.NewAggregator(dbAdapter, cfg.Series.Policies, cfg.Display.Location)
	consumer := ingest.NewConsumer(cfg.MQTT, cfg.Series.Policies, aggregator)

	rollupSvc := rollup.NewService(dbAdapter, cfg.Series.Policies)
	dashboardSvc := dashboard.NewService(dbAdapter, rollupSvc, cfg.Series.Policies, cfg.Display.Location)

	// 4. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	dashboardSvc.RegisterRoutes(srv.Engine)

	// 5. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx)
	})

	if cfg.MQTT.Enabled {
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	} else {
		slog.Info("MQTT consumer disabled by config")
	}

	if err := g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
