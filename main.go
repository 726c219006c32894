package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/wfunc/storyserver/config"
	"github.com/wfunc/storyserver/logger"
	"github.com/wfunc/storyserver/narrative"
	"github.com/wfunc/storyserver/persistence"
	"github.com/wfunc/storyserver/server"
	"github.com/wfunc/storyserver/tracing"
)

var version = "dev"

func main() {
	var configDir string

	root := &cobra.Command{
		Use:   "storyserver",
		Short: "Shared turn-based story session with a live stock ticker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configDir)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", ".", "directory holding config.yaml")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the session server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configDir)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context, configDir string) error {
	// Load configuration
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		logger.Log.Warnf("tracing disabled: %v", err)
	}
	defer shutdownTracing(context.Background())

	narrator, err := narrative.FromConfig(cfg.Narrative)
	if err != nil {
		return err
	}

	journal, err := persistence.Open(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	logger.Log.Infof("journal driver: %s", cfg.Journal.Driver)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	storyServer, err := server.NewStoryServer(cfg, narrator, journal, registry)
	if err != nil {
		journal.Close()
		return err
	}

	errc := make(chan error, 1)
	go func() {
		logger.Log.Infof("Starting story server %s on %s", version, cfg.Server.HTTPAddress)
		errc <- storyServer.Start()
	}()

	select {
	case err = <-errc:
	case <-ctx.Done():
		logger.Log.Info("Shutting down.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := storyServer.Shutdown(shutdownCtx); serr != nil {
		logger.Log.Warnf("shutdown: %v", serr)
	}
	return err
}
