package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"resgov/internal/config"
	"resgov/internal/execx"
	"resgov/internal/metrics"
	"resgov/internal/systemd"
)

// collectorFor builds the live collector stack from config.
func collectorFor(cfg config.Config, log zerolog.Logger) (*metrics.Collector, *metrics.Store) {
	run := execx.System{}
	units := make([]string, 0, len(cfg.Services))
	for _, s := range cfg.Services {
		units = append(units, s.Name+".service")
	}
	c := metrics.New(cfg.Metrics, metrics.GopsutilReader{}, systemd.New(run), run, units, log)
	return c, metrics.NewStore(cfg.Metrics)
}

func collectOnce(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	collector, store := collectorFor(cfg, log)
	snap := collector.Collect(ctx)
	if err := store.WriteSnapshot(snap); err != nil {
		return err
	}
	events := metrics.EvaluateThresholds(snap, cfg.Metrics.Thresholds)
	if err := store.Alerts().Append(events); err != nil {
		return err
	}
	for _, ev := range events {
		log.Warn().Str("resource", ev.Resource).Str("severity", string(ev.Severity)).Msg(ev.Message)
	}
	log.Info().Int("alerts", len(events)).Msg("snapshot collected")
	return nil
}

// BuildResmonCmd constructs the resmon command tree. The mode flags mirror
// the operational surface: collect once, or inspect the last collection.
func BuildResmonCmd() *cobra.Command {
	var (
		cfgPath  string
		logLevel string

		collect  bool
		display  bool
		jsonDump bool
		promDump bool
		alerts   bool
		watch    bool
	)

	root := &cobra.Command{
		Use:           "resmon",
		Short:         "Sample host and per-service resource metrics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			log := newLogger(logLevel)
			ctx := cmd.Context()

			modes := 0
			for _, m := range []bool{collect, display, jsonDump, promDump, alerts, watch} {
				if m {
					modes++
				}
			}
			if modes != 1 {
				return fmt.Errorf("choose exactly one of --collect, --display, --json, --prometheus, --alerts, --watch")
			}

			store := metrics.NewStore(cfg.Metrics)
			switch {
			case collect:
				return collectOnce(ctx, cfg, log)
			case watch:
				return watchLoop(ctx, cfg, log)
			case display:
				snap, err := store.LoadSnapshot()
				if err != nil {
					return err
				}
				metrics.Display(cmd.OutOrStdout(), snap)
				return nil
			case jsonDump:
				// parse first so a corrupt file errors instead of dumping garbage
				if _, err := store.LoadSnapshot(); err != nil {
					return err
				}
				b, err := os.ReadFile(cfg.Metrics.SnapshotPath)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			case promDump:
				b, err := store.LoadExposition()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			case alerts:
				events, err := store.Alerts().Tail(50)
				if err != nil {
					return err
				}
				metrics.DisplayAlerts(cmd.OutOrStdout(), events)
				return nil
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", envStr("RESGOV_CONFIG", ""), "Path to resgov config file (yaml/json/toml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", envStr("RESGOV_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	root.Flags().BoolVar(&collect, "collect", false, "Sample once, write snapshot + exposition files, append alerts")
	root.Flags().BoolVar(&display, "display", false, "Print a human-readable summary of the last snapshot")
	root.Flags().BoolVar(&jsonDump, "json", false, "Dump the last snapshot as JSON")
	root.Flags().BoolVar(&promDump, "prometheus", false, "Dump the last exposition document")
	root.Flags().BoolVar(&alerts, "alerts", false, "Show the tail of the alert log")
	root.Flags().BoolVar(&watch, "watch", false, "Collect continuously on the configured interval")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Collect continuously and serve /metrics, /snapshot, /alerts over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			log := newLogger(logLevel)
			return serveLoop(cmd.Context(), cfg, log)
		},
	}
	root.AddCommand(serve)
	return root
}

func watchLoop(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	interval := time.Duration(cfg.Metrics.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := collectOnce(ctx, cfg, log); err != nil {
			// one bad cycle must not kill the loop
			log.Error().Err(err).Msg("collection cycle failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func serveLoop(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := metrics.NewStore(cfg.Metrics)
	srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: metrics.NewMux(store, log)}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("resmon listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		_ = watchLoop(ctx, cfg, log)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ResmonMain runs the resmon CLI and returns the process exit code.
func ResmonMain() int {
	if err := BuildResmonCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if errors.Is(err, metrics.ErrNoSnapshot) {
			return 2
		}
		return 1
	}
	return 0
}
