package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arcwatch/sentinel/internal/bus"
	"github.com/arcwatch/sentinel/internal/clock"
	"github.com/arcwatch/sentinel/internal/config"
	"github.com/arcwatch/sentinel/internal/healing"
	"github.com/arcwatch/sentinel/internal/idgen"
	"github.com/arcwatch/sentinel/internal/learning"
	"github.com/arcwatch/sentinel/internal/notify"
	"github.com/arcwatch/sentinel/internal/store"
	"github.com/arcwatch/sentinel/internal/trustgate"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trust gate, self-healing engine, and real-time learning engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// watchedProcesses parses SENTINEL_WATCH_PROCESSES ("name:pid,name:pid") into
// ProcessProbes; an empty or malformed entry is skipped with a warning
// rather than aborting startup.
func watchedProcesses(interval time.Duration) []healing.HealthProbe {
	raw := strings.TrimSpace(os.Getenv("SENTINEL_WATCH_PROCESSES"))
	if raw == "" {
		return nil
	}
	var probes []healing.HealthProbe
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 {
			log.Warn().Str("entry", entry).Msg("serve: malformed SENTINEL_WATCH_PROCESSES entry, skipping")
			continue
		}
		pid, err := strconv.Atoi(parts[1])
		if err != nil {
			log.Warn().Str("entry", entry).Msg("serve: non-numeric pid in SENTINEL_WATCH_PROCESSES, skipping")
			continue
		}
		probes = append(probes, healing.ProcessProbe{TargetID: parts[0], PID: int32(pid), Interval: interval})
	}
	return probes
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("serve: failed to load configuration")
	}
	setupLogger(cfg)

	log.Info().Str("version", Version).Str("data_dir", cfg.DataDir).Msg("starting sentinel")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("serve: failed to create data directory")
	}

	s, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("serve: failed to open store")
	}
	defer s.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	watcher, err := config.NewWatcher(".env", cfg)
	if err != nil {
		log.Warn().Err(err).Msg("serve: config watcher unavailable, hot-reload disabled")
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	clk := clock.New()
	b := bus.New()
	transport := notify.NewLogTransport(log.Logger)

	gate, err := trustgate.New(ctx, s, clk, b, trustgate.DefaultCategories(trustgate.AlphaConfig{
		T1: cfg.T1Alpha, T2: cfg.T2Alpha, T3: cfg.T3Alpha,
	}), cfg.FeedbackWindow)
	if err != nil {
		log.Fatal().Err(err).Msg("serve: failed to initialize trust gate")
	}

	if err := healing.SeedRunbooks(ctx, s, clk); err != nil {
		log.Fatal().Err(err).Msg("serve: failed to seed built-in runbooks")
	}

	probes := []healing.HealthProbe{
		healing.DiskProbe{Path: "/", Interval: 30 * time.Second},
		healing.MemoryProbe{Interval: 30 * time.Second},
	}
	probes = append(probes, watchedProcesses(15*time.Second)...)

	escalator := healing.NewEscalator(transport)
	engine := healing.NewEngine(s, clk, b, healing.EngineConfig{
		AutoExecuteConfidence:  cfg.AutoExecuteConfidence,
		RunbookGraduationCount: cfg.RunbookGraduationCount,
	}, escalator, probes)
	registry := healing.NewRegistry(probes, cfg.ProbeJitterMax, engine.OnReading)

	queue := learning.NewQueue(cfg.QueueDepth)
	detectors := learning.NewDetectors(queue, clk)

	pipeline := &learning.Pipeline{
		Queue:     queue,
		Store:     s,
		Clock:     clk,
		Transport: transport,
		Propagators: []learning.Propagator{
			learning.SOPPatchPropagator{Dir: filepath.Join(cfg.DataDir, "sop_patches")},
			learning.HookPatternPropagator{Dir: filepath.Join(cfg.DataDir, "hook_patterns")},
			learning.NewRegressionTestPropagator(filepath.Join(cfg.DataDir, "regression_tests"), s, idgen.UUID),
			learning.AtomPropagator{},
			learning.SynapseRelayPropagator{Transport: transport},
		},
		Recurrence: learning.NewRecurrenceDetector(s, cfg.RecurrenceLookback),
	}

	if watcher != nil {
		sighup := make(chan os.Signal, 1)
		signal.Notify(sighup, syscall.SIGHUP)
		go watchSighup(ctx, sighup, watcher, gate, engine, pipeline.Recurrence)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return registry.Run(ctx) })
	g.Go(func() error { pipeline.Run(ctx); return nil })
	g.Go(func() error { go detectors.SubscribeTrustDemotions(ctx, b); <-ctx.Done(); return nil })
	g.Go(func() error { return reapPendingOutcomes(ctx, gate, clk) })
	g.Go(func() error {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("sentinel stopped")
	return nil
}

// watchSighup reloads configuration on SIGHUP and propagates the
// hot-reloadable fields into the already-constructed engines, per SPEC_FULL
// 7A: SIGHUP triggers a reload rather than a restart.
func watchSighup(ctx context.Context, sig chan os.Signal, watcher *config.Watcher, gate *trustgate.Gate, engine *healing.Engine, recurrence *learning.RecurrenceDetector) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			watcher.Reload()
			next := watcher.Current()
			gate.SetFeedbackWindow(next.FeedbackWindow)
			engine.SetConfig(healing.EngineConfig{
				AutoExecuteConfidence:  next.AutoExecuteConfidence,
				RunbookGraduationCount: next.RunbookGraduationCount,
			})
			recurrence.SetLookback(next.RecurrenceLookback)
			log.Info().Msg("serve: applied reloaded configuration")
		}
	}
}

// reapPendingOutcomes periodically resolves pass decisions whose feedback
// window expired without an observed outcome, defaulting them to pass.
func reapPendingOutcomes(ctx context.Context, gate *trustgate.Gate, clk clock.Clock) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := gate.ReapExpiredPendingOutcomes(ctx, clk.Now())
			if err != nil {
				log.Warn().Err(err).Msg("serve: pending outcome reap failed")
				continue
			}
			if n > 0 {
				log.Debug().Int("count", n).Msg("serve: reaped expired pending outcomes")
			}
		}
	}
}
