package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steward-sh/steward/internal/analyzer"
	"github.com/steward-sh/steward/internal/config"
	"github.com/steward-sh/steward/internal/decisionlog"
	"github.com/steward-sh/steward/internal/detector"
	"github.com/steward-sh/steward/internal/orchestrator"
	"github.com/steward-sh/steward/internal/rules"
	"github.com/steward-sh/steward/internal/server"
)

func newServeCmd() *cobra.Command {
	var configPath string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the steward server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			logger := newLogger(cfg.Logging)
			slog.SetDefault(logger)

			log, err := decisionlog.Open(cfg.Storage.DecisionLog, logger)
			if err != nil {
				return err
			}
			defer log.Close()

			engine, err := rules.NewEngine(cfg.Storage.RulesStore, rules.EngineConfig{
				MaxActiveRules:         cfg.Guardrails.MaxActiveRules,
				CooldownAfterDecline:   cfg.Guardrails.CooldownAfterDecline,
				ReConfirmationInterval: cfg.Guardrails.ReConfirmationInterval,
			}, logger)
			if err != nil {
				return err
			}

			det, err := detector.New(detectorConfig(cfg), logger)
			if err != nil {
				return err
			}
			an := analyzer.New(log, engine, det, cfg.Learning.AnalysisWindowDays, logger)
			authorizer := orchestrator.NewAuthorizer(engine, cfg.Enabled)
			recorder := orchestrator.NewRecorder(log, engine, an, cfg.Enabled, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if watch && configPath != "" {
				w, err := config.NewWatcher(configPath, func(next *config.Config) {
					nextDet, err := detector.New(detectorConfig(next), logger)
					if err != nil {
						logger.Warn("reloaded config rejected", "error", err)
						return
					}
					an.SetDetector(nextDet, next.Learning.AnalysisWindowDays)
					logger.Info("learning thresholds updated",
						"min_observations", next.Learning.MinObservations,
						"confidence_threshold", next.Learning.ConfidenceThreshold)
				}, logger)
				if err != nil {
					return err
				}
				go func() {
					if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Warn("config watcher stopped", "error", err)
					}
				}()
			}

			app := server.NewApp(log, engine, authorizer, recorder, logger)
			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           app.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("steward server listening", "addr", cfg.Server.Addr, "enabled", cfg.Enabled)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("serve: %w", err)
			}
		},
	}

	cmd.Flags().StringVar(&configPath, "config", getenvDefault("STEWARD_CONFIG", ""), "Path to config YAML")
	cmd.Flags().BoolVar(&watch, "watch-config", false, "Reload thresholds on config file change")
	return cmd
}

func detectorConfig(cfg *config.Config) detector.Config {
	return detector.Config{
		MinObservations:         cfg.Learning.MinObservations,
		ConfidenceThreshold:     cfg.Learning.ConfidenceThreshold,
		MaxPatternDimensions:    cfg.Learning.MaxPatternDimensions,
		AnalysisTriggerInterval: cfg.Learning.AnalysisTriggerInterval,
		NeverAutomate:           cfg.Guardrails.NeverAutomate,
		MaxAutoPerDay:           cfg.Guardrails.MaxAutoDecisionsPerDay,
		MaxAutoTotal:            cfg.Guardrails.MaxAutoDecisionsTotal,
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
