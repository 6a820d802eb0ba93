package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/danielpatrickdp/matchrank/internal/configuration"
	"github.com/danielpatrickdp/matchrank/internal/ensemble"
	"github.com/danielpatrickdp/matchrank/internal/logging"
	"github.com/danielpatrickdp/matchrank/internal/outcome"
	"github.com/danielpatrickdp/matchrank/internal/scheduler"
	"github.com/danielpatrickdp/matchrank/internal/server"
	"github.com/danielpatrickdp/matchrank/internal/weights"
)

var (
	version = "dev"
	commit  = "none"
)

// #region main
func main() {
	app := &cli.App{
		Name:    "matchrank",
		Usage:   "Outcome-calibrated ensemble scoring for case-provider matching",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "/etc/matchrank/config.yaml",
				Usage:   "Configuration file",
				EnvVars: []string{"MATCHRANK_CONFIG"},
			},
		},

		Commands: []*cli.Command{
			serveCommand(),
			retrainCommand(),
			inspectCommand(),
			rollbackCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region logger

// prepareLogger installs the global slog logger: JSON output at the
// configured level, rotated via lumberjack when a file path is set.
func prepareLogger(cfg configuration.LoggerConfig) {
	var logLevel slog.Level

	switch strings.ToLower(cfg.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMb,
			MaxBackups: cfg.MaxBackups,
		}
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// #endregion logger

// #region wiring

// buildWeightStore opens the weight store with the configured default
// fallback vector.
func buildWeightStore(cfg *configuration.AppConfig) (*weights.Store, error) {
	def, err := weights.NewDefault(cfg.Weights.Roster, cfg.Weights.Defaults)
	if err != nil {
		return nil, fmt.Errorf("build default weights: %w", err)
	}
	return weights.NewStore(cfg.Weights.Path, def, cfg.Weights.HistoryLimit)
}

// buildOutcomeStore connects to the outcome database, attaching CEL label
// rules when configured.
func buildOutcomeStore(cfg *configuration.AppConfig) (*outcome.PostgresStore, error) {
	var labeler *outcome.Labeler
	if cfg.Outcomes.LabelRules != "" {
		var err error
		labeler, err = outcome.LoadLabeler(cfg.Outcomes.LabelRules)
		if err != nil {
			return nil, fmt.Errorf("load label rules: %w", err)
		}
	}
	return outcome.NewPostgresStore(cfg.Outcomes.Dsn, labeler)
}

func buildScheduler(cfg *configuration.AppConfig, store *weights.Store, outcomes outcome.Store) (*scheduler.Scheduler, error) {
	schedCfg := scheduler.DefaultConfig(cfg.Weights.Roster)
	schedCfg.Interval = cfg.Scheduler.Interval
	schedCfg.Window = cfg.Scheduler.Window
	schedCfg.Gate.MaxWeightDelta = cfg.Scheduler.MaxWeightDelta
	schedCfg.Gate.OverrideSampleRatio = cfg.Scheduler.OverrideSampleRatio
	schedCfg.Trainer.MinSamples = cfg.Trainer.MinSamples
	schedCfg.Trainer.LearningRate = cfg.Trainer.LearningRate
	schedCfg.Trainer.Epochs = cfg.Trainer.Epochs
	schedCfg.Trainer.L2 = cfg.Trainer.L2
	return scheduler.New(store, outcomes, schedCfg)
}

func loadConfig(c *cli.Context) (*configuration.AppConfig, error) {
	cfg, err := configuration.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	prepareLogger(cfg.Logger)
	return cfg, nil
}

// #endregion wiring

// #region serve

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the scoring API and the retrain loop",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			store, err := buildWeightStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			outcomes, err := buildOutcomeStore(cfg)
			if err != nil {
				return err
			}
			defer outcomes.Close()

			sched, err := buildScheduler(cfg, store, outcomes)
			if err != nil {
				return err
			}

			appCtx, appCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer appCancel()

			go sched.Run(appCtx)

			scorer := ensemble.NewScorer(store)
			srv := server.NewServer(cfg.Server.Address, scorer, store, sched)
			go srv.ListenAndServe()
			slog.Info("Server listening " + cfg.Server.Address)
			<-appCtx.Done()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second*10)
			defer shutdownCancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("Server shutdown", "error", err)
			}
			slog.Info("Server stopped")
			return nil
		},
	}
}

// #endregion serve

// #region retrain

func retrainCommand() *cli.Command {
	return &cli.Command{
		Name:  "retrain",
		Usage: "Run one retrain cycle and print the report",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "segment",
				Aliases: []string{"s"},
				Usage:   "Restrict the run to one segment",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			store, err := buildWeightStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			outcomes, err := buildOutcomeStore(cfg)
			if err != nil {
				return err
			}
			defer outcomes.Close()

			sched, err := buildScheduler(cfg, store, outcomes)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			var segments []string
			if seg := c.String("segment"); seg != "" {
				segments = append(segments, seg)
			}
			report, err := sched.RunOnce(ctx, segments...)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}

// #endregion retrain

// #region inspect

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Print active weights and the recent retrain audit trail",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "audit",
				Value: 20,
				Usage: "Audit entries to show",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			store, err := buildWeightStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			active := map[string]weights.Vector{"default": store.Default()}
			for _, seg := range store.Segments() {
				active[seg] = store.Get(seg)
			}

			entries, err := logging.RecentEntries(store.DB(), c.Int("audit"))
			if err != nil {
				return err
			}

			return printJSON(map[string]any{
				"active":  active,
				"retrain": entries,
			})
		},
	}
}

// #endregion inspect

// #region rollback

func rollbackCommand() *cli.Command {
	return &cli.Command{
		Name:  "rollback",
		Usage: "Repoint a segment at a previously retained weight version",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "segment",
				Aliases:  []string{"s"},
				Required: true,
				Usage:    "Segment to roll back",
			},
			&cli.StringFlag{
				Name:     "version",
				Aliases:  []string{"v"},
				Required: true,
				Usage:    "Version id to activate",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			store, err := buildWeightStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Rollback(c.String("segment"), c.String("version")); err != nil {
				return err
			}
			return printJSON(store.Get(c.String("segment")))
		},
	}
}

// #endregion rollback

// #region helpers
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// #endregion helpers
