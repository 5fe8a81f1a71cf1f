/*
Package main implements statsjob, the cobra/viper CLI an external cron
invokes nightly to run the stats/ratings pipeline (SPEC_FULL.md §5.11).
Grounded on Seednode-partybox's newCmd/viper-env-binding idiom and
udisondev-la2go's cmd/*/main.go signal-handling + slog setup.
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mideind/explo/internal/config"
	"github.com/mideind/explo/internal/scheduler"
	"github.com/mideind/explo/internal/stats"
	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/docstore"
	"github.com/mideind/explo/internal/store/sqlstore"
)

const releaseVersion = "0.1.0"

type jobConfig struct {
	configPath string
	mode       string // "stats", "ratings", or "both"
	deadline   string // RFC3339; empty means time.Now()
}

func main() {
	cfg := &jobConfig{}
	cobra.CheckErr(newCmd(cfg).Execute())
}

func newCmd(cfg *jobConfig) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("STATSJOB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "statsjob",
		Short:         "Runs the Explo nightly stats/ratings pipeline once and exits.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				slog.Info("statsjob: shutting down", "signal", sig)
				cancel()
			}()

			return run(ctx, cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.configPath, "config", "config/statsjob.yaml", "path to config file (env: STATSJOB_CONFIG)")
	fs.StringVar(&cfg.mode, "mode", "both", "which pipeline stage to run: stats, ratings, or both (env: STATSJOB_MODE)")
	fs.StringVar(&cfg.deadline, "deadline", "", "RFC3339 timestamp to run up through; defaults to now (env: STATSJOB_DEADLINE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("statsjob v{{.Version}}\n")

	return cmd
}

func run(ctx context.Context, jc *jobConfig) error {
	cfg, err := config.Load(jc.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("statsjob starting", "backend", cfg.DatabaseBackend, "mode", jc.mode)

	deadline := time.Now().UTC()
	if jc.deadline != "" {
		deadline, err = time.Parse(time.RFC3339, jc.deadline)
		if err != nil {
			return fmt.Errorf("parsing --deadline: %w", err)
		}
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			slog.Warn("statsjob: error closing backend", "err", err)
		}
	}()

	statsSvc := stats.NewService(backend, cfg.Stats.TopN)
	sched := scheduler.New(statsSvc)

	if jc.mode == "stats" || jc.mode == "both" {
		if err := sched.RunNightlyStats(ctx, deadline); err != nil {
			return fmt.Errorf("running nightly stats: %w", err)
		}
		slog.Info("nightly stats run complete", "to", deadline)
	}

	if jc.mode == "ratings" || jc.mode == "both" {
		if err := sched.RunRebuildRatings(ctx, deadline); err != nil {
			return fmt.Errorf("rebuilding ratings: %w", err)
		}
		slog.Info("rebuild ratings run complete", "at", deadline)
	}

	return nil
}

// openBackend connects a bare (non-request-scoped) store.Backend per
// cfg.DatabaseBackend, for the job's single long-lived run.
func openBackend(ctx context.Context, cfg config.Config) (store.Backend, error) {
	switch cfg.DatabaseBackend {
	case config.BackendSQLStore:
		return sqlstore.Open(ctx, cfg.DSN())
	case config.BackendDocstore:
		return docstore.Open(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.DatabaseBackend)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
