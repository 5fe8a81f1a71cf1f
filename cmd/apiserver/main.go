/*
Package main implements apiserver, the long-running process that wires
the Explo persistence/domain core to whatever HTTP/RPC layer fronts it
(out of scope here, spec §1 "remain external collaborators"). It opens
the configured backend, runs migrations, constructs the per-request
session Manager, and serves Prometheus metrics/health over HTTP while
the real API layer would be mounted alongside it.

Grounded on udisondev-la2go's cmd/gameserver/main.go (signal handling,
slog setup, errgroup.Group for parallel subsystems) and Seednode-
partybox's cobra/viper CLI idiom.
*/
package main

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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/mideind/explo/internal/config"
	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/docstore"
	"github.com/mideind/explo/internal/store/session"
	"github.com/mideind/explo/internal/store/sqlstore"
)

const releaseVersion = "0.1.0"

type serverConfig struct {
	configPath  string
	metricsAddr string
}

func main() {
	cfg := &serverConfig{}
	cobra.CheckErr(newCmd(cfg).Execute())
}

func newCmd(cfg *serverConfig) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("APISERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "apiserver",
		Short:         "Wires the Explo persistence/domain core and serves its metrics endpoint.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				slog.Info("apiserver: shutting down", "signal", sig)
				cancel()
			}()

			return run(ctx, cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.configPath, "config", "config/apiserver.yaml", "path to config file (env: APISERVER_CONFIG)")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", ":9090", "address to serve /metrics and /healthz on (env: APISERVER_METRICS_ADDR)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("apiserver v{{.Version}}\n")

	return cmd
}

func run(ctx context.Context, sc *serverConfig) error {
	cfg, err := config.Load(sc.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("apiserver starting", "backend", cfg.DatabaseBackend, "project_id", cfg.ProjectID)

	opener, closeBackend, err := buildOpener(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting backend: %w", err)
	}
	defer func() {
		if err := closeBackend(); err != nil {
			slog.Warn("apiserver: error closing backend", "err", err)
		}
	}()
	slog.Info("backend connected and migrated")

	sessions := session.New(opener)
	_ = sessions // wired for use by the (out-of-scope) HTTP/RPC layer this process would host

	g, gctx := errgroup.WithContext(ctx)

	metricsSrv := &http.Server{
		Addr:    sc.metricsAddr,
		Handler: metricsMux(),
	}
	g.Go(func() error {
		slog.Info("starting metrics server", "addr", sc.metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// buildOpener connects the root backend handle per cfg.DatabaseBackend
// and returns a session.Opener that begins one request-scoped Backend
// per call, plus a func to release the root handle at shutdown.
func buildOpener(ctx context.Context, cfg config.Config) (session.Opener, func() error, error) {
	switch cfg.DatabaseBackend {
	case config.BackendSQLStore:
		root, err := sqlstore.Open(ctx, cfg.DSN())
		if err != nil {
			return nil, nil, err
		}
		pool := root.Pool()
		opener := func(ctx context.Context) (store.Backend, error) {
			return sqlstore.NewSession(ctx, pool)
		}
		closeFn := func() error {
			pool.Close()
			return nil
		}
		return opener, closeFn, nil

	case config.BackendDocstore:
		root, err := docstore.Open(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		client := root.Client()
		opener := func(ctx context.Context) (store.Backend, error) {
			return docstore.NewSession(ctx, client, cfg.Mongo.Database)
		}
		closeFn := func() error {
			return client.Disconnect(context.Background())
		}
		return opener, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown database backend %q", cfg.DatabaseBackend)
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
