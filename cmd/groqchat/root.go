package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rhuss/groqchat/pkg/config"
	"github.com/rhuss/groqchat/pkg/debug"
	"github.com/rhuss/groqchat/pkg/storage"
	"github.com/rhuss/groqchat/pkg/storage/memory"
	"github.com/rhuss/groqchat/pkg/storage/postgres"
	"github.com/rhuss/groqchat/pkg/storage/sqlite"
)

// app holds the state shared by all commands of one invocation.
type app struct {
	configPath string
	cfg        *config.Config

	store       storage.HistoryStore
	storeOpened bool

	metrics     shutdowner
	metricsAddr string
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "groqchat",
		Short: "Chat with Groq-hosted models from the terminal",
		Long: `groqchat sends chat completion requests to Groq's OpenAI-compatible API.

Examples:
  groqchat chat "Explain TCP slow start in two sentences"
  groqchat chat --stream --model llama3-70b-8192 "Write a haiku about Go"
  groqchat chat --conversation 7f1c... "And what about congestion avoidance?"
  groqchat history list`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/groqchat/config.yaml)")

	root.AddCommand(
		newChatCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration, initializes logging and starts the metrics
// endpoint when enabled.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	debug.Init(cfg.Logging.Debug, cfg.Logging.Level)

	if cfg.Observability.Metrics.Enabled {
		if err := a.startMetrics(cfg.Observability.Metrics.Addr); err != nil {
			return err
		}
	}
	return nil
}

// historyStore opens the configured store on first use. It returns nil
// when history is disabled.
func (a *app) historyStore(ctx context.Context) (storage.HistoryStore, error) {
	if a.storeOpened {
		return a.store, nil
	}
	store, err := openStore(ctx, a.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening %s history store: %w", a.cfg.Storage.Type, err)
	}
	a.store = store
	a.storeOpened = true
	return store, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.HistoryStore, error) {
	switch cfg.Type {
	case "memory":
		slog.Debug("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "none":
		slog.Debug("storage disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// startMetrics serves Prometheus metrics on addr for the lifetime of the
// process.
func (a *app) startMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	a.metrics = srv
	a.metricsAddr = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	slog.Info("metrics endpoint listening", "addr", a.metricsAddr)
	return nil
}

// close releases everything setup and historyStore acquired.
func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("closing history store", "error", err)
		}
		a.store = nil
	}
	a.storeOpened = false

	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			slog.Warn("shutting down metrics endpoint", "error", err)
		}
		a.metrics = nil
	}
}
