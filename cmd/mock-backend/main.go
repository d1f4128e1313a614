// Command mock-backend runs a deterministic Chat Completions server that
// speaks the Groq wire format. Point groqchat at it with
//
//	GROQ_ENDPOINT=http://localhost:9090/openai/v1/chat/completions
//
// Configuration:
//
//	MOCK_PORT        - Listen port (default: 9090)
//	MOCK_API_KEYS    - Comma-separated accepted bearer keys (default: any)
//	MOCK_CHUNK_DELAY - Pause between streamed chunks, e.g. 50ms (default: 0)
//	MOCK_METRICS     - Serve Prometheus metrics on /metrics when "true"
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/groqchat/pkg/debug"
	"github.com/rhuss/groqchat/pkg/mockbackend"
)

func main() {
	debug.Init("", os.Getenv("GROQ_LOG_LEVEL"))

	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	cfg := mockbackend.Config{}
	if keys := os.Getenv("MOCK_API_KEYS"); keys != "" {
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.Keys = append(cfg.Keys, k)
			}
		}
	}
	if d := os.Getenv("MOCK_CHUNK_DELAY"); d != "" {
		delay, err := time.ParseDuration(d)
		if err != nil {
			slog.Error("invalid MOCK_CHUNK_DELAY", "value", d, "error", err)
			os.Exit(1)
		}
		cfg.ChunkDelay = delay
	}

	r := chi.NewRouter()
	if os.Getenv("MOCK_METRICS") == "true" {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Mount("/", mockbackend.New(cfg).Handler())

	srv := &http.Server{Addr: ":" + port, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting",
			"port", port,
			"path", mockbackend.ChatCompletionsPath,
			"keys", len(cfg.Keys),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
