// Command server runs the workflow orchestrator's HTTP/WebSocket API:
// the execution engine, agent registry, metadata store, validation
// service, and collaboration hub wired behind spec §6's JSON API.
// Grounded on the SWARM-INTELLIGENCE-NETWORK orchestrator service's
// main.go (net/http server, slog logging, OpenTelemetry, graceful
// shutdown) and cklxx-elephant.ai's cmd/cobra_cli.go (cobra root
// command, viper config).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/flowforge/orchestrator/agent"
	"github.com/flowforge/orchestrator/api"
	"github.com/flowforge/orchestrator/graph"
	"github.com/flowforge/orchestrator/graph/emit"
	"github.com/flowforge/orchestrator/graph/model/anthropic"
	"github.com/flowforge/orchestrator/graph/model/google"
	"github.com/flowforge/orchestrator/graph/model/openai"
	"github.com/flowforge/orchestrator/graph/store"
	"github.com/flowforge/orchestrator/hub"
)

func main() {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "Workflow orchestrator API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: ./orchestrator.yaml or $HOME/orchestrator.yaml)")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := initTracer(cfg.OTelServiceName)
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = shutdownTracer(shCtx)
	}()

	st, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	chatModels := agent.NewChatModelSet()
	if cfg.AnthropicAPIKey != "" {
		chatModels.RegisterPrefix("claude-", anthropic.NewChatModel(cfg.AnthropicAPIKey, "claude-sonnet-4-20250514"))
	}
	if cfg.OpenAIAPIKey != "" {
		chatModels.RegisterPrefix("gpt-", openai.NewChatModel(cfg.OpenAIAPIKey, "gpt-4o"))
	}
	if cfg.GoogleAPIKey != "" {
		chatModels.RegisterPrefix("gemini-", google.NewChatModel(cfg.GoogleAPIKey, "gemini-1.5-pro"))
	}

	registry := agent.NewRegistry(agent.Dependencies{
		DBPool:      agent.NewDBPoolCache(),
		ChatModels:  chatModels,
		CostTracker: graph.NewCostTracker("server", "USD"),
	})

	h := hub.New()

	promRegistry := prometheus.NewRegistry()
	metrics := graph.NewPrometheusMetrics(promRegistry)

	emitter := emit.NewLogEmitter(os.Stdout, true)

	svc := api.NewService(registry, st, h, emitter, cfg.MaxConcurrentExecutions,
		graph.WithMaxConcurrent(cfg.MaxConcurrentNodes),
		graph.WithMetrics(metrics),
	)

	tokens := api.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTTL)
	handlers := api.NewHandlers(svc, h)
	mux := api.NewRouter(handlers, tokens)
	mux.Handle("GET /metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	go svc.RunMonitor(ctx, slogMonitorLogger{})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown initiated")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	slog.Info("shutdown complete")
	return nil
}

func newStore(cfg Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "", "memory":
		return store.NewMemStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.StoreDSN)
	case "mysql":
		return store.NewMySQLStore(cfg.StoreDSN)
	default:
		return nil, fmt.Errorf("unknown store_driver %q", cfg.StoreDriver)
	}
}

func initTracer(service string) func(context.Context) error {
	tp := sdktrace.NewTracerProvider()
	slog.Info("tracer initialized", "service", service)
	return tp.Shutdown
}

// slogMonitorLogger adapts log/slog to graph.MonitorLogger.
type slogMonitorLogger struct{}

func (slogMonitorLogger) Warnw(msg string, keysAndValues ...interface{}) {
	slog.Warn(msg, keysAndValues...)
}
