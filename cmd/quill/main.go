// Command quill is the conversational research assistant CLI: an interactive
// chat loop plus subcommands for document indexing, direct document queries,
// page summarization, and session management.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"quill/internal/agent"
	"quill/internal/config"
	quillerrors "quill/internal/errors"
	"quill/internal/llm"
	"quill/internal/logging"
	"quill/internal/observability"
	"quill/internal/orchestrator"
	"quill/internal/rag"
	"quill/internal/store"
	"quill/internal/store/memstore"
	"quill/internal/store/postgres"
	"quill/internal/store/resilient"
	"quill/internal/summarize"
	"quill/internal/tools"
)

var cfgFile string

// app bundles the wired components a command needs.
type app struct {
	engine     *orchestrator.Engine
	store      store.Store
	summarizer *summarize.Summarizer
	cleanup    func()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := &cobra.Command{
		Use:   "quill",
		Short: "Chat assistant with document retrieval and web research tools",
		Long: `quill answers questions either from documents you upload to a session
or by researching live sources (web search, arXiv, Wikipedia) with a
step-by-step reasoning agent. Every answer comes with its reasoning trace.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .quill.yaml)")

	root.AddCommand(
		newChatCmd(),
		newIndexCmd(),
		newQueryCmd(),
		newSummarizeCmd(),
		newSessionsCmd(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorText(err.Error()))
		os.Exit(1)
	}
}

// buildApp wires every component from configuration. The returned cleanup
// must run before exit.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logging.SetDefault(observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}))

	metrics, err := observability.NewMetricsCollector(observability.MetricsConfig{
		Enabled:        cfg.Metrics.Enabled,
		PrometheusPort: cfg.Metrics.PrometheusPort,
	})
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	client, err := llm.NewOpenAIClient(cfg.LLM, metrics)
	if err != nil {
		return nil, fmt.Errorf("init model client: %w", err)
	}
	breaker := quillerrors.NewCircuitBreaker("llm", quillerrors.DefaultCircuitBreakerConfig())
	client = llm.NewRetryClient(client, quillerrors.DefaultRetryConfig(), breaker)

	embedder, err := rag.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	vectors, err := rag.NewVectorStore(cfg.Index.PersistPath, embedder)
	if err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	index, err := rag.NewManager(cfg.Index, cfg.HistoryWindow, embedder, vectors, client, metrics)
	if err != nil {
		return nil, fmt.Errorf("init document index: %w", err)
	}

	registry, err := agent.NewRegistry(
		tools.NewWebSearch(),
		tools.NewArxivSearch(),
		tools.NewWikipediaLookup(),
	)
	if err != nil {
		return nil, fmt.Errorf("init tools: %w", err)
	}
	agentEngine := agent.New(client, registry, cfg.Agent, metrics)

	cleanup := func() {}
	var durable store.Store
	if cfg.Store.PostgresDSN != "" {
		pg, err := postgres.Connect(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect durable store: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		durable = pg
		cleanup = pg.Close
	}

	st := resilient.New(durable, memstore.New(), resilient.Config{
		FailureThreshold: cfg.Store.FailureThreshold,
		RetryTimeout:     cfg.Store.RetryTimeout,
	}, metrics)

	return &app{
		engine:     orchestrator.New(st, index, agentEngine, cfg.HistoryWindow),
		store:      st,
		summarizer: summarize.New(client),
		cleanup:    cleanup,
	}, nil
}
