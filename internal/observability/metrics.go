package observability

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all metrics for the orchestration engine
type MetricsCollector struct {
	meter metric.Meter

	// LLM metrics
	llmRequests     metric.Int64Counter
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmLatency      metric.Float64Histogram

	// Agent tool metrics
	toolExecutions metric.Int64Counter
	toolDuration   metric.Float64Histogram

	// Persistence metrics
	messagesPersisted   metric.Int64Counter
	fallbackActivations metric.Int64Counter

	// Document index metrics
	chunksIndexed metric.Int64Counter

	// Server for Prometheus scraping
	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// NewMetricsCollector creates a new metrics collector. When disabled, every
// Record method is a no-op.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("quill")

	llmRequests, err := meter.Int64Counter(
		"quill.llm.requests.total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_requests counter: %w", err)
	}

	llmTokensInput, err := meter.Int64Counter(
		"quill.llm.tokens.input",
		metric.WithDescription("Total input tokens sent to LLM"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_tokens_input counter: %w", err)
	}

	llmTokensOutput, err := meter.Int64Counter(
		"quill.llm.tokens.output",
		metric.WithDescription("Total output tokens from LLM"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_tokens_output counter: %w", err)
	}

	llmLatency, err := meter.Float64Histogram(
		"quill.llm.latency",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_latency histogram: %w", err)
	}

	toolExecutions, err := meter.Int64Counter(
		"quill.tool.executions.total",
		metric.WithDescription("Total number of agent tool executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_executions counter: %w", err)
	}

	toolDuration, err := meter.Float64Histogram(
		"quill.tool.duration",
		metric.WithDescription("Agent tool execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_duration histogram: %w", err)
	}

	messagesPersisted, err := meter.Int64Counter(
		"quill.store.messages.total",
		metric.WithDescription("Total messages written through the persistence layer"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messages_persisted counter: %w", err)
	}

	fallbackActivations, err := meter.Int64Counter(
		"quill.store.fallback.total",
		metric.WithDescription("Operations that degraded to the local cache"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback_activations counter: %w", err)
	}

	chunksIndexed, err := meter.Int64Counter(
		"quill.index.chunks.total",
		metric.WithDescription("Total document chunks added to session indexes"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunks_indexed counter: %w", err)
	}

	collector := &MetricsCollector{
		meter:               meter,
		llmRequests:         llmRequests,
		llmTokensInput:      llmTokensInput,
		llmTokensOutput:     llmTokensOutput,
		llmLatency:          llmLatency,
		toolExecutions:      toolExecutions,
		toolDuration:        toolDuration,
		messagesPersisted:   messagesPersisted,
		fallbackActivations: fallbackActivations,
		chunksIndexed:       chunksIndexed,
	}

	if config.PrometheusPort > 0 {
		if err := collector.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("failed to start prometheus server: %w", err)
		}
	}

	return collector, nil
}

// StartPrometheusServer starts the Prometheus metrics server
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	m.prometheusServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		log.Printf("Prometheus metrics server listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Prometheus server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics collector
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m.prometheusServer != nil {
		return m.prometheusServer.Shutdown(ctx)
	}
	return nil
}

// RecordLLMRequest records an LLM request
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration, inputTokens, outputTokens int) {
	if m == nil || m.llmRequests == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("status", status),
	)

	m.llmRequests.Add(ctx, 1, attrs)
	m.llmTokensInput.Add(ctx, int64(inputTokens), attrs)
	m.llmTokensOutput.Add(ctx, int64(outputTokens), attrs)
	m.llmLatency.Record(ctx, latency.Seconds(), attrs)
}

// RecordToolExecution records one agent tool run
func (m *MetricsCollector) RecordToolExecution(ctx context.Context, tool, status string, duration time.Duration) {
	if m == nil || m.toolExecutions == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)

	m.toolExecutions.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordMessagePersisted records a message write through the persistence layer
func (m *MetricsCollector) RecordMessagePersisted(ctx context.Context, backend string) {
	if m == nil || m.messagesPersisted == nil {
		return
	}
	m.messagesPersisted.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}

// RecordFallbackActivation records an operation that degraded to the cache
func (m *MetricsCollector) RecordFallbackActivation(ctx context.Context, operation string) {
	if m == nil || m.fallbackActivations == nil {
		return
	}
	m.fallbackActivations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordChunksIndexed records chunks appended to a session index
func (m *MetricsCollector) RecordChunksIndexed(ctx context.Context, count int) {
	if m == nil || m.chunksIndexed == nil || count <= 0 {
		return
	}
	m.chunksIndexed.Add(ctx, int64(count))
}
