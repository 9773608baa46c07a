// Package tracking wires the spend record builder to the persistence
// sink and the observability stack.
package tracking

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/promptmeter/spendgate/internal/metrics"
	"github.com/promptmeter/spendgate/internal/spendlogs"
	"github.com/promptmeter/spendgate/internal/storage"
	"github.com/promptmeter/spendgate/internal/tokens"
)

// persistTimeout bounds the store write once it is decoupled from the
// request lifecycle.
const persistTimeout = 5 * time.Second

// Tracker builds and persists one spend record per completed call.
// Safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	builder   *spendlogs.Builder
	store     storage.SpendLogStore
	metrics   *metrics.Collector
	estimator *tokens.Estimator
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates a Tracker. collector and estimator may be nil; a nil
// logger falls back to slog.Default().
func New(builder *spendlogs.Builder, store storage.SpendLogStore, collector *metrics.Collector, estimator *tokens.Estimator, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		builder:   builder,
		store:     store,
		metrics:   collector,
		estimator: estimator,
		logger:    logger,
		tracer:    otel.Tracer("spendgate/tracking"),
	}
}

// Track assembles the spend record for a call and writes it to the
// store. Build and insert failures are logged and returned; the caller
// decides whether to fail the surrounding request.
func (t *Tracker) Track(ctx context.Context, call *spendlogs.CallContext) (*spendlogs.Payload, error) {
	ctx, span := t.tracer.Start(ctx, "spendlogs.track")
	defer span.End()

	t.mu.RLock()
	builder := t.builder
	t.mu.RUnlock()

	buildStart := time.Now()
	payload, err := builder.Build(call)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record build failed")
		return nil, err
	}
	if t.metrics != nil {
		t.metrics.ObserveBuildDuration(time.Since(buildStart).Seconds())
	}

	span.SetAttributes(
		attribute.String("spendlogs.request_id", payload.RequestID),
		attribute.String("spendlogs.call_type", payload.CallType),
		attribute.String("spendlogs.model", payload.Model),
		attribute.Float64("spendlogs.spend", payload.Spend),
	)

	t.logUsageEstimate(call, payload)

	// Decouple persistence from the request lifecycle so records are not
	// dropped when clients disconnect; still enforce a short timeout.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := t.store.InsertSpendLog(persistCtx, payload); err != nil {
		t.logger.Error("failed to persist spend log",
			slog.String("request_id", payload.RequestID),
			slog.String("team_id", payload.TeamID),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "record insert failed")
		return nil, err
	}

	if t.metrics != nil {
		t.metrics.RecordWritten(string(payload.Status), payload.CallType, payload.TeamID,
			payload.Spend, payload.PromptTokens, payload.CompletionTokens)
	}
	return payload, nil
}

// SetBuilder swaps the payload builder, used on config reload.
func (t *Tracker) SetBuilder(b *spendlogs.Builder) {
	t.mu.Lock()
	t.builder = b
	t.mu.Unlock()
}

// logUsageEstimate emits a debug-level tiktoken estimate when a call
// reported no usage at all. The estimate never reaches the stored
// record: the builder's zero defaults stand.
func (t *Tracker) logUsageEstimate(call *spendlogs.CallContext, payload *spendlogs.Payload) {
	if t.estimator == nil {
		return
	}
	if payload.TotalTokens > 0 || payload.PromptTokens > 0 || payload.CompletionTokens > 0 {
		return
	}
	prompt := promptText(call)
	if prompt == "" {
		return
	}
	estimate := t.estimator.Estimate(call.Model, prompt)
	t.logger.Debug("call reported no usage, estimated prompt tokens",
		slog.String("request_id", payload.RequestID),
		slog.String("model", call.Model),
		slog.Int("estimated_prompt_tokens", estimate),
	)
}

// promptText concatenates the message contents from the inbound request
// body, when present.
func promptText(call *spendlogs.CallContext) string {
	if call.Params.ProxyServerRequest == nil {
		return ""
	}
	messages, ok := call.Params.ProxyServerRequest.Body["messages"].([]any)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, msg := range messages {
		m, ok := msg.(map[string]any)
		if !ok {
			continue
		}
		if content, ok := m["content"].(string); ok {
			sb.WriteString(content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
