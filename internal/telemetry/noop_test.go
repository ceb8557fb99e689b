package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/codes"

	"github.com/judgehost/judgehost/internal/telemetry"
)

func TestNoopLoggerDiscardsAllLevels(t *testing.T) {
	logger := telemetry.NewNoopLogger()
	ctx := context.Background()

	logger.Debug(ctx, "debug", "k", "v")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error", "err", "boom")
}

func TestNoopMetricsDiscardsAllKinds(t *testing.T) {
	metrics := telemetry.NewNoopMetrics()

	metrics.IncCounter("calls", 1, "tool", "judge")
	metrics.RecordTimer("latency", 5*time.Millisecond)
	metrics.RecordGauge("queue_depth", 3)
}

func TestNoopTracerStartReturnsUsableSpan(t *testing.T) {
	tracer := telemetry.NewNoopTracer()

	ctx, span := tracer.Start(context.Background(), "op")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)

	span.AddEvent("step")
	span.SetStatus(codes.Error, "failed")
	span.RecordError(errors.New("boom"))
	span.End()
}

func TestNoopTracerSpanReturnsUsableSpanWithoutStart(t *testing.T) {
	tracer := telemetry.NewNoopTracer()

	span := tracer.Span(context.Background())
	assert.NotNil(t, span)
	span.End()
}
