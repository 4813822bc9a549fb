package observability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	adapterobs "github.com/miporis/compliance-evaluator/internal/adapter/observability"
)

// Upstream wraps calls to one external service with a span, a per-call
// timeout, AI request metrics and a debug log line.
type Upstream struct {
	Provider string
	Endpoint string
	Timeout  time.Duration
	tracer   trace.Tracer
}

// NewUpstream constructs an Upstream. A zero timeout leaves the caller's
// deadline in charge.
func NewUpstream(provider, endpoint string, timeout time.Duration) *Upstream {
	return &Upstream{
		Provider: provider,
		Endpoint: endpoint,
		Timeout:  timeout,
		tracer:   otel.Tracer("compliance-evaluator/upstream"),
	}
}

// Do runs fn under the wrapper. The error from fn is returned unchanged.
func (u *Upstream) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := u.tracer.Start(ctx, u.Provider+"."+operation)
	defer span.End()
	span.SetAttributes(
		attribute.String("upstream.provider", u.Provider),
		attribute.String("upstream.endpoint", u.Endpoint),
		attribute.String("upstream.operation", operation),
	)

	callCtx := ctx
	if u.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, u.Timeout)
		defer cancel()
		span.SetAttributes(attribute.Float64("timeout.seconds", u.Timeout.Seconds()))
	}

	start := time.Now()
	err := fn(callCtx)
	dur := time.Since(start)
	adapterobs.ObserveAIRequest(u.Provider, operation, start, err)

	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			span.SetAttributes(attribute.Bool("timeout", true))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Float64("duration.seconds", dur.Seconds()))

	LoggerFromContext(ctx).Debug("upstream call",
		slog.String("provider", u.Provider),
		slog.String("operation", operation),
		slog.Duration("duration", dur),
		slog.Bool("success", err == nil))
	return err
}
