package tracing

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var GlobalTracer = otel.Tracer("coachcal-backend")
var GlobalSyncWorkerTracer = otel.Tracer("calendar-sync-worker")

// HoneycombSetup configures the OTel pipeline towards Honeycomb and instruments
// the given redis client. Returns a shutdown func for the exporter.
func HoneycombSetup(enabled bool, serviceName string, rdb *redis.Client) (func(), error) {
	if !enabled {
		return func() {}, nil
	}

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(serviceName),
	)
	if err != nil {
		return nil, fmt.Errorf("configure open telemetry: %w", err)
	}

	rdb.AddHook(redisotel.NewTracingHook())

	return otelShutdown, nil
}

func EndSpanWithErrCheck(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type PgxOtelTracer struct {
	tracer         trace.Tracer
	tracingEnabled bool
}

func NewPgxOtelTracer(tracingEnabled bool, tracer trace.Tracer) *PgxOtelTracer {
	return &PgxOtelTracer{
		tracingEnabled: tracingEnabled,
		tracer:         tracer,
	}
}

func (t *PgxOtelTracer) TraceConnectStart(ctx context.Context, data pgx.TraceConnectStartData) context.Context {
	if !t.tracingEnabled {
		return ctx
	}
	ctx, span := t.tracer.Start(ctx, "db.connectStart")
	defer span.End()
	return ctx
}

func (t *PgxOtelTracer) TraceConnectEnd(ctx context.Context, data pgx.TraceConnectEndData) {
	if !t.tracingEnabled {
		return
	}

	ctx, span := t.tracer.Start(ctx, "db.connectEnd")
	defer span.End()

	if data.Err != nil {
		span.SetStatus(codes.Error, data.Err.Error())
		span.RecordError(data.Err)
	}
}

func (t *PgxOtelTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if !t.tracingEnabled {
		return ctx
	}

	ctx, span := t.tracer.Start(ctx, "db.queryStart")
	defer span.End()

	span.SetAttributes(attribute.String("sql", data.SQL))

	return ctx
}

func (t *PgxOtelTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if !t.tracingEnabled {
		return
	}

	ctx, span := t.tracer.Start(ctx, "db.queryEnd")
	defer span.End()

	span.SetAttributes(attribute.String("commandTag", data.CommandTag.String()))
	if data.Err != nil {
		span.SetStatus(codes.Error, data.Err.Error())
		span.RecordError(data.Err)
	}
}
