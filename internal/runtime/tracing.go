package runtime

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope every span in this binary is
// reported under.
const tracerName = "github.com/iddsorg/idds"

// NewTracerProvider builds an SDK TracerProvider tagged with the given
// service name (the agent role: "clerk", "transformer", "carrier") and a
// freshly generated instance ID — the same per-process identity tag
// original_source/main/lib/idds/agents/common/cache/redis.py's RedisCache
// assigns itself (self._id = str(uuid.uuid4())[:8]), here reported as the
// standard service.instance.id resource attribute so spans from one
// replica aren't confused with another's. It carries no exporter wired in
// by default — spans are recorded and sampled but only leave the process
// once an operator adds one (OTLP, stdout, etc.) — the same "tracing is
// structural, exporting is a deployment choice" split SPEC_FULL.md's
// tracing component calls for. Returns the provider and the instance ID
// for the caller to log.
func NewTracerProvider(serviceName string) (*sdktrace.TracerProvider, string) {
	instanceID := uuid.NewString()
	res := resource.NewSchemaless(
		semconv.ServiceName(serviceName),
		semconv.ServiceInstanceID(instanceID),
	)
	return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), instanceID
}

// SetGlobalTracerProvider installs tp as the provider Tracer() resolves
// spans from, mirroring otel.SetTracerProvider's usual call site at
// process startup.
func SetGlobalTracerProvider(tp *sdktrace.TracerProvider) {
	otel.SetTracerProvider(tp)
}

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartCycleSpan starts a span named "agent.cycle:<label>" around one
// agent poll cycle (§4.E/F/G's PullX calls), the unit SPEC_FULL.md's
// tracing component names: "spans around each agent cycle and each
// driver RPC".
func StartCycleSpan(ctx context.Context, label string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "agent.cycle:"+label)
}

// StartDriverSpan starts a span around one outbound driver RPC (PanDA,
// Rucio), named "driver.<op>".
func StartDriverSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "driver."+op)
}
