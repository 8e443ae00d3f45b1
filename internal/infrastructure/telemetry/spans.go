package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName scopes the spans opened by the application services.
const TracerName = "github.com/arcade/backend"

// Span attribute keys for billing and recharge spans.
var (
	SpanAttrOperatorID     = attribute.Key("arcade.operator_id")
	SpanAttrSessionID      = attribute.Key("arcade.session_id")
	SpanAttrAppCode        = attribute.Key("arcade.app_code")
	SpanAttrPlayerCount    = attribute.Key("arcade.player_count")
	SpanAttrReplayed       = attribute.Key("arcade.replayed")
	SpanAttrOrderNumber    = attribute.Key("arcade.order_no")
	SpanAttrOrderStatus    = attribute.Key("arcade.order_status")
	SpanAttrPaymentGateway = attribute.Key("arcade.payment_gateway")
	SpanAttrAmount         = attribute.Key("arcade.amount")
)

// StartServiceSpan opens an internal span named "<service>.<operation>"
// under whatever span ctx already carries. The caller ends it.
func StartServiceSpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, service+"."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// SetAttributes is span.SetAttributes that tolerates a nil span.
func SetAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil || len(attrs) == 0 {
		return
	}
	span.SetAttributes(attrs...)
}

// RecordError attaches err to span and marks the span failed.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
