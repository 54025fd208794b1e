package api

import (
	"context"
	"net/http"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const wsConnectSpanName = "websocket.connect"

// startWebSocketSpan opens the span that lives as long as one websocket. It
// continues a trace propagated in the upgrade request headers.
func startWebSocketSpan(r *http.Request, route string) (context.Context, trace.Span) {
	ctx := otelapi.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otelapi.Tracer("pairlab/ws")
	return tracer.Start(ctx, wsConnectSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.String("http.target", sanitizeWSTarget(r)),
			attribute.String("user_agent", r.UserAgent()),
		),
	)
}

func sanitizeWSTarget(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	copyURL := *r.URL
	query := copyURL.Query()
	query.Del("token")
	copyURL.RawQuery = query.Encode()
	return copyURL.RequestURI()
}
