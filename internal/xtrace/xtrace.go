// Package xtrace names the broker's OpenTelemetry tracer and defines
// span names for the CONNECT handshake and the publish fan-out path. No
// code in the repository starts spans under these names.
package xtrace

const (
	// Name is the tracer name passed to otel.GetTracerProvider().Tracer(Name).
	Name = "github.com/lumenmq/lighthouse"

	SpanOnConnect  = "broker.on_connect"
	SpanBroadcast  = "broker.broadcast"
	SpanPublish    = "handler.publish"
	SpanSubscribe  = "broker.subscribe"
)
