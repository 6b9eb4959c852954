package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// mapCarrierHeaders adapts kafka message headers to the otel TextMapCarrier
// so trace context crosses the broker.
type mapCarrierHeaders map[string]string

var _ propagation.TextMapCarrier = mapCarrierHeaders{}

func (c mapCarrierHeaders) Get(key string) string { return c[key] }

func (c mapCarrierHeaders) Set(key, value string) { c[key] = value }

func (c mapCarrierHeaders) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func (c mapCarrierHeaders) ToKafka() []kafka.Header {
	out := make([]kafka.Header, 0, len(c))
	for k, v := range c {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

func extractTraceContext(ctx context.Context, hdrs []kafka.Header) context.Context {
	carrier := mapCarrierHeaders{}
	for _, h := range hdrs {
		carrier[h.Key] = string(h.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
