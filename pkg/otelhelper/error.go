package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks the span failed and records the error with any extra
// attributes attached to the error event itself.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err, trace.WithAttributes(attrs...))
}

// RunAttrs is the standard attribute set for spans covering one workflow run.
func RunAttrs(runID, workflowID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RunIDKey, runID),
		attribute.String(WorkflowIDKey, workflowID),
	}
}

// DeliveryAttrs is the standard attribute set for spans covering one webhook
// delivery attempt.
func DeliveryAttrs(deliveryID, webhookID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(DeliveryIDKey, deliveryID),
		attribute.String(WebhookIDKey, webhookID),
	}
}
