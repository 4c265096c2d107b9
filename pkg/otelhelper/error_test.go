package otelhelper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestRunAttrs(t *testing.T) {
	attrs := RunAttrs("run-1", "wf-1")
	assert.Equal(t, []attribute.KeyValue{
		attribute.String(RunIDKey, "run-1"),
		attribute.String(WorkflowIDKey, "wf-1"),
	}, attrs)
}

func TestDeliveryAttrs(t *testing.T) {
	attrs := DeliveryAttrs("del-1", "wh-1")
	assert.Equal(t, []attribute.KeyValue{
		attribute.String(DeliveryIDKey, "del-1"),
		attribute.String(WebhookIDKey, "wh-1"),
	}, attrs)
}
