package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	payload := []byte(`{"id":1}`)

	signature := Sign(payload, "s3cr3t")
	assert.Len(t, signature, 64, "hex-encoded SHA-256")
	assert.Equal(t, signature, Sign(payload, "s3cr3t"), "signing is deterministic")

	assert.NotEqual(t, signature, Sign(payload, "other"))
	assert.NotEqual(t, signature, Sign([]byte(`{"id":2}`), "s3cr3t"))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":1}`)
	signature := Sign(payload, "s3cr3t")

	assert.True(t, VerifySignature(payload, "s3cr3t", signature))
	assert.False(t, VerifySignature(payload, "other", signature))
	assert.False(t, VerifySignature([]byte(`{"id":2}`), "s3cr3t", signature))
	assert.False(t, VerifySignature(payload, "s3cr3t", ""))
}
