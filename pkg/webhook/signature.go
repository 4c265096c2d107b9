// Package webhook delivers signed event notifications to subscribed HTTP
// endpoints and retries failures with exponential backoff.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 of the payload under the
// webhook secret. Receivers verify it against the X-Webhook-Signature
// header.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether the signature matches the payload in
// constant time.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := Sign(payload, secret)

	return hmac.Equal([]byte(expected), []byte(signature))
}
