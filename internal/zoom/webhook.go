package zoom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// VerifySignature checks a webhook delivery against the shared secret.
// Zoom signs "v0:{timestamp}:{body}" with HMAC-SHA256 and sends
// "v0={hex digest}" in the x-zm-signature header.
func VerifySignature(secret, timestamp, signature string, body []byte) bool {
	if secret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// ValidationResponse answers Zoom's endpoint.url_validation challenge: the
// plain token echoed back next to its HMAC-SHA256 digest.
func ValidationResponse(secret, plainToken string) map[string]string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(plainToken))

	return map[string]string{
		"plainToken":     plainToken,
		"encryptedToken": hex.EncodeToString(mac.Sum(nil)),
	}
}
