package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// HMACValidator verifies request bodies against an HMAC signature header of
// the form "sha256=<hex>" (or "sha1=<hex>").
type HMACValidator struct {
	secret    string
	algorithm string
}

// NewHMACValidator creates a validator. An empty algorithm defaults to sha256.
func NewHMACValidator(secret, algorithm string) *HMACValidator {
	if algorithm == "" {
		algorithm = "sha256"
	}
	return &HMACValidator{secret: secret, algorithm: algorithm}
}

// Validate implements Validator. The request URL is not part of the signed
// payload for the generic HMAC scheme; vendor-specific validators may sign it.
func (v *HMACValidator) Validate(signatureHeader, requestURL string, body []byte) bool {
	if signatureHeader == "" {
		return false
	}

	var expected string
	switch v.algorithm {
	case "sha256":
		expected = computeHMACSHA256(body, v.secret)
	case "sha1":
		expected = computeHMACSHA1(body, v.secret)
	default:
		return false
	}

	// Timing-safe comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(signatureHeader), []byte(expected)) == 1
}

func computeHMACSHA256(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(h.Sum(nil)))
}

func computeHMACSHA1(body []byte, secret string) string {
	h := hmac.New(sha1.New, []byte(secret))
	h.Write(body)
	return fmt.Sprintf("sha1=%s", hex.EncodeToString(h.Sum(nil)))
}
