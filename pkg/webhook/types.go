package webhook

import "time"

// ServerOptions configures the intake webhook server.
type ServerOptions struct {
	Host               string        // default "0.0.0.0"
	Port               int           // default 3001
	Path               string        // intake endpoint path (default "/webhook/orders")
	Secret             string        // HMAC secret; empty disables verification
	SignatureHeader    string        // header carrying the signature (default "X-Webhook-Signature")
	SignatureAlgorithm string        // "sha256" or "sha1" (default "sha256")
	RateLimitPerMinute int           // per-IP request budget (default 100)
	ShutdownTimeout    time.Duration // in-flight drain budget on Stop (default 30s)
	EnableMetrics      bool          // mount /metrics
}

// Validator checks the authenticity of an inbound webhook request before any
// session state is touched. A false result is a 403 with no side effects.
type Validator interface {
	Validate(signatureHeader, requestURL string, body []byte) bool
}
