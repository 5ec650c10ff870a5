package correlation

import (
	"context"
	"sync"
)

// AllowlistAuthorizer admits senders present in a fixed allowlist. An empty
// allowlist admits everyone, which keeps single-tenant deployments zero-config.
type AllowlistAuthorizer struct {
	mu      sync.RWMutex
	allowed map[string]struct{}
}

// NewAllowlistAuthorizer creates an authorizer from a list of sender IDs.
func NewAllowlistAuthorizer(senderIDs []string) *AllowlistAuthorizer {
	a := &AllowlistAuthorizer{}
	a.Replace(senderIDs)
	return a
}

// Authorize implements Authorizer.
func (a *AllowlistAuthorizer) Authorize(_ context.Context, senderID string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.allowed) == 0 {
		return true, nil
	}
	_, ok := a.allowed[senderID]
	return ok, nil
}

// Replace swaps the allowlist, for config reload.
func (a *AllowlistAuthorizer) Replace(senderIDs []string) {
	allowed := make(map[string]struct{}, len(senderIDs))
	for _, id := range senderIDs {
		if id != "" {
			allowed[id] = struct{}{}
		}
	}

	a.mu.Lock()
	a.allowed = allowed
	a.mu.Unlock()
}

var _ Authorizer = (*AllowlistAuthorizer)(nil)
