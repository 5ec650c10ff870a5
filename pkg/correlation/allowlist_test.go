package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowlistAuthorizer_EmptyAdmitsAll(t *testing.T) {
	a := NewAllowlistAuthorizer(nil)

	ok, err := a.Authorize(context.Background(), "628111000111")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowlistAuthorizer_FiltersSenders(t *testing.T) {
	a := NewAllowlistAuthorizer([]string{"628111000111", "628222000222"})

	ok, _ := a.Authorize(context.Background(), "628111000111")
	assert.True(t, ok)

	ok, _ = a.Authorize(context.Background(), "628999000999")
	assert.False(t, ok)
}

func TestAllowlistAuthorizer_Replace(t *testing.T) {
	a := NewAllowlistAuthorizer([]string{"628111000111"})

	a.Replace([]string{"628999000999"})

	ok, _ := a.Authorize(context.Background(), "628111000111")
	assert.False(t, ok)
	ok, _ = a.Authorize(context.Background(), "628999000999")
	assert.True(t, ok)
}

func TestAllowlistAuthorizer_IgnoresEmptyIDs(t *testing.T) {
	a := NewAllowlistAuthorizer([]string{""})

	// A list of only empty strings behaves like an empty allowlist.
	ok, _ := a.Authorize(context.Background(), "anyone")
	assert.True(t, ok)
}
