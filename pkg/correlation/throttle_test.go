package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oselz/orderline/pkg/session"
)

func TestEngine_UnauthorizedSenderGetsOneNoticePerWindow(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	ctx := context.Background()
	const sender = "whatsapp:+5219990000000"

	h.authorizer.deny(sender)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.engine.Handle(ctx, event(sender, "Maria Lopez", "https://m/a.jpg")))
	}

	sent := h.notifier.sent(sender)
	require.Len(t, sent, 1, "repeat notices inside the throttle window are suppressed")
	assert.Contains(t, sent[0], "not registered")

	// Unauthorized traffic never reaches correlation
	assert.Empty(t, h.pipeline.dispatched())
	s := h.store.GetOrCreate(sender)
	assert.Empty(t, s.CustomerName)
	assert.Empty(t, s.Pending)
	assert.True(t, s.WarningActive)
}

func TestEngine_UnauthorizedNoticeRepeatsAfterWindow(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	ctx := context.Background()
	const sender = "whatsapp:+5219990000001"

	h.authorizer.deny(sender)
	require.NoError(t, h.engine.Handle(ctx, event(sender, "hello")))
	require.Len(t, h.notifier.sent(sender), 1)

	// Age the throttle state beyond the window
	h.store.Mutate(sender, func(s *session.Session) {
		s.LastWarningAt = time.Now().Add(-h.engine.ThrottleWindow() - time.Second)
	})

	require.NoError(t, h.engine.Handle(ctx, event(sender, "hello again")))
	assert.Len(t, h.notifier.sent(sender), 2)
}

func TestEngine_ThrottleStateSurvivesOnSession(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	ctx := context.Background()
	const sender = "whatsapp:+5219990000002"

	h.authorizer.deny(sender)
	require.NoError(t, h.engine.Handle(ctx, event(sender, "hi")))

	// A session exists purely to hold the throttle state
	require.Equal(t, 1, h.store.Len())
	s := h.store.GetOrCreate(sender)
	assert.True(t, s.WarningActive)
	assert.False(t, s.LastWarningAt.IsZero())
}

func TestEngine_SetThrottleWindow(t *testing.T) {
	h := newHarness(t, 5*time.Second)

	h.engine.SetThrottleWindow(time.Minute)
	assert.Equal(t, time.Minute, h.engine.ThrottleWindow())

	h.engine.SetThrottleWindow(-time.Second)
	assert.Equal(t, time.Minute, h.engine.ThrottleWindow())
}
