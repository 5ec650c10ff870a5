package session

import "time"

// Attachment is a received-but-unpaired media item buffered inside a session.
// ReceivedAt is assigned when the attachment is buffered and never changes;
// the correlation window is evaluated against it per attachment.
type Attachment struct {
	Data        []byte
	ContentType string
	ReceivedAt  time.Time
}

// Session is the correlation state for one sender. Sessions are owned by the
// Store; callers only observe copies or mutate through Store.Mutate.
type Session struct {
	SenderID       string
	CustomerName   string
	Pending        []Attachment
	LastActivityAt time.Time

	// Throttle state for repeated unauthorized-sender notices.
	LastWarningAt time.Time
	WarningActive bool
}

// Reset returns the session to its initial empty state after a dispatch:
// name unset, no pending attachments. Throttle state is kept.
func (s *Session) Reset() {
	s.CustomerName = ""
	s.Pending = nil
}

// clone deep-copies the session so snapshots never alias live buffers.
func (s *Session) clone() Session {
	c := *s
	if s.Pending != nil {
		c.Pending = make([]Attachment, len(s.Pending))
		copy(c.Pending, s.Pending)
	}
	return c
}
