// Package mailer sends outgoing email. The production implementation talks
// to AWS SES v2; the mock implementation is used in development and tests
// and by workflow code that must not touch the network.
package mailer

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Message is one outgoing email.
type Message struct {
	To       string
	Subject  string
	Body     string
	DraftID  uuid.UUID
	ThreadID string
	Headers  map[string]string
}

// Result identifies a sent message at the provider.
type Result struct {
	MessageID string
	ThreadID  string
}

// Mailer delivers a single message. Implementations return provider errors
// unwrapped inside a %w chain so callers can classify retryable failures.
type Mailer interface {
	Send(ctx context.Context, msg Message) (*Result, error)
}

// Mock records sends in memory and fabricates provider ids. Message ids are
// derived from the draft id so repeated sends of the same draft are visible.
type Mock struct {
	mu       sync.Mutex
	sent     []Message
	failNext error
}

// NewMock creates a mock mailer.
func NewMock() *Mock {
	return &Mock{}
}

// Send records the message and returns deterministic ids.
func (m *Mock) Send(_ context.Context, msg Message) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return nil, err
	}

	m.sent = append(m.sent, msg)
	threadID := msg.ThreadID
	if threadID == "" {
		threadID = fmt.Sprintf("thread_%s", msg.DraftID)
	}
	return &Result{
		MessageID: fmt.Sprintf("mock_%s", msg.DraftID),
		ThreadID:  threadID,
	}, nil
}

// FailNext makes the next Send return err once.
func (m *Mock) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// Sent returns a copy of everything sent so far.
func (m *Mock) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
