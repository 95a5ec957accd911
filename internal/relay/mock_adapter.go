package relay

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	errMockClosed       = errors.New("mock adapter: closed")
	errMockNotConnected = errors.New("mock adapter: not connected")
)

// MockAdapter is an in-memory Adapter. Tests push inbound messages with
// SimulateInbound and inspect what the relay sent.
type MockAdapter struct {
	inbound chan InboundMessage

	mu        sync.Mutex
	state     int // 0 idle, 1 connected, 2 closed
	outbox    []OutboundMessage
	failSends error
	botUserID string
	textLimit int
}

// NewMockAdapter returns an idle MockAdapter whose inbound channel buffers
// 100 messages.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{inbound: make(chan InboundMessage, 100)}
}

func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == 2 {
		return errMockClosed
	}
	m.state = 1
	return nil
}

func (m *MockAdapter) Listen(ctx context.Context) (<-chan InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != 1 {
		return nil, errMockNotConnected
	}
	return m.inbound, nil
}

// Send appends msg to the outbox, or fails with the error set by
// SetSendError.
func (m *MockAdapter) Send(ctx context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.state != 1:
		return errMockNotConnected
	case m.failSends != nil:
		return m.failSends
	}
	m.outbox = append(m.outbox, msg)
	return nil
}

func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != 2 {
		m.state = 2
		close(m.inbound)
	}
	return nil
}

func (m *MockAdapter) BotUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.botUserID
}

func (m *MockAdapter) SetBotUserID(id string) {
	m.mu.Lock()
	m.botUserID = id
	m.mu.Unlock()
}

// MaxTextLen reports the limit set by SetMaxTextLen; 0 means none.
func (m *MockAdapter) MaxTextLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.textLimit
}

func (m *MockAdapter) SetMaxTextLen(n int) {
	m.mu.Lock()
	m.textLimit = n
	m.mu.Unlock()
}

// SetSendError makes Send fail with err until it is reset with nil.
func (m *MockAdapter) SetSendError(err error) {
	m.mu.Lock()
	m.failSends = err
	m.mu.Unlock()
}

// SimulateInbound delivers msg as if a user had posted it, stamping the
// current time when msg has none.
func (m *MockAdapter) SimulateInbound(msg InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.inbound <- msg
}

// AllSent returns a copy of every message sent so far.
func (m *MockAdapter) AllSent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OutboundMessage(nil), m.outbox...)
}

func (m *MockAdapter) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outbox)
}

// LastSent returns the newest sent message, or false if nothing was sent.
func (m *MockAdapter) LastSent() (OutboundMessage, bool) {
	sent := m.AllSent()
	if len(sent) == 0 {
		return OutboundMessage{}, false
	}
	return sent[len(sent)-1], true
}
