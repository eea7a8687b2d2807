package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/mail.v2"
)

type sentMessage struct {
	from string
	to   []string
	raw  string
}

// mockDialer hands out mockConns and tracks how many are open at once.
type mockDialer struct {
	mu       sync.Mutex
	dialErr  error
	sendErr  error
	block    chan struct{}
	sent     []sentMessage
	dials    int
	closes   int
	open     int
	maxOpen  int
	inflight atomic.Int32
}

func (d *mockDialer) Dial() (mail.SendCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.open++
	d.maxOpen = max(d.maxOpen, d.open)
	return &mockConn{dialer: d}, nil
}

func (d *mockDialer) messages() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentMessage(nil), d.sent...)
}

func (d *mockDialer) stats() (dials, closes, maxOpen int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials, d.closes, d.maxOpen
}

type mockConn struct {
	dialer *mockDialer
	closed bool
}

func (c *mockConn) Send(from string, to []string, msg io.WriterTo) error {
	d := c.dialer
	d.inflight.Add(1)
	defer d.inflight.Add(-1)

	if d.block != nil {
		<-d.block
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sendErr != nil {
		return d.sendErr
	}
	d.sent = append(d.sent, sentMessage{from: from, to: to, raw: buf.String()})
	return nil
}

func (c *mockConn) Close() error {
	d := c.dialer
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.closed {
		return errors.New("already closed")
	}
	c.closed = true
	d.closes++
	d.open--
	return nil
}

type sendCall struct {
	via          string
	to           string
	subject      string
	templateName string
	data         any
}

// mockSender fails primary sends with primaryErr and failover sends with
// failoverErr.
type mockSender struct {
	mu          sync.Mutex
	primaryErr  error
	failoverErr error
	calls       []sendCall
}

func (s *mockSender) Send(_ context.Context, to, subject, templateName string, data any) (string, error) {
	return s.record("primary", s.primaryErr, to, subject, templateName, data)
}

func (s *mockSender) SendViaFailover(_ context.Context, to, subject, templateName string, data any) (string, error) {
	return s.record("failover", s.failoverErr, to, subject, templateName, data)
}

func (s *mockSender) record(via string, err error, to, subject, templateName string, data any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, sendCall{via: via, to: to, subject: subject, templateName: templateName, data: data})
	if err != nil {
		return "", err
	}
	return "msg-id", nil
}

func (s *mockSender) count(via string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		if c.via == via {
			n++
		}
	}
	return n
}

type mockCounterStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newMockCounterStore() *mockCounterStore {
	return &mockCounterStore{counts: make(map[string]int64)}
}

func (m *mockCounterStore) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *mockCounterStore) Block(context.Context, string, time.Duration) error {
	return nil
}

func (m *mockCounterStore) Blocked(context.Context, string) (bool, error) {
	return false, nil
}
