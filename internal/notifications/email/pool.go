package email

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"gopkg.in/mail.v2"
)

// Dialer opens SMTP connections. *mail.Dialer satisfies it.
type Dialer interface {
	Dial() (mail.SendCloser, error)
}

// PoolConfig bounds an SMTP connection pool.
type PoolConfig struct {
	MaxConnections     int
	MaxMessagesPerConn int
}

// Pool is a bounded pool of SMTP connections. At most MaxConnections are open
// at once; callers beyond that wait for a free slot. A connection is closed
// after MaxMessagesPerConn messages or after any send error.
type Pool struct {
	name        string
	dialer      Dialer
	slots       chan struct{}
	idle        chan *pooledConn
	maxMessages int

	mu     sync.Mutex
	closed bool
}

type pooledConn struct {
	conn mail.SendCloser
	sent int
}

// NewPool creates a pool for one SMTP endpoint. name labels logs and metrics.
func NewPool(name string, dialer Dialer, cfg PoolConfig) *Pool {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 5
	}
	maxMessages := cfg.MaxMessagesPerConn
	if maxMessages <= 0 {
		maxMessages = 100
	}

	return &Pool{
		name:        name,
		dialer:      dialer,
		slots:       make(chan struct{}, maxConns),
		idle:        make(chan *pooledConn, maxConns),
		maxMessages: maxMessages,
	}
}

// Send delivers msg on a pooled connection. If ctx ends while the SMTP
// exchange is in flight the call returns at once; the connection keeps its
// slot until the exchange finishes and is then discarded.
func (p *Pool) Send(ctx context.Context, from string, to []string, msg io.WriterTo) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	smtpPoolInUse.WithLabelValues(p.name).Inc()

	release := func() {
		smtpPoolInUse.WithLabelValues(p.name).Dec()
		<-p.slots
	}

	if p.isClosed() {
		release()
		return ErrPoolClosed
	}

	c, err := p.acquire()
	if err != nil {
		release()
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- c.conn.Send(from, to, msg)
	}()

	select {
	case err := <-done:
		p.release(c, err)
		release()
		smtpSends.WithLabelValues(p.name, resultLabel(err)).Inc()
		return err
	case <-ctx.Done():
		go func() {
			err := <-done
			p.discard(c)
			release()
			smtpSends.WithLabelValues(p.name, resultLabel(err)).Inc()
		}()
		return ctx.Err()
	}
}

// Close closes idle connections and rejects further sends.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case c := <-p.idle:
			p.discard(c)
		default:
			return
		}
	}
}

func (p *Pool) acquire() (*pooledConn, error) {
	select {
	case c := <-p.idle:
		return c, nil
	default:
	}

	conn, err := p.dialer.Dial()
	smtpDials.WithLabelValues(p.name, resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}
	return &pooledConn{conn: conn}, nil
}

func (p *Pool) release(c *pooledConn, sendErr error) {
	c.sent++
	if sendErr != nil || c.sent >= p.maxMessages {
		p.discard(c)
		return
	}

	// closed is checked under mu so Close never misses a connection pushed
	// after its drain
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.discard(c)
		return
	}

	select {
	case p.idle <- c:
	default:
		p.discard(c)
	}
}

func (p *Pool) discard(c *pooledConn) {
	if err := c.conn.Close(); err != nil {
		slog.Debug("failed to close smtp connection", "endpoint", p.name, "error", err)
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
