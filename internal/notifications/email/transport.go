// Package email provides the pooled SMTP transport and the email delivery channel.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"net/textproto"
	"time"

	"github.com/bissquit/notify-engine/internal/notifications"
	"github.com/google/uuid"
	"gopkg.in/mail.v2"
)

const mailer = "notify-engine"

// Endpoint is one SMTP server.
type Endpoint struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
	Timeout  time.Duration
}

// Enabled reports whether the endpoint is configured.
func (e Endpoint) Enabled() bool {
	return e.Host != ""
}

func (e Endpoint) dialer() *mail.Dialer {
	port := e.Port
	if port == 0 {
		port = 587
	}

	d := mail.NewDialer(e.Host, port, e.Username, e.Password)
	d.SSL = e.SSL
	if e.Timeout > 0 {
		d.Timeout = e.Timeout
	}
	return d
}

// TransportConfig holds SMTP transport configuration.
type TransportConfig struct {
	From      string
	Primary   Endpoint
	Secondary Endpoint
	Pool      PoolConfig
}

// Transport renders templates and sends mail through a primary pool, with an
// optional secondary pool for failover.
type Transport struct {
	from      string
	primary   *Pool
	secondary *Pool
	templates *Templates
	throttle  Throttle
	now       func() time.Time
}

// NewTransport creates a transport from configuration.
func NewTransport(cfg TransportConfig, templates *Templates, throttle Throttle) (*Transport, error) {
	if !cfg.Primary.Enabled() {
		return nil, errors.New("email transport: primary SMTP host is required")
	}

	var secondary Dialer
	if cfg.Secondary.Enabled() {
		secondary = cfg.Secondary.dialer()
	}

	slog.Info("email transport configured",
		"primary_host", cfg.Primary.Host,
		"primary_port", cfg.Primary.Port,
		"failover", cfg.Secondary.Enabled(),
		"max_connections", cfg.Pool.MaxConnections,
		"max_messages_per_conn", cfg.Pool.MaxMessagesPerConn,
	)

	return newTransport(cfg.From, cfg.Primary.dialer(), secondary, cfg.Pool, templates, throttle)
}

func newTransport(from string, primary, secondary Dialer, poolCfg PoolConfig, templates *Templates, throttle Throttle) (*Transport, error) {
	if _, err := netmail.ParseAddress(from); err != nil {
		return nil, fmt.Errorf("email transport: invalid from address %q: %w", from, err)
	}
	if templates == nil {
		return nil, errors.New("email transport: templates are required")
	}
	if throttle == nil {
		throttle = NewLocalThrottle(0, 0)
	}

	t := &Transport{
		from:      from,
		primary:   NewPool("primary", primary, poolCfg),
		templates: templates,
		throttle:  throttle,
		now:       time.Now,
	}
	if secondary != nil {
		t.secondary = NewPool("secondary", secondary, poolCfg)
	}
	return t, nil
}

// Templates returns the template cache.
func (t *Transport) Templates() *Templates {
	return t.templates
}

// HasFailover reports whether a secondary endpoint is configured.
func (t *Transport) HasFailover() bool {
	return t.secondary != nil
}

// Send renders templateName with data and sends it through the primary
// endpoint. It returns the generated message ID.
func (t *Transport) Send(ctx context.Context, to, subject, templateName string, data any) (string, error) {
	return t.send(ctx, t.primary, to, subject, templateName, data)
}

// SendViaFailover is Send through the secondary endpoint.
func (t *Transport) SendViaFailover(ctx context.Context, to, subject, templateName string, data any) (string, error) {
	if t.secondary == nil {
		return "", notifications.NewNonRetryableError(ErrFailoverNotConfigured)
	}
	return t.send(ctx, t.secondary, to, subject, templateName, data)
}

// Close closes both pools.
func (t *Transport) Close() {
	t.primary.Close()
	if t.secondary != nil {
		t.secondary.Close()
	}
}

func (t *Transport) send(ctx context.Context, pool *Pool, to, subject, templateName string, data any) (string, error) {
	addr, err := netmail.ParseAddress(to)
	if err != nil {
		return "", notifications.NewNonRetryableError(fmt.Errorf("%w: %w", ErrInvalidAddress, err))
	}

	body, err := t.templates.Render(templateName, data)
	if err != nil {
		return "", notifications.NewNonRetryableError(err)
	}

	if err := t.throttle.Wait(ctx); err != nil {
		return "", notifications.NewRetryableError(fmt.Errorf("throttle: %w", err))
	}

	messageID := uuid.NewString()

	msg := mail.NewMessage()
	msg.SetHeader("From", t.from)
	msg.SetHeader("To", addr.Address)
	msg.SetHeader("Subject", subject)
	msg.SetDateHeader("Date", t.now())
	msg.SetHeader("X-Message-ID", messageID)
	msg.SetHeader("X-Mailer", mailer)
	msg.SetBody("text/plain", body)

	from, _ := netmail.ParseAddress(t.from)
	if err := pool.Send(ctx, from.Address, []string{addr.Address}, msg); err != nil {
		return "", classify(err)
	}

	return messageID, nil
}

// classify tags send errors for the retry loop. 5xx replies and a closed pool
// are permanent; anything else is retried.
func classify(err error) error {
	var smtpErr *textproto.Error
	if errors.As(err, &smtpErr) {
		if smtpErr.Code >= 500 {
			return notifications.NewNonRetryableError(fmt.Errorf("smtp %d: %w", smtpErr.Code, err))
		}
		return notifications.NewRetryableError(fmt.Errorf("smtp %d: %w", smtpErr.Code, err))
	}

	if errors.Is(err, ErrPoolClosed) {
		return notifications.NewNonRetryableError(err)
	}

	return notifications.NewRetryableError(err)
}
