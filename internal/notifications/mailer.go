package notifications

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Mail struct {
	ToName    string
	ToAddress string
	Subject   string
	Body      string
}

// Mailer is the transport boundary. Implementations report delivery failure
// through the error; they never panic the handler.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer keeps a single lazily-dialed connection guarded by a mutex.
// That lock is the throughput ceiling of the whole notification pipeline:
// the resend job's workers all queue on it, which is the intended safety
// valve for the upstream relay, not an oversight.
type SMTPMailer struct {
	cfg SMTPConfig

	mu     sync.Mutex
	client *smtp.Client
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, mail Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A send that was cancelled while waiting on the lock must not start.
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := m.connect(ctx)
	if err != nil {
		return fmt.Errorf("connect to smtp relay: %w", err)
	}

	if err := m.submit(client, mail); err != nil {
		// The session state is unknown after a failed submit; drop the
		// connection so the next send redials.
		m.reset()
		return fmt.Errorf("submit mail to %s: %w", mail.ToAddress, err)
	}

	return nil
}

func (m *SMTPMailer) connect(ctx context.Context) (*smtp.Client, error) {
	if m.client != nil {
		if m.client.Noop() == nil {
			return m.client, nil
		}
		m.reset()
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	m.client = client
	return client, nil
}

func (m *SMTPMailer) submit(client *smtp.Client, mail Mail) error {
	if err := client.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(mail.ToAddress); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s <%s>\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n",
		m.cfg.From, mail.ToName, mail.ToAddress, mail.Subject, mail.Body)

	if _, err := w.Write([]byte(msg)); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

func (m *SMTPMailer) reset() {
	if m.client != nil {
		_ = m.client.Close()
		m.client = nil
	}
}

func (m *SMTPMailer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil
	}

	err := m.client.Quit()
	m.client = nil
	return err
}

// RetryMailer wraps another mailer with bounded exponential backoff. An
// exhausted retry budget surfaces as the last error; durable recording of
// the failure is the outbox's job, not the transport's.
type RetryMailer struct {
	next        Mailer
	maxRetries  uint64
	maxInterval time.Duration
}

func NewRetryMailer(next Mailer) *RetryMailer {
	return &RetryMailer{
		next:        next,
		maxRetries:  3,
		maxInterval: 5 * time.Second,
	}
}

func (r *RetryMailer) Send(ctx context.Context, mail Mail) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = r.maxInterval

	return backoff.Retry(func() error {
		return r.next.Send(ctx, mail)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, r.maxRetries), ctx))
}
