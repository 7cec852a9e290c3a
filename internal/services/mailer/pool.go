package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/common"
)

// Sender transmits one message over SMTP. write streams the message body
// into the DATA command.
type Sender interface {
	Send(ctx context.Context, from string, to []string, write func(w io.Writer) error) error
	Close() error
}

// Pool is a Sender holding at most MaxConnections SMTP sessions. Sessions
// are kept after a successful send and reused by later callers.
type Pool struct {
	config common.SMTPConfig
	slots  chan struct{}
	logger arbor.ILogger

	mu     sync.Mutex
	idle   []*session
	closed bool
}

// session is an SMTP client and the connection it runs on. Deadlines are
// set on conn; they also bound reads and writes through TLS.
type session struct {
	client *smtp.Client
	conn   net.Conn
}

var _ Sender = (*Pool)(nil)

// NewPool creates an SMTP connection pool
func NewPool(config common.SMTPConfig, logger arbor.ILogger) *Pool {
	size := config.MaxConnections
	if size < 1 {
		size = 5
	}
	return &Pool{
		config: config,
		slots:  make(chan struct{}, size),
		logger: logger,
	}
}

// Send implements Sender. Every command of the exchange is bounded by the
// ctx deadline, or SendTimeout when ctx has none, and cancelling ctx aborts
// blocked I/O at once.
func (p *Pool) Send(ctx context.Context, from string, to []string, write func(w io.Writer) error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	sess, err := p.get(ctx)
	if err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(p.config.SendTimeout.Or(2 * time.Minute))
	}
	if err := sess.conn.SetDeadline(deadline); err != nil {
		_ = sess.conn.Close()
		return fmt.Errorf("failed to set SMTP deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = sess.conn.SetDeadline(time.Now())
	})

	err = transmit(sess.client, from, to, write)
	aborted := !stop()
	if err != nil || aborted {
		// Session state is unknown after a failure or an aborted exchange
		_ = sess.conn.Close()
		return err
	}

	if err := sess.conn.SetDeadline(time.Time{}); err != nil {
		_ = sess.conn.Close()
		return nil
	}
	p.put(sess)
	return nil
}

// Close quits every idle session
func (p *Pool) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	for _, sess := range idle {
		p.quit(sess)
	}
	return nil
}

// quit ends an idle session, bounded by the dial timeout
func (p *Pool) quit(sess *session) {
	_ = sess.conn.SetDeadline(time.Now().Add(p.config.DialTimeout.Or(10 * time.Second)))
	_ = sess.client.Quit()
	_ = sess.conn.Close()
}

func (p *Pool) get(ctx context.Context) (*session, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("smtp pool is closed")
		}
		n := len(p.idle)
		if n == 0 {
			p.mu.Unlock()
			break
		}
		sess := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		// A dead peer must not stall the health check
		_ = sess.conn.SetDeadline(time.Now().Add(p.config.DialTimeout.Or(10 * time.Second)))
		if err := sess.client.Reset(); err == nil {
			return sess, nil
		}
		p.logger.Debug().Msg("Discarding stale SMTP session")
		_ = sess.conn.Close()
	}
	return p.dial(ctx)
}

func (p *Pool) put(sess *session) {
	p.mu.Lock()
	if p.closed || len(p.idle) >= cap(p.slots) {
		p.mu.Unlock()
		p.quit(sess)
		return
	}
	p.idle = append(p.idle, sess)
	p.mu.Unlock()
}

func (p *Pool) dial(ctx context.Context) (*session, error) {
	if p.config.Host == "" {
		return nil, ErrNotConfigured
	}
	addr := net.JoinHostPort(p.config.Host, strconv.Itoa(p.config.Port))
	tlsConfig := &tls.Config{ServerName: p.config.Host}
	timeout := p.config.DialTimeout.Or(10 * time.Second)

	dialer := &net.Dialer{Timeout: timeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	// Greeting, TLS and AUTH share the dial timeout
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := raw.SetDeadline(deadline); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to set SMTP deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = raw.SetDeadline(time.Now())
	})
	defer stop()

	conn := raw
	if p.config.UseTLS {
		tlsConn := tls.Client(raw, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, p.config.Host)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if !p.config.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				raw.Close()
				return nil, fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if p.config.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", p.config.Username, p.config.Password, p.config.Host)
			if err := client.Auth(auth); err != nil {
				raw.Close()
				return nil, fmt.Errorf("SMTP authentication failed: %w", err)
			}
		}
	}

	p.logger.Debug().Str("addr", addr).Bool("tls", p.config.UseTLS).Msg("SMTP session opened")
	return &session{client: client, conn: raw}, nil
}

func transmit(client *smtp.Client, from string, to []string, write func(w io.Writer) error) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set mail recipient: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if err := write(w); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return nil
}
