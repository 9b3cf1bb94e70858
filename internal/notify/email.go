package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
	"travelBooker/internal/config"
)

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type EmailChannel struct {
	addr    string
	host    string
	from    string
	auth    smtp.Auth
	timeout time.Duration
	dial    dialFunc
}

func NewEmailChannel(cfg config.SMTP) *EmailChannel {
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}

	return &EmailChannel{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host:    cfg.Host,
		from:    cfg.From,
		auth:    auth,
		timeout: cfg.Timeout,
		dial:    (&net.Dialer{}).DialContext,
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, n Notification) error {
	if n.Email == "" {
		return ErrNoRecipient
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.send(ctx, n.Email, c.message(n)); err != nil {
		return fmt.Errorf("notify.email: %w", err)
	}

	return nil
}

// send runs one SMTP session; the connection is bound to ctx so a stalled
// server cannot hold the caller past its deadline.
func (c *EmailChannel) send(ctx context.Context, to string, msg []byte) error {
	conn, err := c.dial(ctx, "tcp", c.addr)
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err = conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return err
		}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err = client.StartTLS(&tls.Config{ServerName: c.host}); err != nil {
			return err
		}
	}

	if c.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err = client.Auth(c.auth); err != nil {
				return err
			}
		}
	}

	if err = client.Mail(c.from); err != nil {
		return err
	}

	if err = client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}

	if _, err = w.Write(msg); err != nil {
		return err
	}

	if err = w.Close(); err != nil {
		return err
	}

	return client.Quit()
}

func (c *EmailChannel) message(n Notification) []byte {
	var b strings.Builder

	b.WriteString("From: " + c.from + "\r\n")
	b.WriteString("To: " + n.Email + "\r\n")
	b.WriteString("Subject: " + n.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(n.Body, "\n", "\r\n"))
	b.WriteString("\r\n")

	return []byte(b.String())
}
