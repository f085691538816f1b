// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/samber/oops"
)

// SMTPConfig configures SMTPNotifier.
type SMTPConfig struct {
	Host     string        `koanf:"host" yaml:"host"`
	Port     int           `koanf:"port" yaml:"port"`
	Username string        `koanf:"username" yaml:"username"`
	Password string        `koanf:"password" yaml:"password"`
	From     string        `koanf:"from" yaml:"from"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout"`
	// RequireTLS fails delivery when the server does not offer STARTTLS.
	RequireTLS bool `koanf:"require_tls" yaml:"require_tls"`
}

// Validate checks the settings needed to open a session.
func (c SMTPConfig) Validate() error {
	switch {
	case c.Host == "":
		return oops.In("notify").Errorf("smtp host is required")
	case c.Port <= 0 || c.Port > 65535:
		return oops.In("notify").Errorf("smtp port %d is out of range", c.Port)
	case c.From == "":
		return oops.In("notify").Errorf("smtp from address is required")
	}
	return nil
}

// SMTPNotifier sends messages through an SMTP relay, one session per message.
type SMTPNotifier struct {
	cfg SMTPConfig
	now func() time.Time
}

// NewSMTPNotifier creates an SMTPNotifier.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPNotifier{cfg: cfg, now: time.Now}, nil
}

// Send delivers one message. The session is bounded by ctx and the
// configured timeout, whichever ends first.
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	if err := validateHeaders(to, subject); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return oops.In("notify").With("addr", addr).Wrapf(err, "dial smtp server")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return oops.In("notify").Wrapf(err, "set smtp deadline")
		}
	}
	// Unblock the session if ctx is canceled before the deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		return oops.In("notify").With("addr", addr).Wrapf(err, "smtp greeting")
	}
	defer client.Close()

	if err := n.session(client, to, n.message(to, subject, body)); err != nil {
		return oops.In("notify").With("addr", addr).Wrap(err)
	}
	return nil
}

func (n *SMTPNotifier) session(client *smtp.Client, to string, msg []byte) error {
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	} else if n.cfg.RequireTLS {
		return fmt.Errorf("server %s does not offer STARTTLS", n.cfg.Host)
	}

	if n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	return client.Quit()
}

func (n *SMTPNotifier) message(to, subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.Bytes()
}
