// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/recipebox/recipebox/internal/auth"
)

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// Validate checks the relay settings.
func (c SMTPConfig) Validate() error {
	switch {
	case c.Host == "":
		return oops.Code("CONFIG_INVALID").With("field", "smtp.host").Errorf("smtp host is required")
	case c.Port <= 0 || c.Port > 65535:
		return oops.Code("CONFIG_INVALID").With("field", "smtp.port").Errorf("smtp port %d out of range", c.Port)
	case c.From == "":
		return oops.Code("CONFIG_INVALID").With("field", "smtp.from").Errorf("smtp from address is required")
	}
	return nil
}

func (c SMTPConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends messages through an SMTP relay.
type SMTPNotifier struct {
	cfg      SMTPConfig
	auth     smtp.Auth
	sendMail sendMailFunc
	now      func() time.Time
	logger   *slog.Logger
}

// NewSMTPNotifier creates an SMTPNotifier. PLAIN auth is used when a
// username is configured.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) (*SMTPNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &SMTPNotifier{cfg: cfg, sendMail: smtp.SendMail, now: time.Now, logger: logger}
	if cfg.Username != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return n, nil
}

// Send delivers msg. net/smtp has no context support, so ctx is only
// checked before dialing.
func (n *SMTPNotifier) Send(ctx context.Context, msg auth.Message) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("NOTIFY_CANCELLED").Wrap(err)
	}
	if strings.ContainsAny(msg.To, "\r\n") {
		return oops.Code("NOTIFY_INVALID_RECIPIENT").Errorf("recipient contains a line break")
	}

	start := n.now()
	if err := n.sendMail(n.cfg.addr(), n.auth, n.cfg.From, []string{msg.To}, n.compose(msg)); err != nil {
		return oops.Code("NOTIFY_SMTP_FAILED").
			With("relay", n.cfg.addr()).
			With("to", msg.To).
			Wrap(err)
	}

	n.logger.InfoContext(ctx, "message sent",
		"to", msg.To,
		"relay", n.cfg.Host,
		"duration", n.now().Sub(start),
	)
	return nil
}

func (n *SMTPNotifier) compose(msg auth.Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", ulid.Make().String(), n.cfg.Host)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.Bytes()
}

var _ auth.Notifier = (*SMTPNotifier)(nil)
