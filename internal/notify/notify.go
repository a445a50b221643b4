// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

// Package notify delivers out-of-band messages such as password reset codes.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/samber/oops"

	"github.com/recipebox/recipebox/internal/auth"
)

// LogNotifier prints messages to a writer instead of sending them. It is
// meant for local development where no mail relay exists. Only the
// recipient and subject go to the structured log.
type LogNotifier struct {
	mu     sync.Mutex
	out    io.Writer
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier writing to out (os.Stdout if nil).
func NewLogNotifier(out io.Writer, logger *slog.Logger) *LogNotifier {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{out: out, logger: logger}
}

// Send writes msg to the configured writer.
func (n *LogNotifier) Send(ctx context.Context, msg auth.Message) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("NOTIFY_CANCELLED").Wrap(err)
	}

	n.mu.Lock()
	_, err := fmt.Fprintf(n.out, "To: %s\nSubject: %s\n\n%s\n", msg.To, msg.Subject, msg.Body)
	n.mu.Unlock()
	if err != nil {
		return oops.Code("NOTIFY_WRITE_FAILED").With("to", msg.To).Wrap(err)
	}

	n.logger.InfoContext(ctx, "message written to console outbox", "to", msg.To, "subject", msg.Subject)
	return nil
}

var _ auth.Notifier = (*LogNotifier)(nil)
