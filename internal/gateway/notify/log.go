package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes messages to the log instead of delivering them.
// Meant for development and tests; never use it in production since
// plaintext codes end up in the log stream.
type LogNotifier struct {
	Log     *slog.Logger
	Channel string
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.Log.Info("notification (not delivered)",
		"channel", n.Channel,
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
