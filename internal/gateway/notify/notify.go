// Package notify delivers one-time codes to subjects. Delivery is an
// external, potentially slow call; callers bound it with a context
// and treat failure as retryable.
package notify

import "context"

// Message is a single outbound notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier dispatches messages over one channel (mail, SMS gateway).
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
