package defaults

import (
	"context"
	"fmt"
	"strings"

	"github.com/tabwave/stepgate/internal/gateway/notify"
	"github.com/tabwave/stepgate/internal/gateway/plugin"
)

// MailRegistrar mails an operator when a subject the finder does not
// know asks for access, so they can be provisioned by hand.
type MailRegistrar struct {
	notifier notify.Notifier
	to       string
	subject  string
	body     string
}

func NewMailRegistrar(notifier notify.Notifier, settings plugin.Settings) (*MailRegistrar, error) {
	to := settings.GetString("to", "")
	if to == "" {
		return nil, fmt.Errorf("defaults: mail registrar requires a to setting")
	}

	return &MailRegistrar{
		notifier: notifier,
		to:       to,
		subject:  settings.GetString("subject", "Access request from unknown subject"),
		body:     settings.GetString("body", "{subject} requested access on {host} but is not provisioned.\n"),
	}, nil
}

func (r *MailRegistrar) Name() string              { return "MailAdmin" }
func (r *MailRegistrar) Category() plugin.Category { return plugin.CategoryRegistrar }

func (r *MailRegistrar) NotifyAccessRequest(ctx context.Context, host, subject string) error {
	body := strings.ReplaceAll(r.body, "{subject}", subject)
	body = strings.ReplaceAll(body, "{host}", host)

	return r.notifier.Send(ctx, notify.Message{
		To:      r.to,
		Subject: r.subject,
		Body:    body,
	})
}
