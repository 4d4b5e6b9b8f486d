package defaults

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tabwave/stepgate/internal/gateway/domain"
	"github.com/tabwave/stepgate/internal/gateway/notify"
	"github.com/tabwave/stepgate/internal/gateway/plugin"
	"github.com/tabwave/stepgate/internal/gateway/store"
	"github.com/tabwave/stepgate/pkg/cryptox"
)

const (
	emailCodeLength    = 12
	defaultCodeTimeout = 300 * time.Second
)

// EmailMethod mails a random one-time code to the subject. The code
// hash is stored before the mail is dispatched, so a send failure
// leaves a record a retry can overwrite and a delivered mail always
// has a validatable code behind it.
type EmailMethod struct {
	ledger   store.Ledger
	notifier notify.Notifier

	salt    string
	subject string
	body    string
	baseURL string // when set, the mail includes a click-to-login link
	timeout time.Duration
	now     func() time.Time
}

func NewEmailMethod(ledger store.Ledger, notifier notify.Notifier, settings plugin.Settings) (*EmailMethod, error) {
	salt := settings.GetString("salt", "")
	if salt == "" {
		return nil, fmt.Errorf("defaults: email method requires a salt setting")
	}

	return &EmailMethod{
		ledger:   ledger,
		notifier: notifier,
		salt:     salt,
		subject:  settings.GetString("subject", "Your access code"),
		body:     settings.GetString("body", "Your authentication code: {code}\n"),
		baseURL:  settings.GetString("url", ""),
		timeout:  settings.GetDuration("timeout", defaultCodeTimeout),
		now:      time.Now,
	}, nil
}

func (m *EmailMethod) Name() string              { return "Email" }
func (m *EmailMethod) Category() plugin.Category { return plugin.CategoryAuthenticator }

func (m *EmailMethod) IssueCode(ctx context.Context, host, subject string) error {
	subject = domain.NormalizeSubject(subject)
	code := cryptox.MustGenerateCode(emailCodeLength)

	// Store first. If the mail fails the record stays put; the user
	// retries and the next issue replaces it.
	err := m.ledger.StoreAccessRequest(ctx, domain.AccessRequest{
		Host:     host,
		Subject:  subject,
		IssuedAt: m.now().UTC(),
		CodeHash: cryptox.HashCode(code, m.salt),
	})
	if err != nil {
		return err
	}

	body := strings.ReplaceAll(m.body, "{code}", code)
	if strings.Contains(body, "{url}") {
		body = strings.ReplaceAll(body, "{url}", m.loginURL(subject, code))
	}

	if err := m.notifier.Send(ctx, notify.Message{
		To:      subject,
		Subject: m.subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("%w: %w", plugin.ErrCodeSending, err)
	}
	return nil
}

func (m *EmailMethod) CheckCode(ctx context.Context, host, subject, code string) error {
	subject = domain.NormalizeSubject(subject)

	req, err := m.ledger.GetAccessRequest(ctx, host, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return plugin.ErrNoAccessRequest
		}
		return err
	}

	if req.Expired(m.timeout, m.now()) {
		// Expired challenges are consumed; the user restarts.
		if err := m.ledger.DeleteAccessRequests(ctx, host, subject); err != nil {
			return err
		}
		return plugin.ErrCodeTimeout
	}

	if !cryptox.VerifyCode(code, m.salt, req.CodeHash) {
		// The record stays so the user may retry until expiry.
		return plugin.ErrCodeIncorrect
	}

	return m.ledger.DeleteAccessRequests(ctx, host, subject)
}

func (m *EmailMethod) RenderContext(string) map[string]any {
	return map[string]any{
		"methodTitle":  "Email Authenticator",
		"subjectLabel": "Email",
		"codeHint":     "Provided in the email sent to you.",
		"requestLabel": "Send mail",
	}
}

// loginURL builds the click-to-login link carried in the mail body.
func (m *EmailMethod) loginURL(subject, code string) string {
	q := url.Values{}
	q.Set("authtype", m.Name())
	q.Set("submit", "code")
	q.Set("subject", subject)
	q.Set("code", code)
	return m.baseURL + "?" + q.Encode()
}
