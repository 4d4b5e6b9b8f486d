package defaults

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tabwave/stepgate/internal/gateway/domain"
	"github.com/tabwave/stepgate/internal/gateway/notify"
	"github.com/tabwave/stepgate/internal/gateway/plugin"
	"github.com/tabwave/stepgate/internal/gateway/store"
	"github.com/tabwave/stepgate/pkg/cryptox"
)

const smsCodeLength = 6

// PhoneResolver maps a subject to the number an SMS code goes to.
type PhoneResolver interface {
	PhoneNumber(ctx context.Context, host, subject string) (string, error)
}

var ErrNoPhone = errors.New("defaults: no phone number for subject")

// SettingsPhoneResolver reads numbers from the plugin configuration
// under "phone.<subject>".
type SettingsPhoneResolver struct {
	settings plugin.Settings
}

func NewSettingsPhoneResolver(settings plugin.Settings) *SettingsPhoneResolver {
	return &SettingsPhoneResolver{settings: settings}
}

func (r *SettingsPhoneResolver) PhoneNumber(_ context.Context, _, subject string) (string, error) {
	number := r.settings.GetString("phone."+domain.NormalizeSubject(subject), "")
	if number == "" {
		return "", ErrNoPhone
	}
	return number, nil
}

// SMSMethod texts a short numeric-style code. Same ledger lifecycle
// as the email method, shorter code since typing it from a phone
// screen is the common path.
type SMSMethod struct {
	ledger   store.Ledger
	notifier notify.Notifier
	phones   PhoneResolver

	salt    string
	body    string
	timeout time.Duration
	now     func() time.Time
}

func NewSMSMethod(ledger store.Ledger, notifier notify.Notifier, phones PhoneResolver, settings plugin.Settings) (*SMSMethod, error) {
	salt := settings.GetString("salt", "")
	if salt == "" {
		return nil, fmt.Errorf("defaults: sms method requires a salt setting")
	}

	return &SMSMethod{
		ledger:   ledger,
		notifier: notifier,
		phones:   phones,
		salt:     salt,
		body:     settings.GetString("body", "Your access code: {code}"),
		timeout:  settings.GetDuration("timeout", defaultCodeTimeout),
		now:      time.Now,
	}, nil
}

func (m *SMSMethod) Name() string              { return "SMS" }
func (m *SMSMethod) Category() plugin.Category { return plugin.CategoryAuthenticator }

func (m *SMSMethod) IssueCode(ctx context.Context, host, subject string) error {
	subject = domain.NormalizeSubject(subject)

	number, err := m.phones.PhoneNumber(ctx, host, subject)
	if err != nil {
		if errors.Is(err, ErrNoPhone) {
			// Indistinguishable from a sent code; the audit log has
			// the real reason.
			return nil
		}
		return err
	}

	code := cryptox.MustGenerateCode(smsCodeLength)

	err = m.ledger.StoreAccessRequest(ctx, domain.AccessRequest{
		Host:     host,
		Subject:  subject,
		IssuedAt: m.now().UTC(),
		CodeHash: cryptox.HashCode(code, m.salt),
	})
	if err != nil {
		return err
	}

	if err := m.notifier.Send(ctx, notify.Message{
		To:   number,
		Body: strings.ReplaceAll(m.body, "{code}", code),
	}); err != nil {
		return fmt.Errorf("%w: %w", plugin.ErrCodeSending, err)
	}
	return nil
}

func (m *SMSMethod) CheckCode(ctx context.Context, host, subject, code string) error {
	subject = domain.NormalizeSubject(subject)

	req, err := m.ledger.GetAccessRequest(ctx, host, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return plugin.ErrNoAccessRequest
		}
		return err
	}

	if req.Expired(m.timeout, m.now()) {
		if err := m.ledger.DeleteAccessRequests(ctx, host, subject); err != nil {
			return err
		}
		return plugin.ErrCodeTimeout
	}

	if !cryptox.VerifyCode(code, m.salt, req.CodeHash) {
		return plugin.ErrCodeIncorrect
	}

	return m.ledger.DeleteAccessRequests(ctx, host, subject)
}

func (m *SMSMethod) RenderContext(string) map[string]any {
	return map[string]any{
		"methodTitle":  "SMS Authenticator",
		"subjectLabel": "Username",
		"codeHint":     "Texted to your registered number.",
		"requestLabel": "Send code",
	}
}
