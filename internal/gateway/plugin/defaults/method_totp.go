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
	"github.com/tabwave/stepgate/pkg/codes"
)

// SecretSource resolves a subject's shared TOTP secret. Missing
// subjects return ErrNoSecret.
type SecretSource interface {
	TOTPSecret(ctx context.Context, host, subject string) (string, error)
}

var ErrNoSecret = errors.New("defaults: no totp secret for subject")

// SettingsSecretSource reads secrets from the plugin configuration
// under "secret.<subject>". Suited to small fixed user sets; larger
// deployments plug in a store-backed source.
type SettingsSecretSource struct {
	settings plugin.Settings
}

func NewSettingsSecretSource(settings plugin.Settings) *SettingsSecretSource {
	return &SettingsSecretSource{settings: settings}
}

func (s *SettingsSecretSource) TOTPSecret(_ context.Context, _, subject string) (string, error) {
	secret := s.settings.GetString("secret."+domain.NormalizeSubject(subject), "")
	if secret == "" {
		return "", ErrNoSecret
	}
	return secret, nil
}

// TOTPMethod verifies authenticator-app codes. Codes are generated
// client-side, so IssueCode only sends the optional provisioning
// reminder mail.
type TOTPMethod struct {
	secrets  SecretSource
	notifier notify.Notifier

	issuer        string
	allowReminder bool
	reminderBody  string
	now           func() time.Time
}

func NewTOTPMethod(secrets SecretSource, notifier notify.Notifier, settings plugin.Settings) *TOTPMethod {
	return &TOTPMethod{
		secrets:       secrets,
		notifier:      notifier,
		issuer:        settings.GetString("issuer", "stepgate"),
		allowReminder: settings.GetBool("allow.reminder", false),
		reminderBody:  settings.GetString("reminder.body", "Scan this in your authenticator app: {url}\n"),
		now:           time.Now,
	}
}

func (m *TOTPMethod) Name() string              { return "TOTP" }
func (m *TOTPMethod) Category() plugin.Category { return plugin.CategoryAuthenticator }

// IssueCode mails a provisioning reminder when enabled. There is no
// server-issued code for this method.
func (m *TOTPMethod) IssueCode(ctx context.Context, host, subject string) error {
	if !m.allowReminder || m.notifier == nil {
		return nil
	}

	subject = domain.NormalizeSubject(subject)
	secret, err := m.secrets.TOTPSecret(ctx, host, subject)
	if err != nil {
		if errors.Is(err, ErrNoSecret) {
			// Do not reveal which subjects are provisioned.
			return nil
		}
		return err
	}

	body := strings.ReplaceAll(m.reminderBody, "{url}",
		codes.ProvisioningURL(m.issuer, subject, secret))

	if err := m.notifier.Send(ctx, notify.Message{
		To:      subject,
		Subject: fmt.Sprintf("%s authenticator setup", m.issuer),
		Body:    body,
	}); err != nil {
		return fmt.Errorf("%w: %w", plugin.ErrCodeSending, err)
	}
	return nil
}

func (m *TOTPMethod) CheckCode(ctx context.Context, host, subject, code string) error {
	subject = domain.NormalizeSubject(subject)

	secret, err := m.secrets.TOTPSecret(ctx, host, subject)
	if err != nil {
		if errors.Is(err, ErrNoSecret) {
			// Same outcome as a wrong code so provisioning state
			// cannot be probed.
			return plugin.ErrCodeIncorrect
		}
		return err
	}

	if !codes.VerifyTimeCode(secret, code, m.now()) {
		return plugin.ErrCodeIncorrect
	}
	return nil
}

func (m *TOTPMethod) RenderContext(string) map[string]any {
	return map[string]any{
		"methodTitle":  "Authenticator App",
		"subjectLabel": "Username",
		"codeHint":     "As generated by your authenticator app.",
		"requestLabel": "Next",
	}
}
