package defaults

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tabwave/stepgate/internal/gateway/notify"
	"github.com/tabwave/stepgate/internal/gateway/plugin"
	"github.com/tabwave/stepgate/internal/gateway/store"
	"github.com/tabwave/stepgate/internal/gateway/store/drivers/memory"
	"github.com/tabwave/stepgate/pkg/codes"
)

type captureNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	fail     error
}

func (n *captureNotifier) Send(_ context.Context, msg notify.Message) error {
	if n.fail != nil {
		return n.fail
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *captureNotifier) last(t *testing.T) notify.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.messages)
	return n.messages[len(n.messages)-1]
}

func TestAllowlistFinder(t *testing.T) {
	f := NewAllowlistFinder(plugin.Settings{"subjects": "A@B.com, c@d.com"})

	ok, err := f.IsValidSubject(context.Background(), "host1", "a@b.com")
	require.NoError(t, err)
	require.True(t, ok, "subjects are case-normalized")

	ok, err = f.IsValidSubject(context.Background(), "host1", "nobody@b.com")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEmailDomainFinder(t *testing.T) {
	f := NewEmailDomainFinder(plugin.Settings{"domains": "Example.com"})

	cases := map[string]bool{
		"alice@example.com": true,
		"ALICE@EXAMPLE.COM": true,
		"alice@evil.com":    false,
		"not-an-email":      false,
		"@example.com":      true, // domain matches even with empty local part; finder only checks the domain
		"alice@":            false,
	}
	for subject, want := range cases {
		ok, err := f.IsValidSubject(context.Background(), "host1", subject)
		require.NoError(t, err)
		require.Equal(t, want, ok, "subject %q", subject)
	}
}

func newEmailMethod(t *testing.T, ledger store.Ledger, n notify.Notifier, extra plugin.Settings) *EmailMethod {
	t.Helper()

	settings := plugin.Settings{"salt": "pepper"}
	for k, v := range extra {
		settings[k] = v
	}
	m, err := NewEmailMethod(ledger, n, settings)
	require.NoError(t, err)
	return m
}

func TestEmailMethod_IssueAndCheck(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	notifier := &captureNotifier{}
	m := newEmailMethod(t, ledger, notifier, nil)

	require.NoError(t, m.IssueCode(ctx, "host1", "A@B.com"))

	// The ledger holds a hash, never the plaintext.
	rec, err := ledger.GetAccessRequest(ctx, "host1", "a@b.com")
	require.NoError(t, err)

	msg := notifier.last(t)
	require.Equal(t, "a@b.com", msg.To)
	code := extractCode(t, msg.Body)
	require.NotContains(t, rec.CodeHash, code)

	// Wrong code keeps the record for a retry.
	require.ErrorIs(t, m.CheckCode(ctx, "host1", "a@b.com", "WRONGWRONG12"), plugin.ErrCodeIncorrect)
	_, err = ledger.GetAccessRequest(ctx, "host1", "a@b.com")
	require.NoError(t, err)

	// Right code consumes it.
	require.NoError(t, m.CheckCode(ctx, "host1", "a@b.com", code))
	_, err = ledger.GetAccessRequest(ctx, "host1", "a@b.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	// And it cannot be replayed.
	require.ErrorIs(t, m.CheckCode(ctx, "host1", "a@b.com", code), plugin.ErrNoAccessRequest)
}

func TestEmailMethod_Expiry(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	notifier := &captureNotifier{}
	m := newEmailMethod(t, ledger, notifier, nil)

	issued := time.Unix(1700000000, 0)
	m.now = func() time.Time { return issued }
	require.NoError(t, m.IssueCode(ctx, "host1", "a@b.com"))
	code := extractCode(t, notifier.last(t).Body)

	// One second past the timeout: denied and consumed.
	m.now = func() time.Time { return issued.Add(defaultCodeTimeout + time.Second) }
	require.ErrorIs(t, m.CheckCode(ctx, "host1", "a@b.com", code), plugin.ErrCodeTimeout)

	_, err := ledger.GetAccessRequest(ctx, "host1", "a@b.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEmailMethod_SendFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	notifier := &captureNotifier{fail: context.DeadlineExceeded}
	m := newEmailMethod(t, ledger, notifier, nil)

	err := m.IssueCode(ctx, "host1", "a@b.com")
	require.ErrorIs(t, err, plugin.ErrCodeSending)

	// The stored hash survives so a retry is safe and a late delivery
	// still validates.
	_, err = ledger.GetAccessRequest(ctx, "host1", "a@b.com")
	require.NoError(t, err)
}

func TestEmailMethod_ReplaceOnReissue(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	notifier := &captureNotifier{}
	m := newEmailMethod(t, ledger, notifier, nil)

	require.NoError(t, m.IssueCode(ctx, "host1", "a@b.com"))
	first := extractCode(t, notifier.last(t).Body)

	require.NoError(t, m.IssueCode(ctx, "host1", "a@b.com"))
	second := extractCode(t, notifier.last(t).Body)
	require.NotEqual(t, first, second)

	// Only the latest code validates.
	require.ErrorIs(t, m.CheckCode(ctx, "host1", "a@b.com", first), plugin.ErrCodeIncorrect)
	require.NoError(t, m.CheckCode(ctx, "host1", "a@b.com", second))
}

func TestEmailMethod_LoginURL(t *testing.T) {
	ledger := memory.NewLedger()
	notifier := &captureNotifier{}
	m := newEmailMethod(t, ledger, notifier, plugin.Settings{
		"url":  "https://sso.example.com/",
		"body": "Code: {code}\nOr click: {url}\n",
	})

	require.NoError(t, m.IssueCode(context.Background(), "host1", "a@b.com"))
	body := notifier.last(t).Body
	require.Contains(t, body, "https://sso.example.com/?")
	require.Contains(t, body, "submit=code")
	require.Contains(t, body, "subject=a%40b.com")
}

func TestEmailMethod_RequiresSalt(t *testing.T) {
	_, err := NewEmailMethod(memory.NewLedger(), &captureNotifier{}, plugin.Settings{})
	require.Error(t, err)
}

const totpTestSecret = "JBSWY3DPEHPK3PXP"

func newTOTPMethod(notifier notify.Notifier, extra plugin.Settings) *TOTPMethod {
	settings := plugin.Settings{"secret.a@b.com": totpTestSecret}
	for k, v := range extra {
		settings[k] = v
	}
	return NewTOTPMethod(NewSettingsSecretSource(settings), notifier, settings)
}

func TestTOTPMethod_CheckCode(t *testing.T) {
	ctx := context.Background()
	m := newTOTPMethod(&captureNotifier{}, nil)

	now := time.Unix(1700000015, 0)
	m.now = func() time.Time { return now }

	code, err := codes.GenerateTimeCode(totpTestSecret, codes.TimeStep(now))
	require.NoError(t, err)

	require.NoError(t, m.CheckCode(ctx, "host1", "A@B.com", code))
	require.ErrorIs(t, m.CheckCode(ctx, "host1", "a@b.com", "000001"), plugin.ErrCodeIncorrect)

	// Unknown subjects look exactly like a wrong code.
	require.ErrorIs(t, m.CheckCode(ctx, "host1", "stranger@b.com", code), plugin.ErrCodeIncorrect)
}

func TestTOTPMethod_ReminderMail(t *testing.T) {
	notifier := &captureNotifier{}
	m := newTOTPMethod(notifier, plugin.Settings{"allow.reminder": "true"})

	require.NoError(t, m.IssueCode(context.Background(), "host1", "a@b.com"))
	require.Contains(t, notifier.last(t).Body, "otpauth://totp/")

	// Unknown subjects get nothing, silently.
	before := len(notifier.messages)
	require.NoError(t, m.IssueCode(context.Background(), "host1", "stranger@b.com"))
	require.Len(t, notifier.messages, before)
}

func TestSMSMethod_IssueAndCheck(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	notifier := &captureNotifier{}
	settings := plugin.Settings{"salt": "pepper", "phone.a@b.com": "+15550001111"}

	m, err := NewSMSMethod(ledger, notifier, NewSettingsPhoneResolver(settings), settings)
	require.NoError(t, err)

	require.NoError(t, m.IssueCode(ctx, "host1", "a@b.com"))
	msg := notifier.last(t)
	require.Equal(t, "+15550001111", msg.To)

	code := extractCode(t, msg.Body)
	require.NoError(t, m.CheckCode(ctx, "host1", "a@b.com", code))

	// No number registered: no message, no record, no error.
	before := len(notifier.messages)
	require.NoError(t, m.IssueCode(ctx, "host1", "stranger@b.com"))
	require.Len(t, notifier.messages, before)
	_, err = ledger.GetAccessRequest(ctx, "host1", "stranger@b.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMailRegistrar(t *testing.T) {
	notifier := &captureNotifier{}
	r, err := NewMailRegistrar(notifier, plugin.Settings{"to": "admin@example.com"})
	require.NoError(t, err)

	require.NoError(t, r.NotifyAccessRequest(context.Background(), "host1", "newbie@b.com"))
	msg := notifier.last(t)
	require.Equal(t, "admin@example.com", msg.To)
	require.Contains(t, msg.Body, "newbie@b.com")
	require.Contains(t, msg.Body, "host1")

	_, err = NewMailRegistrar(notifier, plugin.Settings{})
	require.Error(t, err)
}

func TestHostSettings(t *testing.T) {
	s := NewHostSettings(plugin.Settings{
		"host.tenant-a.code.timeout": "60",
		"host.tenant-a.jwt.audience": "tenant-a",
		"host.tenant-b.code.timeout": "600",
		"unrelated":                  "x",
	})

	overrides, err := s.GetRequestSettings(context.Background(), "tenant-a")
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"code.timeout": "60",
		"jwt.audience": "tenant-a",
	}, overrides)

	overrides, err = s.GetRequestSettings(context.Background(), "unknown")
	require.NoError(t, err)
	require.Empty(t, overrides)
}

func TestBasicTemplate_Render(t *testing.T) {
	tmpl, err := NewBasicTemplate(plugin.Settings{})
	require.NoError(t, err)

	var b strings.Builder
	err = tmpl.Render(&b, "auth", map[string]any{
		"methodTitle":  "Email Authenticator",
		"subjectLabel": "Email",
		"requestLabel": "Send mail",
		"authtype":     "Email",
	})
	require.NoError(t, err)
	require.Contains(t, b.String(), "Email Authenticator")
	require.Contains(t, b.String(), `name="subject"`)

	require.Error(t, tmpl.Render(&strings.Builder{}, "missing", nil))
}

// extractCode pulls the code out of a notification body of the form
// "...: <code>" or "...{code} substituted" bodies used in tests.
func extractCode(t *testing.T, body string) string {
	t.Helper()

	idx := strings.Index(body, ": ")
	require.GreaterOrEqual(t, idx, 0, "body %q has no code marker", body)
	code := body[idx+2:]
	if nl := strings.IndexByte(code, '\n'); nl >= 0 {
		code = code[:nl]
	}
	return strings.TrimSpace(code)
}
