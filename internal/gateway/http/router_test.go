package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tabwave/stepgate/internal/gateway/notify"
	"github.com/tabwave/stepgate/internal/gateway/plugin"
	"github.com/tabwave/stepgate/internal/gateway/plugin/defaults"
	"github.com/tabwave/stepgate/internal/gateway/service"
	"github.com/tabwave/stepgate/internal/gateway/store/drivers/memory"
	"github.com/tabwave/stepgate/pkg/jwtx"
)

const testSigningSecret = "0123456789abcdef0123456789abcdef"

type stubFinder struct {
	valid map[string]bool
	fail  error
}

func (stubFinder) Name() string              { return "Stub" }
func (stubFinder) Category() plugin.Category { return plugin.CategoryFinder }
func (f stubFinder) IsValidSubject(context.Context, string, string) (bool, error) {
	return false, f.fail
}

type mapFinder struct{ valid map[string]bool }

func (mapFinder) Name() string              { return "Map" }
func (mapFinder) Category() plugin.Category { return plugin.CategoryFinder }
func (f mapFinder) IsValidSubject(_ context.Context, _, subject string) (bool, error) {
	return f.valid[subject], nil
}

type captureNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (n *captureNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *captureNotifier) lastCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.messages)
	body := n.messages[len(n.messages)-1].Body

	idx := strings.Index(body, ": ")
	require.GreaterOrEqual(t, idx, 0)
	code := strings.TrimSpace(body[idx+2:])
	if nl := strings.IndexByte(code, '\n'); nl >= 0 {
		code = code[:nl]
	}
	return code
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	router   *Router
	notifier *captureNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := testLogger()
	ledger := memory.NewLedger()
	notifier := &captureNotifier{}

	method, err := defaults.NewEmailMethod(ledger, notifier, plugin.Settings{"salt": "pepper"})
	require.NoError(t, err)

	registry := plugin.NewRegistry(log, nil)
	require.NoError(t, registry.Register(method))

	tmpl, err := defaults.NewBasicTemplate(plugin.Settings{})
	require.NoError(t, err)
	require.NoError(t, registry.Register(tmpl))
	registry.Seal()

	signer, err := jwtx.NewHMACSigner("HS512", testSigningSecret)
	require.NoError(t, err)
	verifier, err := jwtx.NewHMACVerifier("HS512", testSigningSecret, "stepgate", []string{"gateway"})
	require.NoError(t, err)

	finder := mapFinder{valid: map[string]bool{"a@b.com": true}}

	router := NewRouter(log, "test")
	router.Registry = registry
	router.Ledger = ledger
	router.Template = tmpl
	router.DefaultMethod = "Email"
	router.Cookie = TokenCookie{Name: "stepgate_token", MaxAge: time.Hour, HTTPOnly: true}
	router.Orchestrator = &service.Orchestrator{
		Log:        log,
		Registry:   registry,
		Finder:     finder,
		Signer:     signer,
		Issuer:     "stepgate",
		Audience:   []string{"gateway"},
		SessionTTL: time.Hour,
	}
	router.Validator = &service.Validator{
		Log:      log,
		Verifier: verifier,
		Finder:   finder,
	}

	return &fixture{router: router, notifier: notifier}
}

func postForm(t *testing.T, h http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "http://host1/", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.RemoteAddr = "1.2.3.4:9999"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestAuthenticate_FullFlow(t *testing.T) {
	f := newFixture(t)
	f.router.ApplyAuthenticatorRoutes()

	// Initial GET renders the subject form.
	r := httptest.NewRequest(http.MethodGet, "http://host1/", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `name="subject"`)

	// Submitting a subject requests a code.
	w = postForm(t, f.router, url.Values{
		"authtype": {"Email"},
		"submit":   {"subject"},
		"subject":  {"a@b.com"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `name="code"`)

	// Submitting the mailed code authenticates and redirects.
	w = postForm(t, f.router, url.Values{
		"authtype": {"Email"},
		"submit":   {"code"},
		"subject":  {"a@b.com"},
		"code":     {f.notifier.lastCode(t)},
		"referrer": {"/app"},
	})
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/app", w.Header().Get("Location"))

	var sessionCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "stepgate_token" {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	require.True(t, sessionCookie.HttpOnly)
	require.NotEmpty(t, sessionCookie.Value)
}

func TestAuthenticate_WrongCodeRerenders(t *testing.T) {
	f := newFixture(t)
	f.router.ApplyAuthenticatorRoutes()

	postForm(t, f.router, url.Values{
		"authtype": {"Email"}, "submit": {"subject"}, "subject": {"a@b.com"},
	})

	w := postForm(t, f.router, url.Values{
		"authtype": {"Email"}, "submit": {"code"}, "subject": {"a@b.com"}, "code": {"WRONGWRONG12"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "did not validate")
	require.Empty(t, w.Result().Cookies())
}

func TestAuthenticate_UnknownSubjectSameShape(t *testing.T) {
	f := newFixture(t)
	f.router.ApplyAuthenticatorRoutes()

	known := postForm(t, f.router, url.Values{
		"authtype": {"Email"}, "submit": {"subject"}, "subject": {"a@b.com"},
	})
	unknown := postForm(t, f.router, url.Values{
		"authtype": {"Email"}, "submit": {"subject"}, "subject": {"stranger@b.com"},
	})

	require.Equal(t, known.Code, unknown.Code)
	// Both renderings ask for a code; nothing hints which subject exists.
	require.Contains(t, unknown.Body.String(), `name="code"`)
}

func TestAuthenticate_JSONRenderContext(t *testing.T) {
	f := newFixture(t)
	f.router.ApplyAuthenticatorRoutes()

	r := httptest.NewRequest(http.MethodGet, "http://host1/", nil)
	r.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/json")
	require.Contains(t, w.Body.String(), `"authtype"`)
}

func TestAuthenticate_OpenRedirectBlocked(t *testing.T) {
	f := newFixture(t)
	f.router.ApplyAuthenticatorRoutes()

	postForm(t, f.router, url.Values{
		"authtype": {"Email"}, "submit": {"subject"}, "subject": {"a@b.com"},
	})
	w := postForm(t, f.router, url.Values{
		"authtype": {"Email"},
		"submit":   {"code"},
		"subject":  {"a@b.com"},
		"code":     {f.notifier.lastCode(t)},
		"referrer": {"https://evil.example.com/"},
	})
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/", w.Header().Get("Location"))
}

func validateRequest(token string, viaCookie bool) *http.Request {
	target := "http://host1/"
	if !viaCookie && token != "" {
		target += "?token=" + url.QueryEscape(token)
	}
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.RemoteAddr = "1.2.3.4:9999"
	if viaCookie && token != "" {
		r.AddCookie(&http.Cookie{Name: "stepgate_token", Value: token})
	}
	return r
}

func mintTestToken(t *testing.T, subject string, ttl time.Duration) string {
	t.Helper()
	signer, err := jwtx.NewHMACSigner("HS512", testSigningSecret)
	require.NoError(t, err)
	token, err := signer.Sign(jwtx.NewSessionClaims(subject, "stepgate", "code", []string{"gateway"}, ttl, time.Now()))
	require.NoError(t, err)
	return token
}

func TestValidate_AllowAndDeny(t *testing.T) {
	f := newFixture(t)
	f.router.ApplyValidatorRoutes()

	token := mintTestToken(t, "a@b.com", time.Hour)

	for _, viaCookie := range []bool{true, false} {
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, validateRequest(token, viaCookie))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "a@b.com", w.Header().Get("X-Auth-Subject"))
	}

	cases := map[string]string{
		"no token":        "",
		"garbage":         "nope",
		"expired":         mintTestToken(t, "a@b.com", -time.Minute),
		"revoked subject": mintTestToken(t, "gone@b.com", time.Hour),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, validateRequest(token, true))
			require.Equal(t, http.StatusForbidden, w.Code)
			require.Empty(t, w.Header().Get("X-Auth-Subject"))
		})
	}
}

func TestValidate_ConfigurationFaultIs500(t *testing.T) {
	f := newFixture(t)
	f.router.Validator = &service.Validator{Log: testLogger()}
	f.router.ApplyValidatorRoutes()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, validateRequest("anything", true))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	f.router.ApplyValidatorRoutes()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://host1/validator-status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	f.router.Validator.Finder = stubFinder{fail: context.DeadlineExceeded}
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://host1/validator-status", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSystemEndpoints(t *testing.T) {
	f := newFixture(t)
	f.router.ApplyAuthenticatorRoutes()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://host1/livez", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://host1/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"ledger":"ok"`)
}
