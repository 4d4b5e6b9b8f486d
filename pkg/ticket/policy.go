package ticket

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"
)

// DefaultCookieName matches the cookie name legacy consumers look for.
const DefaultCookieName = "auth_tkt"

// Identity is the result of a successful cookie check.
type Identity struct {
	UserID   string
	Tokens   []string
	UserData string
	IssuedAt time.Time
}

// CookiePolicy signs, verifies and emits legacy ticket cookies.
//
// When IncludeIP is false the digest is bound to PlaceholderIP instead
// of the client address, which keeps tickets valid across proxies that
// rewrite the source IP.
type CookiePolicy struct {
	Secret       string
	CookieName   string
	Secure       bool
	IncludeIP    bool
	Timeout      time.Duration
	ReissueTime  time.Duration
	CookieDomain string

	now func() time.Time
}

// NewCookiePolicy validates the policy configuration. A timeout
// without a smaller reissue window would let tickets expire before
// they are ever refreshed, so that combination is rejected.
func NewCookiePolicy(secret, cookieName string, opts ...PolicyOption) (*CookiePolicy, error) {
	if secret == "" {
		return nil, fmt.Errorf("ticket: secret must not be empty")
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}

	p := &CookiePolicy{
		Secret:     secret,
		CookieName: cookieName,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.Timeout > 0 && (p.ReissueTime <= 0 || p.ReissueTime > p.Timeout) {
		return nil, fmt.Errorf("ticket: reissue time must be set below the timeout")
	}
	return p, nil
}

// PolicyOption configures a CookiePolicy.
type PolicyOption func(*CookiePolicy)

func WithSecure(secure bool) PolicyOption {
	return func(p *CookiePolicy) { p.Secure = secure }
}

func WithIncludeIP(include bool) PolicyOption {
	return func(p *CookiePolicy) { p.IncludeIP = include }
}

func WithTimeout(timeout, reissue time.Duration) PolicyOption {
	return func(p *CookiePolicy) {
		p.Timeout = timeout
		p.ReissueTime = reissue
	}
}

func WithCookieDomain(domain string) PolicyOption {
	return func(p *CookiePolicy) { p.CookieDomain = domain }
}

func withClock(now func() time.Time) PolicyOption {
	return func(p *CookiePolicy) { p.now = now }
}

// Identify reads and verifies the ticket cookie on the request. It
// returns false for any missing, malformed, forged or timed out
// ticket without distinguishing between those cases.
func (p *CookiePolicy) Identify(r *http.Request) (Identity, bool) {
	cookie, err := r.Cookie(p.CookieName)
	if err != nil || cookie.Value == "" {
		return Identity{}, false
	}

	tkt, err := Parse(p.Secret, decodeCookieValue(cookie.Value), p.clientAddr(r))
	if err != nil {
		return Identity{}, false
	}

	if p.Timeout > 0 && p.now().After(tkt.IssuedAt.Add(p.Timeout)) {
		return Identity{}, false
	}

	return Identity{
		UserID:   tkt.UserID,
		Tokens:   tkt.Tokens,
		UserData: tkt.UserData,
		IssuedAt: tkt.IssuedAt,
	}, true
}

// Remember writes Set-Cookie headers carrying a freshly signed ticket
// for the identity. An existing valid cookie for the same identity is
// left alone unless its age exceeds the reissue window.
func (p *CookiePolicy) Remember(w http.ResponseWriter, r *http.Request, id Identity, maxAge time.Duration) {
	addr := p.clientAddr(r)

	if existing, ok := p.Identify(r); ok {
		same := existing.UserID == id.UserID &&
			slices.Equal(existing.Tokens, id.Tokens) &&
			existing.UserData == id.UserData
		fresh := p.ReissueTime <= 0 || p.now().Before(existing.IssuedAt.Add(p.ReissueTime))
		if same && fresh {
			return
		}
	}

	value := Sign(p.Secret, id.UserID, addr, id.Tokens, id.UserData, p.now())
	p.setCookies(w, r, encodeCookieValue(value), maxAge)
}

// Forget overwrites the ticket cookie with an invalid expired value.
func (p *CookiePolicy) Forget(w http.ResponseWriter, r *http.Request) {
	p.setCookies(w, r, "INVALID", -time.Second)
}

func (p *CookiePolicy) clientAddr(r *http.Request) string {
	if !p.IncludeIP {
		return PlaceholderIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host
}

// setCookies emits the cookie under three scopes (bare path, exact
// host, wildcard subdomain) plus any configured extra domain. Legacy
// consumers differ in which variant they pick up.
func (p *CookiePolicy) setCookies(w http.ResponseWriter, r *http.Request, value string, maxAge time.Duration) {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	domains := []string{"", host, "." + host}
	if p.CookieDomain != "" && !slices.Contains(domains, p.CookieDomain) {
		domains = append(domains, p.CookieDomain)
	}

	for _, domain := range domains {
		c := &http.Cookie{
			Name:     p.CookieName,
			Value:    value,
			Path:     "/",
			Domain:   domain,
			Secure:   p.Secure,
			HttpOnly: p.Secure,
		}
		if maxAge != 0 {
			c.MaxAge = int(maxAge / time.Second)
			c.Expires = p.now().Add(maxAge)
		}
		http.SetCookie(w, c)
	}
}

func encodeCookieValue(v string) string {
	return base64.StdEncoding.EncodeToString([]byte(v))
}

// decodeCookieValue accepts both base64-wrapped and raw ticket
// values; some legacy writers skip the wrapping.
func decodeCookieValue(v string) string {
	if raw, err := base64.StdEncoding.DecodeString(v); err == nil && strings.Contains(string(raw), "!") {
		return string(raw)
	}
	return v
}
