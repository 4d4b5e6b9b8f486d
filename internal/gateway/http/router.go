package http

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tabwave/stepgate/internal/gateway/plugin"
	"github.com/tabwave/stepgate/internal/gateway/service"
	"github.com/tabwave/stepgate/internal/gateway/store"
	"github.com/tabwave/stepgate/pkg/httpx"
	"github.com/tabwave/stepgate/pkg/slogx"
	"github.com/tabwave/stepgate/pkg/ticket"
)

// TokenCookie describes how the session token travels back to the
// client.
type TokenCookie struct {
	Name     string
	MaxAge   time.Duration
	Secure   bool
	HTTPOnly bool
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	logger    *slog.Logger
	startTime time.Time
	version   string

	Orchestrator *service.Orchestrator
	Validator    *service.Validator
	Registry     *plugin.Registry
	Ledger       store.Ledger
	Template     plugin.Template

	Cookie        TokenCookie
	Tickets       *ticket.CookiePolicy // optional legacy cookie emission
	DefaultMethod string
}

func NewRouter(logger *slog.Logger, version string) *Router {
	r := &Router{
		Mux:       http.NewServeMux(),
		logger:    logger,
		startTime: time.Now(),
		version:   version,
	}
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}
	return r
}

// ApplyAuthenticatorRoutes registers the challenge flow endpoints.
func (r *Router) ApplyAuthenticatorRoutes() {
	r.Mux.Handle("/", httpx.RateLimitByIPAndFormField(httpx.ModerateLimit, "subject")(r.handleAuthenticate()))
	r.registerSystem()
}

// ApplyValidatorRoutes registers the token validation endpoints.
func (r *Router) ApplyValidatorRoutes() {
	r.Mux.Handle("/", httpx.RateLimitByIP(httpx.PublicLimit)(r.handleValidate()))
	r.Mux.Handle("GET /validator-status", httpx.RateLimitByIP(httpx.LenientLimit)(r.handleStatus()))
	r.registerSystem()
}

func (r *Router) registerSystem() {
	r.Mux.HandleFunc("GET /livez", r.handleLivez())
	r.Mux.HandleFunc("GET /readyz", r.handleReadyz())
}

// ServeHTTP applies the global middleware chain around the mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// requestHost strips any port so ledger keys and per-host settings
// agree on the bare hostname.
func requestHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.Host); err == nil {
		return host
	}
	return r.Host
}
