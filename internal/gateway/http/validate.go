package http

import (
	"errors"
	"net/http"

	"github.com/tabwave/stepgate/internal/gateway/service"
	"github.com/tabwave/stepgate/pkg/httpx"
)

// handleValidate is the auth_request endpoint upstream proxies call.
// The response is its status code: 200 allow, 403 deny, 500 for a
// wiring fault. Bodies carry nothing a client could learn from.
func (rt *Router) handleValidate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := rt.tokenFromRequest(r)

		subject, err := rt.Validator.Validate(
			r.Context(), requestHost(r), token, httpx.IPKeyExtractor(r), r.URL.Path,
		)
		if err != nil {
			if errors.Is(err, service.ErrConfiguration) {
				http.Error(w, "configuration error", http.StatusInternalServerError)
				return
			}
			http.Error(w, "denied", http.StatusForbidden)
			return
		}

		// Proxies forward this to the protected application.
		w.Header().Set("X-Auth-Subject", subject)
		w.WriteHeader(http.StatusOK)
	}
}

// tokenFromRequest reads the session token from the configured
// cookie, falling back to a token query/form parameter.
func (rt *Router) tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(rt.Cookie.Name); err == nil && c.Value != "" {
		return c.Value
	}
	return r.FormValue("token")
}

// handleStatus exercises plugin wiring without authenticating. A
// reachable finder and ledger yield 200; anything else is a 500 so
// orchestration can alert on broken configuration.
func (rt *Router) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rt.Validator == nil || rt.Validator.Finder == nil {
			httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"status": "misconfigured"})
			return
		}

		if _, err := rt.Validator.Finder.IsValidSubject(r.Context(), requestHost(r), "probe@status.invalid"); err != nil {
			rt.logger.Error("status probe failed", "error", err)
			httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"status": "finder unreachable"})
			return
		}

		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
