package http

import (
	"net/http"
	"strings"

	"github.com/tabwave/stepgate/internal/gateway/domain"
	"github.com/tabwave/stepgate/internal/gateway/service"
	"github.com/tabwave/stepgate/pkg/httpx"
	"github.com/tabwave/stepgate/pkg/ticket"
)

// handleAuthenticate drives the challenge form. The submit field
// discriminates the step: "subject" requests a code, "code" verifies
// one. GET requests with the same fields work too, which is what the
// click-to-login mail links use.
func (rt *Router) handleAuthenticate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		in := service.ChallengeInput{
			Host:     requestHost(r),
			Method:   r.FormValue("authtype"),
			Subject:  r.FormValue("subject"),
			Code:     r.FormValue("code"),
			ClientIP: httpx.IPKeyExtractor(r),
			Path:     r.URL.Path,
		}
		if in.Method == "" {
			in.Method = rt.DefaultMethod
		}

		referrer := sanitizeReferrer(r.FormValue("referrer"))

		var result domain.ChallengeResult
		switch r.FormValue("submit") {
		case "subject", "email":
			result = rt.Orchestrator.RequestCode(r.Context(), in)
		case "code":
			result = rt.Orchestrator.SubmitCode(r.Context(), in)
		default:
			method, err := rt.Registry.ChallengeMethod(in.Method)
			if err != nil {
				rt.logger.Error("default challenge method missing", "method", in.Method, "error", err)
				rt.renderError(w)
				return
			}
			result = rt.Orchestrator.RenderInitial(method, in.Host)
		}

		switch result.Outcome {
		case domain.OutcomeAuthenticated:
			rt.finishAuthentication(w, r, result, referrer)
		case domain.OutcomeRender:
			result.Context["referrer"] = referrer
			rt.render(w, r, result.Context)
		default:
			rt.renderError(w)
		}
	}
}

// finishAuthentication delivers the session credential and redirects
// back to wherever the user came from.
func (rt *Router) finishAuthentication(w http.ResponseWriter, r *http.Request, result domain.ChallengeResult, referrer string) {
	httpx.NoCache(w)

	http.SetCookie(w, &http.Cookie{
		Name:     rt.Cookie.Name,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(rt.Cookie.MaxAge.Seconds()),
		Secure:   rt.Cookie.Secure,
		HttpOnly: rt.Cookie.HTTPOnly,
	})

	if rt.Tickets != nil {
		rt.Tickets.Remember(w, r, ticket.Identity{UserID: result.Subject}, rt.Cookie.MaxAge)
	}

	http.Redirect(w, r, referrer, http.StatusFound)
}

func (rt *Router) render(w http.ResponseWriter, r *http.Request, ctx map[string]any) {
	httpx.NoCache(w)

	// Programmatic clients get the raw render context.
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		httpx.WriteJSON(w, http.StatusOK, ctx)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := rt.Template.Render(w, "auth", ctx); err != nil {
		rt.logger.Error("rendering challenge form failed", "error", err)
	}
}

func (rt *Router) renderError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	if err := rt.Template.Render(w, "error", nil); err != nil {
		rt.logger.Error("rendering error page failed", "error", err)
	}
}

// sanitizeReferrer keeps redirects on-site. Absolute URLs and
// protocol-relative values fall back to the root.
func sanitizeReferrer(ref string) string {
	if ref == "" || !strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "//") {
		return "/"
	}
	return ref
}
