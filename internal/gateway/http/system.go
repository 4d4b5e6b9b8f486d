package http

import (
	"net/http"
	"time"

	"github.com/tabwave/stepgate/pkg/httpx"
)

type healthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleLivez always answers 200 while the process runs.
func (rt *Router) handleLivez() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, healthResponse{
			Status:  "ok",
			Uptime:  time.Since(rt.startTime).String(),
			Version: rt.version,
		})
	}
}

// handleReadyz checks the ledger connection when one is wired.
func (rt *Router) handleReadyz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		status := "ok"
		code := http.StatusOK

		if rt.Ledger != nil {
			checks["ledger"] = "ok"
			if err := rt.Ledger.Ping(r.Context()); err != nil {
				checks["ledger"] = "error: " + err.Error()
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		httpx.WriteJSON(w, code, healthResponse{
			Status:  status,
			Uptime:  time.Since(rt.startTime).String(),
			Version: rt.version,
			Checks:  checks,
		})
	}
}
