package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tabwave/stepgate/internal/gateway/audit"
	"github.com/tabwave/stepgate/internal/gateway/plugin"
	"github.com/tabwave/stepgate/pkg/jwtx"
)

var (
	// ErrDenied is the single validation outcome for every
	// authentication failure. Callers must not distinguish further.
	ErrDenied = errors.New("service: denied")

	// ErrConfiguration marks a wiring fault (missing plugin or
	// verifier). Surfaced as a 500, distinct from a denial.
	ErrConfiguration = errors.New("service: configuration fault")
)

// Validator answers "is this request authenticated" for upstream
// proxies. It trusts nothing from the token alone: a structurally
// valid token still fails if the finder no longer knows the subject.
type Validator struct {
	Log      *slog.Logger
	Verifier jwtx.Verifier
	Finder   plugin.Finder
	Audit    *audit.Dispatcher

	now func() time.Time
}

func (v *Validator) clock() time.Time {
	if v.now != nil {
		return v.now()
	}
	return time.Now()
}

// Validate returns the authenticated subject or ErrDenied. The audit
// log records which check failed; the caller must not.
func (v *Validator) Validate(ctx context.Context, host, token, clientIP, path string) (string, error) {
	if v.Verifier == nil || v.Finder == nil {
		return "", ErrConfiguration
	}

	deny := func(reason string, subject string) (string, error) {
		v.Audit.Emit(ctx, audit.Event{
			Kind:     audit.KindTokenRejected,
			Host:     host,
			Subject:  subject,
			ClientIP: clientIP,
			Path:     path,
			Reason:   reason,
		})
		return "", ErrDenied
	}

	if token == "" {
		return deny("missing token", "")
	}

	claims, err := v.Verifier.Verify(token, v.clock())
	if err != nil {
		return deny(err.Error(), "")
	}

	valid, err := v.Finder.IsValidSubject(ctx, host, claims.Subject)
	if err != nil {
		v.Log.Error("finder failed during validation", "host", host, "error", err)
		return deny("finder error", claims.Subject)
	}
	if !valid {
		return deny("subject no longer valid", claims.Subject)
	}

	v.Audit.Emit(ctx, audit.Event{
		Kind:     audit.KindTokenAccepted,
		Host:     host,
		Subject:  claims.Subject,
		ClientIP: clientIP,
		Path:     path,
		Success:  true,
	})
	return claims.Subject, nil
}
