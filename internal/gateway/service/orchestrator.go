package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tabwave/stepgate/internal/gateway/audit"
	"github.com/tabwave/stepgate/internal/gateway/domain"
	"github.com/tabwave/stepgate/internal/gateway/plugin"
	"github.com/tabwave/stepgate/pkg/jwtx"
)

// User-facing messages. Deliberately generic: the precise failure
// reason lives in the audit log only.
const (
	msgCodeSent     = "A code has been sent. Enter it below."
	msgCodeInvalid  = "The code did not validate."
	msgCodeSending  = "There was a problem sending your code. Please try again."
	msgEnterSubject = "Enter your details to request an access code."
)

// ChallengeInput carries one authentication submission from the
// request boundary into the orchestrator.
type ChallengeInput struct {
	Host     string
	Method   string // challenge method plugin name
	Subject  string
	Code     string
	ClientIP string
	Path     string
}

// Orchestrator drives the challenge flow. Each call is stateless; all
// shared state lives in the ledger behind the method plugins.
type Orchestrator struct {
	Log      *slog.Logger
	Registry *plugin.Registry
	Finder   plugin.Finder

	// Registrar is optional. When set, unknown subjects trigger an
	// operator notification.
	Registrar plugin.Registrar

	Signer     jwtx.Signer
	Issuer     string
	Audience   []string
	SessionTTL time.Duration

	Audit *audit.Dispatcher

	now func() time.Time
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// RequestCode handles the subject-submission step. Whether or not the
// subject is valid, the caller gets the same "code sent" rendering so
// identities cannot be enumerated. The finder verdict goes to the
// audit log, and the registrar hears about unknown subjects.
func (o *Orchestrator) RequestCode(ctx context.Context, in ChallengeInput) domain.ChallengeResult {
	subject := domain.NormalizeSubject(in.Subject)

	method, err := o.Registry.ChallengeMethod(in.Method)
	if err != nil {
		o.Log.Error("challenge method not available", "method", in.Method, "error", err)
		return domain.ErrorResult()
	}

	valid, err := o.Finder.IsValidSubject(ctx, in.Host, subject)
	if err != nil {
		o.Log.Error("finder failed", "host", in.Host, "error", err)
		return domain.ErrorResult()
	}

	if !valid {
		o.emit(ctx, in, audit.KindSubjectInvalid, false, "finder rejected subject")
		o.notifyRegistrar(ctx, in.Host, subject)
		// Same rendering as the valid path.
		return o.renderCodeForm(method, in, subject, msgCodeSent)
	}

	if err := method.IssueCode(ctx, in.Host, subject); err != nil {
		if errors.Is(err, plugin.ErrCodeSending) {
			o.emit(ctx, in, audit.KindCodeSendFailed, false, err.Error())
			return o.renderCodeForm(method, in, subject, msgCodeSending)
		}
		o.Log.Error("issuing code failed", "host", in.Host, "method", method.Name(), "error", err)
		return domain.ErrorResult()
	}

	o.emit(ctx, in, audit.KindCodeRequested, true, "")
	return o.renderCodeForm(method, in, subject, msgCodeSent)
}

// SubmitCode handles the code-submission step. All recoverable
// failures collapse to one generic message; only a match within the
// challenge window mints a session token.
func (o *Orchestrator) SubmitCode(ctx context.Context, in ChallengeInput) domain.ChallengeResult {
	subject := domain.NormalizeSubject(in.Subject)

	method, err := o.Registry.ChallengeMethod(in.Method)
	if err != nil {
		o.Log.Error("challenge method not available", "method", in.Method, "error", err)
		return domain.ErrorResult()
	}

	// A token is never minted for a subject the finder no longer
	// recognizes, even if a stale ledger record would match.
	valid, err := o.Finder.IsValidSubject(ctx, in.Host, subject)
	if err != nil {
		o.Log.Error("finder failed", "host", in.Host, "error", err)
		return domain.ErrorResult()
	}
	if !valid {
		o.emit(ctx, in, audit.KindSubjectInvalid, false, "finder rejected subject at submission")
		return o.renderCodeForm(method, in, subject, msgCodeInvalid)
	}

	if err := method.CheckCode(ctx, in.Host, subject, in.Code); err != nil {
		switch {
		case errors.Is(err, plugin.ErrNoAccessRequest):
			o.emit(ctx, in, audit.KindCodeRejected, false, "no outstanding access request")
		case errors.Is(err, plugin.ErrCodeTimeout):
			o.emit(ctx, in, audit.KindCodeExpired, false, "code expired")
		case errors.Is(err, plugin.ErrCodeIncorrect):
			o.emit(ctx, in, audit.KindCodeRejected, false, "code incorrect")
		default:
			o.Log.Error("checking code failed", "host", in.Host, "method", method.Name(), "error", err)
			return domain.ErrorResult()
		}
		return o.renderCodeForm(method, in, subject, msgCodeInvalid)
	}

	token, err := o.issueToken(ctx, in.Host, subject)
	if err != nil {
		o.Log.Error("issuing session token failed", "host", in.Host, "error", err)
		return domain.ErrorResult()
	}

	o.emit(ctx, in, audit.KindCodeAccepted, true, "")
	return domain.AuthenticatedResult(subject, token)
}

// RenderInitial produces the first form of the flow for a method.
func (o *Orchestrator) RenderInitial(method plugin.ChallengeMethod, host string) domain.ChallengeResult {
	rc := method.RenderContext(host)
	rc["authtype"] = method.Name()
	rc["codeRequested"] = false
	rc["message"] = msgEnterSubject
	return domain.RenderResult(rc)
}

func (o *Orchestrator) issueToken(ctx context.Context, host, subject string) (string, error) {
	ttl := o.SessionTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultSessionTTL
	}

	// Per-host overrides may shorten or extend the session.
	resolved := o.Registry.RequestSettings(ctx, host)
	ttl = resolved.GetDuration("jwt.session.ttl", ttl)

	claims := jwtx.NewSessionClaims(subject, o.Issuer, "code", o.Audience, ttl, o.clock())
	return o.Signer.Sign(claims)
}

func (o *Orchestrator) renderCodeForm(method plugin.ChallengeMethod, in ChallengeInput, subject, message string) domain.ChallengeResult {
	rc := method.RenderContext(in.Host)
	rc["authtype"] = method.Name()
	rc["codeRequested"] = true
	rc["subject"] = subject
	rc["message"] = message
	return domain.RenderResult(rc)
}

func (o *Orchestrator) notifyRegistrar(ctx context.Context, host, subject string) {
	if o.Registrar == nil {
		return
	}
	if err := o.Registrar.NotifyAccessRequest(ctx, host, subject); err != nil {
		o.Log.Warn("registrar notification failed", "host", host, "error", err)
		return
	}
	o.Audit.Emit(ctx, audit.Event{
		Kind:    audit.KindRegistrarNotice,
		Host:    host,
		Subject: subject,
		Success: true,
	})
}

func (o *Orchestrator) emit(ctx context.Context, in ChallengeInput, kind string, success bool, reason string) {
	o.Audit.Emit(ctx, audit.Event{
		Kind:     kind,
		Host:     in.Host,
		Subject:  domain.NormalizeSubject(in.Subject),
		ClientIP: in.ClientIP,
		Path:     in.Path,
		Success:  success,
		Reason:   reason,
		Metadata: map[string]string{"method": in.Method},
	})
}
