package domain

// ChallengeOutcome discriminates what the orchestrator wants the
// request boundary to do next. Control flow stays in return values;
// nothing below the boundary raises redirects or renders directly.
type ChallengeOutcome int

const (
	// OutcomeRender means the boundary should re-render the challenge
	// form with the supplied context (messages, field state).
	OutcomeRender ChallengeOutcome = iota

	// OutcomeAuthenticated means the subject proved the challenge and
	// a session credential has been minted.
	OutcomeAuthenticated

	// OutcomeError means an internal failure occurred. The boundary
	// responds generically; detail goes to the audit log only.
	OutcomeError
)

func (o ChallengeOutcome) String() string {
	switch o {
	case OutcomeRender:
		return "render"
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// ChallengeResult carries the orchestrator's decision up to the
// request boundary.
type ChallengeResult struct {
	Outcome ChallengeOutcome

	// Subject is set on OutcomeAuthenticated.
	Subject string

	// Token is the encoded session credential on OutcomeAuthenticated.
	Token string

	// Context feeds the template on OutcomeRender. Keys are
	// template-facing (message, codeRequested, subject).
	Context map[string]any
}

// RenderResult builds an OutcomeRender result with the given context.
func RenderResult(ctx map[string]any) ChallengeResult {
	if ctx == nil {
		ctx = map[string]any{}
	}
	return ChallengeResult{Outcome: OutcomeRender, Context: ctx}
}

// AuthenticatedResult builds an OutcomeAuthenticated result.
func AuthenticatedResult(subject, token string) ChallengeResult {
	return ChallengeResult{Outcome: OutcomeAuthenticated, Subject: subject, Token: token}
}

// ErrorResult builds an OutcomeError result.
func ErrorResult() ChallengeResult {
	return ChallengeResult{Outcome: OutcomeError}
}
