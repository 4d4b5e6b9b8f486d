// Package plugin defines the capability categories the gateway is
// assembled from and the registry that indexes them. Plugins are
// constructed and registered explicitly at process startup; there is
// no implicit registration through import side effects, and no
// ambient global lookup.
package plugin

import (
	"context"
	"errors"
	"io"
)

// Category enumerates the capability slots a plugin can fill.
type Category string

const (
	CategoryFinder        Category = "finder"
	CategoryAuthenticator Category = "authenticator"
	CategoryDataStore     Category = "datastore"
	CategoryRegistrar     Category = "registrar"
	CategorySettings      Category = "settings"
	CategoryTemplate      Category = "template"
)

// Challenge flow errors returned by challenge-method plugins. The
// orchestrator collapses all of them into one generic user-facing
// message; only the audit log sees which one occurred.
var (
	ErrNoAccessRequest = errors.New("plugin: no outstanding access request")
	ErrCodeTimeout     = errors.New("plugin: code expired")
	ErrCodeIncorrect   = errors.New("plugin: code incorrect")
	ErrCodeSending     = errors.New("plugin: sending code failed")
)

// Plugin is the minimal surface every capability implementation
// exposes to the registry.
type Plugin interface {
	Name() string
	Category() Category
}

// Finder decides whether a subject is a valid identity for a host.
type Finder interface {
	Plugin
	IsValidSubject(ctx context.Context, host, subject string) (bool, error)
}

// ChallengeMethod is a pluggable second-factor strategy (email code,
// time-based code, SMS). IssueCode generates and dispatches a code;
// CheckCode verifies a submission and returns one of the challenge
// flow errors above on failure.
type ChallengeMethod interface {
	Plugin

	IssueCode(ctx context.Context, host, subject string) error
	CheckCode(ctx context.Context, host, subject, code string) error

	// RenderContext contributes method-specific keys to the challenge
	// form's template context.
	RenderContext(host string) map[string]any
}

// Registrar is notified when an unknown subject asks for access, so
// an operator can provision them. Optional; absence disables it.
type Registrar interface {
	Plugin
	NotifyAccessRequest(ctx context.Context, host, subject string) error
}

// SettingsProvider supplies per-host configuration overrides. At most
// one may be active per process.
type SettingsProvider interface {
	Plugin
	GetRequestSettings(ctx context.Context, host string) (map[string]string, error)
}

// Template renders the named view with the given context.
type Template interface {
	Plugin
	Render(w io.Writer, name string, data map[string]any) error
}
