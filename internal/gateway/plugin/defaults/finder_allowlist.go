// Package defaults holds the built-in plugin implementations wired
// up by the application at startup.
package defaults

import (
	"context"

	"github.com/tabwave/stepgate/internal/gateway/domain"
	"github.com/tabwave/stepgate/internal/gateway/plugin"
)

// AllowlistFinder accepts only subjects named in its configuration.
// Suited to small deployments where the operator lists every user.
type AllowlistFinder struct {
	subjects map[string]struct{}
}

func NewAllowlistFinder(settings plugin.Settings) *AllowlistFinder {
	f := &AllowlistFinder{subjects: make(map[string]struct{})}
	for _, s := range settings.GetList("subjects") {
		f.subjects[domain.NormalizeSubject(s)] = struct{}{}
	}
	return f
}

func (f *AllowlistFinder) Name() string              { return "Allowlist" }
func (f *AllowlistFinder) Category() plugin.Category { return plugin.CategoryFinder }

func (f *AllowlistFinder) IsValidSubject(_ context.Context, _, subject string) (bool, error) {
	_, ok := f.subjects[domain.NormalizeSubject(subject)]
	return ok, nil
}
