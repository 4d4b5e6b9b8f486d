package defaults

import (
	"context"
	"strings"

	"github.com/tabwave/stepgate/internal/gateway/domain"
	"github.com/tabwave/stepgate/internal/gateway/plugin"
)

// EmailDomainFinder accepts any address whose domain appears in the
// configured list, so a whole organization is valid without listing
// each person.
type EmailDomainFinder struct {
	domains map[string]struct{}
}

func NewEmailDomainFinder(settings plugin.Settings) *EmailDomainFinder {
	f := &EmailDomainFinder{domains: make(map[string]struct{})}
	for _, d := range settings.GetList("domains") {
		f.domains[strings.ToLower(d)] = struct{}{}
	}
	return f
}

func (f *EmailDomainFinder) Name() string              { return "EmailDomain" }
func (f *EmailDomainFinder) Category() plugin.Category { return plugin.CategoryFinder }

func (f *EmailDomainFinder) IsValidSubject(_ context.Context, _, subject string) (bool, error) {
	subject = domain.NormalizeSubject(subject)

	_, emailDomain, ok := strings.Cut(subject, "@")
	if !ok || emailDomain == "" {
		return false, nil
	}
	_, allowed := f.domains[emailDomain]
	return allowed, nil
}
