package domain

import "strings"

// NormalizeSubject canonicalizes an identity so that ledger keys,
// finder lookups and token claims all agree on one spelling.
func NormalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}
