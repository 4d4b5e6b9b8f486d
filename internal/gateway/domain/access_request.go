package domain

import "time"

// AccessRequest represents one outstanding challenge for a subject on
// a host. At most one live record exists per (host, subject) pair;
// issuing a new challenge replaces any prior one. Records are never
// mutated in place.
type AccessRequest struct {
	Host     string
	Subject  string // case-normalized identity, e.g. an email address
	IssuedAt time.Time
	CodeHash string // salted hash of the one-time code, never the plaintext
}

// ExpiresAt returns the moment the challenge stops being acceptable.
func (r AccessRequest) ExpiresAt(timeout time.Duration) time.Time {
	return r.IssuedAt.Add(timeout)
}

// Expired reports whether the challenge is past its timeout at now.
// Expiry is always judged by the caller; the ledger itself returns
// records regardless of age.
func (r AccessRequest) Expired(timeout time.Duration, now time.Time) bool {
	return !now.Before(r.IssuedAt.Add(timeout))
}
