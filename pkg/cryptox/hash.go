package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters for one-time code hashing. The iteration count is fixed
// rather than encoded alongside the hash: records live for minutes, not
// years, so there is no migration window to parameterize for.
const (
	hashIterations = 120_000
	hashKeyLength  = 32
)

// HashCode derives a PBKDF2-HMAC-SHA256 hash of a one-time code under the
// given salt, returned base64url-encoded. The salt is a deployment secret,
// so a leaked ledger record alone is not enough to forge a submission.
func HashCode(code, salt string) string {
	key := pbkdf2.Key([]byte(code), []byte(salt), hashIterations, hashKeyLength, sha256.New)
	return base64.RawURLEncoding.EncodeToString(key)
}

// VerifyCode recomputes the hash of code under salt and compares it against
// storedHash in constant time.
func VerifyCode(code, salt, storedHash string) bool {
	computed := HashCode(code, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// EqualConstantTime compares two strings without leaking how far they match.
// Mismatched lengths return false immediately, which is fine here: every
// digest form we compare has a fixed length.
func EqualConstantTime(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
