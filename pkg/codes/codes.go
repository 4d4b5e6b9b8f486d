// Package codes implements the one-time code primitives used by the
// challenge methods: RFC 4226/6238 time-based codes for authenticator
// apps, and secret provisioning for enrolling them.
package codes

import (
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"
)

// Period is the time-step size in seconds. Fixed at the RFC 6238 default;
// every authenticator app assumes it.
const Period = 30

// TimeStep returns the counter value for the given instant.
func TimeStep(t time.Time) uint64 {
	return uint64(t.Unix() / Period)
}

// ValidateSecret checks that a shared secret is well-formed base32.
// A malformed secret is a configuration fault and should fail plugin
// initialization, not individual verification attempts.
func ValidateSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("codes: empty secret")
	}
	if _, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret); err != nil {
		return fmt.Errorf("codes: secret is not valid base32: %w", err)
	}
	return nil
}

// GenerateTimeCode computes the 6-digit code for a base32 secret at the
// given time step (HMAC-SHA1 with dynamic truncation).
func GenerateTimeCode(secret string, step uint64) (string, error) {
	code, err := hotp.GenerateCodeCustom(secret, step, hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("codes: generate: %w", err)
	}
	return code, nil
}

// VerifyTimeCode reports whether submitted matches the code for the step at
// now, or the step 30s either side of it. All three candidates are computed
// and compared in constant time regardless of where (or whether) a match
// occurs.
func VerifyTimeCode(secret, submitted string, now time.Time) bool {
	step := TimeStep(now)

	match := 0
	for _, offset := range []int64{-1, 0, 1} {
		candidate, err := GenerateTimeCode(secret, uint64(int64(step)+offset))
		if err != nil {
			return false
		}
		match |= subtle.ConstantTimeCompare([]byte(candidate), []byte(submitted))
	}
	return match == 1
}

// GenerateSecret creates a fresh base32 shared secret for enrolling a
// subject with an authenticator app, along with its otpauth:// URL.
func GenerateSecret(issuer, account string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("codes: generate secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// ProvisioningURL rebuilds the otpauth:// URL for an existing secret, used
// when re-sending enrollment details to a subject.
func ProvisioningURL(issuer, account, secret string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?algorithm=SHA1&digits=6&issuer=%s&period=%d&secret=%s",
		issuer, account, issuer, Period, secret)
}
