package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeAlphabet is the character set for one-time access codes. It avoids
// characters users commonly confuse when retyping from an email or SMS.
const codeAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateCode creates a cryptographically secure random access code of the
// requested length. Returns an error if the random number generator fails.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}

	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random code: %w", err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// MustGenerateCode is like GenerateCode but panics on error.
// Use this only in contexts where failure is unrecoverable.
func MustGenerateCode(length int) string {
	code, err := GenerateCode(length)
	if err != nil {
		panic(fmt.Sprintf("cryptox: failed to generate code: %v", err))
	}
	return code
}
