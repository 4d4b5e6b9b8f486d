package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer is our interface for anything that can sign session tokens.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// hmacMethods are the shared-secret algorithms we are willing to use. The
// algorithm name comes from configuration, never from the token header.
var hmacMethods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// HMACSigner signs session tokens with a shared secret.
type HMACSigner struct {
	secret []byte
	method *jwt.SigningMethodHMAC
}

// NewHMACSigner creates a signer for the named HS* algorithm. An unknown
// algorithm or empty secret is a configuration fault.
func NewHMACSigner(algorithm, secret string) (*HMACSigner, error) {
	method, ok := hmacMethods[algorithm]
	if !ok {
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q", algorithm)
	}
	if secret == "" {
		return nil, errors.New("jwtx: empty signing secret")
	}

	return &HMACSigner{secret: []byte(secret), method: method}, nil
}

func (s *HMACSigner) Alg() string { return s.method.Alg() }

// Sign takes your claims and turns them into a signed compact JWT string.
func (s *HMACSigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	return t.SignedString(s.secret)
}
