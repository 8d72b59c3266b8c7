package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenValidator checks the algorithm and registered claims of a parsed token.
type TokenValidator struct {
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
	Algorithm      jwa.SignatureAlgorithm
	RequiredClaims []string
}

// Validate rejects tokens with a foreign algorithm, wrong issuer or audience, no
// subject, a missing required claim, or an exp/nbf outside the skew window.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if algorithm == "" {
		return errors.New("auth: token missing algorithm")
	}
	if v.Algorithm != "" && algorithm != v.Algorithm {
		return fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}
	if tok.Subject() == "" {
		return errors.New("auth: token missing subject")
	}
	if tok.Expiration().IsZero() {
		return errors.New("auth: token missing expiration")
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	for _, claim := range v.RequiredClaims {
		options = append(options, jwt.WithRequiredClaim(claim))
	}
	return jwt.Validate(tok, options...)
}
