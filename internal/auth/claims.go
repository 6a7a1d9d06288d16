// Package auth decodes the bearer tokens issued by the cobrand backend.
//
// Tokens are decoded without signature verification: the backend is the only
// verifier, the client just needs the identity claims it embeds.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/cobrand/internal/domain"
)

// Claim names used by the identity provider behind the backend.
const (
	ClaimNameIdentifier   = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	ClaimName             = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name"
	ClaimEmailAddress     = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
	ClaimUserType         = "UserType"
	ClaimFullName         = "fullName"
	ClaimKYCCompleted     = "KYCCompleted"
	ClaimKYBCompleted     = "KYBCompleted"
	ClaimIsCurrencySuffix = "IsCurrencySuffix"
)

// ErrMalformedToken is returned for tokens that are not decodable JWTs.
var ErrMalformedToken = errors.New("malformed token")

// Claims decoded token payload.
type Claims map[string]any

// DecodeClaims decodes the payload of token without verifying its signature.
func DecodeClaims(token string) (Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.Wrap(ErrMalformedToken, "token is empty")
	}

	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil, errors.Wrapf(ErrMalformedToken, "decode token: %v", err)
	}

	return Claims(mc), nil
}

// String returns the claim as a string, or "" when absent or not a string.
func (c Claims) String(name string) string {
	v, ok := c[name].(string)
	if !ok {
		return ""
	}
	return v
}

// Flag reports a boolean claim. The identity provider encodes booleans as
// "True"/"False" strings.
func (c Claims) Flag(name string) bool {
	switch v := c[name].(type) {
	case string:
		return strings.EqualFold(v, "true")
	case bool:
		return v
	default:
		return false
	}
}

// ExpiresAt returns the exp claim, or the zero time when absent.
func (c Claims) ExpiresAt() time.Time {
	exp, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Expired reports whether the token carried an exp claim in the past of now.
func (c Claims) Expired(now time.Time) bool {
	exp := c.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// Identity derives the user record from the claims.
func (c Claims) Identity() domain.UserData {
	return domain.UserData{
		ID:               c.String(ClaimNameIdentifier),
		Username:         c.String(ClaimName),
		Email:            c.String(ClaimEmailAddress),
		Role:             c.String(ClaimUserType),
		Name:             c.String(ClaimFullName),
		UserType:         c.String(ClaimUserType),
		KYCCompleted:     c.Flag(ClaimKYCCompleted),
		KYBCompleted:     c.Flag(ClaimKYBCompleted),
		IsCurrencySuffix: c.Flag(ClaimIsCurrencySuffix),
	}
}

// Session builds the session for token and these claims.
func (c Claims) Session(token, tenant string) domain.Session {
	return domain.NewSession(c.Identity(), token, tenant, map[string]any(c), c.ExpiresAt())
}
