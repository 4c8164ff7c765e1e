// ABOUTME: Unverified decoding of Bot Framework access tokens for diagnostics
// ABOUTME: Exposes audience, app id, issuer and expiry without checking the signature

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims operators look at when debugging connector auth.
type TokenClaims struct {
	Audience  string    `json:"aud"`
	AppID     string    `json:"appid"`
	Issuer    string    `json:"iss"`
	ExpiresAt time.Time `json:"exp"`
}

// InspectToken decodes a JWT without verifying it. Never use the result for
// authorization.
func InspectToken(tokenString string) (TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var tc TokenClaims
	if aud, err := claims.GetAudience(); err == nil && len(aud) > 0 {
		tc.Audience = aud[0]
	}
	tc.AppID, _ = claims["appid"].(string)
	tc.Issuer, _ = claims.GetIssuer()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tc.ExpiresAt = exp.UTC()
	}
	return tc, nil
}
