package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrBypassUnauthorized indicates the presented authority token does not
// grant emergency bypass.
var ErrBypassUnauthorized = errors.New("identity: bypass unauthorized")

// RoleHumanSovereign is the only role allowed to bypass cooling.
const RoleHumanSovereign = "human_sovereign"

// AuthorityClaims are the JWT claims carried by a sovereign authority token.
type AuthorityClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	Authority string `json:"authority"`
}

// TokenManager issues and validates sovereign authority tokens. Tokens are
// HMAC-signed with a deployment-local secret from configuration.
type TokenManager struct {
	secret []byte
	issuer string
}

// NewTokenManager creates a TokenManager with the given signing secret.
func NewTokenManager(secret []byte) *TokenManager {
	return &TokenManager{secret: secret, issuer: "apexgov/identity"}
}

// IssueAuthorityToken mints a token for a named human sovereign. Used by
// operator tooling, never by the judgment path.
func (tm *TokenManager) IssueAuthorityToken(authority string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := AuthorityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   authority,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:      RoleHumanSovereign,
		Authority: authority,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("identity: sign authority token: %w", err)
	}
	return signed, nil
}

// ValidateAuthorityToken parses and validates a bypass token, returning the
// authority name it grants. Any parse, signature, expiry, or role failure
// yields ErrBypassUnauthorized.
func (tm *TokenManager) ValidateAuthorityToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("%w: empty token", ErrBypassUnauthorized)
	}

	var claims AuthorityClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(tm.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBypassUnauthorized, err)
	}
	if !token.Valid {
		return "", fmt.Errorf("%w: token invalid", ErrBypassUnauthorized)
	}
	if claims.Role != RoleHumanSovereign {
		return "", fmt.Errorf("%w: role %q is not %s", ErrBypassUnauthorized, claims.Role, RoleHumanSovereign)
	}
	if claims.Authority == "" {
		return "", fmt.Errorf("%w: missing authority claim", ErrBypassUnauthorized)
	}
	return claims.Authority, nil
}
