package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrInvalidToken is returned for malformed, expired, or badly
	// signed tokens
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingActor is returned when a valid token carries no subject
	ErrMissingActor = errors.New("token has no actor ID")
)

// ActorClaims identify the portal user or service behind a request
type ActorClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// ActorID returns the subject of the token
func (c *ActorClaims) ActorID() string {
	return c.Subject
}

// HasRole checks if the claims carry a specific role
func (c *ActorClaims) HasRole(role Role) bool {
	for _, r := range c.Roles {
		if Role(r) == role {
			return true
		}
	}
	return false
}

// Trusted reports whether any carried role is trusted
func (c *ActorClaims) Trusted() bool {
	for _, r := range c.Roles {
		if Role(r).Trusted() {
			return true
		}
	}
	return false
}

// GenerateActorJWT creates a signed token for an actor. The portal is
// the usual issuer; this is used by tests and service-key exchange.
func GenerateActorJWT(actorID string, roles []Role, secret []byte, ttl time.Duration) (string, int64, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	roleStrs := make([]string, len(roles))
	for i, r := range roles {
		roleStrs[i] = r.String()
	}

	claims := &ActorClaims{
		Roles: roleStrs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(secret)
	if err != nil {
		return "", 0, err
	}

	return signedToken, expiresAt.Unix(), nil
}

// ValidateActorJWT verifies a token and extracts its actor claims
func ValidateActorJWT(tokenString string, secret []byte) (*ActorClaims, error) {
	claims := &ActorClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingActor
	}

	return claims, nil
}
