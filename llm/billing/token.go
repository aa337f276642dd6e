package billing

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// attributionClaims is the payload of the short-lived token the proxy uses to
// authenticate and attribute a call.
type attributionClaims struct {
	jwt.RegisteredClaims

	CustomerID     string `json:"customer_id"`
	OrganizationID string `json:"organization_id,omitempty"`
	Sandbox        bool   `json:"sandbox,omitempty"`
}

func mintToken(secret, issuer string, ttl time.Duration, bctx Context, now time.Time) (string, error) {
	claims := attributionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   bctx.CustomerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		CustomerID:     bctx.CustomerID,
		OrganizationID: bctx.OrganizationID,
		Sandbox:        bctx.Sandbox,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("billing: sign attribution token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token minted by this package. Used by tests and by
// operators debugging proxy rejections.
func ParseToken(secret, token string) (Context, error) {
	var claims attributionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("billing: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Context{}, fmt.Errorf("billing: parse attribution token: %w", err)
	}
	return Context{
		CustomerID:     claims.CustomerID,
		OrganizationID: claims.OrganizationID,
		Sandbox:        claims.Sandbox,
	}, nil
}
