// Package auth verifies the short-lived signed bearer tokens presented on
// connection upgrade and on the REST surface. Token issuance belongs to the
// identity service; this package only consumes tokens.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/teacurran/planning-poker/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims represents the claims in a bearer token. Anonymous visitors carry
// an anonymousId instead of a userId; exactly one is set.
type Claims struct {
	jwt.RegisteredClaims
	UserID      string `json:"user_id,omitempty"`
	AnonymousID string `json:"anonymous_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Tier        string `json:"tier,omitempty"`
	OrgID       string `json:"org_id,omitempty"`
}

// Identity is the verified result of a token check.
type Identity struct {
	UserID      *uuid.UUID
	AnonymousID *uuid.UUID
	OrgID       *uuid.UUID
	Name        string
	Tier        models.Tier
	ExpiresAt   time.Time
}

// Anonymous reports whether the identity is the anonymous sentinel.
func (i *Identity) Anonymous() bool {
	return i.UserID == nil
}

// Verifier validates bearer tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a token verifier over a shared HS256 secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify validates the token and extracts the identity.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	identity := &Identity{Name: claims.Name, Tier: models.Tier(claims.Tier)}
	if identity.Tier == "" {
		identity.Tier = models.TierFree
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}

	switch {
	case claims.UserID != "":
		id, err := uuid.Parse(claims.UserID)
		if err != nil {
			return nil, ErrInvalidToken
		}
		identity.UserID = &id
	case claims.AnonymousID != "":
		id, err := uuid.Parse(claims.AnonymousID)
		if err != nil {
			return nil, ErrInvalidToken
		}
		identity.AnonymousID = &id
	default:
		return nil, ErrInvalidToken
	}

	if claims.OrgID != "" {
		id, err := uuid.Parse(claims.OrgID)
		if err != nil {
			return nil, ErrInvalidToken
		}
		identity.OrgID = &id
	}

	return identity, nil
}

// Mint signs a token for the identity, used by tests and the dev tooling.
func (v *Verifier) Mint(identity Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Name: identity.Name,
		Tier: string(identity.Tier),
	}
	if identity.UserID != nil {
		claims.UserID = identity.UserID.String()
		claims.Subject = identity.UserID.String()
	}
	if identity.AnonymousID != nil {
		claims.AnonymousID = identity.AnonymousID.String()
		claims.Subject = identity.AnonymousID.String()
	}
	if identity.OrgID != nil {
		claims.OrgID = identity.OrgID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
