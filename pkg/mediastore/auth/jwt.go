// Package auth provides Verifier implementations for bearer-token
// authentication. Verification failures split into two distinct modes:
// credentials that are wrong (mediastore.ErrInvalidToken) and a verifier
// that cannot answer (mediastore.ErrVerifierUnavailable).
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/harborlab/mediastore/pkg/mediastore"
)

// JWTVerifier validates HMAC-signed tokens locally. The user id is carried
// in the standard subject claim.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for tokens signed with the given secret.
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (uuid.UUID, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, mediastore.ErrInvalidToken
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return uuid.Nil, mediastore.ErrInvalidToken
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, mediastore.ErrInvalidToken
	}

	return userID, nil
}
