package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type callerClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// HMACVerifier accepts HS256 tokens signed with a shared secret, for callers
// outside Google Cloud.
type HMACVerifier struct {
	secret   []byte
	audience string
}

func NewHMACVerifier(secret, audience string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &HMACVerifier{secret: []byte(secret), audience: audience}, nil
}

func (h *HMACVerifier) Verify(_ context.Context, tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if h.audience != "" {
		opts = append(opts, jwt.WithAudience(h.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &callerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.secret, nil
	}, opts...)
	if err != nil {
		return "", unauthorized("Token verification failed: %v", err)
	}

	claims, ok := token.Claims.(*callerClaims)
	if !ok || !token.Valid {
		return "", unauthorized("Token verification failed: invalid claims")
	}
	if claims.Email == "" {
		return "", unauthorized("Token missing email claim")
	}
	return claims.Email, nil
}
