package identity

import (
	"context"
	"fmt"

	"google.golang.org/api/idtoken"
)

type validateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// GoogleVerifier accepts Google-signed identity tokens minted for audience,
// typically this service's public URL.
type GoogleVerifier struct {
	audience string
	validate validateFunc
}

func NewGoogleVerifier(ctx context.Context, audience string) (*GoogleVerifier, error) {
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating identity token validator: %w", err)
	}
	return &GoogleVerifier{audience: audience, validate: v.Validate}, nil
}

func (g *GoogleVerifier) Verify(ctx context.Context, token string) (string, error) {
	payload, err := g.validate(ctx, token, g.audience)
	if err != nil {
		return "", unauthorized("Token verification failed: %v", err)
	}
	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return "", unauthorized("Token missing email claim")
	}
	return email, nil
}
