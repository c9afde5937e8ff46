package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"
)

// AuthClient wraps the Firebase auth client used to verify portal
// sessions. Credential and account management live in the identity
// provider, not here.
type AuthClient struct {
	client *auth.Client
}

// Identity is the verified session identity. Name and Email come from
// the token's profile claims and may be empty.
type Identity struct {
	UID   string
	Name  string
	Email string
}

func NewAuthClient(client *auth.Client) *AuthClient {
	return &AuthClient{
		client: client,
	}
}

func (f *AuthClient) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, err
	}

	identity := &Identity{UID: result.UID}
	if name, ok := result.Claims["name"].(string); ok {
		identity.Name = name
	}
	if email, ok := result.Claims["email"].(string); ok {
		identity.Email = email
	}

	return identity, nil
}
