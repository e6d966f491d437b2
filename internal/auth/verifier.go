package auth

import (
	"context"
	"errors"
	"fmt"

	"ms-booking/internal/models"

	"github.com/coreos/go-oidc/v3/oidc"
)

// TokenVerifier turns a raw bearer token into the caller's identity.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (models.Identity, error)
}

// OIDCVerifier checks tokens issued by the identity provider (Keycloak)
// against its published signing keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider at issuer, e.g.
// http://auth.ticketly.com:8080/realms/event-ticketing.
func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	if issuer == "" {
		return nil, errors.New("auth: empty OIDC issuer")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider for %s: %w", issuer, err)
	}
	// Access tokens carry the realm as audience, not this service.
	return NewOIDCVerifierFrom(provider.Verifier(&oidc.Config{SkipClientIDCheck: true})), nil
}

func NewOIDCVerifierFrom(verifier *oidc.IDTokenVerifier) *OIDCVerifier {
	return &OIDCVerifier{verifier: verifier}
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (models.Identity, error) {
	if rawToken == "" {
		return models.Identity{}, errors.New("empty token")
	}

	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return models.Identity{}, fmt.Errorf("verify token: %w", err)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return models.Identity{}, fmt.Errorf("failed to parse claims: %w", err)
	}
	return identityFromClaims(idToken.Subject, &claims)
}

// HMACVerifier accepts HS256 tokens signed with a shared secret. It backs
// local runs and tests, where IssueToken mints the tokens.
type HMACVerifier struct {
	Secret []byte
}

func (v HMACVerifier) Verify(_ context.Context, rawToken string) (models.Identity, error) {
	return ParseIdentity(rawToken, v.Secret)
}
