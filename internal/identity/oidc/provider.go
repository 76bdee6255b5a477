// Package oidc implements the identity provider against an OpenID Connect
// issuer using the resource-owner password grant.
package oidc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/al-bashkir/simplifyhealth/internal/config"
	"github.com/al-bashkir/simplifyhealth/internal/credstore"
	"github.com/al-bashkir/simplifyhealth/internal/identity"
)

// ProviderName is stored in persisted credentials.
const ProviderName = "oidc"

var _ identity.Provider = (*Provider)(nil)

// Provider wraps the OIDC provider and OAuth2 configuration.
// It handles discovery, the password grant, ID token verification and
// RP-initiated logout.
type Provider struct {
	oauth2Config   *oauth2.Config
	verifier       *oidc.IDTokenVerifier
	endSessionURL  string
	usernameClaims []string
	client         *http.Client
	store          credstore.Store
}

// discoveryExtras are metadata fields go-oidc does not expose directly.
type discoveryExtras struct {
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

// NewProvider performs OIDC discovery via /.well-known/openid-configuration
// and sets up the OAuth2 configuration and ID token verifier.
func NewProvider(ctx context.Context, cfg *config.OIDCConfig, store credstore.Store) (*Provider, error) {
	if store == nil {
		return nil, fmt.Errorf("oidc credential store is required")
	}

	client := &http.Client{Timeout: cfg.Timeout}
	ctx = oidc.ClientContext(ctx, client)

	// Discover OIDC configuration from issuer
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	var extras discoveryExtras
	if err := provider.Claims(&extras); err != nil {
		return nil, fmt.Errorf("failed to parse discovery document: %w", err)
	}

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		Scopes:       cfg.Scopes,
	}

	// Verifies signature, issuer, audience and expiry
	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	claims := cfg.UsernameClaims
	if len(claims) == 0 {
		claims = []string{"email", "preferred_username", "sub"}
	}

	return &Provider{
		oauth2Config:   oauth2Config,
		verifier:       verifier,
		endSessionURL:  extras.EndSessionEndpoint,
		usernameClaims: claims,
		client:         client,
		store:          store,
	}, nil
}

// CreateUser is not offered by the password grant.
func (p *Provider) CreateUser(ctx context.Context, email, password string) (identity.User, error) {
	return identity.User{}, fmt.Errorf("oidc: sign up: %w", identity.ErrUnsupported)
}

// SendPasswordReset is not offered by the password grant.
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	return fmt.Errorf("oidc: password reset: %w", identity.ErrUnsupported)
}

// CurrentUser returns the user from the persisted credential, if any.
func (p *Provider) CurrentUser(ctx context.Context) (*identity.User, error) {
	cred, err := p.store.Load()
	if err != nil {
		return nil, fmt.Errorf("oidc: %w", err)
	}
	if cred == nil || cred.Provider != ProviderName {
		return nil, nil
	}
	return &identity.User{ID: cred.UserID, Email: cred.Email}, nil
}
