package oidc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/al-bashkir/simplifyhealth/internal/credstore"
	"github.com/al-bashkir/simplifyhealth/internal/identity"
	"github.com/al-bashkir/simplifyhealth/internal/logsanitize"
)

// TokenData contains the tokens and claims returned from the OIDC provider.
type TokenData struct {
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`

	// IDToken is the raw OIDC ID token (JWT).
	IDToken string `json:"-"`

	// Subject is the verified "sub" claim.
	Subject string

	// Claims are the ID token claims merged with access token claims.
	Claims map[string]interface{}

	Token *oauth2.Token `json:"-"`
}

// SignIn exchanges email and password for tokens and verifies the ID token.
// The returned User carries the subject as ID and the first configured
// username claim as Email.
func (p *Provider) SignIn(ctx context.Context, email, password string) (identity.User, error) {
	data, err := p.passwordGrant(ctx, email, password)
	if err != nil {
		return identity.User{}, err
	}

	username, err := usernameFromClaims(data.Claims, p.usernameClaims)
	if err != nil {
		slog.Warn("no username claim in token", "claims", p.usernameClaims, "error", err)
	}
	user := identity.User{ID: data.Subject, Email: username}
	if username == data.Subject {
		user.Email = ""
	}

	cred := &credstore.Credential{
		Provider:     ProviderName,
		UserID:       user.ID,
		Email:        user.Email,
		IDToken:      data.IDToken,
		RefreshToken: data.RefreshToken,
		Expiry:       data.Token.Expiry,
	}
	// The in-process session still works if persisting fails; only restore
	// after restart is lost.
	if err := p.store.Save(cred); err != nil {
		slog.Warn("failed to persist oidc credential", "error", err)
	}

	slog.Debug("oidc sign-in succeeded", "user", logsanitize.Email(user.Username()))
	return user, nil
}

// SignOut ends the session at the issuer when it advertises an
// end_session_endpoint, then forgets the persisted credential.
func (p *Provider) SignOut(ctx context.Context) error {
	cred, err := p.store.Load()
	if err != nil {
		slog.Warn("could not read credential before sign-out", "error", err)
		cred = nil
	}

	if p.endSessionURL != "" && cred != nil && cred.RefreshToken != "" {
		if err := p.endSession(ctx, cred); err != nil {
			return err
		}
	}

	if err := p.store.Clear(); err != nil {
		return fmt.Errorf("oidc: %w", err)
	}
	return nil
}

func (p *Provider) passwordGrant(ctx context.Context, email, password string) (*TokenData, error) {
	ctx = oidc.ClientContext(ctx, p.client)

	token, err := p.oauth2Config.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return nil, tokenError(err)
	}

	// Extract ID token
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("oidc: no id_token in token response")
	}

	// Verify ID token (signature, issuer, audience, expiry)
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("oidc: failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc: failed to parse claims: %w", err)
	}

	mergeAccessTokenClaims(token.AccessToken, claims)

	return &TokenData{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      rawIDToken,
		Subject:      idToken.Subject,
		Claims:       claims,
		Token:        token,
	}, nil
}

func (p *Provider) endSession(ctx context.Context, cred *credstore.Credential) error {
	form := url.Values{}
	form.Set("client_id", p.oauth2Config.ClientID)
	if p.oauth2Config.ClientSecret != "" {
		form.Set("client_secret", p.oauth2Config.ClientSecret)
	}
	form.Set("refresh_token", cred.RefreshToken)
	if cred.IDToken != "" {
		form.Set("id_token_hint", cred.IDToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endSessionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("oidc: build logout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("oidc: logout: %w: %v", identity.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("oidc: logout: HTTP %d: %w", resp.StatusCode, identity.ErrUnavailable)
	case resp.StatusCode >= 400:
		// The issuer no longer knows the session; nothing left to end.
		slog.Warn("issuer rejected logout, clearing local credential", "status", resp.StatusCode)
	}
	return nil
}

// tokenError maps a token endpoint failure to an identity sentinel.
func tokenError(err error) error {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return fmt.Errorf("oidc: token request: %w: %v", identity.ErrUnavailable, err)
	}

	code := rerr.ErrorCode
	switch {
	case code == "invalid_grant":
		if strings.Contains(strings.ToLower(rerr.ErrorDescription), "disabled") {
			return fmt.Errorf("oidc: %w", identity.ErrUserDisabled)
		}
		return fmt.Errorf("oidc: %w", identity.ErrInvalidCredentials)
	case code == "unauthorized_client" || code == "unsupported_grant_type":
		return fmt.Errorf("oidc: password grant: %w", identity.ErrUnsupported)
	case code == "slow_down" || (rerr.Response != nil && rerr.Response.StatusCode == http.StatusTooManyRequests):
		return fmt.Errorf("oidc: %w", identity.ErrTooManyAttempts)
	case rerr.Response != nil && rerr.Response.StatusCode >= 500:
		return fmt.Errorf("oidc: token endpoint HTTP %d: %w", rerr.Response.StatusCode, identity.ErrUnavailable)
	}
	return fmt.Errorf("oidc: token request rejected: %s", code)
}

// mergeAccessTokenClaims decodes a JWT access token and copies claims the
// ID token lacks. Keycloak puts preferred_username, realm_access and groups
// in the access token only. Opaque access tokens are skipped.
func mergeAccessTokenClaims(accessToken string, dst map[string]interface{}) {
	if accessToken == "" {
		return
	}

	// The access token came from the token endpoint over TLS alongside the
	// verified ID token; its signature is not checked here.
	atClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, atClaims); err != nil {
		slog.Debug("could not decode access token as JWT (may be opaque)", "error", err)
		return
	}

	for key, val := range atClaims {
		if _, exists := dst[key]; !exists {
			dst[key] = val
			slog.Debug("merged claim from access token", "claim", key)
		}
	}
}
