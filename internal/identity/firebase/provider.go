// Package firebase signs users in against the Firebase Identity Toolkit REST
// API with email and password.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/al-bashkir/simplifyhealth/internal/credstore"
	"github.com/al-bashkir/simplifyhealth/internal/identity"
	"github.com/al-bashkir/simplifyhealth/internal/logsanitize"
)

// DefaultBaseURL is the public Identity Toolkit endpoint.
const DefaultBaseURL = "https://identitytoolkit.googleapis.com/v1"

// ProviderName is stored in persisted credentials.
const ProviderName = "firebase"

const maxResponseBytes = 1 << 20

var _ identity.Provider = (*Provider)(nil)

// Config holds the connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Provider talks to the Identity Toolkit and persists the signed-in user.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	store   credstore.Store
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// New validates cfg and returns a Provider. store is required.
func New(cfg Config, store credstore.Store, opts ...Option) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("firebase api_key is required")
	}
	if store == nil {
		return nil, fmt.Errorf("firebase credential store is required")
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid firebase base_url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	p := &Provider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: timeout},
		store:   store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type oobRequest struct {
	RequestType string `json:"requestType"`
	Email       string `json:"email"`
}

type authResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn calls accounts:signInWithPassword.
func (p *Provider) SignIn(ctx context.Context, email, password string) (identity.User, error) {
	return p.authenticate(ctx, "accounts:signInWithPassword", email, password)
}

// CreateUser calls accounts:signUp. The new account is signed in.
func (p *Provider) CreateUser(ctx context.Context, email, password string) (identity.User, error) {
	return p.authenticate(ctx, "accounts:signUp", email, password)
}

// SignOut forgets the persisted credential. Firebase has no server-side
// session to end; ID tokens simply expire.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := p.store.Clear(); err != nil {
		return fmt.Errorf("firebase: %w", err)
	}
	return nil
}

// SendPasswordReset asks Firebase to email a reset link.
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	req := oobRequest{RequestType: "PASSWORD_RESET", Email: email}
	if err := p.post(ctx, "accounts:sendOobCode", req, nil); err != nil {
		return err
	}
	slog.Debug("firebase password reset requested", "email", logsanitize.Email(email))
	return nil
}

// CurrentUser returns the user from the persisted credential, if any.
func (p *Provider) CurrentUser(ctx context.Context) (*identity.User, error) {
	cred, err := p.store.Load()
	if err != nil {
		return nil, fmt.Errorf("firebase: %w", err)
	}
	if cred == nil {
		return nil, nil
	}
	if cred.Provider != "" && cred.Provider != ProviderName {
		slog.Warn("ignoring credential issued by another provider", "provider", cred.Provider)
		return nil, nil
	}
	return &identity.User{ID: cred.UserID, Email: cred.Email}, nil
}

func (p *Provider) authenticate(ctx context.Context, method, email, password string) (identity.User, error) {
	var resp authResponse
	req := passwordRequest{Email: email, Password: password, ReturnSecureToken: true}
	if err := p.post(ctx, method, req, &resp); err != nil {
		return identity.User{}, err
	}

	user := identity.User{ID: resp.LocalID, Email: resp.Email}
	if user.ID == "" || user.Email == "" {
		fillFromIDToken(&user, resp.IDToken)
	}

	cred := &credstore.Credential{
		Provider:     ProviderName,
		UserID:       user.ID,
		Email:        user.Email,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
	}
	if secs, err := strconv.Atoi(resp.ExpiresIn); err == nil && secs > 0 {
		cred.Expiry = time.Now().Add(time.Duration(secs) * time.Second).UTC()
	}
	if user.ID != "" || user.Email != "" {
		// The in-process session still works if persisting fails; only
		// restore after restart is lost.
		if err := p.store.Save(cred); err != nil {
			slog.Warn("failed to persist firebase credential", "error", err)
		}
	}

	return user, nil
}

// fillFromIDToken recovers identity claims from the ID token. The token came
// straight from Google over TLS, so the signature is not checked here.
func fillFromIDToken(user *identity.User, raw string) {
	if raw == "" {
		return
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		slog.Debug("could not parse firebase id token", "error", err)
		return
	}

	if user.ID == "" {
		if id, ok := claims["user_id"].(string); ok {
			user.ID = id
		} else if sub, err := claims.GetSubject(); err == nil {
			user.ID = sub
		}
	}
	if user.Email == "" {
		if email, ok := claims["email"].(string); ok {
			user.Email = email
		}
	}
}

func (p *Provider) post(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("firebase: encode request: %w", err)
	}

	endpoint := p.baseURL + "/" + method + "?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("firebase: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("firebase: %s: %w: %v", method, identity.ErrUnavailable, redactKey(err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("firebase: %s: read response: %w: %v", method, identity.ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return decodeError(method, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("firebase: %s: parse response: %w", method, err)
	}
	return nil
}

func decodeError(method string, status int, data []byte) error {
	var er errorResponse
	if err := json.Unmarshal(data, &er); err != nil || er.Error.Message == "" {
		if status >= 500 {
			return fmt.Errorf("firebase: %s: HTTP %d: %w", method, status, identity.ErrUnavailable)
		}
		return fmt.Errorf("firebase: %s: unexpected HTTP %d", method, status)
	}

	code, detail, _ := strings.Cut(er.Error.Message, " : ")
	code = strings.TrimSpace(code)

	if sentinel := codeError(code); sentinel != nil {
		if detail != "" {
			return fmt.Errorf("firebase: %s: %w (%s)", method, sentinel, detail)
		}
		return fmt.Errorf("firebase: %s: %w", method, sentinel)
	}
	if status >= 500 {
		return fmt.Errorf("firebase: %s: %s: %w", method, code, identity.ErrUnavailable)
	}
	return fmt.Errorf("firebase: %s: %s", method, er.Error.Message)
}

// codeError maps an Identity Toolkit error code to a sentinel.
func codeError(code string) error {
	switch code {
	case "EMAIL_EXISTS":
		return identity.ErrEmailExists
	case "EMAIL_NOT_FOUND":
		return identity.ErrUserNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return identity.ErrInvalidCredentials
	case "WEAK_PASSWORD":
		return identity.ErrWeakPassword
	case "USER_DISABLED":
		return identity.ErrUserDisabled
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return identity.ErrTooManyAttempts
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return identity.ErrInvalidEmail
	case "OPERATION_NOT_ALLOWED", "ADMIN_ONLY_OPERATION":
		return identity.ErrUnsupported
	}
	return nil
}

// redactKey strips the API key from transport errors, which embed the URL.
func redactKey(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if u, perr := url.Parse(uerr.URL); perr == nil {
			q := u.Query()
			if q.Has("key") {
				q.Set("key", "REDACTED")
				u.RawQuery = q.Encode()
			}
			return &url.Error{Op: uerr.Op, URL: u.String(), Err: uerr.Err}
		}
	}
	return err
}
