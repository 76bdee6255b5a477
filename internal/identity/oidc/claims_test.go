package oidc

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/al-bashkir/simplifyhealth/internal/identity"
)

func TestUsernameFromClaims(t *testing.T) {
	order := []string{"email", "preferred_username", "sub"}

	tests := []struct {
		name            string
		claims          map[string]interface{}
		want            string
		wantErrContains string
	}{
		{
			name:   "email wins",
			claims: map[string]interface{}{"email": "a@b.com", "preferred_username": "alice", "sub": "s"},
			want:   "a@b.com",
		},
		{
			name:   "empty email skipped",
			claims: map[string]interface{}{"email": "  ", "preferred_username": "alice"},
			want:   "alice",
		},
		{
			name:   "wrong type skipped",
			claims: map[string]interface{}{"email": 42, "sub": "s"},
			want:   "s",
		},
		{
			name:            "none present",
			claims:          map[string]interface{}{"name": "Alice"},
			wantErrContains: "none of the claims",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := usernameFromClaims(tt.claims, order)
			if tt.wantErrContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErrContains) {
					t.Errorf("error = %v, want containing %q", err, tt.wantErrContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("username = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetNestedClaim(t *testing.T) {
	claims := map[string]interface{}{
		"simple": "value",
		"nested": map[string]interface{}{
			"level1": map[string]interface{}{
				"level2": "deep_value",
			},
		},
	}

	tests := []struct {
		name      string
		path      string
		wantValue interface{}
		wantErr   bool
	}{
		{name: "simple claim", path: "simple", wantValue: "value"},
		{name: "nested claim", path: "nested.level1.level2", wantValue: "deep_value"},
		{name: "non-existent claim", path: "nonexistent", wantErr: true},
		{name: "invalid nested path", path: "simple.invalid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := getNestedClaim(claims, tt.path)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if value != tt.wantValue {
				t.Errorf("value = %v, want %v", value, tt.wantValue)
			}
		})
	}

	if _, err := getClaimString(map[string]interface{}{"n": 1}, "n"); err == nil || !strings.Contains(err.Error(), "not a string") {
		t.Errorf("expected 'not a string' error, got %v", err)
	}
}

func makeTestJWT(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

func TestMergeAccessTokenClaims(t *testing.T) {
	t.Run("merges missing claims", func(t *testing.T) {
		accessToken := makeTestJWT(t, jwt.MapClaims{
			"preferred_username": "alice",
			"realm_access": map[string]interface{}{
				"roles": []interface{}{"patient"},
			},
		})

		dst := map[string]interface{}{"sub": "user123"}
		mergeAccessTokenClaims(accessToken, dst)

		if dst["preferred_username"] != "alice" {
			t.Errorf("expected preferred_username to be merged, got %v", dst["preferred_username"])
		}
		if _, ok := dst["realm_access"].(map[string]interface{}); !ok {
			t.Errorf("expected realm_access map to be merged, got %T", dst["realm_access"])
		}
	})

	t.Run("does not overwrite existing ID token claims", func(t *testing.T) {
		accessToken := makeTestJWT(t, jwt.MapClaims{"email": "from-access@b.com"})

		dst := map[string]interface{}{"email": "from-id@b.com"}
		mergeAccessTokenClaims(accessToken, dst)

		if dst["email"] != "from-id@b.com" {
			t.Errorf("expected ID token claim to be preserved, got %v", dst["email"])
		}
	})

	t.Run("handles empty access token", func(t *testing.T) {
		dst := map[string]interface{}{"sub": "user"}
		mergeAccessTokenClaims("", dst)
		if len(dst) != 1 {
			t.Error("dst should not be modified for empty token")
		}
	})

	t.Run("handles opaque access token gracefully", func(t *testing.T) {
		dst := map[string]interface{}{"sub": "user"}
		mergeAccessTokenClaims("opaque-token-no-dots", dst)
		if len(dst) != 1 {
			t.Error("dst should not be modified for opaque token")
		}
	})
}

func TestTokenError(t *testing.T) {
	resp := func(code int) *http.Response { return &http.Response{StatusCode: code} }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "invalid grant",
			err:  &oauth2.RetrieveError{Response: resp(400), ErrorCode: "invalid_grant"},
			want: identity.ErrInvalidCredentials,
		},
		{
			name: "disabled account",
			err:  &oauth2.RetrieveError{Response: resp(400), ErrorCode: "invalid_grant", ErrorDescription: "Account disabled"},
			want: identity.ErrUserDisabled,
		},
		{
			name: "grant not allowed",
			err:  &oauth2.RetrieveError{Response: resp(400), ErrorCode: "unauthorized_client"},
			want: identity.ErrUnsupported,
		},
		{
			name: "rate limited",
			err:  &oauth2.RetrieveError{Response: resp(429)},
			want: identity.ErrTooManyAttempts,
		},
		{
			name: "server error",
			err:  &oauth2.RetrieveError{Response: resp(502)},
			want: identity.ErrUnavailable,
		},
		{
			name: "transport",
			err:  context.DeadlineExceeded,
			want: identity.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("tokenError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
