package firebase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al-bashkir/simplifyhealth/internal/credstore"
	"github.com/al-bashkir/simplifyhealth/internal/identity"
)

type recorded struct {
	path string
	key  string
	body map[string]any
}

type fakeToolkit struct {
	mu       sync.Mutex
	requests []recorded
	status   int
	reply    any
}

func (f *fakeToolkit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.requests = append(f.requests, recorded{path: r.URL.Path, key: r.URL.Query().Get("key"), body: body})
	status, reply := f.status, f.reply
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(reply)
}

func (f *fakeToolkit) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newTestProvider(t *testing.T, tk *fakeToolkit) (*Provider, *credstore.File) {
	t.Helper()

	ts := httptest.NewServer(tk)
	t.Cleanup(ts.Close)

	store := credstore.NewFile(filepath.Join(t.TempDir(), "credential.json"))
	p, err := New(Config{APIKey: "test-key", BaseURL: ts.URL + "/v1"}, store)
	require.NoError(t, err)
	return p, store
}

func toolkitError(message string) map[string]any {
	return map[string]any{"error": map[string]any{"code": 400, "message": message}}
}

func TestSignInPersistsCredential(t *testing.T) {
	tk := &fakeToolkit{reply: map[string]any{
		"localId":      "uid-1",
		"email":        "a@b.com",
		"idToken":      "header.payload.sig",
		"refreshToken": "refresh-1",
		"expiresIn":    "3600",
	}}
	p, store := newTestProvider(t, tk)
	ctx := context.Background()

	user, err := p.SignIn(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, identity.User{ID: "uid-1", Email: "a@b.com"}, user)

	req := tk.last(t)
	assert.Equal(t, "/v1/accounts:signInWithPassword", req.path)
	assert.Equal(t, "test-key", req.key)
	assert.Equal(t, "a@b.com", req.body["email"])
	assert.Equal(t, true, req.body["returnSecureToken"])

	cred, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, ProviderName, cred.Provider)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
	assert.False(t, cred.Expiry.IsZero())

	cur, err := p.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, user, *cur)

	require.NoError(t, p.SignOut(ctx))
	cur, err = p.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestCreateUserFallsBackToIDTokenClaims(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "uid-from-token",
		"email":   "new@b.com",
	}).SignedString([]byte("unused"))
	require.NoError(t, err)

	tk := &fakeToolkit{reply: map[string]any{"idToken": token, "refreshToken": "r"}}
	p, _ := newTestProvider(t, tk)

	user, err := p.CreateUser(context.Background(), "new@b.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, identity.User{ID: "uid-from-token", Email: "new@b.com"}, user)
	assert.Equal(t, "/v1/accounts:signUp", tk.last(t).path)
}

func TestSendPasswordReset(t *testing.T) {
	tk := &fakeToolkit{reply: map[string]any{"email": "a@b.com"}}
	p, _ := newTestProvider(t, tk)

	require.NoError(t, p.SendPasswordReset(context.Background(), "a@b.com"))

	req := tk.last(t)
	assert.Equal(t, "/v1/accounts:sendOobCode", req.path)
	assert.Equal(t, "PASSWORD_RESET", req.body["requestType"])
	assert.Equal(t, "a@b.com", req.body["email"])
}

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		message string
		status  int
		want    error
	}{
		{message: "EMAIL_EXISTS", want: identity.ErrEmailExists},
		{message: "EMAIL_NOT_FOUND", want: identity.ErrUserNotFound},
		{message: "INVALID_PASSWORD", want: identity.ErrInvalidCredentials},
		{message: "INVALID_LOGIN_CREDENTIALS", want: identity.ErrInvalidCredentials},
		{message: "WEAK_PASSWORD : Password should be at least 6 characters", want: identity.ErrWeakPassword},
		{message: "USER_DISABLED", want: identity.ErrUserDisabled},
		{message: "TOO_MANY_ATTEMPTS_TRY_LATER : Access temporarily disabled", want: identity.ErrTooManyAttempts},
		{message: "INVALID_EMAIL", want: identity.ErrInvalidEmail},
		{message: "INTERNAL", status: http.StatusServiceUnavailable, want: identity.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			status := tt.status
			if status == 0 {
				status = http.StatusBadRequest
			}
			tk := &fakeToolkit{status: status, reply: toolkitError(tt.message)}
			p, store := newTestProvider(t, tk)

			_, err := p.SignIn(context.Background(), "a@b.com", "secret1")
			assert.ErrorIs(t, err, tt.want)

			cred, lerr := store.Load()
			require.NoError(t, lerr)
			assert.Nil(t, cred, "failed sign-in must not persist a credential")
		})
	}
}

func TestUnknownErrorIsNotASentinel(t *testing.T) {
	tk := &fakeToolkit{status: http.StatusBadRequest, reply: toolkitError("SOMETHING_NEW")}
	p, _ := newTestProvider(t, tk)

	err := p.SendPasswordReset(context.Background(), "a@b.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOMETHING_NEW")
	assert.Equal(t, "Something went wrong. Please try again.", identity.Message(err))
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	base := ts.URL
	ts.Close()

	store := credstore.NewFile(filepath.Join(t.TempDir(), "credential.json"))
	p, err := New(Config{APIKey: "secret-key", BaseURL: base}, store)
	require.NoError(t, err)

	_, err = p.SignIn(context.Background(), "a@b.com", "secret1")
	assert.ErrorIs(t, err, identity.ErrUnavailable)
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestCurrentUserIgnoresOtherProvider(t *testing.T) {
	p, store := newTestProvider(t, &fakeToolkit{})
	require.NoError(t, store.Save(&credstore.Credential{Provider: "oidc", UserID: "u"}))

	cur, err := p.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestNewValidation(t *testing.T) {
	store := credstore.NewFile(filepath.Join(t.TempDir(), "c.json"))

	_, err := New(Config{}, store)
	assert.Error(t, err, "missing api key")

	_, err = New(Config{APIKey: "k"}, nil)
	assert.Error(t, err, "missing store")

	_, err = New(Config{APIKey: "k", BaseURL: "not a url"}, store)
	assert.Error(t, err, "bad base url")

	p, err := New(Config{APIKey: "k"}, store)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, p.baseURL)
}
