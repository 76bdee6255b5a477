package credstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credential.json")
	f := NewFile(path)

	want := &Credential{
		Provider:     "firebase",
		UserID:       "uid-1",
		Email:        "a@b.com",
		IDToken:      "id.token.value",
		RefreshToken: "refresh-1",
		Expiry:       time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	if err := f.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}

	got, err := f.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got == nil {
		t.Fatal("Load returned nil credential")
	}
	if got.UserID != want.UserID || got.Email != want.Email || got.RefreshToken != want.RefreshToken {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
	if !got.Expiry.Equal(want.Expiry) {
		t.Errorf("Expiry = %v, want %v", got.Expiry, want.Expiry)
	}
	if got.SavedAt.IsZero() {
		t.Error("SavedAt not set")
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "credential.json"))

	if err := f.Save(&Credential{Provider: "oidc", UserID: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := f.Save(&Credential{Provider: "oidc", UserID: "second"}); err != nil {
		t.Fatal(err)
	}

	got, err := f.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "second" {
		t.Errorf("UserID = %s, want second", got.UserID)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(f.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file in dir, got %d", len(entries))
	}
}

func TestLoadMissing(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "missing.json"))

	got, err := f.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil credential, got %+v", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		errContains string
	}{
		{name: "bad json", content: "{not json", errContains: "failed to parse"},
		{name: "no user", content: `{"provider":"firebase"}`, errContains: "no user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "credential.json")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			_, err := NewFile(path).Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q does not contain %q", err, tt.errContains)
			}
		})
	}
}

func TestClear(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "credential.json"))

	// Clearing a missing file is fine.
	if err := f.Clear(); err != nil {
		t.Fatalf("Clear on missing file failed: %v", err)
	}

	if err := f.Save(&Credential{Provider: "oidc", UserID: "u"}); err != nil {
		t.Fatal(err)
	}
	if err := f.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	got, err := f.Load()
	if err != nil || got != nil {
		t.Errorf("Load after Clear = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestEmptyPath(t *testing.T) {
	f := NewFile("")

	if _, err := f.Load(); err == nil {
		t.Error("Load with empty path should fail")
	}
	if err := f.Save(&Credential{UserID: "u"}); err == nil {
		t.Error("Save with empty path should fail")
	}
	if err := f.Clear(); err == nil {
		t.Error("Clear with empty path should fail")
	}
	if err := NewFile(filepath.Join(t.TempDir(), "c.json")).Save(nil); err == nil {
		t.Error("Save(nil) should fail")
	}
}
