// Package cli implements the client side of the control commands: it reads
// credentials, talks to the daemon socket and maps results to exit codes.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables consulted when the credentials file omits a value
const (
	EnvEmail    = "SIMPLIFYHEALTH_EMAIL"
	EnvPassword = "SIMPLIFYHEALTH_PASSWORD"
)

// Credentials is an email/password pair for sign in or sign up
type Credentials struct {
	Email string
	// Password is never logged or printed.
	Password string `json:"-"`
}

// LoadCredentials reads path and fills missing values from the environment.
// Both values are required once the fallback is applied.
func LoadCredentials(path string) (*Credentials, error) {
	email, password, err := readCredentialsFile(path)
	if err != nil {
		return nil, err
	}

	if email == "" {
		email = strings.TrimSpace(os.Getenv(EnvEmail))
	}
	if password == "" {
		password = os.Getenv(EnvPassword)
	}

	if email == "" {
		return nil, fmt.Errorf("email is required: set line 1 of the credentials file or %s", EnvEmail)
	}
	if password == "" {
		return nil, fmt.Errorf("password is required: set line 2 of the credentials file or %s", EnvPassword)
	}

	return &Credentials{Email: email, Password: password}, nil
}

// readCredentialsFile reads email and password from a two-line file:
//
//	Line 1: email
//	Line 2: password
//
// Either line may be empty.
func readCredentialsFile(path string) (email, password string, err error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path given by the operator on the command line
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	lines := strings.Split(string(data), "\n")

	email = strings.TrimSpace(lines[0])
	if len(lines) >= 2 {
		password = strings.TrimRight(lines[1], "\r")
	}

	return email, password, nil
}
