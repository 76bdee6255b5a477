// Package memory is an in-process identity provider for development, demos
// and tests. Accounts live only as long as the process.
package memory

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/al-bashkir/simplifyhealth/internal/identity"
)

// MinPasswordLength matches the hosted provider's rule.
const MinPasswordLength = 6

var _ identity.Provider = (*Provider)(nil)

type account struct {
	user identity.User
	hash []byte
}

// ResetRequest is a password reset that would have been emailed.
type ResetRequest struct {
	Email       string
	RequestedAt time.Time
}

// Provider keeps accounts in memory. It is safe for concurrent use.
type Provider struct {
	lock     sync.RWMutex
	accounts map[string]*account // normalized email -> account
	current  *identity.User
	outbox   []ResetRequest
	latency  time.Duration
	cost     int
}

// Option configures a Provider.
type Option func(*Provider)

// WithLatency delays every call, emulating a network round trip.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithBcryptCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(p *Provider) { p.cost = cost }
}

// New creates an empty provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		accounts: make(map[string]*account),
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddUser registers an account without signing it in.
func (p *Provider) AddUser(email, password string) (identity.User, error) {
	acc, err := p.newAccount(email, password)
	if err != nil {
		return identity.User{}, err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	key := normalize(email)
	if _, exists := p.accounts[key]; exists {
		return identity.User{}, fmt.Errorf("memory: %s: %w", email, identity.ErrEmailExists)
	}
	p.accounts[key] = acc
	return acc.user, nil
}

// SignIn checks the password against the stored hash.
func (p *Provider) SignIn(ctx context.Context, email, password string) (identity.User, error) {
	if err := p.wait(ctx); err != nil {
		return identity.User{}, err
	}

	p.lock.RLock()
	acc, ok := p.accounts[normalize(email)]
	p.lock.RUnlock()

	if !ok {
		return identity.User{}, fmt.Errorf("memory: %w", identity.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return identity.User{}, fmt.Errorf("memory: %w", identity.ErrInvalidCredentials)
	}

	p.setCurrent(&acc.user)
	return acc.user, nil
}

// CreateUser registers the account and signs it in.
func (p *Provider) CreateUser(ctx context.Context, email, password string) (identity.User, error) {
	if err := p.wait(ctx); err != nil {
		return identity.User{}, err
	}

	user, err := p.AddUser(email, password)
	if err != nil {
		return identity.User{}, err
	}

	p.setCurrent(&user)
	return user, nil
}

// SignOut forgets the current user.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	p.setCurrent(nil)
	return nil
}

// SendPasswordReset records a reset request for a known account.
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	if err := validateEmail(email); err != nil {
		return err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if _, ok := p.accounts[normalize(email)]; !ok {
		return fmt.Errorf("memory: %w", identity.ErrUserNotFound)
	}
	p.outbox = append(p.outbox, ResetRequest{Email: email, RequestedAt: time.Now()})
	return nil
}

// CurrentUser returns the last signed-in user, if any.
func (p *Provider) CurrentUser(ctx context.Context) (*identity.User, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if p.current == nil {
		return nil, nil
	}
	u := *p.current
	return &u, nil
}

// Outbox returns the reset requests recorded so far.
func (p *Provider) Outbox() []ResetRequest {
	p.lock.RLock()
	defer p.lock.RUnlock()

	out := make([]ResetRequest, len(p.outbox))
	copy(out, p.outbox)
	return out
}

func (p *Provider) newAccount(email, password string) (*account, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("memory: %w", identity.ErrWeakPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("memory: %w", identity.ErrWeakPassword)
		}
		return nil, fmt.Errorf("memory: hash password: %w", err)
	}

	return &account{
		user: identity.User{ID: uuid.New().String(), Email: strings.TrimSpace(email)},
		hash: hash,
	}, nil
}

func (p *Provider) setCurrent(u *identity.User) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if u == nil {
		p.current = nil
		return
	}
	cp := *u
	p.current = &cp
}

func (p *Provider) wait(ctx context.Context) error {
	if p.latency <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("memory: %w: %v", identity.ErrUnavailable, err)
		}
		return nil
	}

	t := time.NewTimer(p.latency)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("memory: %w: %v", identity.ErrUnavailable, ctx.Err())
	}
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return fmt.Errorf("memory: %q: %w", email, identity.ErrInvalidEmail)
	}
	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
