// Package viewmodel adapts session capabilities to per-screen state: form
// fields, busy flags and error text a front end renders and binds to.
//
// Observable fields are broadcast values: read with Get, write with Set,
// watch with Subscribe or Observe. View-models never write session state;
// they only call the capability they were given.
package viewmodel

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/al-bashkir/simplifyhealth/internal/broadcast"
	"github.com/al-bashkir/simplifyhealth/internal/identity"
	"github.com/al-bashkir/simplifyhealth/internal/session"
)

// ErrNotReady is returned by Submit when the form cannot be submitted:
// a required field is empty or invalid, or a request is already running.
var ErrNotReady = errors.New("form is not ready to submit")

var emailPattern = regexp.MustCompile(`^[A-Z0-9a-z._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,64}$`)

// ValidEmail reports whether s, trimmed, looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// ErrorMessage returns the text shown to the user for err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		return authErr.Message()
	}
	switch {
	case errors.Is(err, session.ErrOperationInFlight):
		return "Please wait for the current request to finish."
	case errors.Is(err, ErrNotReady):
		return "Please complete the form."
	case errors.Is(err, ErrWrongState):
		return "This action is not available right now."
	}
	return identity.Message(err)
}

// projection keeps a broadcast value in step with the session state until
// closed.
type projection[T any] struct {
	value  *broadcast.Value[T]
	cancel context.CancelFunc
	done   chan struct{}
}

func project[T any](info session.Info, f func(session.State) T) *projection[T] {
	ctx, cancel := context.WithCancel(context.Background())
	p := &projection[T]{
		value:  broadcast.NewValue(f(info.Current())),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	feed := info.Observe(ctx)
	go func() {
		defer close(p.done)
		for st := range feed {
			p.value.Set(f(st))
		}
	}()

	return p
}

func (p *projection[T]) close() {
	p.cancel()
	<-p.done
	p.value.Close()
}

// form holds the fields every auth screen shares.
type form struct {
	mu      sync.Mutex // guards the busy check-and-set and lastErr
	lastErr error

	Busy         *broadcast.Value[bool]
	ErrorMessage *broadcast.Value[string]
}

func (f *form) init() {
	f.Busy = broadcast.NewValue(false)
	f.ErrorMessage = broadcast.NewValue("")
}

// run refuses with ErrNotReady when the form is busy or ready reports
// false. Otherwise it clears the previous error, marks the form busy for
// the duration of call and records the error text call returns.
func (f *form) run(ready func() bool, call func() error) error {
	f.mu.Lock()
	if f.Busy.Get() || !ready() {
		f.mu.Unlock()
		return ErrNotReady
	}
	f.ErrorMessage.Set("")
	f.Busy.Set(true)
	f.mu.Unlock()

	return f.finish(call)
}

// LastError returns the error of the most recent attempt, nil after a
// success or before any attempt.
func (f *form) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// finish runs call on a form already marked busy and clears busy on return.
func (f *form) finish(call func() error) error {
	defer f.Busy.Set(false)

	err := call()
	f.mu.Lock()
	f.lastErr = err
	f.mu.Unlock()
	if err != nil {
		f.ErrorMessage.Set(ErrorMessage(err))
		return err
	}
	return nil
}

func (f *form) close() {
	f.Busy.Close()
	f.ErrorMessage.Close()
}
