package viewmodel

import (
	"github.com/al-bashkir/simplifyhealth/internal/broadcast"
	"github.com/al-bashkir/simplifyhealth/internal/session"
)

// Launch decides between the sign-in and main screens.
type Launch struct {
	// SignedIn follows the session state.
	SignedIn *broadcast.Value[bool]

	proj *projection[bool]
}

// NewLaunch starts following info. Call Close when the screen goes away.
func NewLaunch(info session.Info) *Launch {
	p := project(info, session.State.IsSignedIn)
	return &Launch{SignedIn: p.value, proj: p}
}

// Close stops following the session and ends SignedIn feeds.
func (l *Launch) Close() {
	l.proj.close()
}
