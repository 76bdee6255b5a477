package viewmodel

import (
	"context"

	"github.com/al-bashkir/simplifyhealth/internal/broadcast"
	"github.com/al-bashkir/simplifyhealth/internal/catalog"
	"github.com/al-bashkir/simplifyhealth/internal/session"
)

// Main backs the signed-in screen: greeting, tiles and sign out.
type Main struct {
	form

	// Username is the signed-in user, or empty once signed out.
	Username *broadcast.Value[string]

	info    session.Info
	signOut session.SignOuter
	catalog *catalog.Catalog
	proj    *projection[string]
}

// NewMain starts following info. Call Close when the screen goes away.
func NewMain(info session.Info, signOut session.SignOuter, cat *catalog.Catalog) *Main {
	p := project(info, func(st session.State) string {
		s, _ := st.Session()
		return s.Username
	})

	vm := &Main{
		Username: p.value,
		info:     info,
		signOut:  signOut,
		catalog:  cat,
		proj:     p,
	}
	vm.init()
	return vm
}

// Title is the screen heading.
func (vm *Main) Title() string {
	return vm.catalog.Title
}

// Tiles returns the category tiles.
func (vm *Main) Tiles() []catalog.Tile {
	return vm.catalog.Tiles()
}

// Category returns the videos screen data for slug.
func (vm *Main) Category(slug string) (catalog.Category, bool) {
	return vm.catalog.Category(slug)
}

// Contact returns the contact channels.
func (vm *Main) Contact() []catalog.ContactChannel {
	return vm.catalog.Contact
}

// CanSignOut reports whether a user is signed in and nothing is running.
func (vm *Main) CanSignOut() bool {
	return !vm.Busy.Get() && vm.info.Current().IsSignedIn()
}

// SignOut signs the current user out.
func (vm *Main) SignOut(ctx context.Context) error {
	ready := func() bool { return vm.info.Current().IsSignedIn() }
	return vm.run(ready, func() error {
		return vm.signOut.SignOut(ctx)
	})
}

// Close stops following the session and ends all feeds.
func (vm *Main) Close() {
	vm.proj.close()
	vm.form.close()
}
