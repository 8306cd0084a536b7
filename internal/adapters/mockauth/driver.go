// Package mockauth provides a canned-user AuthDriver for local development and tests.
package mockauth

import (
	"context"

	"github.com/target/portal-api/config"
	domainauth "github.com/target/portal-api/internal/domain/auth"
	apperrors "github.com/target/portal-api/internal/errors"
	"github.com/target/portal-api/internal/ports"
)

// DriverName identifies this driver.
const DriverName = "mock"

// Option is a selectable canned user.
type Option struct {
	Selector string
	User     domainauth.User
}

// users are the canned identities, indexed by selector.
func users() []Option {
	return []Option{
		{Selector: "0", User: domainauth.User{
			ID:    "mock-admin-developer",
			Email: "admin.developer@example.com",
			Name:  "Mock Admin Developer",
			Roles: []string{domainauth.RoleAdmin, domainauth.RoleDeveloper},
		}},
		{Selector: "1", User: domainauth.User{
			ID:    "mock-admin",
			Email: "admin@example.com",
			Name:  "Mock Admin",
			Roles: []string{domainauth.RoleAdmin},
		}},
		{Selector: "2", User: domainauth.User{
			ID:    "mock-user",
			Email: "user@example.com",
			Name:  "Mock User",
			Roles: []string{domainauth.RoleUser},
		}},
	}
}

// Config controls the mock driver.
type Config struct {
	Env config.Environment
	// LoginPath is the chooser page Login redirects to.
	LoginPath string
	// CallbackPath is where chooser links point.
	CallbackPath string
}

// Driver implements ports.AuthDriver with a fixed set of users.
// Login sends the browser to a local chooser page; Callback resolves ?user=N.
type Driver struct {
	loginPath    string
	callbackPath string
}

var _ ports.AuthDriver = (*Driver)(nil)

// New constructs the mock driver. It refuses to run in production.
func New(cfg Config) (*Driver, error) {
	if cfg.Env == config.EnvProduction {
		return nil, apperrors.Configuration("mock auth driver cannot be used in production")
	}
	d := &Driver{loginPath: cfg.LoginPath, callbackPath: cfg.CallbackPath}
	if d.loginPath == "" {
		d.loginPath = "/auth/mock/login"
	}
	if d.callbackPath == "" {
		d.callbackPath = "/auth/callback"
	}
	return d, nil
}

func (d *Driver) Name() string { return DriverName }

// Login returns the chooser page URL.
func (d *Driver) Login(_ context.Context, _ *domainauth.Session, _ ports.LoginInput) (ports.LoginResult, error) {
	return ports.LoginResult{RedirectURL: d.loginPath}, nil
}

// Callback maps the user selector to a canned identity.
func (d *Driver) Callback(_ context.Context, _ *domainauth.Session, in ports.CallbackInput) (domainauth.User, error) {
	selector := in.Query.Get("user")
	u, ok := Lookup(selector)
	if !ok {
		return domainauth.User{}, apperrors.InvalidSelector(selector)
	}
	return u, nil
}

// Logout is local only.
func (d *Driver) Logout(_ context.Context, _ *domainauth.Session) (ports.LogoutResult, error) {
	return ports.LogoutResult{}, nil
}

// Options lists the users for the chooser page.
func (d *Driver) Options() []Option { return users() }

// CallbackURL returns the chooser link for an option.
func (d *Driver) CallbackURL(o Option) string {
	return d.callbackPath + "?user=" + o.Selector
}

// Lookup returns a fresh copy of the user with the given selector.
func Lookup(selector string) (domainauth.User, bool) {
	for _, o := range users() {
		if o.Selector == selector {
			return o.User, true
		}
	}
	return domainauth.User{}, false
}
