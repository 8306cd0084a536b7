// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"errors"
	"sync"

	domainauth "github.com/target/portal-api/internal/domain/auth"
	"github.com/target/portal-api/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthDriver           = (*FakeDriver)(nil)
	_ ports.SessionStore         = (*MemorySessionStore)(nil)
	_ ports.RoleMapper           = (*StaticRoleMapper)(nil)
	_ ports.ServiceTokenVerifier = (*StubVerifier)(nil)
)

// FakeDriver is a configurable AuthDriver. Unset funcs fall back to deterministic defaults.
type FakeDriver struct {
	DriverName   string
	LoginFunc    func(ctx context.Context, sess *domainauth.Session, in ports.LoginInput) (ports.LoginResult, error)
	CallbackFunc func(ctx context.Context, sess *domainauth.Session, in ports.CallbackInput) (domainauth.User, error)
	LogoutFunc   func(ctx context.Context, sess *domainauth.Session) (ports.LogoutResult, error)

	// DefaultUser is returned by Callback when CallbackFunc is nil.
	DefaultUser domainauth.User

	mu            sync.Mutex
	LoginCalls    int
	CallbackCalls int
	LogoutCalls   int
}

// NewFakeDriver creates a FakeDriver with sensible defaults.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		DriverName: "fake",
		DefaultUser: domainauth.User{
			ID:    "fake-user-1",
			Email: "fake.user@example.com",
			Name:  "Fake User",
			Roles: []string{domainauth.RoleUser},
		},
	}
}

func (f *FakeDriver) Name() string {
	if f.DriverName == "" {
		return "fake"
	}
	return f.DriverName
}

func (f *FakeDriver) Login(ctx context.Context, sess *domainauth.Session, in ports.LoginInput) (ports.LoginResult, error) {
	f.mu.Lock()
	f.LoginCalls++
	f.mu.Unlock()
	if f.LoginFunc != nil {
		return f.LoginFunc(ctx, sess, in)
	}
	return ports.LoginResult{RedirectURL: "https://fake-idp/authorize"}, nil
}

func (f *FakeDriver) Callback(ctx context.Context, sess *domainauth.Session, in ports.CallbackInput) (domainauth.User, error) {
	f.mu.Lock()
	f.CallbackCalls++
	f.mu.Unlock()
	if f.CallbackFunc != nil {
		return f.CallbackFunc(ctx, sess, in)
	}
	return f.DefaultUser, nil
}

func (f *FakeDriver) Logout(ctx context.Context, sess *domainauth.Session) (ports.LogoutResult, error) {
	f.mu.Lock()
	f.LogoutCalls++
	f.mu.Unlock()
	if f.LogoutFunc != nil {
		return f.LogoutFunc(ctx, sess)
	}
	return ports.LogoutResult{}, nil
}

// MemorySessionStore is an in-memory session store for unit tests.
// SaveErr and GetErr inject failures.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session

	SaveErr error
	GetErr  error
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	if m.GetErr != nil {
		return domainauth.Session{}, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StaticRoleMapper always returns Roles.
type StaticRoleMapper struct {
	Roles []string
}

func (m StaticRoleMapper) Map(map[string]any) []string {
	return append([]string(nil), m.Roles...)
}

// StubVerifier returns fixed claims or an error.
type StubVerifier struct {
	Claims ports.ServiceTokenClaims
	Err    error

	mu    sync.Mutex
	Calls int
}

func (s *StubVerifier) Verify(context.Context, string) (ports.ServiceTokenClaims, error) {
	s.mu.Lock()
	s.Calls++
	s.mu.Unlock()
	if s.Err != nil {
		return ports.ServiceTokenClaims{}, s.Err
	}
	return s.Claims, nil
}
