package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/portal-api/internal/domain/auth"
	"github.com/target/portal-api/internal/ports"
)

func TestFakeDriver_Defaults(t *testing.T) {
	d := NewFakeDriver()
	ctx := context.Background()
	sess := &domainauth.Session{ID: "s1"}

	res, err := d.Login(ctx, sess, ports.LoginInput{})
	require.NoError(t, err)
	assert.Equal(t, "https://fake-idp/authorize", res.RedirectURL)

	user, err := d.Callback(ctx, sess, ports.CallbackInput{})
	require.NoError(t, err)
	assert.Equal(t, "fake-user-1", user.ID)

	out, err := d.Logout(ctx, sess)
	require.NoError(t, err)
	assert.Empty(t, out.RedirectURL)

	assert.Equal(t, 1, d.LoginCalls)
	assert.Equal(t, 1, d.CallbackCalls)
	assert.Equal(t, 1, d.LogoutCalls)
	assert.Equal(t, "fake", d.Name())
}

func TestFakeDriver_CustomFuncs(t *testing.T) {
	want := errors.New("denied")
	d := &FakeDriver{
		CallbackFunc: func(context.Context, *domainauth.Session, ports.CallbackInput) (domainauth.User, error) {
			return domainauth.User{}, want
		},
	}

	_, err := d.Callback(context.Background(), &domainauth.Session{}, ports.CallbackInput{})
	require.ErrorIs(t, err, want)
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	require.Error(t, store.Save(ctx, domainauth.Session{}))

	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "abc"}))
	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ID)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, "abc"))
	_, err = store.Get(ctx, "abc")
	require.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

func TestMemorySessionStore_InjectedErrors(t *testing.T) {
	boom := errors.New("boom")
	store := NewMemorySessionStore()
	store.SaveErr = boom
	store.GetErr = boom

	require.ErrorIs(t, store.Save(context.Background(), domainauth.Session{ID: "x"}), boom)
	_, err := store.Get(context.Background(), "x")
	require.ErrorIs(t, err, boom)
}

func TestStaticRoleMapper_ReturnsCopy(t *testing.T) {
	m := StaticRoleMapper{Roles: []string{"admin"}}
	got := m.Map(nil)
	got[0] = "changed"
	assert.Equal(t, []string{"admin"}, m.Map(nil))
}

func TestStubVerifier(t *testing.T) {
	v := &StubVerifier{Claims: ports.ServiceTokenClaims{AZP: "client"}}
	claims, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "client", claims.AZP)
	assert.Equal(t, 1, v.Calls)
}
