package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/portal-api/internal/domain/auth"
	"github.com/target/portal-api/internal/testutil"
)

func testSession(id string, ttl time.Duration) domainauth.Session {
	now := time.Now()
	return domainauth.Session{
		ID: id,
		User: &domainauth.User{
			ID:    "user-123",
			Email: "user@example.com",
			Name:  "User",
			Roles: []string{domainauth.RoleUser},
			Attributes: &domainauth.Attributes{
				TenantID: "tenant",
				Extra:    map[string]any{"department": "ops"},
			},
		},
		ReturnTo:  "/reports",
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	mr, client := testutil.NewMiniRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	session := testSession("test-session-1", 30*time.Minute)
	require.NoError(t, store.Save(ctx, session))
	assert.True(t, mr.Exists("portal:session:test-session-1"))

	retrieved, err := store.Get(ctx, "test-session-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, retrieved.ID)
	require.NotNil(t, retrieved.User)
	assert.Equal(t, session.User.Email, retrieved.User.Email)
	assert.Equal(t, session.User.Roles, retrieved.User.Roles)
	assert.Equal(t, "ops", retrieved.User.Attributes.Extra["department"])
	assert.Equal(t, "/reports", retrieved.ReturnTo)
	assert.WithinDuration(t, session.ExpiresAt, retrieved.ExpiresAt, time.Second)
}

func TestSessionStore_TTLFromExpiresAt(t *testing.T) {
	mr, client := testutil.NewMiniRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("ttl", 10*time.Minute)))
	ttl := mr.TTL("portal:session:ttl")
	assert.Greater(t, ttl, 9*time.Minute)
	assert.LessOrEqual(t, ttl, 10*time.Minute)

	mr.FastForward(11 * time.Minute)
	_, err := store.Get(ctx, "ttl")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

func TestSessionStore_GetNonExistent(t *testing.T) {
	_, client := testutil.NewMiniRedis(t)
	store := NewSessionStore(client)

	_, err := store.Get(context.Background(), "non-existent")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)

	_, err = store.Get(context.Background(), "")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	mr, client := testutil.NewMiniRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("test-session-delete", 30*time.Minute)))
	require.NoError(t, store.Delete(ctx, "test-session-delete"))
	assert.False(t, mr.Exists("portal:session:test-session-delete"))

	_, err := store.Get(ctx, "test-session-delete")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)

	require.NoError(t, store.Delete(ctx, ""))
}

func TestSessionStore_SaveRejects(t *testing.T) {
	_, client := testutil.NewMiniRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.Error(t, store.Save(ctx, testSession("", time.Minute)))
	require.Error(t, store.Save(ctx, testSession("expired", -time.Minute)))
}

func TestSessionStore_StaleRecordRemoved(t *testing.T) {
	mr, client := testutil.NewMiniRedis(t)
	store := NewSessionStoreWithPrefix(client, "custom:")
	ctx := context.Background()

	// A record whose embedded expiry passed while the key TTL did not.
	data, err := json.Marshal(testSession("stale", -time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.client.Set(ctx, "custom:stale", data, time.Hour).Err())
	require.True(t, mr.Exists("custom:stale"))

	_, err = store.Get(ctx, "stale")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
	assert.False(t, mr.Exists("custom:stale"))
}

func TestSessionStore_CorruptRecord(t *testing.T) {
	mr, client := testutil.NewMiniRedis(t)
	store := NewSessionStore(client)

	require.NoError(t, mr.Set("portal:session:bad", "{not json"))
	_, err := store.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domainauth.ErrSessionNotFound)
}
