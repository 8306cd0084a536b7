package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/portal-api/internal/domain/auth"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStore(capacity int) (*SessionStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewSessionStore(Config{Capacity: capacity, Now: clock.Now}), clock
}

func session(id string, clock *fakeClock, ttl time.Duration) domainauth.Session {
	return domainauth.Session{
		ID:        id,
		User:      &domainauth.User{ID: "u-" + id, Email: id + "@example.com", Roles: []string{"user"}},
		CreatedAt: clock.Now(),
		ExpiresAt: clock.Now().Add(ttl),
	}
}

func TestSessionStore_SaveGetDelete(t *testing.T) {
	store, clock := newStore(0)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, session("a", clock, time.Hour)))
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.User.Email)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
	require.NoError(t, store.Delete(ctx, "a"))
}

func TestSessionStore_ReturnsCopies(t *testing.T) {
	store, clock := newStore(0)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, session("a", clock, time.Hour)))

	first, err := store.Get(ctx, "a")
	require.NoError(t, err)
	first.User.Roles[0] = "admin"

	second, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, second.User.Roles)
}

func TestSessionStore_Expiry(t *testing.T) {
	store, clock := newStore(0)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, session("a", clock, time.Minute)))

	clock.Advance(2 * time.Minute)
	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
	assert.Equal(t, 0, store.Len())

	require.Error(t, store.Save(ctx, session("b", clock, -time.Second)))
	require.Error(t, store.Save(ctx, session("", clock, time.Hour)))
}

func TestSessionStore_Overwrite(t *testing.T) {
	store, clock := newStore(0)
	ctx := context.Background()
	sess := session("a", clock, time.Minute)
	require.NoError(t, store.Save(ctx, sess))

	sess.ReturnTo = "/next"
	sess.ExpiresAt = clock.Now().Add(time.Hour)
	require.NoError(t, store.Save(ctx, sess))
	assert.Equal(t, 1, store.Len())

	clock.Advance(30 * time.Minute)
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "/next", got.ReturnTo)
}

func TestSessionStore_EvictsLeastRecentlyUsed(t *testing.T) {
	store, clock := newStore(2)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, session("a", clock, time.Hour)))
	require.NoError(t, store.Save(ctx, session("b", clock, time.Hour)))
	_, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, session("c", clock, time.Hour)))

	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
	_, err = store.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestSessionStore_PurgeExpired(t *testing.T) {
	store, clock := newStore(0)
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, store.Save(ctx, session(fmt.Sprintf("short-%d", i), clock, time.Minute)))
	}
	require.NoError(t, store.Save(ctx, session("long", clock, time.Hour)))

	n, err := store.PurgeExpired(ctx, clock.Now().Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 1, store.Len())
}

func TestSessionStore_Concurrent(t *testing.T) {
	store, clock := newStore(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s-%d", i%10)
			_ = store.Save(ctx, session(id, clock, time.Hour))
			_, _ = store.Get(ctx, id)
			if i%7 == 0 {
				_ = store.Delete(ctx, id)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, store.Len(), 10)
}
