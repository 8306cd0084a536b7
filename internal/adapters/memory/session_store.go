// Package memory provides a process-local session store for development and tests.
package memory

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/target/portal-api/internal/domain/auth"
	"github.com/target/portal-api/internal/ports"
)

// DefaultCapacity bounds the number of live sessions kept in memory.
const DefaultCapacity = 10000

// SessionStore is an LRU of JSON-encoded sessions with per-entry expiry.
// Records are stored encoded so callers never share mutable state with the store.
// Concurrency: methods are safe for concurrent use.
type SessionStore struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List // front = most-recently used
	items map[string]*list.Element
	now   func() time.Time
}

type entry struct {
	id     string
	data   []byte
	expiry time.Time
}

// Config groups constructor options.
type Config struct {
	Capacity int
	Now      func() time.Time
}

var (
	_ ports.SessionStore  = (*SessionStore)(nil)
	_ ports.SessionPurger = (*SessionStore)(nil)
)

// NewSessionStore creates a SessionStore. Zero values in cfg fall back to defaults.
func NewSessionStore(cfg Config) *SessionStore {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &SessionStore{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[string]*list.Element),
		now:   nowFn,
	}
}

func (s *SessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	if !sess.ExpiresAt.After(s.now()) {
		return errors.New("session is expired")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[sess.ID]; ok {
		ent := el.Value.(*entry)
		ent.data = data
		ent.expiry = sess.ExpiresAt
		s.ll.MoveToFront(el)
		return nil
	}

	s.items[sess.ID] = s.ll.PushFront(&entry{id: sess.ID, data: data, expiry: sess.ExpiresAt})
	for s.ll.Len() > s.cap {
		s.removeElement(s.ll.Back())
	}
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	s.mu.Lock()
	el, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	ent := el.Value.(*entry)
	if !ent.expiry.After(s.now()) {
		s.removeElement(el)
		s.mu.Unlock()
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	s.ll.MoveToFront(el)
	data := ent.data
	s.mu.Unlock()

	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[id]; ok {
		s.removeElement(el)
	}
	return nil
}

// PurgeExpired drops every entry whose expiry is at or before now.
func (s *SessionStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for el := s.ll.Front(); el != nil; {
		next := el.Next()
		if !el.Value.(*entry).expiry.After(now) {
			s.removeElement(el)
			n++
		}
		el = next
	}
	return n, nil
}

// Len returns the number of stored entries, including ones not yet purged.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

func (s *SessionStore) removeElement(el *list.Element) {
	s.ll.Remove(el)
	delete(s.items, el.Value.(*entry).id)
}
