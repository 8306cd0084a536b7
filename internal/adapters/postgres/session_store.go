// Package postgres provides the Postgres-backed session store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainauth "github.com/target/portal-api/internal/domain/auth"
	apperrors "github.com/target/portal-api/internal/errors"
	"github.com/target/portal-api/internal/ports"
)

const (
	upsertSessionSQL = `INSERT INTO user_sessions (sid, sess, expire) VALUES ($1, $2, $3)
		ON CONFLICT (sid) DO UPDATE SET sess = EXCLUDED.sess, expire = EXCLUDED.expire`
	selectSessionSQL = `SELECT sess FROM user_sessions WHERE sid = $1 AND expire > now()`
	deleteSessionSQL = `DELETE FROM user_sessions WHERE sid = $1`
	purgeSessionsSQL = `DELETE FROM user_sessions WHERE expire <= $1`
)

// SessionStore persists sessions in the user_sessions table.
type SessionStore struct {
	DB *sql.DB
}

var (
	_ ports.SessionStore  = (*SessionStore)(nil)
	_ ports.SessionPurger = (*SessionStore)(nil)
)

// NewSessionStore creates a SessionStore over db.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{DB: db}
}

func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	if !sess.ExpiresAt.After(time.Now()) {
		return errors.New("session is expired")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if _, err := s.DB.ExecContext(ctx, upsertSessionSQL, sess.ID, data, sess.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("save session: %w", apperrors.MapDBError(err))
	}
	return nil
}

// Get returns the session with id. Rows past their expire column are treated as absent.
func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}

	var data []byte
	err := s.DB.QueryRowContext(ctx, selectSessionSQL, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("get session: %w", apperrors.MapDBError(err))
	}

	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.DB.ExecContext(ctx, deleteSessionSQL, id); err != nil {
		return fmt.Errorf("delete session: %w", apperrors.MapDBError(err))
	}
	return nil
}

// PurgeExpired removes rows that expired at or before now and reports how many were removed.
func (s *SessionStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, purgeSessionsSQL, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
