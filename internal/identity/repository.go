package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brodesk/brodesk/internal/platform/db"
	"github.com/brodesk/brodesk/internal/shared"
)

// Repository defines persistence operations for identities and sessions.
type Repository interface {
	CreateIdentity(ctx context.Context, email, passwordHash string, metadata map[string]string) (uuid.UUID, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	DeleteIdentity(ctx context.Context, id uuid.UUID) error
	CreateSession(ctx context.Context, sess Session) error
	FindSession(ctx context.Context, id string) (*Session, error)
	ExtendSession(ctx context.Context, id string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateIdentity inserts a credential row and returns its id.
func (r *PGRepository) CreateIdentity(ctx context.Context, email, passwordHash string, metadata map[string]string) (uuid.UUID, error) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	err = r.pool.QueryRow(ctx, `INSERT INTO identities (email, password_hash, metadata)
VALUES ($1, $2, $3) RETURNING id`, email, passwordHash, meta).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return uuid.Nil, ErrEmailTaken
		}
		return uuid.Nil, shared.WrapStore("create identity", err)
	}
	return id, nil
}

// FindByEmail fetches an identity by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	var (
		ident Identity
		meta  []byte
	)
	err := r.pool.QueryRow(ctx, `SELECT id, email, password_hash, metadata, created_at
FROM identities WHERE email = $1`, email).Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &meta, &ident.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.WrapStore("find identity", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &ident.Metadata); err != nil {
			return nil, err
		}
	}
	return &ident, nil
}

// DeleteIdentity removes an identity; sessions cascade.
func (r *PGRepository) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return shared.WrapStore("delete identity", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateSession persists a new session.
func (r *PGRepository) CreateSession(ctx context.Context, sess Session) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO identity_sessions (id, identity_id, ip, user_agent, expires_at)
VALUES ($1, $2, $3, $4, $5)`, sess.ID, sess.UserID, sess.IP, sess.UserAgent, sess.ExpiresAt.UTC())
	return shared.WrapStore("create session", err)
}

// FindSession loads a session by id.
func (r *PGRepository) FindSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := r.pool.QueryRow(ctx, `SELECT id, identity_id, ip, user_agent, expires_at
FROM identity_sessions WHERE id = $1`, id).Scan(&sess.ID, &sess.UserID, &sess.IP, &sess.UserAgent, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.WrapStore("find session", err)
	}
	return &sess, nil
}

// ExtendSession moves the session expiry forward.
func (r *PGRepository) ExtendSession(ctx context.Context, id string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE identity_sessions SET expires_at = $2 WHERE id = $1`, id, expiresAt.UTC())
	if err != nil {
		return shared.WrapStore("extend session", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM identity_sessions WHERE id = $1`, id)
	return shared.WrapStore("delete session", err)
}

var _ Repository = (*PGRepository)(nil)
