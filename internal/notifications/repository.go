package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brodesk/brodesk/internal/platform/db"
	"github.com/brodesk/brodesk/internal/shared"
)

// Repository defines persistence for notifications.
type Repository interface {
	Insert(ctx context.Context, userID uuid.UUID, msg Message) (Notification, error)
	InsertMany(ctx context.Context, userIDs []uuid.UUID, msg Message) ([]Notification, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const insertSQL = `INSERT INTO notifications (user_id, title, message, type)
VALUES ($1, $2, $3, $4) RETURNING id, user_id, title, message, type, created_at`

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertOne(ctx context.Context, q rowQuerier, userID uuid.UUID, msg Message) (Notification, error) {
	var n Notification
	err := q.QueryRow(ctx, insertSQL, userID, msg.Title, msg.Message, string(msg.Type)).
		Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.CreatedAt)
	return n, err
}

// Insert stores a single notification.
func (r *PGRepository) Insert(ctx context.Context, userID uuid.UUID, msg Message) (Notification, error) {
	n, err := insertOne(ctx, r.pool, userID, msg)
	if err != nil {
		return Notification{}, shared.WrapStore("insert notification", err)
	}
	return n, nil
}

// InsertMany stores one notification per user inside a single transaction.
func (r *PGRepository) InsertMany(ctx context.Context, userIDs []uuid.UUID, msg Message) ([]Notification, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	out := make([]Notification, 0, len(userIDs))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, id := range userIDs {
			n, err := insertOne(ctx, tx, id, msg)
			if err != nil {
				return err
			}
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, shared.WrapStore("insert notifications", err)
	}
	return out, nil
}

// ListForUser returns the newest notifications for userID.
func (r *PGRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, title, message, type, created_at
FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, shared.WrapStore("list notifications", err)
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.CreatedAt); err != nil {
			return nil, shared.WrapStore("scan notification", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapStore("list notifications", err)
	}
	return out, nil
}

var _ Repository = (*PGRepository)(nil)
