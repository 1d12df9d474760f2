package accounts

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brodesk/brodesk/internal/notifications"
	"github.com/brodesk/brodesk/internal/platform/db"
	"github.com/brodesk/brodesk/internal/shared"
)

// ListFilter narrows ListAccounts. Zero values match everything.
type ListFilter struct {
	Status ApprovalStatus
	Role   shared.Role
}

// Repository defines persistence operations for profiles and role assignments.
type Repository interface {
	InsertProfile(ctx context.Context, id uuid.UUID, profile Profile, status ApprovalStatus) error
	DeleteProfile(ctx context.Context, id uuid.UUID) error
	InsertRole(ctx context.Context, id uuid.UUID, role shared.Role) error
	Get(ctx context.Context, id uuid.UUID) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to ApprovalStatus) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]Account, error)
	CountAccounts(ctx context.Context) (int, error)
}

// PGRepository implements Repository using PostgreSQL. It also serves the
// directory lookups other modules need.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `p.id, COALESCE(r.role, ''), p.approval_status, p.full_name, p.email, p.phone,
COALESCE(p.batch_type, ''), COALESCE(p.batch_number, ''), COALESCE(p.course, ''), COALESCE(p.student_id, ''),
COALESCE(p.category, ''), COALESCE(p.specialization, ''), p.created_at, p.updated_at`

const accountFrom = ` FROM profiles p LEFT JOIN user_roles r ON r.user_id = p.id`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Role, &a.ApprovalStatus, &a.FullName, &a.Email, &a.Phone,
		&a.BatchType, &a.BatchNumber, &a.Course, &a.StudentID,
		&a.Category, &a.Specialization, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// InsertProfile stores the profile row for a new identity.
func (r *PGRepository) InsertProfile(ctx context.Context, id uuid.UUID, p Profile, status ApprovalStatus) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO profiles (id, full_name, email, phone, approval_status,
batch_type, batch_number, course, student_id, category, specialization)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, p.FullName, p.Email, p.Phone, string(status),
		nullable(p.BatchType), nullable(p.BatchNumber), nullable(p.Course), nullable(p.StudentID),
		nullable(p.Category), nullable(p.Specialization))
	if db.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return shared.WrapStore("insert profile", err)
}

// DeleteProfile removes a profile; used only to compensate a failed registration.
func (r *PGRepository) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	return shared.WrapStore("delete profile", err)
}

// InsertRole assigns the account's single role.
func (r *PGRepository) InsertRole(ctx context.Context, id uuid.UUID, role shared.Role) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`, id, string(role))
	if db.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return shared.WrapStore("insert role", err)
}

// Get loads an account by id.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+accountFrom+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, shared.WrapStore("get account", err)
	}
	return a, nil
}

// FindByEmail loads an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+accountFrom+` WHERE p.email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, shared.WrapStore("find account", err)
	}
	return a, nil
}

// TransitionStatus moves id from one status to another and reports whether
// the row was still in the from state.
func (r *PGRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to ApprovalStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE profiles SET approval_status = $3, updated_at = NOW()
WHERE id = $1 AND approval_status = $2`, id, string(from), string(to))
	if err != nil {
		return false, shared.WrapStore("update approval status", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List returns accounts matching filter, newest first.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	query := `SELECT ` + accountColumns + accountFrom + ` WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND p.approval_status = $` + strconv.Itoa(len(args))
	}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		query += ` AND r.role = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY p.created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.WrapStore("list accounts", err)
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, shared.WrapStore("scan account", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapStore("list accounts", err)
	}
	return out, nil
}

// CountAccounts returns the number of profiles.
func (r *PGRepository) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n); err != nil {
		return 0, shared.WrapStore("count accounts", err)
	}
	return n, nil
}

// AdminRecipients lists every admin account.
func (r *PGRepository) AdminRecipients(ctx context.Context) ([]notifications.Recipient, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.email, p.full_name
FROM user_roles r JOIN profiles p ON p.id = r.user_id WHERE r.role = 'admin'`)
	if err != nil {
		return nil, shared.WrapStore("list admins", err)
	}
	defer rows.Close()
	var out []notifications.Recipient
	for rows.Next() {
		var rcpt notifications.Recipient
		if err := rows.Scan(&rcpt.ID, &rcpt.Email, &rcpt.Name); err != nil {
			return nil, shared.WrapStore("scan admin", err)
		}
		out = append(out, rcpt)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapStore("list admins", err)
	}
	return out, nil
}

// RecipientByID resolves a single notification recipient.
func (r *PGRepository) RecipientByID(ctx context.Context, id uuid.UUID) (notifications.Recipient, error) {
	var rcpt notifications.Recipient
	err := r.pool.QueryRow(ctx, `SELECT id, email, full_name FROM profiles WHERE id = $1`, id).
		Scan(&rcpt.ID, &rcpt.Email, &rcpt.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notifications.Recipient{}, shared.ErrNotFound
		}
		return notifications.Recipient{}, shared.WrapStore("get recipient", err)
	}
	return rcpt, nil
}

// DisplayNames maps each known id to its account's full name.
func (r *PGRepository) DisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, full_name FROM profiles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, shared.WrapStore("load display names", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   uuid.UUID
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, shared.WrapStore("scan display name", err)
		}
		out[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapStore("load display names", err)
	}
	return out, nil
}

// IsApprovedStaff reports whether id is a staff account an admin approved.
func (r *PGRepository) IsApprovedStaff(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM profiles p JOIN user_roles r ON r.user_id = p.id
WHERE p.id = $1 AND r.role = 'staff' AND p.approval_status = 'approved')`, id).Scan(&ok)
	if err != nil {
		return false, shared.WrapStore("check staff", err)
	}
	return ok, nil
}

var (
	_ Repository              = (*PGRepository)(nil)
	_ notifications.Directory = (*PGRepository)(nil)
)
