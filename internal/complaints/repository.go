package complaints

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brodesk/brodesk/internal/platform/db"
	"github.com/brodesk/brodesk/internal/shared"
)

// ListFilter narrows List. Nil fields match everything.
type ListFilter struct {
	StudentID  *uuid.UUID
	AssignedTo *uuid.UUID
}

// Repository defines complaint persistence.
type Repository interface {
	Insert(ctx context.Context, studentID uuid.UUID, in SubmitInput) (Complaint, error)
	Get(ctx context.Context, id uuid.UUID) (Complaint, error)
	Assign(ctx context.Context, id, staffID uuid.UUID) (Complaint, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]Complaint, error)
	CountByStatus(ctx context.Context, filter ListFilter) (map[Status]int, error)
	CountAssigned(ctx context.Context, staffIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const complaintColumns = `id, student_id, title, description, category, priority, status, assigned_to, created_at, updated_at`

func scanComplaint(row pgx.Row) (Complaint, error) {
	var c Complaint
	err := row.Scan(&c.ID, &c.StudentID, &c.Title, &c.Description, &c.Category,
		&c.Priority, &c.Status, &c.AssignedTo, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *PGRepository) Insert(ctx context.Context, studentID uuid.UUID, in SubmitInput) (Complaint, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO complaints (student_id, title, description, category, priority)
VALUES ($1, $2, $3, $4, $5) RETURNING `+complaintColumns,
		studentID, in.Title, in.Description, in.Category, in.Priority)
	c, err := scanComplaint(row)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Complaint{}, shared.NewValidationError("category", "Please select a valid category")
		}
		return Complaint{}, shared.WrapStore("insert complaint", err)
	}
	return c, nil
}

func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (Complaint, error) {
	c, err := scanComplaint(r.pool.QueryRow(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Complaint{}, shared.ErrNotFound
		}
		return Complaint{}, shared.WrapStore("get complaint", err)
	}
	return c, nil
}

func (r *PGRepository) Assign(ctx context.Context, id, staffID uuid.UUID) (Complaint, error) {
	row := r.pool.QueryRow(ctx, `UPDATE complaints SET assigned_to = $2, updated_at = NOW()
WHERE id = $1 RETURNING `+complaintColumns, id, staffID)
	c, err := scanComplaint(row)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return Complaint{}, shared.ErrNotFound
		case db.IsForeignKeyViolation(err):
			return Complaint{}, shared.NewValidationError("staff_id", "Staff member not found")
		}
		return Complaint{}, shared.WrapStore("assign complaint", err)
	}
	return c, nil
}

func (r *PGRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE complaints SET status = $3, updated_at = NOW()
WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, shared.WrapStore("update complaint status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func where(filter ListFilter) (string, []any) {
	clause := ` WHERE 1=1`
	var args []any
	if filter.StudentID != nil {
		args = append(args, *filter.StudentID)
		clause += ` AND student_id = $` + strconv.Itoa(len(args))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clause += ` AND assigned_to = $` + strconv.Itoa(len(args))
	}
	return clause, args
}

func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Complaint, error) {
	clause, args := where(filter)
	rows, err := r.pool.Query(ctx, `SELECT `+complaintColumns+` FROM complaints`+clause+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, shared.WrapStore("list complaints", err)
	}
	defer rows.Close()
	var out []Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, shared.WrapStore("scan complaint", err)
		}
		out = append(out, c)
	}
	return out, shared.WrapStore("list complaints", rows.Err())
}

func (r *PGRepository) CountByStatus(ctx context.Context, filter ListFilter) (map[Status]int, error) {
	clause, args := where(filter)
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM complaints`+clause+` GROUP BY status`, args...)
	if err != nil {
		return nil, shared.WrapStore("count complaints", err)
	}
	defer rows.Close()
	counts := make(map[Status]int, len(lifecycle))
	for rows.Next() {
		var (
			status Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, shared.WrapStore("scan complaint count", err)
		}
		counts[status] = n
	}
	return counts, shared.WrapStore("count complaints", rows.Err())
}

// CountAssigned returns the number of complaints assigned to each staff id.
func (r *PGRepository) CountAssigned(ctx context.Context, staffIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(staffIDs))
	if len(staffIDs) == 0 {
		return counts, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT assigned_to, COUNT(*) FROM complaints
WHERE assigned_to = ANY($1) GROUP BY assigned_to`, staffIDs)
	if err != nil {
		return nil, shared.WrapStore("count assignments", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id uuid.UUID
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, shared.WrapStore("scan assignment count", err)
		}
		counts[id] = n
	}
	return counts, shared.WrapStore("count assignments", rows.Err())
}
