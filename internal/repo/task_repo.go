package repo

import (
	"context"

	dom "github.com/muhamad-mamoun/full-stack-todo-list-app/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskPatch is a partial update: nil fields are left unchanged.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *dom.Priority
	Completed   *bool
}

// TaskRepo provides task persistence. Every operation is scoped by the
// owning user id; a row belonging to someone else behaves exactly like a
// missing row.
type TaskRepo interface {
	Create(ctx context.Context, t dom.Task) (dom.Task, error)
	GetByID(ctx context.Context, userID, id int64) (dom.Task, error)
	List(ctx context.Context, userID int64) ([]dom.Task, error)
	Update(ctx context.Context, userID, id int64, patch TaskPatch) (dom.Task, error)
	SoftDelete(ctx context.Context, userID, id int64) error
	ToggleCompleted(ctx context.Context, userID, id int64) (dom.Task, error)
}

type PGTaskRepo struct {
	db *pgxpool.Pool
}

func NewPGTaskRepo(db *pgxpool.Pool) *PGTaskRepo {
	return &PGTaskRepo{db: db}
}

func (r *PGTaskRepo) Create(ctx context.Context, t dom.Task) (dom.Task, error) {
	query := `
		INSERT INTO tasks (user_id, title, description, priority)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, title, description, priority, completed, created_at, updated_at, deleted_at`
	var out dom.Task
	err := r.db.QueryRow(ctx, query, t.UserID, t.Title, t.Description, string(t.Priority)).Scan(
		&out.ID, &out.UserID, &out.Title, &out.Description, &out.Priority, &out.Completed,
		&out.CreatedAt, &out.UpdatedAt, &out.DeletedAt,
	)
	return out, err
}

func (r *PGTaskRepo) GetByID(ctx context.Context, userID, id int64) (dom.Task, error) {
	query := `
		SELECT id, user_id, title, description, priority, completed, created_at, updated_at, deleted_at
		FROM tasks WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	var t dom.Task
	err := r.db.QueryRow(ctx, query, id, userID).Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority, &t.Completed,
		&t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	return t, err
}

func (r *PGTaskRepo) List(ctx context.Context, userID int64) ([]dom.Task, error) {
	query := `
		SELECT id, user_id, title, description, priority, completed, created_at, updated_at, deleted_at
		FROM tasks WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []dom.Task
	for rows.Next() {
		var t dom.Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority, &t.Completed,
			&t.CreatedAt, &t.UpdatedAt, &t.DeletedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Update applies the patch in a single conditional statement. COALESCE keeps
// unset fields; the id+user_id predicate makes the ownership check and the
// mutation one atomic round trip, so a concurrent delete cannot slip between
// a check and a write.
func (r *PGTaskRepo) Update(ctx context.Context, userID, id int64, patch TaskPatch) (dom.Task, error) {
	var prio *string
	if patch.Priority != nil {
		s := string(*patch.Priority)
		prio = &s
	}
	query := `
		UPDATE tasks SET
			title       = COALESCE($3, title),
			description = COALESCE($4, description),
			priority    = COALESCE($5, priority),
			completed   = COALESCE($6, completed),
			updated_at  = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		RETURNING id, user_id, title, description, priority, completed, created_at, updated_at, deleted_at`
	var t dom.Task
	err := r.db.QueryRow(ctx, query, id, userID, patch.Title, patch.Description, prio, patch.Completed).Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority, &t.Completed,
		&t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	return t, err
}

// SoftDelete marks the row deleted. Reports pgx.ErrNoRows when nothing
// matched, so a repeat delete (or someone else's task) reads as not found.
func (r *PGTaskRepo) SoftDelete(ctx context.Context, userID, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tasks SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ToggleCompleted flips the completion flag in one statement.
func (r *PGTaskRepo) ToggleCompleted(ctx context.Context, userID, id int64) (dom.Task, error) {
	query := `
		UPDATE tasks SET completed = NOT completed, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		RETURNING id, user_id, title, description, priority, completed, created_at, updated_at, deleted_at`
	var t dom.Task
	err := r.db.QueryRow(ctx, query, id, userID).Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority, &t.Completed,
		&t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	return t, err
}
