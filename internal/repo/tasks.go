package repo

import (
	"context"
	"database/sql"
	"strings"

	"fieldtasker/internal/domain"
)

const taskColumns = `id,project_id,idx,status,locked_by,mapped_by,validated_by,outline_geojson,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var lockedBy, mappedBy, validatedBy, outline sql.NullString
	var status string
	err := scan(&t.ID, &t.ProjectID, &t.Index, &status, &lockedBy, &mappedBy, &validatedBy, &outline, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Status = domain.TaskStatus(status)
	if lockedBy.Valid {
		t.LockedBy = &lockedBy.String
	}
	if mappedBy.Valid {
		t.MappedBy = &mappedBy.String
	}
	if validatedBy.Valid {
		t.ValidatedBy = &validatedBy.String
	}
	t.OutlineGeoJSON = outline.String
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Index, string(t.Status), nullableStringPtr(t.LockedBy), nullableStringPtr(t.MappedBy),
		nullableStringPtr(t.ValidatedBy), nullable(t.OutlineGeoJSON), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

// UpdateTaskStatusCAS writes the task's lifecycle fields keyed on the status
// the caller read before mutating. A zero affected-row count means another
// transition landed first; the caller decides how to surface the conflict.
func (r Repo) UpdateTaskStatusCAS(ctx context.Context, tx *sql.Tx, t domain.Task, expectedPrior domain.TaskStatus) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, locked_by=?, mapped_by=?, validated_by=?, updated_at=? WHERE id=? AND status=?`,
		string(t.Status), nullableStringPtr(t.LockedBy), nullableStringPtr(t.MappedBy), nullableStringPtr(t.ValidatedBy),
		t.UpdatedAt, t.ID, string(expectedPrior))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type TaskFilters struct {
	ProjectID       string
	Status          string
	LockedBy        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.LockedBy != "" {
		clauses = append(clauses, "locked_by=?")
		args = append(args, f.LockedBy)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasks(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}

func (r Repo) CountTasksByStatus(ctx context.Context, projectID string) (map[domain.TaskStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.TaskStatus]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[domain.TaskStatus(status)] = count
	}
	return res, rows.Err()
}

// NextTaskIndex returns the next free per-project task index.
func (r Repo) NextTaskIndex(ctx context.Context, tx *sql.Tx, projectID string) (int, error) {
	var max sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT MAX(idx) FROM tasks WHERE project_id=?`, projectID).Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64) + 1, nil
}
