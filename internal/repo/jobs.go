package repo

import (
	"context"
	"database/sql"

	"fieldtasker/internal/domain"
)

// Background jobs are the coarse status records long-running collaborators
// (tile generation, form generation) report through. The lifecycle engine
// never blocks on them.

func (r Repo) InsertBackgroundJob(ctx context.Context, tx *sql.Tx, j domain.BackgroundJob) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO background_jobs(id,project_id,name,status,message,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		j.ID, j.ProjectID, j.Name, j.Status, nullable(j.Message), j.CreatedAt, j.UpdatedAt)
	return err
}

func (r Repo) GetBackgroundJob(ctx context.Context, id string) (domain.BackgroundJob, error) {
	var j domain.BackgroundJob
	var msg sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,status,message,created_at,updated_at FROM background_jobs WHERE id=?`, id).
		Scan(&j.ID, &j.ProjectID, &j.Name, &j.Status, &msg, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	j.Message = msg.String
	return j, nil
}

func (r Repo) UpdateBackgroundJob(ctx context.Context, id, status, message, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE background_jobs SET status=?, message=?, updated_at=? WHERE id=?`,
		status, nullable(message), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListBackgroundJobs(ctx context.Context, projectID string) ([]domain.BackgroundJob, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,name,status,message,created_at,updated_at FROM background_jobs WHERE project_id=? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BackgroundJob
	for rows.Next() {
		var j domain.BackgroundJob
		var msg sql.NullString
		if err := rows.Scan(&j.ID, &j.ProjectID, &j.Name, &j.Status, &msg, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		j.Message = msg.String
		res = append(res, j)
	}
	return res, rows.Err()
}
