package repo

import (
	"context"
	"strings"

	"fieldtasker/internal/domain"
)

// HistoryFilters narrows task_history reads. Entries are immutable; there are
// deliberately no update or delete operations on this table.
type HistoryFilters struct {
	ProjectID string
	TaskID    string
	Action    string
	Since     string
	Limit     int
	CursorID  int64
}

func (r Repo) ListHistory(ctx context.Context, f HistoryFilters) ([]domain.HistoryEntry, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "h.project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "h.task_id=?")
		args = append(args, f.TaskID)
	}
	if f.Action != "" {
		clauses = append(clauses, "h.action=?")
		args = append(args, f.Action)
	}
	if f.Since != "" {
		clauses = append(clauses, "h.action_date>=?")
		args = append(args, f.Since)
	}
	if f.CursorID > 0 {
		clauses = append(clauses, "h.id<?")
		args = append(args, f.CursorID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT h.id,h.project_id,h.task_id,h.action,h.action_text,h.previous_status,h.current_status,h.action_date,h.user_id,COALESCE(u.username,'')
FROM task_history h LEFT JOIN users u ON u.id=h.user_id ` + where + ` ORDER BY h.id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var prev, cur *string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.TaskID, &e.Action, &e.ActionText, &prev, &cur, &e.ActionDate, &e.UserID, &e.Username); err != nil {
			return nil, err
		}
		if prev != nil {
			s := domain.TaskStatus(*prev)
			e.PreviousStatus = &s
		}
		if cur != nil {
			s := domain.TaskStatus(*cur)
			e.CurrentStatus = &s
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) CountTaskHistory(ctx context.Context, taskID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM task_history WHERE task_id=?`, taskID).Scan(&n)
	return n, err
}

// Contributors aggregates history rows into per-user contribution counts,
// ordered by most active first.
func (r Repo) Contributors(ctx context.Context, projectID string) ([]domain.Contributor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT h.user_id, COALESCE(u.username,''), count(*)
FROM task_history h LEFT JOIN users u ON u.id=h.user_id
WHERE h.project_id=? GROUP BY h.user_id ORDER BY count(*) DESC, h.user_id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contributor
	for rows.Next() {
		var c domain.Contributor
		if err := rows.Scan(&c.UserID, &c.Username, &c.Contributions); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) CountContributors(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(DISTINCT user_id) FROM task_history WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}

// LastActivity returns the most recent action_date for a project, or "" when
// the project has no history yet.
func (r Repo) LastActivity(ctx context.Context, projectID string) (string, error) {
	var ts *string
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(action_date) FROM task_history WHERE project_id=?`, projectID).Scan(&ts)
	if err != nil {
		return "", err
	}
	if ts == nil {
		return "", nil
	}
	return *ts, nil
}

// HistoryAfter returns history rows with IDs greater than the cursor in
// ascending order; used by the webhook dispatcher.
func (r Repo) HistoryAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,project_id,task_id,action,action_text,previous_status,current_status,action_date,user_id,'' FROM task_history ` + where + ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var prev, cur *string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.TaskID, &e.Action, &e.ActionText, &prev, &cur, &e.ActionDate, &e.UserID, &e.Username); err != nil {
			return nil, err
		}
		if prev != nil {
			s := domain.TaskStatus(*prev)
			e.PreviousStatus = &s
		}
		if cur != nil {
			s := domain.TaskStatus(*cur)
			e.CurrentStatus = &s
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestHistoryID returns the most recent history row ID for a project.
func (r Repo) LatestHistoryID(ctx context.Context, projectID string) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM task_history WHERE project_id=?`, projectID).Scan(&id)
	return id, err
}
