// Package history appends immutable task_history rows. Writes always happen
// inside the caller's transaction so a history row and the task mutation it
// describes commit or roll back together.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fieldtasker/internal/domain"
)

type Writer struct {
	Now func() time.Time
}

// StatusChangeText renders the legacy display sentence. The new status is the
// 6th whitespace-separated token; older consumers still parse it that way, so
// the layout must not change.
func StatusChangeText(old, new domain.TaskStatus, username string) string {
	return fmt.Sprintf("Status changed from %s to %s by: %s", old, new, username)
}

// AppendStatusChange records one accepted transition.
func (w Writer) AppendStatusChange(ctx context.Context, tx *sql.Tx, t domain.Task, newStatus domain.TaskStatus, user domain.User) (domain.HistoryEntry, error) {
	entry := domain.HistoryEntry{
		ProjectID:      t.ProjectID,
		TaskID:         t.ID,
		Action:         domain.ActionForStatusChange(newStatus),
		ActionText:     StatusChangeText(t.Status, newStatus, user.Username),
		PreviousStatus: statusPtr(t.Status),
		CurrentStatus:  statusPtr(newStatus),
		ActionDate:     w.now().UTC().Format(time.RFC3339),
		UserID:         user.ID,
		Username:       user.Username,
	}
	return w.insert(ctx, tx, entry)
}

// AppendComment records a free-form comment; no status fields are set.
func (w Writer) AppendComment(ctx context.Context, tx *sql.Tx, projectID, taskID string, user domain.User, text string) (domain.HistoryEntry, error) {
	entry := domain.HistoryEntry{
		ProjectID:  projectID,
		TaskID:     taskID,
		Action:     domain.ActionComment,
		ActionText: text,
		ActionDate: w.now().UTC().Format(time.RFC3339),
		UserID:     user.ID,
		Username:   user.Username,
	}
	return w.insert(ctx, tx, entry)
}

func (w Writer) insert(ctx context.Context, tx *sql.Tx, e domain.HistoryEntry) (domain.HistoryEntry, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO task_history(project_id,task_id,action,action_text,previous_status,current_status,action_date,user_id) VALUES (?,?,?,?,?,?,?,?)`,
		e.ProjectID, e.TaskID, string(e.Action), e.ActionText, statusValue(e.PreviousStatus), statusValue(e.CurrentStatus), e.ActionDate, e.UserID)
	if err != nil {
		return e, fmt.Errorf("append task history: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return e, nil
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func statusPtr(s domain.TaskStatus) *domain.TaskStatus {
	return &s
}

func statusValue(s *domain.TaskStatus) any {
	if s == nil {
		return nil
	}
	return string(*s)
}
