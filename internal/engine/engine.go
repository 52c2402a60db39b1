// Package engine is the task lifecycle engine: it validates and applies
// status transitions, enforces the single-holder locking invariant, and
// appends one immutable history row per accepted transition.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldtasker/internal/domain"
	"fieldtasker/internal/history"
	"fieldtasker/internal/repo"
)

type Engine struct {
	DB          *sql.DB
	Repo        repo.Repo
	History     history.Writer
	Transitions TransitionTable
	Now         func() time.Time

	locks *taskLocks
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:          db,
		Repo:        repo.Repo{DB: db},
		History:     history.Writer{},
		Transitions: DefaultTransitions(),
		Now:         time.Now,
		locks:       &taskLocks{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// taskLocks serializes transition attempts per task id. The storage-level
// compare-and-swap still guards against writers outside this process.
type taskLocks struct {
	mu sync.Map // task id -> *sync.Mutex
}

func (l *taskLocks) acquire(taskID string) func() {
	v, _ := l.mu.LoadOrStore(taskID, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// TransitionOptions are the parameters of one transition attempt.
type TransitionOptions struct {
	TaskID    string
	UserID    string
	NewStatus domain.TaskStatus
	// OverrideLock skips the lock-holder check. The web layer restricts it to
	// project managers and admins; the engine only honours the flag.
	OverrideLock bool
}

// ApplyTransition moves a task to a new lifecycle state. On success exactly
// one history row is appended and the task row is updated in the same
// transaction; on any failure nothing is persisted.
func (e Engine) ApplyTransition(ctx context.Context, opts TransitionOptions) (domain.Task, error) {
	newStatus, err := domain.ParseTaskStatus(string(opts.NewStatus))
	if err != nil {
		return domain.Task{}, InvalidTransitionError{To: opts.NewStatus}
	}
	user, err := e.Repo.GetUser(ctx, opts.UserID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("load user %s: %w", opts.UserID, err)
	}

	release := e.locks.acquire(opts.TaskID)
	defer release()

	e.History.Now = e.Now
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, PersistenceError{Err: err}
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, opts.TaskID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("load task %s: %w", opts.TaskID, err)
	}

	if t.Locked() && !opts.OverrideLock {
		if t.LockedBy == nil || *t.LockedBy != user.ID {
			heldBy := ""
			if t.LockedBy != nil {
				heldBy = *t.LockedBy
			}
			return domain.Task{}, LockConflictError{TaskID: t.ID, HeldBy: heldBy}
		}
	}
	if !e.Transitions.Allowed(t.Status, newStatus) {
		return domain.Task{}, InvalidTransitionError{From: t.Status, To: newStatus}
	}

	if _, err := e.History.AppendStatusChange(ctx, tx, t, newStatus, user); err != nil {
		return domain.Task{}, PersistenceError{Err: err}
	}

	prior := t.Status
	updated := t
	updated.Status = newStatus
	if newStatus == domain.StatusLockedForMapping || newStatus == domain.StatusLockedForValidation {
		updated.LockedBy = &user.ID
	} else {
		updated.LockedBy = nil
	}
	switch newStatus {
	case domain.StatusMapped:
		updated.MappedBy = &user.ID
	case domain.StatusValidated:
		updated.ValidatedBy = &user.ID
	case domain.StatusInvalidated:
		// Returned to the mapping pool; the previous mapping no longer counts.
		updated.MappedBy = nil
	}
	updated.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	n, err := e.Repo.UpdateTaskStatusCAS(ctx, tx, updated, prior)
	if err != nil {
		return domain.Task{}, PersistenceError{Err: err}
	}
	if n == 0 {
		// A concurrent transition won the race. Roll back and classify
		// against the fresh state so the caller sees why it lost.
		tx.Rollback()
		return domain.Task{}, e.classifyLostRace(ctx, opts.TaskID, user.ID, newStatus, opts.OverrideLock)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, PersistenceError{Err: err}
	}
	return updated, nil
}

func (e Engine) classifyLostRace(ctx context.Context, taskID, userID string, requested domain.TaskStatus, overrideLock bool) error {
	fresh, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return PersistenceError{Err: err}
	}
	if fresh.Locked() && !overrideLock && (fresh.LockedBy == nil || *fresh.LockedBy != userID) {
		heldBy := ""
		if fresh.LockedBy != nil {
			heldBy = *fresh.LockedBy
		}
		return LockConflictError{TaskID: taskID, HeldBy: heldBy}
	}
	return InvalidTransitionError{From: fresh.Status, To: requested}
}

// RecordComment appends a COMMENT history row; status and lock are untouched
// and no transition-table check applies.
func (e Engine) RecordComment(ctx context.Context, projectID, taskID, userID, text string) (domain.HistoryEntry, error) {
	if text == "" {
		return domain.HistoryEntry{}, errors.New("comment text is required")
	}
	user, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if t.ProjectID != projectID {
		return domain.HistoryEntry{}, fmt.Errorf("task %s: %w", taskID, repo.ErrNotFound)
	}
	e.History.Now = e.Now
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.HistoryEntry{}, PersistenceError{Err: err}
	}
	defer tx.Rollback()
	entry, err := e.History.AppendComment(ctx, tx, projectID, taskID, user, text)
	if err != nil {
		return domain.HistoryEntry{}, PersistenceError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.HistoryEntry{}, PersistenceError{Err: err}
	}
	return entry, nil
}

// CreateOrganisation registers a new organisation.
func (e Engine) CreateOrganisation(ctx context.Context, o domain.Organisation) (domain.Organisation, error) {
	if o.Name == "" {
		return o, errors.New("name is required")
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Slug == "" {
		o.Slug = slugify(o.Name)
	}
	o.CreatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return o, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertOrganisation(ctx, tx, o); err != nil {
		return o, fmt.Errorf("insert organisation: %w", err)
	}
	return o, tx.Commit()
}

// CreateProject registers a project under an organisation.
func (e Engine) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	if p.Name == "" {
		return p, errors.New("name is required")
	}
	if _, err := e.Repo.GetOrganisation(ctx, p.OrgID); err != nil {
		return p, fmt.Errorf("load organisation %s: %w", p.OrgID, err)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = "active"
	}
	p.CreatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return p, fmt.Errorf("insert project: %w", err)
	}
	return p, tx.Commit()
}

// CreateTasks inserts a batch of READY tasks for a project, one per outline.
// The splitter collaborator calls this once after dividing the boundary;
// tasks receive sequential per-project indexes.
func (e Engine) CreateTasks(ctx context.Context, projectID string, outlines []string) ([]domain.Task, error) {
	if len(outlines) == 0 {
		return nil, errors.New("at least one task outline is required")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	next, err := e.Repo.NextTaskIndex(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	tasks := make([]domain.Task, 0, len(outlines))
	for i, outline := range outlines {
		t := domain.Task{
			ID:             uuid.New().String(),
			ProjectID:      projectID,
			Index:          next + i,
			Status:         domain.StatusReady,
			OutlineGeoJSON: outline,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return nil, fmt.Errorf("insert task %d: %w", t.Index, err)
		}
		tasks = append(tasks, t)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// RegisterUser creates a user with the given role.
func (e Engine) RegisterUser(ctx context.Context, username, role string) (domain.User, error) {
	if username == "" {
		return domain.User{}, errors.New("username is required")
	}
	if role == "" {
		role = "mapper"
	}
	u := domain.User{
		ID:        uuid.New().String(),
		Username:  username,
		Role:      role,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertUser(ctx, nil, u); err != nil {
		return u, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func slugify(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '-')
		}
	}
	return string(out)
}
