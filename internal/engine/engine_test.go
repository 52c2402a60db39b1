package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fieldtasker/internal/db"
	"fieldtasker/internal/domain"
	"fieldtasker/internal/engine"
	"fieldtasker/internal/migrate"
	"fieldtasker/internal/repo"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Project domain.Project
	Mapper  domain.User
	Checker domain.User
	Manager domain.User
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	org, err := eng.CreateOrganisation(ctx, domain.Organisation{Name: "Field Org"})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	project, err := eng.CreateProject(ctx, domain.Project{OrgID: org.ID, Name: "Village Survey"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	mapper, err := eng.RegisterUser(ctx, "alice", "mapper")
	if err != nil {
		t.Fatalf("register mapper: %v", err)
	}
	checker, err := eng.RegisterUser(ctx, "bob", "validator")
	if err != nil {
		t.Fatalf("register validator: %v", err)
	}
	manager, err := eng.RegisterUser(ctx, "carol", "project_manager")
	if err != nil {
		t.Fatalf("register manager: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Project: project, Mapper: mapper, Checker: checker, Manager: manager}
}

func (env testEnv) newTask(t *testing.T) domain.Task {
	t.Helper()
	tasks, err := env.Engine.CreateTasks(env.Ctx, env.Project.ID, []string{`{"type":"Polygon"}`})
	if err != nil {
		t.Fatalf("create tasks: %v", err)
	}
	return tasks[0]
}

func (env testEnv) apply(t *testing.T, taskID, userID string, status domain.TaskStatus) domain.Task {
	t.Helper()
	task, err := env.Engine.ApplyTransition(env.Ctx, engine.TransitionOptions{
		TaskID:    taskID,
		UserID:    userID,
		NewStatus: status,
	})
	if err != nil {
		t.Fatalf("transition to %s: %v", status, err)
	}
	return task
}

func TestMappingValidationHappyPath(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t)

	task = env.apply(t, task.ID, env.Mapper.ID, domain.StatusLockedForMapping)
	if task.LockedBy == nil || *task.LockedBy != env.Mapper.ID {
		t.Fatalf("expected lock held by mapper, got %v", task.LockedBy)
	}

	task = env.apply(t, task.ID, env.Mapper.ID, domain.StatusMapped)
	if task.LockedBy != nil {
		t.Fatalf("lock should be released on MAPPED")
	}
	if task.MappedBy == nil || *task.MappedBy != env.Mapper.ID {
		t.Fatalf("mapped_by not recorded")
	}

	task = env.apply(t, task.ID, env.Checker.ID, domain.StatusLockedForValidation)
	if task.LockedBy == nil || *task.LockedBy != env.Checker.ID {
		t.Fatalf("expected lock held by validator")
	}

	task = env.apply(t, task.ID, env.Checker.ID, domain.StatusValidated)
	if task.LockedBy != nil {
		t.Fatalf("lock should be released on VALIDATED")
	}
	if task.ValidatedBy == nil || *task.ValidatedBy != env.Checker.ID {
		t.Fatalf("validated_by not recorded")
	}
	if task.MappedBy == nil || *task.MappedBy != env.Mapper.ID {
		t.Fatalf("mapped_by should survive validation")
	}

	n, err := env.Engine.Repo.CountTaskHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("expected 4 history rows, got %d", n)
	}
}

func TestLockConflict(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t)
	env.apply(t, task.ID, env.Mapper.ID, domain.StatusLockedForMapping)

	_, err := env.Engine.ApplyTransition(env.Ctx, engine.TransitionOptions{
		TaskID:    task.ID,
		UserID:    env.Checker.ID,
		NewStatus: domain.StatusMapped,
	})
	var conflict engine.LockConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected LockConflictError, got %v", err)
	}
	if conflict.HeldBy != env.Mapper.ID {
		t.Fatalf("conflict should name the holder, got %q", conflict.HeldBy)
	}

	// The holder may proceed.
	env.apply(t, task.ID, env.Mapper.ID, domain.StatusMapped)
}

func TestInvalidTransitionRejected(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t)

	_, err := env.Engine.ApplyTransition(env.Ctx, engine.TransitionOptions{
		TaskID:    task.ID,
		UserID:    env.Checker.ID,
		NewStatus: domain.StatusValidated,
	})
	var invalid engine.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.From != domain.StatusReady || invalid.To != domain.StatusValidated {
		t.Fatalf("unexpected edge in error: %s -> %s", invalid.From, invalid.To)
	}

	// Rejected attempts leave no history behind.
	n, err := env.Engine.Repo.CountTaskHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("rejected transition wrote %d history rows", n)
	}
}

func TestUnknownStatusRejected(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t)
	_, err := env.Engine.ApplyTransition(env.Ctx, engine.TransitionOptions{
		TaskID:    task.ID,
		UserID:    env.Mapper.ID,
		NewStatus: "ARCHIVED",
	})
	var invalid engine.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError for unknown status, got %v", err)
	}
}

func TestInvalidationClearsMapper(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t)
	env.apply(t, task.ID, env.Mapper.ID, domain.StatusLockedForMapping)
	env.apply(t, task.ID, env.Mapper.ID, domain.StatusMapped)
	env.apply(t, task.ID, env.Checker.ID, domain.StatusLockedForValidation)

	task = env.apply(t, task.ID, env.Checker.ID, domain.StatusInvalidated)
	if task.MappedBy != nil {
		t.Fatalf("mapped_by should be cleared on INVALIDATED, got %v", task.MappedBy)
	}
	if task.LockedBy != nil {
		t.Fatalf("lock should be released on INVALIDATED")
	}
}

func TestOverrideLock(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t)
	env.apply(t, task.ID, env.Mapper.ID, domain.StatusLockedForMapping)

	// Without the override the manager is rejected like anyone else.
	_, err := env.Engine.ApplyTransition(env.Ctx, engine.TransitionOptions{
		TaskID:    task.ID,
		UserID:    env.Manager.ID,
		NewStatus: domain.StatusReady,
	})
	var conflict engine.LockConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected LockConflictError, got %v", err)
	}

	task, err = env.Engine.ApplyTransition(env.Ctx, engine.TransitionOptions{
		TaskID:       task.ID,
		UserID:       env.Manager.ID,
		NewStatus:    domain.StatusReady,
		OverrideLock: true,
	})
	if err != nil {
		t.Fatalf("override release: %v", err)
	}
	if task.Status != domain.StatusReady || task.LockedBy != nil {
		t.Fatalf("task not released: %s %v", task.Status, task.LockedBy)
	}
}

func TestHistoryActionText(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t)
	env.apply(t, task.ID, env.Mapper.ID, domain.StatusLockedForMapping)

	entries, err := env.Engine.Repo.ListHistory(env.Ctx, repo.HistoryFilters{TaskID: task.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ActionText != "Status changed from READY to LOCKED_FOR_MAPPING by: alice" {
		t.Fatalf("unexpected action text %q", e.ActionText)
	}
	// Older consumers take the new status as the 6th token.
	tokens := strings.Fields(e.ActionText)
	if tokens[5] != "LOCKED_FOR_MAPPING" {
		t.Fatalf("6th token is %q", tokens[5])
	}
	if e.PreviousStatus == nil || *e.PreviousStatus != domain.StatusReady {
		t.Fatalf("previous_status not recorded")
	}
	if e.CurrentStatus == nil || *e.CurrentStatus != domain.StatusLockedForMapping {
		t.Fatalf("current_status not recorded")
	}
	if e.Action != domain.ActionLockedForMapping {
		t.Fatalf("unexpected action %s", e.Action)
	}
}

func TestCommentDoesNotTouchStatus(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t)
	env.apply(t, task.ID, env.Mapper.ID, domain.StatusLockedForMapping)

	entry, err := env.Engine.RecordComment(env.Ctx, env.Project.ID, task.ID, env.Checker.ID, "boundary looks off")
	if err != nil {
		t.Fatalf("record comment: %v", err)
	}
	if entry.Action != domain.ActionComment || entry.CurrentStatus != nil {
		t.Fatalf("comment entry malformed: %+v", entry)
	}

	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusLockedForMapping || got.LockedBy == nil {
		t.Fatalf("comment changed task state: %s", got.Status)
	}
}

func TestConcurrentClaimSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, uid := range []string{env.Mapper.ID, env.Checker.ID} {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			_, errs[i] = env.Engine.ApplyTransition(env.Ctx, engine.TransitionOptions{
				TaskID:    task.ID,
				UserID:    uid,
				NewStatus: domain.StatusLockedForMapping,
			})
		}(i, uid)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			var conflict engine.LockConflictError
			var invalid engine.InvalidTransitionError
			if !errors.As(err, &conflict) && !errors.As(err, &invalid) {
				t.Fatalf("loser got unexpected error: %v", err)
			}
			losses++
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected exactly one winner, got %d wins %d losses", wins, losses)
	}

	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusLockedForMapping || got.LockedBy == nil {
		t.Fatalf("task not locked after race: %s", got.Status)
	}
	n, err := env.Engine.Repo.CountTaskHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 history row after race, got %d", n)
	}
}

func TestTransitionTableIsTotal(t *testing.T) {
	table := engine.DefaultTransitions()
	if err := table.Validate(); err != nil {
		t.Fatal(err)
	}
	if table.Allowed(domain.StatusReady, domain.StatusValidated) {
		t.Fatal("READY -> VALIDATED must not be allowed")
	}
	if !table.Allowed(domain.StatusBad, domain.StatusReady) {
		t.Fatal("BAD -> READY must be allowed")
	}
	if table.Allowed(domain.StatusSplit, domain.StatusLockedForMapping) {
		t.Fatal("SPLIT only returns to READY")
	}
}
