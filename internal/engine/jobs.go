package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fieldtasker/internal/domain"
)

// Background job states mirror what task-runner collaborators report.
const (
	JobPending  = "PENDING"
	JobReceived = "RECEIVED"
	JobRunning  = "RUNNING"
	JobSuccess  = "SUCCESS"
	JobFailed   = "FAILED"
)

var jobStates = map[string]bool{
	JobPending:  true,
	JobReceived: true,
	JobRunning:  true,
	JobSuccess:  true,
	JobFailed:   true,
}

// EnqueueJob records a new background job in PENDING state.
func (e Engine) EnqueueJob(ctx context.Context, projectID, name string) (domain.BackgroundJob, error) {
	if name == "" {
		return domain.BackgroundJob{}, errors.New("job name is required")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.BackgroundJob{}, fmt.Errorf("load project %s: %w", projectID, err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	j := domain.BackgroundJob{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Name:      name,
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertBackgroundJob(ctx, nil, j); err != nil {
		return j, fmt.Errorf("insert job: %w", err)
	}
	return j, nil
}

// SetJobStatus updates a job's coarse status and optional message.
func (e Engine) SetJobStatus(ctx context.Context, id, status, message string) (domain.BackgroundJob, error) {
	if !jobStates[status] {
		return domain.BackgroundJob{}, fmt.Errorf("unknown job status %q", status)
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateBackgroundJob(ctx, id, status, message, now); err != nil {
		return domain.BackgroundJob{}, fmt.Errorf("update job %s: %w", id, err)
	}
	return e.Repo.GetBackgroundJob(ctx, id)
}
