package engine

import (
	"context"
	"fmt"
	"time"

	"fieldtasker/internal/domain"
	"fieldtasker/internal/repo"
	"fieldtasker/internal/stats"
)

// ProjectActivity returns the cumulative daily mapped/validated series for a
// project, one point per day from startDate (YYYY-MM-DD, project creation when
// empty) to now.
func (e Engine) ProjectActivity(ctx context.Context, projectID, startDate string) ([]domain.DailyCount, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	var start time.Time
	if startDate != "" {
		start, err = time.Parse("2006-01-02", startDate)
		if err != nil {
			return nil, fmt.Errorf("invalid start date %q, want YYYY-MM-DD", startDate)
		}
	} else {
		start, err = time.Parse(time.RFC3339, p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("project %s has malformed created_at: %w", projectID, err)
		}
	}
	entries, err := e.Repo.ListHistory(ctx, repo.HistoryFilters{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("load project history: %w", err)
	}
	return stats.DailyProgress(entries, start, e.now()), nil
}

// Contributors lists per-user contribution counts for a project, most active
// first.
func (e Engine) Contributors(ctx context.Context, projectID string) ([]domain.Contributor, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	return e.Repo.Contributors(ctx, projectID)
}

// Dashboard assembles the project summary card.
func (e Engine) Dashboard(ctx context.Context, projectID string) (domain.Dashboard, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Dashboard{}, fmt.Errorf("load project %s: %w", projectID, err)
	}
	org, err := e.Repo.GetOrganisation(ctx, p.OrgID)
	if err != nil {
		return domain.Dashboard{}, fmt.Errorf("load organisation %s: %w", p.OrgID, err)
	}
	total, err := e.Repo.CountTasks(ctx, projectID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	byStatus, err := e.Repo.CountTasksByStatus(ctx, projectID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	contributors, err := e.Repo.CountContributors(ctx, projectID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	last, err := e.Repo.LastActivity(ctx, projectID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	return domain.Dashboard{
		ProjectID:         p.ID,
		OrgName:           org.Name,
		TotalTasks:        total,
		TasksByStatus:     byStatus,
		TotalContributors: contributors,
		LastActive:        last,
	}, nil
}
