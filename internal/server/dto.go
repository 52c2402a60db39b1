package server

import (
	"fieldtasker/internal/domain"
)

// Request payloads

type CreateOrganisationRequest struct {
	Name        string  `json:"name"`
	Slug        *string `json:"slug,omitempty"`
	Description *string `json:"description,omitempty"`
	URL         *string `json:"url,omitempty"`
}

type CreateProjectRequest struct {
	OrgID          string  `json:"org_id"`
	Name           string  `json:"name"`
	Description    *string `json:"description,omitempty"`
	OutlineGeoJSON *string `json:"outline_geojson,omitempty"`
}

type UpdateProjectRequest struct {
	Status      *string `json:"status,omitempty" enum:"active,archived"`
	Description *string `json:"description,omitempty"`
}

type CreateTasksRequest struct {
	Outlines []string `json:"outlines"`
}

type SetTaskStatusRequest struct {
	Status       string `json:"status" enum:"READY,LOCKED_FOR_MAPPING,MAPPED,LOCKED_FOR_VALIDATION,VALIDATED,INVALIDATED,BAD,SPLIT"`
	OverrideLock bool   `json:"override_lock,omitempty"`
}

type CommentRequest struct {
	Text string `json:"text"`
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Role     string `json:"role,omitempty" enum:"mapper,validator,project_manager,admin"`
}

type CreateJobRequest struct {
	Name string `json:"name"`
}

type SetJobStatusRequest struct {
	Status  string `json:"status" enum:"PENDING,RECEIVED,RUNNING,SUCCESS,FAILED"`
	Message string `json:"message,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	Username string `json:"username"`
}

// Response payloads

type OrganisationResponse struct {
	Organisation domain.Organisation `json:"organisation"`
}

type OrganisationListResponse struct {
	Organisations []domain.Organisation `json:"organisations"`
}

type ProjectResponse struct {
	Project domain.Project `json:"project"`
}

type ProjectListResponse struct {
	Projects []domain.Project `json:"projects"`
}

type TaskResponse struct {
	Task domain.Task `json:"task"`
}

type TaskListResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type HistoryResponse struct {
	Entries []domain.HistoryEntry `json:"entries"`
}

type CommentResponse struct {
	Entry domain.HistoryEntry `json:"entry"`
}

type UserResponse struct {
	User domain.User `json:"user"`
}

type UserListResponse struct {
	Users []domain.User `json:"users"`
}

type JobResponse struct {
	Job domain.BackgroundJob `json:"job"`
}

type JobListResponse struct {
	Jobs []domain.BackgroundJob `json:"jobs"`
}

type ActivityResponse struct {
	Days []domain.DailyCount `json:"days"`
}

type ContributorsResponse struct {
	Contributors []domain.Contributor `json:"contributors"`
}

type DashboardResponse struct {
	Dashboard domain.Dashboard `json:"dashboard"`
}

type APIKeyResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}
