// Package server exposes the task lifecycle API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fieldtasker/internal/auth"
	"fieldtasker/internal/config"
	"fieldtasker/internal/domain"
	"fieldtasker/internal/engine"
	"fieldtasker/internal/metrics"
	"fieldtasker/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Webhooks []config.WebhookConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"task_locked"`
	Message string         `json:"message" example:"task t-1 is locked by another user"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the FieldTasker API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are the client's fault.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger)
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	router.Handle("/metrics", metrics.Handler())
	hcfg := huma.DefaultConfig("FieldTasker API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerOrganisations(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerHistory(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerJobs(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerDevAuth(group, cfg.Engine, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine, cfg.Webhooks)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var lce engine.LockConflictError
	if errors.As(err, &lce) {
		return newAPIError(http.StatusForbidden, "task_locked", err.Error(), map[string]any{"held_by": lce.HeldBy})
	}
	var ite engine.InvalidTransitionError
	if errors.As(err, &ite) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), map[string]any{
			"from": string(ite.From),
			"to":   string(ite.To),
		})
	}
	var pe engine.PersistenceError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusServiceUnavailable, "storage_unavailable", "could not persist change", nil)
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"capability": fe.Capability})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "invalid_transition"
	case http.StatusServiceUnavailable:
		return "storage_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// currentUser resolves the authenticated principal to a stored user.
func currentUser(ctx context.Context, e engine.Engine) (domain.User, huma.StatusError) {
	userID, authErr := userIDFromContext(ctx)
	if authErr != nil {
		return domain.User{}, authErr
	}
	user, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, newAPIError(http.StatusUnauthorized, "unauthorized", "unknown user", nil)
		}
		return domain.User{}, handleError(err)
	}
	return user, nil
}

func requireProjectManagement(ctx context.Context, e engine.Engine) huma.StatusError {
	user, authErr := currentUser(ctx, e)
	if authErr != nil {
		return authErr
	}
	if !auth.CanManageProjects(user.Role) {
		return handleError(auth.ForbiddenError{Capability: "manage_projects"})
	}
	return nil
}

// isValidationStatus reports whether moving to status is part of the
// validation flow, restricted to validator-capable roles.
func isValidationStatus(status domain.TaskStatus) bool {
	switch status {
	case domain.StatusLockedForValidation, domain.StatusValidated, domain.StatusInvalidated:
		return true
	}
	return false
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>FieldTasker API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerOrganisations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-organisation",
		Method:        http.MethodPost,
		Path:          "/organisations",
		Summary:       "Create organisation",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateOrganisationRequest `json:"body"`
	}) (*struct {
		Body OrganisationResponse `json:"body"`
	}, error) {
		if err := requireProjectManagement(ctx, e); err != nil {
			return nil, err
		}
		org := domain.Organisation{Name: input.Body.Name}
		if input.Body.Slug != nil {
			org.Slug = *input.Body.Slug
		}
		if input.Body.Description != nil {
			org.Description = *input.Body.Description
		}
		if input.Body.URL != nil {
			org.URL = *input.Body.URL
		}
		created, err := e.CreateOrganisation(ctx, org)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrganisationResponse `json:"body"`
		}{Body: OrganisationResponse{Organisation: created}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-organisations",
		Method:      http.MethodGet,
		Path:        "/organisations",
		Summary:     "List organisations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body OrganisationListResponse `json:"body"`
	}, error) {
		orgs, err := e.Repo.ListOrganisations(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrganisationListResponse `json:"body"`
		}{Body: OrganisationListResponse{Organisations: orgs}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-organisation",
		Method:      http.MethodGet,
		Path:        "/organisations/{org_id}",
		Summary:     "Get organisation",
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body OrganisationResponse `json:"body"`
	}, error) {
		org, err := e.Repo.GetOrganisation(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrganisationResponse `json:"body"`
		}{Body: OrganisationResponse{Organisation: org}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if err := requireProjectManagement(ctx, e); err != nil {
			return nil, err
		}
		p := domain.Project{OrgID: input.Body.OrgID, Name: input.Body.Name}
		if input.Body.Description != nil {
			p.Description = *input.Body.Description
		}
		if input.Body.OutlineGeoJSON != nil {
			p.OutlineGeoJSON = *input.Body.OutlineGeoJSON
		}
		created, err := e.CreateProject(ctx, p)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: ProjectResponse{Project: created}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, input *struct {
		OrgID  string `query:"org_id"`
		Status string `query:"status"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body ProjectListResponse `json:"body"`
	}, error) {
		projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{
			OrgID:  input.OrgID,
			Status: input.Status,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectListResponse `json:"body"`
		}{Body: ProjectListResponse{Projects: projects}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: ProjectResponse{Project: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if err := requireProjectManagement(ctx, e); err != nil {
			return nil, err
		}
		status := ""
		if input.Body.Status != nil {
			status = *input.Body.Status
		}
		if err := e.Repo.UpdateProject(ctx, input.ProjectID, status, input.Body.Description); err != nil {
			return nil, handleError(err)
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: ProjectResponse{Project: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project and its tasks",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if err := requireProjectManagement(ctx, e); err != nil {
			return nil, err
		}
		if err := e.Repo.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-tasks",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create tasks from split outlines",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      CreateTasksRequest `json:"body"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		if err := requireProjectManagement(ctx, e); err != nil {
			return nil, err
		}
		tasks, err := e.CreateTasks(ctx, input.ProjectID, input.Body.Outlines)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{Tasks: tasks}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List project tasks",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Status    string `query:"status"`
		LockedBy  string `query:"locked_by"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			ProjectID: input.ProjectID,
			Status:    input.Status,
			LockedBy:  input.LockedBy,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{Tasks: tasks}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: TaskResponse{Task: t}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-status",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Apply a lifecycle transition",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string               `path:"task_id"`
		Body   SetTaskStatusRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		user, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.OverrideLock && !auth.CanOverrideLock(user.Role) {
			return nil, handleError(auth.ForbiddenError{Capability: "override_lock"})
		}
		if isValidationStatus(domain.TaskStatus(input.Body.Status)) && !auth.CanValidate(user.Role) {
			return nil, handleError(auth.ForbiddenError{Capability: "validate"})
		}
		t, err := e.ApplyTransition(ctx, engine.TransitionOptions{
			TaskID:       input.TaskID,
			UserID:       user.ID,
			NewStatus:    domain.TaskStatus(input.Body.Status),
			OverrideLock: input.Body.OverrideLock,
		})
		if err != nil {
			var lce engine.LockConflictError
			var ite engine.InvalidTransitionError
			switch {
			case errors.As(err, &lce):
				metrics.LockConflictsTotal.Inc()
			case errors.As(err, &ite):
				metrics.InvalidTransitionsTotal.Inc()
			}
			return nil, handleError(err)
		}
		metrics.TransitionsTotal.WithLabelValues(string(t.Status)).Inc()
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: TaskResponse{Task: t}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "comment-task",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/comment",
		Summary:       "Comment on a task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TaskID string         `path:"task_id"`
		Body   CommentRequest `json:"body"`
	}) (*struct {
		Body CommentResponse `json:"body"`
	}, error) {
		user, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		entry, err := e.RecordComment(ctx, t.ProjectID, t.ID, user.ID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommentResponse `json:"body"`
		}{Body: CommentResponse{Entry: entry}}, nil
	})
}

func registerHistory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "task-history",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/history",
		Summary:     "Task history, oldest first",
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetTask(ctx, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		entries, err := e.Repo.ListHistory(ctx, repo.HistoryFilters{TaskID: input.TaskID, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: HistoryResponse{Entries: entries}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-history",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/history",
		Summary:     "Project history, oldest first",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Action    string `query:"action"`
		Since     string `query:"since"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		entries, err := e.Repo.ListHistory(ctx, repo.HistoryFilters{
			ProjectID: input.ProjectID,
			Action:    input.Action,
			Since:     input.Since,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: HistoryResponse{Entries: entries}}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "project-activity",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/activity",
		Summary:     "Cumulative daily mapped/validated counts",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Start     string `query:"start" doc:"Series start date (YYYY-MM-DD), defaults to project creation" required:"false"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		days, err := e.ProjectActivity(ctx, input.ProjectID, input.Start)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: ActivityResponse{Days: days}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-contributors",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/contributors",
		Summary:     "Per-user contribution counts",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ContributorsResponse `json:"body"`
	}, error) {
		contributors, err := e.Contributors(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ContributorsResponse `json:"body"`
		}{Body: ContributorsResponse{Contributors: contributors}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-dashboard",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/dashboard",
		Summary:     "Project summary card",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body DashboardResponse `json:"body"`
	}, error) {
		d, err := e.Dashboard(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DashboardResponse `json:"body"`
		}{Body: DashboardResponse{Dashboard: d}}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register user",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if err := requireProjectManagement(ctx, e); err != nil {
			return nil, err
		}
		if input.Body.Role != "" && !auth.KnownRole(input.Body.Role) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown role "+input.Body.Role, nil)
		}
		user, err := e.RegisterUser(ctx, input.Body.Username, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: UserResponse{User: user}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserListResponse `json:"body"`
	}, error) {
		users, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserListResponse `json:"body"`
		}{Body: UserListResponse{Users: users}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}",
		Summary:     "Get user",
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		user, err := e.Repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: UserResponse{User: user}}, nil
	})
}

func registerJobs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/jobs",
		Summary:       "Enqueue background job",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      CreateJobRequest `json:"body"`
	}) (*struct {
		Body JobResponse `json:"body"`
	}, error) {
		if err := requireProjectManagement(ctx, e); err != nil {
			return nil, err
		}
		j, err := e.EnqueueJob(ctx, input.ProjectID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobResponse `json:"body"`
		}{Body: JobResponse{Job: j}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/jobs",
		Summary:     "List project jobs",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body JobListResponse `json:"body"`
	}, error) {
		jobs, err := e.Repo.ListBackgroundJobs(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobListResponse `json:"body"`
		}{Body: JobListResponse{Jobs: jobs}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}",
		Summary:     "Get job",
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*struct {
		Body JobResponse `json:"body"`
	}, error) {
		j, err := e.Repo.GetBackgroundJob(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobResponse `json:"body"`
		}{Body: JobResponse{Job: j}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-job-status",
		Method:      http.MethodPatch,
		Path:        "/jobs/{job_id}",
		Summary:     "Update job status",
	}, func(ctx context.Context, input *struct {
		JobID string              `path:"job_id"`
		Body  SetJobStatusRequest `json:"body"`
	}) (*struct {
		Body JobResponse `json:"body"`
	}, error) {
		j, err := e.SetJobStatus(ctx, input.JobID, input.Body.Status, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobResponse `json:"body"`
		}{Body: JobResponse{Job: j}}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/users/{user_id}/api-keys",
		Summary:       "Issue API key",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		UserID string              `path:"user_id"`
		Body   CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if err := requireProjectManagement(ctx, e); err != nil {
			return nil, err
		}
		if _, err := e.Repo.GetUser(ctx, input.UserID); err != nil {
			return nil, handleError(err)
		}
		// The raw key is only ever returned here; we store the hash.
		raw := uuid.New().String() + uuid.New().String()
		key := domain.APIKey{
			ID:      uuid.New().String(),
			UserID:  input.UserID,
			Name:    input.Body.Name,
			KeyHash: repo.HashAPIKey(raw),
		}
		if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: key.ID, Key: raw}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{key_id}",
		Summary:       "Revoke API key",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := requireProjectManagement(ctx, e); err != nil {
			return nil, err
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Issue a token for an existing user (development only)",
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		user, err := e.Repo.GetUserByUsername(ctx, input.Body.Username)
		if err != nil {
			return nil, handleError(err)
		}
		ttl := authCfg.TokenTTL
		if ttl == 0 {
			ttl = 12 * time.Hour
		}
		token, err := issueToken(user.ID, user.Role, authCfg.JWTSecret, ttl)
		if err != nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "auth_unavailable", "token signing unavailable", nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
