package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"fieldtasker/internal/db"
	"fieldtasker/internal/domain"
	"fieldtasker/internal/engine"
	"fieldtasker/internal/migrate"
)

type testServer struct {
	URL     string
	Engine  engine.Engine
	Mapper  domain.User
	Checker domain.User
	Manager domain.User
	client  *http.Client
	close   func()
}

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn)
	ctx := context.Background()
	mapper, err := e.RegisterUser(ctx, "alice", "mapper")
	if err != nil {
		t.Fatalf("register mapper: %v", err)
	}
	checker, err := e.RegisterUser(ctx, "bob", "validator")
	if err != nil {
		t.Fatalf("register validator: %v", err)
	}
	manager, err := e.RegisterUser(ctx, "carol", "project_manager")
	if err != nil {
		t.Fatalf("register manager: %v", err)
	}
	handler, err := New(Config{
		Engine: e,
		Auth:   AuthConfig{JWTSecret: "test-secret", AllowLegacyUserHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:     "http://" + ln.Addr().String(),
		Engine:  e,
		Mapper:  mapper,
		Checker: checker,
		Manager: manager,
		client:  &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func (s *testServer) seedProjectWithTask(t *testing.T) (domain.Project, domain.Task) {
	t.Helper()
	ctx := context.Background()
	org, err := s.Engine.CreateOrganisation(ctx, domain.Organisation{Name: "Field Org"})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	project, err := s.Engine.CreateProject(ctx, domain.Project{OrgID: org.ID, Name: "Village Survey"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	tasks, err := s.Engine.CreateTasks(ctx, project.ID, []string{`{"type":"Polygon"}`})
	if err != nil {
		t.Fatalf("create tasks: %v", err)
	}
	return project, tasks[0]
}

func asUser(id string) map[string]string {
	return map[string]string{"X-User-Id": id}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	res, data := doJSON(t, s.client, http.MethodGet, s.URL+"/v1/users", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("unexpected code %q", envelope.Error.Code)
	}
}

func TestHealthIsOpen(t *testing.T) {
	s := newTestServer(t)
	res, _ := doJSON(t, s.client, http.MethodGet, s.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
}

func TestTransitionOverHTTP(t *testing.T) {
	s := newTestServer(t)
	_, task := s.seedProjectWithTask(t)

	res, data := doJSON(t, s.client, http.MethodPost,
		fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
		SetTaskStatusRequest{Status: "LOCKED_FOR_MAPPING"},
		asUser(s.Mapper.ID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.StatusCode, data)
	}
	var body struct {
		Task domain.Task `json:"task"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if body.Task.Status != domain.StatusLockedForMapping {
		t.Fatalf("unexpected status %s", body.Task.Status)
	}
	if body.Task.LockedBy == nil || *body.Task.LockedBy != s.Mapper.ID {
		t.Fatalf("lock holder not set")
	}
}

func TestLockConflictMapsTo403(t *testing.T) {
	s := newTestServer(t)
	_, task := s.seedProjectWithTask(t)

	res, _ := doJSON(t, s.client, http.MethodPost,
		fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
		SetTaskStatusRequest{Status: "LOCKED_FOR_MAPPING"},
		asUser(s.Mapper.ID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("lock failed: %d", res.StatusCode)
	}

	res, data := doJSON(t, s.client, http.MethodPost,
		fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
		SetTaskStatusRequest{Status: "MAPPED"},
		asUser(s.Checker.ID))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "task_locked" {
		t.Fatalf("unexpected code %q", envelope.Error.Code)
	}
	if envelope.Error.Details["held_by"] != s.Mapper.ID {
		t.Fatalf("details should name the holder: %v", envelope.Error.Details)
	}
}

func TestInvalidTransitionMapsTo422(t *testing.T) {
	s := newTestServer(t)
	_, task := s.seedProjectWithTask(t)

	res, data := doJSON(t, s.client, http.MethodPost,
		fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
		SetTaskStatusRequest{Status: "VALIDATED"},
		asUser(s.Checker.ID))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("unexpected code %q", envelope.Error.Code)
	}
}

func TestUnknownTaskMapsTo404(t *testing.T) {
	s := newTestServer(t)
	res, _ := doJSON(t, s.client, http.MethodPost,
		s.URL+"/v1/tasks/nope/status",
		SetTaskStatusRequest{Status: "LOCKED_FOR_MAPPING"},
		asUser(s.Mapper.ID))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestOverrideLockRequiresRole(t *testing.T) {
	s := newTestServer(t)
	_, task := s.seedProjectWithTask(t)

	doJSON(t, s.client, http.MethodPost,
		fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
		SetTaskStatusRequest{Status: "LOCKED_FOR_MAPPING"},
		asUser(s.Mapper.ID))

	// A mapper may not force-release someone else's lock.
	res, _ := doJSON(t, s.client, http.MethodPost,
		fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
		SetTaskStatusRequest{Status: "READY", OverrideLock: true},
		asUser(s.Checker.ID))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for validator override, got %d", res.StatusCode)
	}

	res, data := doJSON(t, s.client, http.MethodPost,
		fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
		SetTaskStatusRequest{Status: "READY", OverrideLock: true},
		asUser(s.Manager.ID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for manager override, got %d: %s", res.StatusCode, data)
	}
}

func TestValidationRequiresRole(t *testing.T) {
	s := newTestServer(t)
	_, task := s.seedProjectWithTask(t)

	doJSON(t, s.client, http.MethodPost,
		fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
		SetTaskStatusRequest{Status: "LOCKED_FOR_MAPPING"},
		asUser(s.Mapper.ID))
	doJSON(t, s.client, http.MethodPost,
		fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
		SetTaskStatusRequest{Status: "MAPPED"},
		asUser(s.Mapper.ID))

	// A mapper may not validate their own work.
	res, data := doJSON(t, s.client, http.MethodPost,
		fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
		SetTaskStatusRequest{Status: "LOCKED_FOR_VALIDATION"},
		asUser(s.Mapper.ID))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for mapper claiming validation, got %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "forbidden" {
		t.Fatalf("unexpected code %q", envelope.Error.Code)
	}

	for _, status := range []string{"LOCKED_FOR_VALIDATION", "VALIDATED"} {
		res, data := doJSON(t, s.client, http.MethodPost,
			fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
			SetTaskStatusRequest{Status: status},
			asUser(s.Checker.ID))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("validator %s failed: %d: %s", status, res.StatusCode, data)
		}
	}

	got, err := s.Engine.Repo.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if got.ValidatedBy == nil || *got.ValidatedBy != s.Checker.ID {
		t.Fatalf("validated_by should be the validator, got %v", got.ValidatedBy)
	}
}

func TestDevLoginAndJWT(t *testing.T) {
	s := newTestServer(t)
	res, data := doJSON(t, s.client, http.MethodPost,
		s.URL+"/v1/auth/dev/login",
		DevLoginRequest{Username: "alice"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d: %s", res.StatusCode, data)
	}
	var body DevLoginResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	res, _ = doJSON(t, s.client, http.MethodGet, s.URL+"/v1/users", nil,
		map[string]string{"Authorization": "Bearer " + body.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("token rejected: %d", res.StatusCode)
	}
}

func TestTaskHistoryEndpoint(t *testing.T) {
	s := newTestServer(t)
	_, task := s.seedProjectWithTask(t)

	doJSON(t, s.client, http.MethodPost,
		fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
		SetTaskStatusRequest{Status: "LOCKED_FOR_MAPPING"},
		asUser(s.Mapper.ID))
	doJSON(t, s.client, http.MethodPost,
		fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
		SetTaskStatusRequest{Status: "MAPPED"},
		asUser(s.Mapper.ID))

	res, data := doJSON(t, s.client, http.MethodGet,
		fmt.Sprintf("%s/v1/tasks/%s/history", s.URL, task.ID), nil,
		asUser(s.Checker.ID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history failed: %d", res.StatusCode)
	}
	var body HistoryResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(body.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(body.Entries))
	}
	if body.Entries[0].Action != domain.ActionLockedForMapping {
		t.Fatalf("entries should be oldest first, got %s", body.Entries[0].Action)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	s := newTestServer(t)
	project, task := s.seedProjectWithTask(t)

	doJSON(t, s.client, http.MethodPost,
		fmt.Sprintf("%s/v1/tasks/%s/status", s.URL, task.ID),
		SetTaskStatusRequest{Status: "LOCKED_FOR_MAPPING"},
		asUser(s.Mapper.ID))

	res, data := doJSON(t, s.client, http.MethodGet,
		fmt.Sprintf("%s/v1/projects/%s/dashboard", s.URL, project.ID), nil,
		asUser(s.Mapper.ID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard failed: %d: %s", res.StatusCode, data)
	}
	var body DashboardResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if body.Dashboard.TotalTasks != 1 {
		t.Fatalf("expected 1 task, got %d", body.Dashboard.TotalTasks)
	}
	if body.Dashboard.TasksByStatus[domain.StatusLockedForMapping] != 1 {
		t.Fatalf("status counts wrong: %v", body.Dashboard.TasksByStatus)
	}
	if body.Dashboard.TotalContributors != 1 {
		t.Fatalf("expected 1 contributor, got %d", body.Dashboard.TotalContributors)
	}
}

func TestProjectManagementRequiresRole(t *testing.T) {
	s := newTestServer(t)
	res, _ := doJSON(t, s.client, http.MethodPost, s.URL+"/v1/organisations",
		CreateOrganisationRequest{Name: "Rogue Org"},
		asUser(s.Mapper.ID))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for mapper, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, s.client, http.MethodPost, s.URL+"/v1/organisations",
		CreateOrganisationRequest{Name: "Proper Org"},
		asUser(s.Manager.ID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for manager, got %d", res.StatusCode)
	}
}
