package domain

type Organisation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status" enum:"active,archived"`
	// OutlineGeoJSON is the project boundary as produced by the splitter
	// collaborator. Stored opaque; never interpreted here.
	OutlineGeoJSON string `json:"outline_geojson,omitempty"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Role       string `json:"role" enum:"mapper,validator,project_manager,admin"`
	ProfileImg string `json:"profile_img,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Task struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Index     int        `json:"index"`
	Status    TaskStatus `json:"status" enum:"READY,LOCKED_FOR_MAPPING,MAPPED,LOCKED_FOR_VALIDATION,VALIDATED,INVALIDATED,BAD,SPLIT"`
	// LockedBy is set iff Status is one of the two locked states.
	LockedBy    *string `json:"locked_by,omitempty"`
	MappedBy    *string `json:"mapped_by,omitempty"`
	ValidatedBy *string `json:"validated_by,omitempty"`
	// OutlineGeoJSON is the task geometry; opaque to the lifecycle engine.
	OutlineGeoJSON string `json:"outline_geojson,omitempty"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

// Locked reports whether the task is currently held by a user.
func (t Task) Locked() bool {
	return t.Status == StatusLockedForMapping || t.Status == StatusLockedForValidation
}

// HistoryEntry is one immutable record of a lifecycle transition or comment.
// Rows are append-only; they are the sole source of truth for reporting.
type HistoryEntry struct {
	ID        int64      `json:"id"`
	ProjectID string     `json:"project_id"`
	TaskID    string     `json:"task_id"`
	Action    TaskAction `json:"action"`
	// ActionText keeps the legacy sentence layout
	// "Status changed from OLD to NEW by: username"; display only.
	ActionText     string      `json:"action_text"`
	PreviousStatus *TaskStatus `json:"previous_status,omitempty"`
	CurrentStatus  *TaskStatus `json:"current_status,omitempty"`
	ActionDate     string      `json:"action_date" format:"date-time"`
	UserID         string      `json:"user_id"`
	Username       string      `json:"username,omitempty"`
}

type BackgroundJob struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Status    string `json:"status" enum:"PENDING,RECEIVED,RUNNING,SUCCESS,FAILED"`
	Message   string `json:"message,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// DailyCount is one charting point of the cumulative activity series.
type DailyCount struct {
	Date                string `json:"date"`
	CumulativeMapped    int    `json:"cumulative_mapped"`
	CumulativeValidated int    `json:"cumulative_validated"`
}

type Contributor struct {
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	Contributions int    `json:"contributions"`
}

type Dashboard struct {
	ProjectID         string             `json:"project_id"`
	OrgName           string             `json:"org_name"`
	TotalTasks        int                `json:"total_tasks"`
	TasksByStatus     map[TaskStatus]int `json:"tasks_by_status"`
	TotalContributors int                `json:"total_contributors"`
	LastActive        string             `json:"last_active,omitempty" format:"date-time"`
}
