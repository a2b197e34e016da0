package models

import "time"

// Table names, shared by the REST routes, the outbox, and the realtime
// subscriptions.
const (
	TableProjects       = "projects"
	TableTasks          = "tasks"
	TableNotes          = "notes"
	TableMessages       = "messages"
	TableFiles          = "files"
	TablePortfolioItems = "portfolio_items"
	TableMentorRequests = "mentor_requests"
	TableReports        = "reports"
)

const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskDone       = "done"
)

const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestDeclined = "declined"
)

type Project struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	MentorID    *string   `json:"mentor_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Task struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	AssigneeID *string    `json:"assignee_id,omitempty"`
	Title      string     `json:"title"`
	Status     string     `json:"status"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type Note struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type ProjectFile struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	UploaderID string    `json:"uploader_id"`
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	StorageKey string    `json:"storage_key"`
	CreatedAt  time.Time `json:"created_at"`
}

type PortfolioItem struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ProjectID   *string   `json:"project_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	LinkURL     *string   `json:"link_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type MentorRequest struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	StudentID string    `json:"student_id"`
	MentorID  string    `json:"mentor_id"`
	Status    string    `json:"status"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Report struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	AuthorID    string    `json:"author_id"`
	Title       string    `json:"title"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Summary     string    `json:"summary"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p Project) EntityID() string       { return p.ID }
func (t Task) EntityID() string          { return t.ID }
func (n Note) EntityID() string          { return n.ID }
func (m Message) EntityID() string       { return m.ID }
func (f ProjectFile) EntityID() string   { return f.ID }
func (p PortfolioItem) EntityID() string { return p.ID }
func (r MentorRequest) EntityID() string { return r.ID }
func (r Report) EntityID() string        { return r.ID }

// ProjectSummary is the aggregate the project_summary RPC returns. The
// fallback path assembles the same shape from plain list queries.
type ProjectSummary struct {
	ProjectID     string `json:"project_id"`
	TaskCount     int    `json:"task_count"`
	DoneTaskCount int    `json:"done_task_count"`
	NoteCount     int    `json:"note_count"`
	MessageCount  int    `json:"message_count"`
	FileCount     int    `json:"file_count"`
}
