package task

import (
	"io"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/classync/classync/core"
)

type (
	Status           string
	Priority         string
	AssignmentType   string
	SubmissionStatus string
)

// Task statuses
const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Priorities
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Assignment types
const (
	AssignmentTeam       AssignmentType = "team"
	AssignmentIndividual AssignmentType = "individual"
)

// Submission statuses
const (
	SubmissionSubmitted   SubmissionStatus = "submitted"
	SubmissionUnderReview SubmissionStatus = "under_review"
	SubmissionGraded      SubmissionStatus = "graded"
	SubmissionReturned    SubmissionStatus = "returned"
)

const (
	DefaultMaxAttempts = 1
	DefaultMaxFileSize = int64(10 << 20) // 10 MiB
	MaxFilesPerAttempt = 10
)

// Task is an assignment given to the students or teams of a server.
type Task struct {
	ID                   string         `json:"id"`
	ServerID             string         `json:"server_id"`
	OwnerID              string         `json:"owner_id"`
	Title                string         `json:"title"`
	Description          string         `json:"description"`
	Instructions         string         `json:"instructions"`
	Rubric               string         `json:"rubric"`
	DueDate              time.Time      `json:"due_date"` // UTC
	MaxPoints            int            `json:"max_points"`
	Priority             Priority       `json:"priority"`
	Status               Status         `json:"status"`
	AssignmentType       AssignmentType `json:"assignment_type"`
	TeamIDs              []string       `json:"team_ids"`
	StudentIDs           []string       `json:"student_ids"` // empty: every member of the server
	AllowLateSubmissions bool           `json:"allow_late_submissions"`
	MaxAttempts          int            `json:"max_attempts"`
	AllowFileUpload      bool           `json:"allow_file_upload"`
	AllowedFileTypes     []string       `json:"allowed_file_types"` // lower-cased extensions without dot; empty: all
	MaxFileSize          int64          `json:"max_file_size"`      // bytes
	RequireComment       bool           `json:"require_comment"`
	CreatedAt            time.Time      `json:"created_at"` // UTC
	UpdatedAt            time.Time      `json:"updated_at"` // UTC
}

// FileRef references a file held by the FileStore.
type FileRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}

// Submission is one attempt of a student at a Task.
type Submission struct {
	ID            string           `json:"id"`
	TaskID        string           `json:"task_id"`
	StudentID     string           `json:"student_id"`
	TeamID        string           `json:"team_id,omitempty"`
	AttemptNumber int              `json:"attempt_number"`
	Comment       string           `json:"comment"`
	Collaborators []string         `json:"collaborators"`
	Files         []FileRef        `json:"files"`
	SubmittedAt   time.Time        `json:"submitted_at"` // UTC
	IsLate        bool             `json:"is_late"`
	Status        SubmissionStatus `json:"status"`
	Grade         *int             `json:"grade"`
	Feedback      *string          `json:"feedback"`
	GradedAt      *time.Time       `json:"graded_at"` // UTC
	GradedBy      string           `json:"graded_by,omitempty"`
}

// Stats summarizes the submissions of a Task.
type Stats struct {
	TaskID       string   `json:"task_id"`
	Total        int      `json:"total"`
	Students     int      `json:"students"`
	Submitted    int      `json:"submitted"`
	UnderReview  int      `json:"under_review"`
	Graded       int      `json:"graded"`
	Returned     int      `json:"returned"`
	Late         int      `json:"late"`
	AverageGrade *float64 `json:"average_grade"`
}

// StudentTask is a Task as seen by an assigned student.
type StudentTask struct {
	Task
	Attempts    int         `json:"attempts"`
	Latest      *Submission `json:"latest_submission"`
	CanSubmit   bool        `json:"can_submit"`
	CanResubmit bool        `json:"can_resubmit"`
}

// FacultyTask is a Task as seen by its owner.
type FacultyTask struct {
	Task
	Stats Stats `json:"stats"`
}

// Filter applies AND operation on its non-empty fields.
type Filter struct {
	IDs       []string
	ServerIDs []string
	OwnerID   string
	Statuses  []Status
}

// SubmissionFilter applies AND operation on its non-empty fields.
type SubmissionFilter struct {
	TaskIDs   []string
	StudentID string
}

// FileUpload is a file submitted with an attempt; only its name, type and declared size are inspected.
type FileUpload struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// FileMeta is what the FileStore is told about a file.
type FileMeta struct {
	Name        string
	ContentType string
	Size        int64
	TaskID      string
	StudentID   string
}

// NewTask contains information needed to create a new Task.
type NewTask struct {
	Title                string         `json:"title" validate:"required,notblank,max=200"`
	Description          string         `json:"description" validate:"max=5000"`
	Instructions         string         `json:"instructions" validate:"max=10000"`
	Rubric               string         `json:"rubric" validate:"max=10000"`
	DueDate              time.Time      `json:"due_date" validate:"required"`
	MaxPoints            int            `json:"max_points" validate:"required,min=1"`
	Priority             Priority       `json:"priority" validate:"omitempty,oneof=low medium high"`
	AssignmentType       AssignmentType `json:"assignment_type" validate:"required,oneof=team individual"`
	TeamIDs              []string       `json:"team_ids" validate:"omitempty,dive,required"`
	StudentIDs           []string       `json:"student_ids" validate:"omitempty,dive,required"`
	AllowLateSubmissions bool           `json:"allow_late_submissions"`
	MaxAttempts          int            `json:"max_attempts" validate:"omitempty,min=1"`
	AllowFileUpload      bool           `json:"allow_file_upload"`
	AllowedFileTypes     []string       `json:"allowed_file_types" validate:"omitempty,dive,fileext"`
	MaxFileSize          int64          `json:"max_file_size" validate:"omitempty,min=1"`
	RequireComment       bool           `json:"require_comment"`
	PublishImmediately   bool           `json:"publish_immediately"`
	NotifyStudents       *bool          `json:"notify_students"` // default: true
}

func (nt *NewTask) Clean() {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	nt.Instructions = core.CleanString(nt.Instructions)
	nt.Rubric = core.CleanString(nt.Rubric)
	nt.TeamIDs = core.CleanStrings(nt.TeamIDs)
	nt.StudentIDs = core.CleanStrings(nt.StudentIDs)
	nt.AllowedFileTypes = cleanFileTypes(nt.AllowedFileTypes)
	if nt.Priority == "" {
		nt.Priority = PriorityMedium
	}
	if nt.MaxAttempts == 0 {
		nt.MaxAttempts = DefaultMaxAttempts
	}
	if nt.MaxFileSize == 0 {
		nt.MaxFileSize = DefaultMaxFileSize
	}
}

func (nt *NewTask) Validate(validate *validator.Validate) error {
	nt.Clean()
	return validate.Struct(nt)
}

func (nt NewTask) notifyStudents() bool {
	return nt.NotifyStudents == nil || *nt.NotifyStudents
}

// UpdateTask defines what information may be provided to modify an existing Task.
type UpdateTask struct {
	Title                *string    `json:"title" validate:"omitempty,notblank,max=200"`
	Description          *string    `json:"description" validate:"omitempty,max=5000"`
	Instructions         *string    `json:"instructions" validate:"omitempty,max=10000"`
	Rubric               *string    `json:"rubric" validate:"omitempty,max=10000"`
	DueDate              *time.Time `json:"due_date"`
	MaxPoints            *int       `json:"max_points" validate:"omitempty,min=1"`
	Priority             *Priority  `json:"priority" validate:"omitempty,oneof=low medium high"`
	AllowLateSubmissions *bool      `json:"allow_late_submissions"`
	MaxAttempts          *int       `json:"max_attempts" validate:"omitempty,min=1"`
	AllowFileUpload      *bool      `json:"allow_file_upload"`
	AllowedFileTypes     []string   `json:"allowed_file_types" validate:"omitempty,dive,fileext"`
	MaxFileSize          *int64     `json:"max_file_size" validate:"omitempty,min=1"`
	RequireComment       *bool      `json:"require_comment"`
}

func (ut *UpdateTask) Validate(validate *validator.Validate) error {
	if ut.AllowedFileTypes != nil {
		ut.AllowedFileTypes = cleanFileTypes(ut.AllowedFileTypes)
	}
	return validate.Struct(ut)
}

// NewSubmission contains information needed to submit an attempt.
type NewSubmission struct {
	Comment       string       `json:"comment" form:"comment" validate:"max=5000"`
	Collaborators []string     `json:"collaborators" validate:"omitempty,dive,email"`
	Files         []FileUpload `json:"-"`
}

func (ns *NewSubmission) Clean() {
	ns.Comment = core.CleanString(ns.Comment)
	ns.Collaborators = core.CleanStrings(ns.Collaborators, true /* lower */)
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Clean()
	return validate.Struct(ns)
}

// GradeSubmission contains the grade given to a submission.
type GradeSubmission struct {
	StudentID string `json:"student_id" validate:"required"`
	Grade     *int   `json:"grade" validate:"required"`
	Feedback  string `json:"feedback" validate:"max=10000"`
}

func (gs *GradeSubmission) Validate(validate *validator.Validate) error {
	gs.StudentID = core.CleanString(gs.StudentID)
	gs.Feedback = core.CleanString(gs.Feedback)
	return validate.Struct(gs)
}
