package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/classync/classync/core/task"
)

type taskRow struct {
	ID                   string         `db:"id"`
	ServerID             string         `db:"server_id"`
	OwnerID              string         `db:"owner_id"`
	Title                string         `db:"title"`
	Description          string         `db:"description"`
	Instructions         string         `db:"instructions"`
	Rubric               string         `db:"rubric"`
	DueDate              time.Time      `db:"due_date"`
	MaxPoints            int            `db:"max_points"`
	Priority             string         `db:"priority"`
	Status               string         `db:"status"`
	AssignmentType       string         `db:"assignment_type"`
	TeamIDs              pq.StringArray `db:"team_ids"`
	StudentIDs           pq.StringArray `db:"student_ids"`
	AllowLateSubmissions bool           `db:"allow_late_submissions"`
	MaxAttempts          int            `db:"max_attempts"`
	AllowFileUpload      bool           `db:"allow_file_upload"`
	AllowedFileTypes     pq.StringArray `db:"allowed_file_types"`
	MaxFileSize          int64          `db:"max_file_size"`
	RequireComment       bool           `db:"require_comment"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func toTaskRow(t task.Task) taskRow {
	return taskRow{
		ID:                   t.ID,
		ServerID:             t.ServerID,
		OwnerID:              t.OwnerID,
		Title:                t.Title,
		Description:          t.Description,
		Instructions:         t.Instructions,
		Rubric:               t.Rubric,
		DueDate:              t.DueDate.UTC(),
		MaxPoints:            t.MaxPoints,
		Priority:             string(t.Priority),
		Status:               string(t.Status),
		AssignmentType:       string(t.AssignmentType),
		TeamIDs:              nonNilStrings(t.TeamIDs),
		StudentIDs:           nonNilStrings(t.StudentIDs),
		AllowLateSubmissions: t.AllowLateSubmissions,
		MaxAttempts:          t.MaxAttempts,
		AllowFileUpload:      t.AllowFileUpload,
		AllowedFileTypes:     nonNilStrings(t.AllowedFileTypes),
		MaxFileSize:          t.MaxFileSize,
		RequireComment:       t.RequireComment,
		CreatedAt:            t.CreatedAt.UTC(),
		UpdatedAt:            t.UpdatedAt.UTC(),
	}
}

func (r taskRow) task() task.Task {
	return task.Task{
		ID:                   r.ID,
		ServerID:             r.ServerID,
		OwnerID:              r.OwnerID,
		Title:                r.Title,
		Description:          r.Description,
		Instructions:         r.Instructions,
		Rubric:               r.Rubric,
		DueDate:              r.DueDate.UTC(),
		MaxPoints:            r.MaxPoints,
		Priority:             task.Priority(r.Priority),
		Status:               task.Status(r.Status),
		AssignmentType:       task.AssignmentType(r.AssignmentType),
		TeamIDs:              nonNilStrings(r.TeamIDs),
		StudentIDs:           nonNilStrings(r.StudentIDs),
		AllowLateSubmissions: r.AllowLateSubmissions,
		MaxAttempts:          r.MaxAttempts,
		AllowFileUpload:      r.AllowFileUpload,
		AllowedFileTypes:     nonNilStrings(r.AllowedFileTypes),
		MaxFileSize:          r.MaxFileSize,
		RequireComment:       r.RequireComment,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
}

// fileRefs is stored as a jsonb column.
type fileRefs []task.FileRef

func (f fileRefs) Value() (driver.Value, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f)
}

func (f *fileRefs) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*f = fileRefs{}
		return nil
	default:
		return errors.Errorf("cannot scan %T into fileRefs", src)
	}
	return json.Unmarshal(data, f)
}

type submissionRow struct {
	ID            string         `db:"id"`
	TaskID        string         `db:"task_id"`
	StudentID     string         `db:"student_id"`
	TeamID        null.String    `db:"team_id"`
	AttemptNumber int            `db:"attempt_number"`
	Comment       string         `db:"comment"`
	Collaborators pq.StringArray `db:"collaborators"`
	Files         fileRefs       `db:"files"`
	SubmittedAt   time.Time      `db:"submitted_at"`
	IsLate        bool           `db:"is_late"`
	Status        string         `db:"status"`
	Grade         null.Int       `db:"grade"`
	Feedback      null.String    `db:"feedback"`
	GradedAt      null.Time      `db:"graded_at"`
	GradedBy      null.String    `db:"graded_by"`
}

func toSubmissionRow(s task.Submission) submissionRow {
	return submissionRow{
		ID:            s.ID,
		TaskID:        s.TaskID,
		StudentID:     s.StudentID,
		TeamID:        null.NewString(s.TeamID, s.TeamID != ""),
		AttemptNumber: s.AttemptNumber,
		Comment:       s.Comment,
		Collaborators: nonNilStrings(s.Collaborators),
		Files:         s.Files,
		SubmittedAt:   s.SubmittedAt.UTC(),
		IsLate:        s.IsLate,
		Status:        string(s.Status),
		Grade:         null.IntFromPtr(s.Grade),
		Feedback:      null.StringFromPtr(s.Feedback),
		GradedAt:      null.TimeFromPtr(s.GradedAt),
		GradedBy:      null.NewString(s.GradedBy, s.GradedBy != ""),
	}
}

func (r submissionRow) submission() task.Submission {
	files := []task.FileRef(r.Files)
	if files == nil {
		files = []task.FileRef{}
	}
	sub := task.Submission{
		ID:            r.ID,
		TaskID:        r.TaskID,
		StudentID:     r.StudentID,
		TeamID:        r.TeamID.String,
		AttemptNumber: r.AttemptNumber,
		Comment:       r.Comment,
		Collaborators: nonNilStrings(r.Collaborators),
		Files:         files,
		SubmittedAt:   r.SubmittedAt.UTC(),
		IsLate:        r.IsLate,
		Status:        task.SubmissionStatus(r.Status),
		Grade:         r.Grade.Ptr(),
		Feedback:      r.Feedback.Ptr(),
		GradedBy:      r.GradedBy.String,
	}
	if r.GradedAt.Valid {
		at := r.GradedAt.Time.UTC()
		sub.GradedAt = &at
	}
	return sub
}

type taskRepository struct {
	db *sqlx.DB
}

var _ task.Repository = (*taskRepository)(nil) // interface compliance check

func NewTaskRepository(db *sqlx.DB) *taskRepository {
	return &taskRepository{db: db}
}

func (repo *taskRepository) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	t.ID = newID()
	row := toTaskRow(t)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO task (id, server_id, owner_id, title, description, instructions, rubric, due_date, max_points,
			priority, status, assignment_type, team_ids, student_ids, allow_late_submissions, max_attempts,
			allow_file_upload, allowed_file_types, max_file_size, require_comment, created_at, updated_at)
		VALUES (:id, :server_id, :owner_id, :title, :description, :instructions, :rubric, :due_date, :max_points,
			:priority, :status, :assignment_type, :team_ids, :student_ids, :allow_late_submissions, :max_attempts,
			:allow_file_upload, :allowed_file_types, :max_file_size, :require_comment, :created_at, :updated_at)`, row)
	if err != nil {
		return task.Task{}, errors.Wrap(err, "inserting task")
	}
	return row.task(), nil
}

func (repo *taskRepository) GetTask(ctx context.Context, id string) (task.Task, error) {
	if !isUUID(id) {
		return task.Task{}, task.ErrTaskNotFound
	}
	var row taskRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM task WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return task.Task{}, task.ErrTaskNotFound
		}
		return task.Task{}, errors.Wrap(err, "finding task")
	}
	return row.task(), nil
}

func (repo *taskRepository) UpdateTask(ctx context.Context, t task.Task) (task.Task, error) {
	row := toTaskRow(t)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE task SET title = :title, description = :description, instructions = :instructions, rubric = :rubric,
			due_date = :due_date, max_points = :max_points, priority = :priority, status = :status,
			team_ids = :team_ids, student_ids = :student_ids, allow_late_submissions = :allow_late_submissions,
			max_attempts = :max_attempts, allow_file_upload = :allow_file_upload,
			allowed_file_types = :allowed_file_types, max_file_size = :max_file_size,
			require_comment = :require_comment, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return task.Task{}, errors.Wrap(err, "updating task")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return task.Task{}, task.ErrTaskNotFound
	}
	return row.task(), nil
}

func (repo *taskRepository) ListTasks(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	var w where
	if filter.IDs != nil {
		w.add("id::text = ANY(?)", pq.Array(filter.IDs))
	}
	if filter.ServerIDs != nil {
		w.add("server_id::text = ANY(?)", pq.Array(filter.ServerIDs))
	}
	if filter.OwnerID != "" {
		w.add("owner_id::text = ?", filter.OwnerID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		w.add("status = ANY(?)", pq.Array(statuses))
	}

	var rows []taskRow
	q := repo.db.Rebind(`SELECT * FROM task` + w.String() + ` ORDER BY due_date, created_at, id`)
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing tasks")
	}
	tasks := make([]task.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.task())
	}
	return tasks, nil
}

func (repo *taskRepository) DeleteTask(ctx context.Context, id string) ([]task.Submission, error) {
	if !isUUID(id) {
		return nil, task.ErrTaskNotFound
	}
	var subs []task.Submission
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var rows []submissionRow
		if err := tx.SelectContext(ctx, &rows, `DELETE FROM submission WHERE task_id = $1 RETURNING *`, id); err != nil {
			return errors.Wrap(err, "deleting submissions")
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM task WHERE id = $1`, id)
		if err != nil {
			return errors.Wrap(err, "deleting task")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return task.ErrTaskNotFound
		}
		for _, r := range rows {
			subs = append(subs, r.submission())
		}
		return nil
	})
	return subs, err
}

// AppendSubmission serializes the appends of a (task, student) pair with a transaction-scoped advisory lock;
// the unique (task_id, student_id, attempt_number) index backs it.
func (repo *taskRepository) AppendSubmission(ctx context.Context, sub task.Submission, maxAttempts int) (task.Submission, error) {
	if !isUUID(sub.TaskID) {
		return task.Submission{}, task.ErrTaskNotFound
	}
	sub.ID = newID()
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text || ':' || $2::text))`, sub.TaskID, sub.StudentID); err != nil {
			return errors.Wrap(err, "locking attempts")
		}
		var cnt int
		if err := tx.GetContext(ctx, &cnt,
			`SELECT COUNT(*) FROM submission WHERE task_id = $1 AND student_id = $2`, sub.TaskID, sub.StudentID); err != nil {
			return errors.Wrap(err, "counting attempts")
		}
		if cnt >= maxAttempts {
			return task.ErrAttemptsExhausted
		}

		sub.AttemptNumber = cnt + 1
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO submission (id, task_id, student_id, team_id, attempt_number, comment, collaborators, files,
				submitted_at, is_late, status, grade, feedback, graded_at, graded_by)
			VALUES (:id, :task_id, :student_id, :team_id, :attempt_number, :comment, :collaborators, :files,
				:submitted_at, :is_late, :status, :grade, :feedback, :graded_at, :graded_by)`, toSubmissionRow(sub))
		if err != nil {
			switch code, _ := pqErrorCode(err); code {
			case uniqueViolation:
				return task.ErrAttemptsExhausted
			case foreignKeyViolation:
				return task.ErrTaskNotFound
			}
			return errors.Wrap(err, "inserting submission")
		}
		return nil
	})
	if err != nil {
		return task.Submission{}, err
	}
	return toSubmissionRow(sub).submission(), nil
}

func (repo *taskRepository) GetSubmission(ctx context.Context, id string) (task.Submission, error) {
	if !isUUID(id) {
		return task.Submission{}, task.ErrSubmissionNotFound
	}
	var row submissionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM submission WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return task.Submission{}, task.ErrSubmissionNotFound
		}
		return task.Submission{}, errors.Wrap(err, "finding submission")
	}
	return row.submission(), nil
}

func (repo *taskRepository) UpdateSubmission(ctx context.Context, sub task.Submission) (task.Submission, error) {
	row := toSubmissionRow(sub)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE submission SET status = :status, grade = :grade, feedback = :feedback, graded_at = :graded_at,
			graded_by = :graded_by
		WHERE id = :id`, row)
	if err != nil {
		return task.Submission{}, errors.Wrap(err, "updating submission")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return task.Submission{}, task.ErrSubmissionNotFound
	}
	return row.submission(), nil
}

func (repo *taskRepository) MarkUnderReview(ctx context.Context, id string) (task.Submission, error) {
	if !isUUID(id) {
		return task.Submission{}, task.ErrSubmissionNotFound
	}
	var row submissionRow
	err := repo.db.GetContext(ctx, &row, `
		UPDATE submission SET status = $2 WHERE id = $1 AND status = $3 RETURNING *`,
		id, string(task.SubmissionUnderReview), string(task.SubmissionSubmitted))
	if err == nil {
		return row.submission(), nil
	}
	if err != sql.ErrNoRows {
		return task.Submission{}, errors.Wrap(err, "marking submission under review")
	}
	// nothing updated: missing, or no longer submitted
	if _, err = repo.GetSubmission(ctx, id); err != nil {
		return task.Submission{}, err
	}
	return task.Submission{}, task.ErrNotReviewable
}

func (repo *taskRepository) ListSubmissions(ctx context.Context, filter task.SubmissionFilter) ([]task.Submission, error) {
	var w where
	if filter.TaskIDs != nil {
		w.add("task_id::text = ANY(?)", pq.Array(filter.TaskIDs))
	}
	if filter.StudentID != "" {
		w.add("student_id::text = ?", filter.StudentID)
	}

	var rows []submissionRow
	q := repo.db.Rebind(`SELECT * FROM submission` + w.String() + ` ORDER BY task_id, student_id, attempt_number`)
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing submissions")
	}
	subs := make([]task.Submission, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.submission())
	}
	return subs, nil
}

func (repo *taskRepository) CountAttempts(ctx context.Context, taskID, studentID string) (int, error) {
	var cnt int
	err := repo.db.GetContext(ctx, &cnt,
		`SELECT COUNT(*) FROM submission WHERE task_id::text = $1 AND student_id::text = $2`, taskID, studentID)
	return cnt, errors.Wrap(err, "counting attempts")
}

type statsRow struct {
	Total        int          `boil:"total"`
	Students     int          `boil:"students"`
	Submitted    int          `boil:"submitted"`
	UnderReview  int          `boil:"under_review"`
	Graded       int          `boil:"graded"`
	Returned     int          `boil:"returned"`
	Late         int          `boil:"late"`
	AverageGrade null.Float64 `boil:"average_grade"`
}

const statsQuery = `
	SELECT COUNT(*) AS total,
		COUNT(DISTINCT student_id) AS students,
		COUNT(*) FILTER (WHERE status = 'submitted') AS submitted,
		COUNT(*) FILTER (WHERE status = 'under_review') AS under_review,
		COUNT(*) FILTER (WHERE status = 'graded') AS graded,
		COUNT(*) FILTER (WHERE status = 'returned') AS returned,
		COUNT(*) FILTER (WHERE is_late) AS late,
		AVG(grade)::float8 AS average_grade
	FROM submission
	WHERE task_id::text = $1`

func (repo *taskRepository) Stats(ctx context.Context, taskID string) (task.Stats, error) {
	var row statsRow
	if err := queries.Raw(statsQuery, taskID).Bind(ctx, repo.db, &row); err != nil {
		return task.Stats{}, errors.Wrap(err, "computing task stats")
	}
	return task.Stats{
		TaskID:       taskID,
		Total:        row.Total,
		Students:     row.Students,
		Submitted:    row.Submitted,
		UnderReview:  row.UnderReview,
		Graded:       row.Graded,
		Returned:     row.Returned,
		Late:         row.Late,
		AverageGrade: row.AverageGrade.Ptr(),
	}, nil
}
