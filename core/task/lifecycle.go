package task

import (
	"fmt"
	"net/mail"
	"path"
	"strings"
	"time"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/user"
)

// every rule below is a pure function of its arguments; "now" is always given by the caller.

var (
	ErrTaskNotActive      = core.NewStateError("task is not active")
	ErrPastDue            = core.NewStateError("the due date has passed and late submissions are not allowed")
	ErrAttemptsExhausted  = core.NewStateError("no attempts left for this task")
	ErrNotArchivable      = core.NewStateError("only active tasks can be archived")
	ErrNotPublishable     = core.NewStateError("only draft tasks can be published")
	ErrTaskArchived       = core.NewStateError("archived tasks cannot be modified")
	ErrSubmissionReturned = core.NewStateError("returned submissions cannot be graded")
	ErrNotReviewable      = core.NewStateError("only submitted attempts can be marked under review")
	ErrNotReturnable      = core.NewStateError("only graded submissions can be returned")

	errRequired = "this field is required"
)

// IsLate reports whether a submission made at `at` is late for t. submitting exactly at the due date is on time.
func IsLate(t Task, at time.Time) bool {
	return at.After(t.DueDate)
}

// IsOpen reports whether t still accepts submissions at now, attempts aside.
func IsOpen(t Task, now time.Time) bool {
	return t.AllowLateSubmissions || !IsLate(t, now)
}

// CanResubmit reports whether a new attempt may follow sub.
// it depends on the wall-clock and must be evaluated when needed, never stored.
func CanResubmit(sub Submission, t Task, now time.Time) bool {
	return sub.AttemptNumber < t.MaxAttempts && IsOpen(t, now)
}

// CheckCanSubmit returns the StateError preventing a new attempt, given the number of attempts already made.
func CheckCanSubmit(t Task, attempts int, now time.Time) error {
	switch {
	case t.Status != StatusActive:
		return ErrTaskNotActive
	case attempts >= t.MaxAttempts:
		return ErrAttemptsExhausted
	case !IsOpen(t, now):
		return ErrPastDue
	}
	return nil
}

// CanManage reports whether actor may change t and grade its submissions.
func CanManage(t Task, actor user.User) bool {
	return actor.IsAdmin() || t.OwnerID == actor.ID
}

// CheckCanArchive only allows archiving active tasks.
func CheckCanArchive(t Task) error {
	if t.Status != StatusActive {
		return ErrNotArchivable
	}
	return nil
}

// CheckNewTask checks the invariants of a task about to be created at now.
func CheckNewTask(nt NewTask, now time.Time) error {
	var flds []core.FieldError
	if !nt.DueDate.After(now) {
		flds = append(flds, core.FieldError{Field: "due_date", Error: "due date must be in the future"})
	}
	if nt.MaxPoints < 1 {
		flds = append(flds, core.FieldError{Field: "max_points", Error: "max points must be at least 1"})
	}
	if nt.MaxAttempts < 1 {
		flds = append(flds, core.FieldError{Field: "max_attempts", Error: "max attempts must be at least 1"})
	}
	if nt.MaxFileSize < 1 {
		flds = append(flds, core.FieldError{Field: "max_file_size", Error: "max file size must be at least 1 byte"})
	}
	switch nt.AssignmentType {
	case AssignmentTeam:
		if len(nt.TeamIDs) == 0 {
			flds = append(flds, core.FieldError{Field: "team_ids", Error: "at least one team must be assigned"})
		}
	case AssignmentIndividual:
	default:
		flds = append(flds, core.FieldError{Field: "assignment_type", Error: "assignment type must be one of team, individual"})
	}
	switch nt.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		flds = append(flds, core.FieldError{Field: "priority", Error: "priority must be one of low, medium, high"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// ValidateGrade checks that 0 <= grade <= t.MaxPoints.
func ValidateGrade(t Task, grade int) error {
	if grade < 0 || grade > t.MaxPoints {
		return core.NewFieldValidationError("grade", fmt.Sprintf("grade must be between 0 and %d", t.MaxPoints))
	}
	return nil
}

// ValidateSubmission checks the comment, collaborators and files of an attempt against t.
// all of them are checked before anything is stored.
func ValidateSubmission(t Task, ns NewSubmission) error {
	if t.RequireComment && strings.TrimSpace(ns.Comment) == "" {
		return core.NewFieldValidationError("comment", errRequired)
	}
	for _, c := range ns.Collaborators {
		if addr, err := mail.ParseAddress(c); err != nil || addr.Address != c {
			return core.NewFieldValidationError("collaborators", fmt.Sprintf("%q is not a valid email address", c))
		}
	}
	return ValidateFiles(t, ns.Files)
}

// ValidateFiles checks the declared type and size of every file; one bad file rejects them all.
func ValidateFiles(t Task, files []FileUpload) error {
	if len(files) == 0 {
		return nil
	}
	if !t.AllowFileUpload {
		return core.NewFieldValidationError("files", "file uploads are not allowed for this task")
	}
	if len(files) > MaxFilesPerAttempt {
		return core.NewFieldValidationError("files", fmt.Sprintf("at most %d files can be submitted", MaxFilesPerAttempt))
	}
	for _, f := range files {
		if !isAllowedFileType(t.AllowedFileTypes, f.Name) {
			return core.NewFieldValidationError("files", fmt.Sprintf("%q: file type not allowed", f.Name))
		}
		if f.Size > t.MaxFileSize {
			return core.NewFieldValidationError("files", fmt.Sprintf("%q: file exceeds %d bytes", f.Name, t.MaxFileSize))
		}
		if f.Size < 0 {
			return core.NewFieldValidationError("files", fmt.Sprintf("%q: invalid size", f.Name))
		}
	}
	return nil
}

func fileExt(name string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
}

func isAllowedFileType(allowed []string, name string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := fileExt(name)
	return ext != "" && core.ContainsString(allowed, ext)
}

// cleanFileTypes lower-cases extensions and drops their leading dot: [".PDF", "docx"] -> ["pdf", "docx"].
func cleanFileTypes(types []string) []string {
	cleaned := core.CleanStrings(types, true /* lower */)
	for i, t := range cleaned {
		cleaned[i] = strings.TrimPrefix(t, ".")
	}
	return cleaned
}

// CheckCanGrade returns the StateError preventing sub from being graded.
// grading a graded submission again is allowed; the last grade wins.
func CheckCanGrade(sub Submission) error {
	if sub.Status == SubmissionReturned {
		return ErrSubmissionReturned
	}
	return nil
}

// CheckLimits fails when t's max attempts or max points fall below what subs already recorded.
func CheckLimits(t Task, subs []Submission) error {
	attempts, grade := 0, 0
	for _, sub := range subs {
		if sub.AttemptNumber > attempts {
			attempts = sub.AttemptNumber
		}
		if sub.Grade != nil && *sub.Grade > grade {
			grade = *sub.Grade
		}
	}
	if t.MaxAttempts < attempts {
		return core.NewFieldValidationError("max_attempts", fmt.Sprintf("%d attempts were already made", attempts))
	}
	if t.MaxPoints < grade {
		return core.NewFieldValidationError("max_points", fmt.Sprintf("a grade of %d was already given", grade))
	}
	return nil
}

func CheckCanMarkUnderReview(sub Submission) error {
	if sub.Status != SubmissionSubmitted {
		return ErrNotReviewable
	}
	return nil
}

func CheckCanReturn(sub Submission) error {
	if sub.Status != SubmissionGraded {
		return ErrNotReturnable
	}
	return nil
}

// LatestAttempts keeps the highest attempt of each student, keyed by student ID.
func LatestAttempts(subs []Submission) map[string]Submission {
	latest := make(map[string]Submission, len(subs))
	for _, s := range subs {
		if l, ok := latest[s.StudentID]; !ok || s.AttemptNumber > l.AttemptNumber {
			latest[s.StudentID] = s
		}
	}
	return latest
}
