package task

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/notification"
	"github.com/classync/classync/core/space"
	"github.com/classync/classync/core/user"
)

var (
	// errors
	ErrTaskNotFound       = core.NewNotFoundError("task not found")
	ErrSubmissionNotFound = core.NewNotFoundError("submission not found")

	errNotAssigned = "you are not assigned to this task"
	errNotOwner    = "only the owner of the task can do this"
)

type (
	Repository interface {
		CreateTask(ctx context.Context, t Task) (Task, error)
		GetTask(ctx context.Context, id string) (Task, error)
		UpdateTask(ctx context.Context, t Task) (Task, error)
		// ListTasks returns the tasks ordered by due date, then creation date.
		ListTasks(ctx context.Context, filter Filter) ([]Task, error)
		// DeleteTask deletes the task along with its submissions, which are returned.
		DeleteTask(ctx context.Context, id string) ([]Submission, error)

		// AppendSubmission stores sub as the next attempt of (sub.TaskID, sub.StudentID), setting its
		// ID and AttemptNumber, unless maxAttempts attempts were already made; ErrAttemptsExhausted then.
		// counting and inserting is atomic per (task, student).
		AppendSubmission(ctx context.Context, sub Submission, maxAttempts int) (Submission, error)
		GetSubmission(ctx context.Context, id string) (Submission, error)
		UpdateSubmission(ctx context.Context, sub Submission) (Submission, error)
		// MarkUnderReview changes the status of a submitted attempt only; ErrNotReviewable for any other status.
		MarkUnderReview(ctx context.Context, id string) (Submission, error)
		// ListSubmissions returns the submissions ordered by task, student, then attempt number.
		ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
		CountAttempts(ctx context.Context, taskID, studentID string) (int, error)
		Stats(ctx context.Context, taskID string) (Stats, error)
	}

	// SpaceReader gives access to the servers and teams tasks belong to.
	SpaceReader interface {
		GetServer(ctx context.Context, id string) (space.Server, error)
		ListServers(ctx context.Context, userID string) ([]space.Server, error)
		ListTeams(ctx context.Context, filter space.TeamFilter) ([]space.Team, error)
	}

	// FileStore holds the files of submissions.
	FileStore interface {
		Store(ctx context.Context, content io.Reader, meta FileMeta) (FileRef, error)
		Delete(ctx context.Context, ref string) error
	}

	Deps struct {
		Repo   Repository
		Spaces SpaceReader
		Files  FileStore
		Sink   notification.Sink
		Logger core.Logger
		Now    core.Clock
	}
)

// Service is the task lifecycle manager: every "can this happen" decision on tasks and submissions is taken here.
type Service struct {
	repo   Repository
	spaces SpaceReader
	files  FileStore
	sink   notification.Sink
	logger core.Logger
	now    core.Clock
}

func NewService(deps Deps) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Repo, "Repo"),
		vala.IsNotNil(deps.Spaces, "Spaces"),
		vala.IsNotNil(deps.Files, "Files"),
		vala.IsNotNil(deps.Sink, "Sink"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Now, "Now"),
	).CheckAndPanic()

	return &Service{
		repo:   deps.Repo,
		spaces: deps.Spaces,
		files:  deps.Files,
		sink:   deps.Sink,
		logger: deps.Logger,
		now:    deps.Now,
	}
}

func (svc *Service) clock() time.Time { return svc.now().UTC() }

// =========================================================================
// Tasks

func (svc *Service) CreateTask(ctx context.Context, serverID string, nt NewTask, actor user.User) (Task, error) {
	if !actor.CanTeach() {
		return Task{}, core.NewAuthorizationError("only faculty can create tasks")
	}

	nt.Clean()
	now := svc.clock()
	if err := CheckNewTask(nt, now); err != nil {
		return Task{}, err
	}

	srv, err := svc.spaces.GetServer(ctx, serverID)
	if err != nil {
		return Task{}, err
	}
	if !srv.CanManage(actor) {
		return Task{}, core.NewAuthorizationError("only the owner of the server can create tasks in it")
	}
	if err = svc.checkAssignees(ctx, srv, nt.AssignmentType, nt.TeamIDs, nt.StudentIDs); err != nil {
		return Task{}, err
	}

	status := StatusDraft
	if nt.PublishImmediately {
		status = StatusActive
	}
	t := Task{
		ServerID:             srv.ID,
		OwnerID:              actor.ID,
		Title:                nt.Title,
		Description:          nt.Description,
		Instructions:         nt.Instructions,
		Rubric:               nt.Rubric,
		DueDate:              nt.DueDate.UTC(),
		MaxPoints:            nt.MaxPoints,
		Priority:             nt.Priority,
		Status:               status,
		AssignmentType:       nt.AssignmentType,
		TeamIDs:              nonNil(nt.TeamIDs),
		StudentIDs:           nonNil(nt.StudentIDs),
		AllowLateSubmissions: nt.AllowLateSubmissions,
		MaxAttempts:          nt.MaxAttempts,
		AllowFileUpload:      nt.AllowFileUpload,
		AllowedFileTypes:     nonNil(nt.AllowedFileTypes),
		MaxFileSize:          nt.MaxFileSize,
		RequireComment:       nt.RequireComment,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if t.AssignmentType == AssignmentTeam {
		t.StudentIDs = []string{}
	} else {
		t.TeamIDs = []string{}
	}

	t, err = svc.repo.CreateTask(ctx, t)
	if err != nil {
		return Task{}, errors.Wrap(err, "creating task")
	}

	if t.Status == StatusActive && nt.notifyStudents() {
		svc.notifyPublished(ctx, srv, t)
	}
	return t, nil
}

// checkAssignees checks that the teams belong to srv and that the students are members of it.
func (svc *Service) checkAssignees(ctx context.Context, srv space.Server, typ AssignmentType, teamIDs, studentIDs []string) error {
	if typ == AssignmentTeam {
		teams, err := svc.spaces.ListTeams(ctx, space.TeamFilter{IDs: teamIDs, ServerID: srv.ID})
		if err != nil {
			return errors.Wrap(err, "listing teams")
		}
		for _, id := range teamIDs {
			found := false
			for _, tm := range teams {
				if tm.ID == id {
					found = true
					break
				}
			}
			if !found {
				return space.ErrTeamNotFound
			}
		}
		return nil
	}
	for _, id := range studentIDs {
		if !srv.HasMember(id) {
			return core.NewFieldValidationError("student_ids", "every student must be a member of the server")
		}
	}
	return nil
}

// Publish makes a draft task active and notifies the assigned students.
func (svc *Service) Publish(ctx context.Context, taskID string, actor user.User) (Task, error) {
	t, err := svc.getManagedTask(ctx, taskID, actor)
	if err != nil {
		return Task{}, err
	}
	if t.Status != StatusDraft {
		return Task{}, ErrNotPublishable
	}
	if !t.DueDate.After(svc.clock()) && !t.AllowLateSubmissions {
		return Task{}, core.NewFieldValidationError("due_date", "due date must be in the future")
	}

	t.Status = StatusActive
	t.UpdatedAt = svc.clock()
	t, err = svc.repo.UpdateTask(ctx, t)
	if err != nil {
		return Task{}, errors.Wrap(err, "updating task")
	}

	if srv, err := svc.spaces.GetServer(ctx, t.ServerID); err == nil {
		svc.notifyPublished(ctx, srv, t)
	} else {
		svc.logger.Error("task.Publish: finding server "+t.ServerID, err)
	}
	return t, nil
}

// UpdateTask edits a draft or active task. a changed due date must still be in the future.
func (svc *Service) UpdateTask(ctx context.Context, taskID string, ut UpdateTask, actor user.User) (Task, error) {
	t, err := svc.getManagedTask(ctx, taskID, actor)
	if err != nil {
		return Task{}, err
	}
	if t.Status == StatusArchived {
		return Task{}, ErrTaskArchived
	}

	if ut.Title != nil {
		t.Title = core.CleanString(*ut.Title)
	}
	if ut.Description != nil {
		t.Description = core.CleanString(*ut.Description)
	}
	if ut.Instructions != nil {
		t.Instructions = core.CleanString(*ut.Instructions)
	}
	if ut.Rubric != nil {
		t.Rubric = core.CleanString(*ut.Rubric)
	}
	if ut.DueDate != nil && !ut.DueDate.Equal(t.DueDate) {
		if !ut.DueDate.After(svc.clock()) {
			return Task{}, core.NewFieldValidationError("due_date", "due date must be in the future")
		}
		t.DueDate = ut.DueDate.UTC()
	}
	if ut.MaxPoints != nil {
		if *ut.MaxPoints < 1 {
			return Task{}, core.NewFieldValidationError("max_points", "max points must be at least 1")
		}
		t.MaxPoints = *ut.MaxPoints
	}
	if ut.Priority != nil {
		t.Priority = *ut.Priority
	}
	if ut.AllowLateSubmissions != nil {
		t.AllowLateSubmissions = *ut.AllowLateSubmissions
	}
	if ut.MaxAttempts != nil {
		if *ut.MaxAttempts < 1 {
			return Task{}, core.NewFieldValidationError("max_attempts", "max attempts must be at least 1")
		}
		t.MaxAttempts = *ut.MaxAttempts
	}
	if ut.AllowFileUpload != nil {
		t.AllowFileUpload = *ut.AllowFileUpload
	}
	if ut.AllowedFileTypes != nil {
		t.AllowedFileTypes = cleanFileTypes(ut.AllowedFileTypes)
	}
	if ut.MaxFileSize != nil {
		if *ut.MaxFileSize < 1 {
			return Task{}, core.NewFieldValidationError("max_file_size", "max file size must be at least 1 byte")
		}
		t.MaxFileSize = *ut.MaxFileSize
	}
	if ut.RequireComment != nil {
		t.RequireComment = *ut.RequireComment
	}

	if ut.MaxPoints != nil || ut.MaxAttempts != nil {
		subs, err := svc.repo.ListSubmissions(ctx, SubmissionFilter{TaskIDs: []string{t.ID}})
		if err != nil {
			return Task{}, errors.Wrap(err, "listing submissions")
		}
		if err = CheckLimits(t, subs); err != nil {
			return Task{}, err
		}
	}

	t.UpdatedAt = svc.clock()
	t, err = svc.repo.UpdateTask(ctx, t)
	return t, errors.Wrap(err, "updating task")
}

// ArchiveTask closes an active task; archived is terminal.
func (svc *Service) ArchiveTask(ctx context.Context, taskID string, actor user.User) (Task, error) {
	t, err := svc.getManagedTask(ctx, taskID, actor)
	if err != nil {
		return Task{}, err
	}
	if err = CheckCanArchive(t); err != nil {
		return Task{}, err
	}
	t.Status = StatusArchived
	t.UpdatedAt = svc.clock()
	t, err = svc.repo.UpdateTask(ctx, t)
	return t, errors.Wrap(err, "archiving task")
}

// DeleteTask deletes the task, its submissions and their files, whatever its status.
func (svc *Service) DeleteTask(ctx context.Context, taskID string, actor user.User) error {
	if _, err := svc.getManagedTask(ctx, taskID, actor); err != nil {
		return err
	}
	subs, err := svc.repo.DeleteTask(ctx, taskID)
	if err != nil {
		return errors.Wrap(err, "deleting task")
	}
	for _, sub := range subs {
		svc.releaseFiles(ctx, sub.Files)
	}
	return nil
}

// GetTask returns the task if actor can see it: drafts are only visible to their managers.
func (svc *Service) GetTask(ctx context.Context, taskID string, actor user.User) (Task, error) {
	t, err := svc.repo.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if CanManage(t, actor) {
		return t, nil
	}
	srv, err := svc.spaces.GetServer(ctx, t.ServerID)
	if err != nil {
		if core.IsNotFoundError(err) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, errors.Wrap(err, "finding server")
	}
	if !srv.CanAccess(actor) || (t.Status == StatusDraft && !srv.CanManage(actor)) {
		return Task{}, ErrTaskNotFound
	}
	return t, nil
}

// ListByServer returns the tasks of a server; drafts are left out for non managers.
func (svc *Service) ListByServer(ctx context.Context, serverID string, actor user.User) ([]Task, error) {
	srv, err := svc.spaces.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if !srv.CanAccess(actor) {
		return nil, space.ErrServerNotFound
	}

	filter := Filter{ServerIDs: []string{srv.ID}}
	if !srv.CanManage(actor) {
		filter.Statuses = []Status{StatusActive, StatusArchived}
	}
	return svc.repo.ListTasks(ctx, filter)
}

// ListForStudent returns the published tasks assigned to actor with their latest attempt.
// CanSubmit and CanResubmit are evaluated now.
func (svc *Service) ListForStudent(ctx context.Context, actor user.User) ([]StudentTask, error) {
	servers, err := svc.spaces.ListServers(ctx, actor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing servers")
	}
	serverIDs := make([]string, 0, len(servers))
	for _, srv := range servers {
		if srv.HasMember(actor.ID) {
			serverIDs = append(serverIDs, srv.ID)
		}
	}
	if len(serverIDs) == 0 {
		return []StudentTask{}, nil
	}

	teams, err := svc.spaces.ListTeams(ctx, space.TeamFilter{MemberID: actor.ID})
	if err != nil {
		return nil, errors.Wrap(err, "listing teams")
	}
	tasks, err := svc.repo.ListTasks(ctx, Filter{
		ServerIDs: serverIDs,
		Statuses:  []Status{StatusActive, StatusArchived},
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing tasks")
	}

	assigned := make([]Task, 0, len(tasks))
	taskIDs := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, ok := assignedTeam(t, actor.ID, teams); ok {
			assigned = append(assigned, t)
			taskIDs = append(taskIDs, t.ID)
		}
	}
	if len(assigned) == 0 {
		return []StudentTask{}, nil
	}

	subs, err := svc.repo.ListSubmissions(ctx, SubmissionFilter{TaskIDs: taskIDs, StudentID: actor.ID})
	if err != nil {
		return nil, errors.Wrap(err, "listing submissions")
	}
	byTask := make(map[string][]Submission, len(assigned))
	for _, s := range subs {
		byTask[s.TaskID] = append(byTask[s.TaskID], s)
	}

	now := svc.clock()
	result := make([]StudentTask, 0, len(assigned))
	for _, t := range assigned {
		st := StudentTask{Task: t, Attempts: len(byTask[t.ID])}
		if latest, ok := LatestAttempts(byTask[t.ID])[actor.ID]; ok {
			latest := latest
			st.Latest = &latest
			st.CanResubmit = t.Status == StatusActive && CanResubmit(latest, t, now)
		}
		st.CanSubmit = CheckCanSubmit(t, st.Attempts, now) == nil
		result = append(result, st)
	}
	return result, nil
}

// ListForFaculty returns the tasks actor owns with their submission statistics.
func (svc *Service) ListForFaculty(ctx context.Context, actor user.User) ([]FacultyTask, error) {
	if !actor.CanTeach() {
		return nil, core.NewAuthorizationError("only faculty can list their tasks")
	}
	tasks, err := svc.repo.ListTasks(ctx, Filter{OwnerID: actor.ID})
	if err != nil {
		return nil, errors.Wrap(err, "listing tasks")
	}
	result := make([]FacultyTask, 0, len(tasks))
	for _, t := range tasks {
		stats, err := svc.repo.Stats(ctx, t.ID)
		if err != nil {
			return nil, errors.Wrap(err, "computing task stats")
		}
		result = append(result, FacultyTask{Task: t, Stats: stats})
	}
	return result, nil
}

func (svc *Service) Stats(ctx context.Context, taskID string, actor user.User) (Stats, error) {
	if _, err := svc.getManagedTask(ctx, taskID, actor); err != nil {
		return Stats{}, err
	}
	return svc.repo.Stats(ctx, taskID)
}

// =========================================================================
// Submissions

// Submit creates the next attempt of actor at the task.
// nothing is kept when any check fails: files stored before a failed append are released.
func (svc *Service) Submit(ctx context.Context, taskID string, ns NewSubmission, actor user.User) (Submission, error) {
	t, err := svc.GetTask(ctx, taskID, actor)
	if err != nil {
		return Submission{}, err
	}
	srv, err := svc.spaces.GetServer(ctx, t.ServerID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "finding server")
	}
	teamID, err := svc.assignment(ctx, t, srv, actor)
	if err != nil {
		return Submission{}, err
	}

	now := svc.clock()
	attempts, err := svc.repo.CountAttempts(ctx, t.ID, actor.ID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "counting attempts")
	}
	if err = CheckCanSubmit(t, attempts, now); err != nil {
		return Submission{}, err
	}

	ns.Clean()
	if err = ValidateSubmission(t, ns); err != nil {
		return Submission{}, err
	}

	refs, err := svc.storeFiles(ctx, t, actor, ns.Files)
	if err != nil {
		return Submission{}, err
	}

	sub, err := svc.repo.AppendSubmission(ctx, Submission{
		TaskID:        t.ID,
		StudentID:     actor.ID,
		TeamID:        teamID,
		Comment:       ns.Comment,
		Collaborators: nonNil(ns.Collaborators),
		Files:         refs,
		SubmittedAt:   now,
		IsLate:        IsLate(t, now),
		Status:        SubmissionSubmitted,
	}, t.MaxAttempts)
	if err != nil {
		svc.releaseFiles(ctx, refs)
		if errors.Cause(err) == ErrAttemptsExhausted {
			return Submission{}, ErrAttemptsExhausted
		}
		return Submission{}, errors.Wrap(err, "appending submission")
	}

	msg := fmt.Sprintf("%s submitted attempt %d of %q.", displayName(actor), sub.AttemptNumber, t.Title)
	if sub.IsLate {
		msg = fmt.Sprintf("%s submitted attempt %d of %q after the due date.", displayName(actor), sub.AttemptNumber, t.Title)
	}
	svc.sink.Publish(ctx, notification.Event{
		Type:         notification.TypeSubmissionCreated,
		RecipientIDs: []string{t.OwnerID},
		Title:        "New submission: " + t.Title,
		Message:      msg,
		TaskID:       t.ID,
		ServerID:     t.ServerID,
	})
	return sub, nil
}

// assignment checks that actor is assigned to t and returns the team they submit for, if any.
func (svc *Service) assignment(ctx context.Context, t Task, srv space.Server, actor user.User) (string, error) {
	if !srv.HasMember(actor.ID) {
		return "", core.NewAuthorizationError(errNotAssigned)
	}
	var teams []space.Team
	if t.AssignmentType == AssignmentTeam {
		var err error
		teams, err = svc.spaces.ListTeams(ctx, space.TeamFilter{IDs: t.TeamIDs, MemberID: actor.ID})
		if err != nil {
			return "", errors.Wrap(err, "listing teams")
		}
	}
	teamID, ok := assignedTeam(t, actor.ID, teams)
	if !ok {
		return "", core.NewAuthorizationError(errNotAssigned)
	}
	return teamID, nil
}

// assignedTeam reports whether studentID, a member of t's server, is assigned to t.
// for team tasks, the first of studentTeams assigned to t is returned.
func assignedTeam(t Task, studentID string, studentTeams []space.Team) (string, bool) {
	switch t.AssignmentType {
	case AssignmentTeam:
		for _, tm := range studentTeams {
			if tm.HasMember(studentID) && core.ContainsString(t.TeamIDs, tm.ID) {
				return tm.ID, true
			}
		}
		return "", false
	default:
		if len(t.StudentIDs) == 0 {
			return "", true
		}
		return "", core.ContainsString(t.StudentIDs, studentID)
	}
}

func (svc *Service) storeFiles(ctx context.Context, t Task, actor user.User, files []FileUpload) ([]FileRef, error) {
	refs := make([]FileRef, 0, len(files))
	for _, f := range files {
		ref, err := svc.files.Store(ctx, f.Content, FileMeta{
			Name:        f.Name,
			ContentType: f.ContentType,
			Size:        f.Size,
			TaskID:      t.ID,
			StudentID:   actor.ID,
		})
		if err != nil {
			svc.releaseFiles(ctx, refs)
			return nil, errors.Wrapf(err, "storing file %q", f.Name)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (svc *Service) releaseFiles(ctx context.Context, refs []FileRef) {
	for _, ref := range refs {
		if err := svc.files.Delete(ctx, ref.ID); err != nil {
			svc.logger.Error("task: releasing file "+ref.ID, err)
		}
	}
}

// Grade records grade and feedback on the submission. the last grade given wins.
func (svc *Service) Grade(ctx context.Context, submissionID string, grade int, feedback string, actor user.User) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	t, err := svc.getManagedTask(ctx, sub.TaskID, actor)
	if err != nil {
		return Submission{}, err
	}
	return svc.grade(ctx, t, sub, grade, feedback, actor)
}

// GradeLatest grades the latest attempt of studentID at the task.
func (svc *Service) GradeLatest(ctx context.Context, taskID string, gs GradeSubmission, actor user.User) (Submission, error) {
	t, err := svc.getManagedTask(ctx, taskID, actor)
	if err != nil {
		return Submission{}, err
	}
	if gs.Grade == nil {
		return Submission{}, core.NewFieldValidationError("grade", errRequired)
	}
	subs, err := svc.repo.ListSubmissions(ctx, SubmissionFilter{TaskIDs: []string{t.ID}, StudentID: gs.StudentID})
	if err != nil {
		return Submission{}, errors.Wrap(err, "listing submissions")
	}
	latest, ok := LatestAttempts(subs)[gs.StudentID]
	if !ok {
		return Submission{}, ErrSubmissionNotFound
	}
	return svc.grade(ctx, t, latest, *gs.Grade, gs.Feedback, actor)
}

func (svc *Service) grade(ctx context.Context, t Task, sub Submission, grade int, feedback string, actor user.User) (Submission, error) {
	if err := ValidateGrade(t, grade); err != nil {
		return Submission{}, err
	}
	if err := CheckCanGrade(sub); err != nil {
		return Submission{}, err
	}

	now := svc.clock()
	feedback = core.CleanString(feedback)
	sub.Status = SubmissionGraded
	sub.Grade = &grade
	sub.Feedback = &feedback
	sub.GradedAt = &now
	sub.GradedBy = actor.ID

	sub, err := svc.repo.UpdateSubmission(ctx, sub)
	if err != nil {
		return Submission{}, errors.Wrap(err, "grading submission")
	}

	svc.sink.Publish(ctx, notification.Event{
		Type:         notification.TypeSubmissionGraded,
		RecipientIDs: []string{sub.StudentID},
		Title:        "Submission graded: " + t.Title,
		Message:      fmt.Sprintf("Attempt %d of %q was graded %d/%d.", sub.AttemptNumber, t.Title, grade, t.MaxPoints),
		TaskID:       t.ID,
		ServerID:     t.ServerID,
	})
	return sub, nil
}

// MarkUnderReview flags a submitted attempt as being reviewed. it does not block grading.
func (svc *Service) MarkUnderReview(ctx context.Context, submissionID string, actor user.User) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	if _, err = svc.getManagedTask(ctx, sub.TaskID, actor); err != nil {
		return Submission{}, err
	}
	if err = CheckCanMarkUnderReview(sub); err != nil {
		return Submission{}, err
	}
	sub, err = svc.repo.MarkUnderReview(ctx, sub.ID)
	if err != nil {
		if err == ErrNotReviewable || err == ErrSubmissionNotFound {
			return Submission{}, err
		}
		return Submission{}, errors.Wrap(err, "updating submission")
	}
	return sub, nil
}

// Return hands a graded submission back to its student.
func (svc *Service) Return(ctx context.Context, submissionID string, actor user.User) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	t, err := svc.getManagedTask(ctx, sub.TaskID, actor)
	if err != nil {
		return Submission{}, err
	}
	if err = CheckCanReturn(sub); err != nil {
		return Submission{}, err
	}
	sub.Status = SubmissionReturned
	sub, err = svc.repo.UpdateSubmission(ctx, sub)
	if err != nil {
		return Submission{}, errors.Wrap(err, "updating submission")
	}

	msg := fmt.Sprintf("Attempt %d of %q was returned to you.", sub.AttemptNumber, t.Title)
	if CanResubmit(sub, t, svc.clock()) && t.Status == StatusActive {
		msg += " You can submit a new attempt."
	}
	svc.sink.Publish(ctx, notification.Event{
		Type:         notification.TypeSubmissionReturned,
		RecipientIDs: []string{sub.StudentID},
		Title:        "Submission returned: " + t.Title,
		Message:      msg,
		TaskID:       t.ID,
		ServerID:     t.ServerID,
	})
	return sub, nil
}

// ListSubmissions returns every attempt at the task to its managers, and their own attempts to students.
func (svc *Service) ListSubmissions(ctx context.Context, taskID string, actor user.User) ([]Submission, error) {
	t, err := svc.GetTask(ctx, taskID, actor)
	if err != nil {
		return nil, err
	}
	filter := SubmissionFilter{TaskIDs: []string{t.ID}}
	if !CanManage(t, actor) {
		filter.StudentID = actor.ID
	}
	return svc.repo.ListSubmissions(ctx, filter)
}

// =========================================================================
// Helpers

// getManagedTask returns the task if actor owns it (or is an admin).
func (svc *Service) getManagedTask(ctx context.Context, taskID string, actor user.User) (Task, error) {
	t, err := svc.repo.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if !CanManage(t, actor) {
		return Task{}, core.NewAuthorizationError(errNotOwner)
	}
	return t, nil
}

func (svc *Service) notifyPublished(ctx context.Context, srv space.Server, t Task) {
	recipients, err := svc.assignedStudents(ctx, srv, t)
	if err != nil {
		svc.logger.Error("task: finding assigned students of "+t.ID, err)
		return
	}
	svc.sink.Publish(ctx, notification.Event{
		Type:         notification.TypeTaskPublished,
		RecipientIDs: recipients,
		Title:        "New task: " + t.Title,
		Message:      fmt.Sprintf("%q is due %s.", t.Title, t.DueDate.Format("Mon, 02 Jan 2006 15:04 MST")),
		TaskID:       t.ID,
		ServerID:     t.ServerID,
	})
}

func (svc *Service) assignedStudents(ctx context.Context, srv space.Server, t Task) ([]string, error) {
	switch {
	case t.AssignmentType == AssignmentTeam:
		teams, err := svc.spaces.ListTeams(ctx, space.TeamFilter{IDs: t.TeamIDs, ServerID: srv.ID})
		if err != nil {
			return nil, err
		}
		var ids []string
		for _, tm := range teams {
			ids = append(ids, tm.MemberIDs...)
		}
		return ids, nil
	case len(t.StudentIDs) > 0:
		return t.StudentIDs, nil
	default:
		return srv.MemberIDs, nil
	}
}

func displayName(usr user.User) string {
	switch {
	case usr.Name != "":
		return usr.Name
	case usr.Username != "":
		return usr.Username
	default:
		return usr.Email
	}
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
