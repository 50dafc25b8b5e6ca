package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/task"
)

type taskRepository struct {
	db *taskTable
}

var _ task.Repository = (*taskRepository)(nil) // interface compliance check

func NewTaskRepository(db *DB) *taskRepository {
	return &taskRepository{db: db.task}
}

func copyTask(t *task.Task) task.Task {
	c := *t
	c.TeamIDs = copyStrings(t.TeamIDs)
	c.StudentIDs = copyStrings(t.StudentIDs)
	c.AllowedFileTypes = copyStrings(t.AllowedFileTypes)
	return c
}

func copySubmission(s *task.Submission) task.Submission {
	c := *s
	c.Collaborators = copyStrings(s.Collaborators)
	c.Files = make([]task.FileRef, len(s.Files))
	copy(c.Files, s.Files)
	if s.Grade != nil {
		g := *s.Grade
		c.Grade = &g
	}
	if s.Feedback != nil {
		f := *s.Feedback
		c.Feedback = &f
	}
	if s.GradedAt != nil {
		at := *s.GradedAt
		c.GradedAt = &at
	}
	return c
}

func (repo *taskRepository) CreateTask(_ context.Context, t task.Task) (task.Task, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t.ID = uuid.New().String()
	c := copyTask(&t)
	repo.db.tasks[t.ID] = &c
	return t, nil
}

func (repo *taskRepository) GetTask(_ context.Context, id string) (task.Task, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.tasks[id]; ok {
		return copyTask(t), nil
	}
	return task.Task{}, task.ErrTaskNotFound
}

func (repo *taskRepository) UpdateTask(_ context.Context, t task.Task) (task.Task, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.tasks[t.ID]; !ok {
		return task.Task{}, task.ErrTaskNotFound
	}
	c := copyTask(&t)
	repo.db.tasks[t.ID] = &c
	return t, nil
}

func (repo *taskRepository) ListTasks(_ context.Context, filter task.Filter) ([]task.Task, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tasks := make([]task.Task, 0)
	for _, t := range repo.db.tasks {
		if len(filter.IDs) > 0 && !core.ContainsString(filter.IDs, t.ID) {
			continue
		}
		if len(filter.ServerIDs) > 0 && !core.ContainsString(filter.ServerIDs, t.ServerID) {
			continue
		}
		if filter.OwnerID != "" && t.OwnerID != filter.OwnerID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		tasks = append(tasks, copyTask(t))
	}
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return tasks, nil
}

func containsStatus(statuses []task.Status, s task.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (repo *taskRepository) DeleteTask(_ context.Context, id string) ([]task.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.tasks[id]; !ok {
		return nil, task.ErrTaskNotFound
	}
	var deleted []task.Submission
	for sid, s := range repo.db.submissions {
		if s.TaskID == id {
			deleted = append(deleted, copySubmission(s))
			delete(repo.db.submissions, sid)
		}
	}
	delete(repo.db.tasks, id)
	return deleted, nil
}

// countAttempts must be called with the lock held.
func (repo *taskRepository) countAttempts(taskID, studentID string) int {
	cnt := 0
	for _, s := range repo.db.submissions {
		if s.TaskID == taskID && s.StudentID == studentID {
			cnt++
		}
	}
	return cnt
}

func (repo *taskRepository) AppendSubmission(_ context.Context, sub task.Submission, maxAttempts int) (task.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.tasks[sub.TaskID]; !ok {
		return task.Submission{}, task.ErrTaskNotFound
	}
	cnt := repo.countAttempts(sub.TaskID, sub.StudentID)
	if cnt >= maxAttempts {
		return task.Submission{}, task.ErrAttemptsExhausted
	}

	sub.ID = uuid.New().String()
	sub.AttemptNumber = cnt + 1
	c := copySubmission(&sub)
	repo.db.submissions[sub.ID] = &c
	return sub, nil
}

func (repo *taskRepository) GetSubmission(_ context.Context, id string) (task.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.submissions[id]; ok {
		return copySubmission(s), nil
	}
	return task.Submission{}, task.ErrSubmissionNotFound
}

func (repo *taskRepository) UpdateSubmission(_ context.Context, sub task.Submission) (task.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.submissions[sub.ID]; !ok {
		return task.Submission{}, task.ErrSubmissionNotFound
	}
	c := copySubmission(&sub)
	repo.db.submissions[sub.ID] = &c
	return sub, nil
}

func (repo *taskRepository) MarkUnderReview(_ context.Context, id string) (task.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.submissions[id]
	if !ok {
		return task.Submission{}, task.ErrSubmissionNotFound
	}
	if s.Status != task.SubmissionSubmitted {
		return task.Submission{}, task.ErrNotReviewable
	}
	s.Status = task.SubmissionUnderReview
	return copySubmission(s), nil
}

func (repo *taskRepository) ListSubmissions(_ context.Context, filter task.SubmissionFilter) ([]task.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subs := make([]task.Submission, 0)
	for _, s := range repo.db.submissions {
		if len(filter.TaskIDs) > 0 && !core.ContainsString(filter.TaskIDs, s.TaskID) {
			continue
		}
		if filter.StudentID != "" && s.StudentID != filter.StudentID {
			continue
		}
		subs = append(subs, copySubmission(s))
	}
	sort.Slice(subs, func(i, j int) bool {
		a, b := subs[i], subs[j]
		if a.TaskID != b.TaskID {
			return a.TaskID < b.TaskID
		}
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		return a.AttemptNumber < b.AttemptNumber
	})
	return subs, nil
}

func (repo *taskRepository) CountAttempts(_ context.Context, taskID, studentID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.countAttempts(taskID, studentID), nil
}

// Stats counts every attempt by status; the average grade is over graded and returned attempts.
func (repo *taskRepository) Stats(_ context.Context, taskID string) (task.Stats, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	stats := task.Stats{TaskID: taskID}
	students := make(map[string]struct{})
	var sum, graded int
	for _, s := range repo.db.submissions {
		if s.TaskID != taskID {
			continue
		}
		stats.Total++
		students[s.StudentID] = struct{}{}
		switch s.Status {
		case task.SubmissionSubmitted:
			stats.Submitted++
		case task.SubmissionUnderReview:
			stats.UnderReview++
		case task.SubmissionGraded:
			stats.Graded++
		case task.SubmissionReturned:
			stats.Returned++
		}
		if s.IsLate {
			stats.Late++
		}
		if s.Grade != nil {
			sum += *s.Grade
			graded++
		}
	}
	stats.Students = len(students)
	if graded > 0 {
		avg := float64(sum) / float64(graded)
		stats.AverageGrade = &avg
	}
	return stats, nil
}
