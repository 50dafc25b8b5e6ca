package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classync/classync/apps/api/echo"
	"github.com/classync/classync/core/task"
	"github.com/classync/classync/core/user"
	"github.com/classync/classync/tests"
)

func iPtr(i int) *int { return &i }

func Test_taskApi_create(t *testing.T) {
	resetDB(t)

	faculty := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	colleague := testutil.CreateUser(t, usrRepo, "Colleague", "colleague", "colleague@test.cd", "", []string{user.RoleFaculty}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	srv := testutil.CreateServer(t, spaceRepo, faculty, "Algebra", student.ID)

	newTask := func(serverID string, due time.Time, mods ...func(*task.NewTask)) []byte {
		req := echoapi.CreateTaskRequest{
			ServerID: serverID,
			NewTask: task.NewTask{
				Title:          "Homework 1",
				DueDate:        due,
				MaxPoints:      20,
				AssignmentType: task.AssignmentIndividual,
			},
		}
		for _, m := range mods {
			m(&req.NewTask)
		}
		return marchallObj(t, req)
	}
	tomorrow := time.Now().Add(24 * time.Hour).UTC()
	facultyToken := getToken(t, faculty)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Faculty required", token: getToken(t, student), body: newTask(srv.ID, tomorrow),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "server required", token: facultyToken, body: newTask("", tomorrow), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"server_id": "this field is required"}),
		},
		{
			name: "due date in the past", token: facultyToken, body: newTask(srv.ID, time.Now().Add(-time.Hour)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"due_date": "due date must be in the future"}),
		},
		{
			name: "team task without teams", token: facultyToken, wantCode: http.StatusBadRequest,
			body: newTask(srv.ID, tomorrow, func(nt *task.NewTask) { nt.AssignmentType = task.AssignmentTeam }),
			wantData: marchallObj(t, map[string]string{"team_ids": "at least one team must be assigned"}),
		},
		{
			name: "unknown server", token: facultyToken, body: newTask("lol", tomorrow),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "server not found"}),
		},
		{
			name: "not the server owner", token: getToken(t, colleague), body: newTask(srv.ID, tomorrow),
			wantCode: http.StatusForbidden,
		},
		{
			name: "student outside the server", token: facultyToken, wantCode: http.StatusBadRequest,
			body: newTask(srv.ID, tomorrow, func(nt *task.NewTask) { nt.StudentIDs = []string{colleague.ID} }),
		},
		{name: "draft created", token: facultyToken, body: newTask(srv.ID, tomorrow), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/tasks/create", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var tsk task.Task
				unmarshal(t, rec, &tsk)
				assert.NotEmpty(t, tsk.ID)
				assert.Equal(t, task.StatusDraft, tsk.Status)
				assert.Equal(t, task.PriorityMedium, tsk.Priority)
				assert.Equal(t, task.DefaultMaxAttempts, tsk.MaxAttempts)
				assert.Equal(t, task.DefaultMaxFileSize, tsk.MaxFileSize)
				assert.Equal(t, faculty.ID, tsk.OwnerID)

				// drafts do not notify
				notifs, err := notifRepo.ListNotifications(context.Background(), student.ID, false, 0)
				require.NoError(t, err)
				assert.Empty(t, notifs)
			}
		})
	}
}

func Test_taskApi_publishAndVisibility(t *testing.T) {
	resetDB(t)

	faculty := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	outsider := testutil.CreateUser(t, usrRepo, "Out", "out", "out@test.cd", "", []string{user.RoleStudent}, true)
	srv := testutil.CreateServer(t, spaceRepo, faculty, "Algebra", student.ID)
	draft := testutil.CreateTask(t, taskRepo, srv, "Draft", func(tsk *task.Task) { tsk.Status = task.StatusDraft })

	facultyToken := getToken(t, faculty)
	studentToken := getToken(t, student)

	runTests(t, []httpTest{
		{name: "draft hidden from students", method: http.MethodGet, path: "/tasks/" + draft.ID, token: studentToken, wantCode: http.StatusNotFound},
		{name: "draft hidden from server listing", method: http.MethodGet, path: "/tasks/server/" + srv.ID, token: studentToken, wantData: marchallList(t)},
		{name: "owner sees draft", method: http.MethodGet, path: "/tasks/" + draft.ID, token: facultyToken, wantData: marchallObj(t, draft)},
		{name: "student cannot publish", method: http.MethodPost, path: "/tasks/" + draft.ID + "/publish", token: studentToken, wantCode: http.StatusForbidden},
		{name: "publish", method: http.MethodPost, path: "/tasks/" + draft.ID + "/publish", token: facultyToken},
		{
			name: "publish twice", method: http.MethodPost, path: "/tasks/" + draft.ID + "/publish", token: facultyToken,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "only draft tasks can be published"}),
		},
		{name: "outsider", method: http.MethodGet, path: "/tasks/" + draft.ID, token: getToken(t, outsider), wantCode: http.StatusNotFound},
		{name: "outsider server listing", method: http.MethodGet, path: "/tasks/server/" + srv.ID, token: getToken(t, outsider), wantCode: http.StatusNotFound},
	})

	tsk, err := taskRepo.GetTask(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusActive, tsk.Status)

	notifs, err := notifRepo.ListNotifications(context.Background(), student.ID, false, 0)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, draft.ID, notifs[0].TaskID)
	assert.False(t, notifs[0].IsRead)

	t.Run("student sees published task", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/tasks/"+draft.ID, studentToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, tsk)}, rec)
	})
}

func Test_taskApi_updateArchiveDelete(t *testing.T) {
	resetDB(t)

	faculty := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	colleague := testutil.CreateUser(t, usrRepo, "Colleague", "colleague", "colleague@test.cd", "", []string{user.RoleFaculty}, true)
	srv := testutil.CreateServer(t, spaceRepo, faculty, "Algebra")
	tsk := testutil.CreateTask(t, taskRepo, srv, "Homework")
	facultyToken := getToken(t, faculty)
	path := "/tasks/" + tsk.ID

	t.Run("update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPatch, path, facultyToken, []byte(`{"title": " Homework 2 ", "max_attempts": 3}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got task.Task
		unmarshal(t, rec, &got)
		assert.Equal(t, "Homework 2", got.Title)
		assert.Equal(t, 3, got.MaxAttempts)
		assert.Equal(t, tsk.DueDate.Unix(), got.DueDate.Unix())
	})

	runTests(t, []httpTest{
		{
			name: "update: due date in the past", method: http.MethodPatch, path: path, token: facultyToken,
			body: []byte(`{"due_date": "2000-01-01T00:00:00Z"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"due_date": "due date must be in the future"}),
		},
		{
			name: "update: not the owner", method: http.MethodPatch, path: path, token: getToken(t, colleague),
			body: []byte(`{"title": "lol"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "only the owner of the task can do this"}),
		},
		{name: "archive", method: http.MethodPost, path: path + "/archive", token: facultyToken},
		{name: "archive twice", method: http.MethodPost, path: path + "/archive", token: facultyToken, wantCode: http.StatusConflict},
		{
			name: "update archived", method: http.MethodPatch, path: path, token: facultyToken,
			body: []byte(`{"title": "lol"}`), wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "archived tasks cannot be modified"}),
		},
		{name: "delete: not the owner", method: http.MethodDelete, path: path, token: getToken(t, colleague), wantCode: http.StatusForbidden},
		{name: "delete archived", method: http.MethodDelete, path: path, token: facultyToken, wantCode: http.StatusNoContent},
		{name: "deleted", method: http.MethodGet, path: path, token: facultyToken, wantCode: http.StatusNotFound},
	})
}

func Test_taskApi_submitAndGrade(t *testing.T) {
	resetDB(t)

	faculty := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, usrRepo, "Zero", "zero", "zero@test.cd", "", []string{user.RoleStudent}, true)
	outsider := testutil.CreateUser(t, usrRepo, "Out", "out", "out@test.cd", "", []string{user.RoleStudent}, true)
	srv := testutil.CreateServer(t, spaceRepo, faculty, "Algebra", student.ID, other.ID)
	tsk := testutil.CreateTask(t, taskRepo, srv, "Report", func(tsk *task.Task) {
		tsk.MaxPoints = 20
		tsk.AllowFileUpload = true
		tsk.AllowedFileTypes = []string{"pdf"}
		tsk.RequireComment = true
		tsk.StudentIDs = []string{student.ID}
	})

	facultyToken := getToken(t, faculty)
	studentToken := getToken(t, student)
	submitPath := "/tasks/" + tsk.ID + "/submit"
	report := formFile{name: "report.pdf", content: []byte("%PDF-1.4 lol")}

	t.Run("not assigned", func(t *testing.T) {
		req, rec := newMultipartRequest(t, submitPath, getToken(t, other), map[string]string{"comment": "hi"}, report)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "you are not assigned to this task"}),
		}, rec)
	})

	t.Run("outside the server", func(t *testing.T) {
		req, rec := newMultipartRequest(t, submitPath, getToken(t, outsider), map[string]string{"comment": "hi"}, report)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("comment required", func(t *testing.T) {
		req, rec := newMultipartRequest(t, submitPath, studentToken, nil, report)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"comment": "this field is required"}),
		}, rec)
	})

	t.Run("malformed collaborators", func(t *testing.T) {
		req, rec := newMultipartRequest(t, submitPath, studentToken, map[string]string{"comment": "hi", "collaborators": "lol"})
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("file type not allowed", func(t *testing.T) {
		req, rec := newMultipartRequest(t, submitPath, studentToken, map[string]string{"comment": "hi"},
			report, formFile{name: "virus.exe", content: []byte("MZ")})
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"files": `"virus.exe": file type not allowed`}),
		}, rec)

		// nothing kept from a rejected attempt
		cnt, err := taskRepo.CountAttempts(context.Background(), tsk.ID, student.ID)
		require.NoError(t, err)
		assert.Zero(t, cnt)
	})

	var sub task.Submission
	t.Run("submitted", func(t *testing.T) {
		req, rec := newMultipartRequest(t, submitPath, studentToken, map[string]string{
			"comment":       " my report ",
			"collaborators": `["Zero@Test.cd"]`,
		}, report)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &sub)

		assert.Equal(t, 1, sub.AttemptNumber)
		assert.Equal(t, "my report", sub.Comment)
		assert.Equal(t, []string{"zero@test.cd"}, sub.Collaborators)
		assert.Equal(t, task.SubmissionSubmitted, sub.Status)
		assert.False(t, sub.IsLate)
		assert.Nil(t, sub.Grade)
		require.Len(t, sub.Files, 1)
		assert.Equal(t, "report.pdf", sub.Files[0].Name)
		assert.Equal(t, int64(len(report.content)), sub.Files[0].Size)

		notifs, err := notifRepo.ListNotifications(context.Background(), faculty.ID, false, 0)
		require.NoError(t, err)
		require.Len(t, notifs, 1)
		assert.Equal(t, tsk.ID, notifs[0].TaskID)
	})

	runTests(t, []httpTest{
		{
			name: "attempts exhausted", method: http.MethodPost, path: submitPath, token: studentToken,
			body: marchallObj(t, task.NewSubmission{Comment: "again"}), wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "no attempts left for this task"}),
		},
		{
			name: "grade: faculty required", method: http.MethodPost, path: "/tasks/" + tsk.ID + "/grade", token: studentToken,
			body: marchallObj(t, task.GradeSubmission{StudentID: student.ID, Grade: iPtr(10)}), wantCode: http.StatusForbidden,
		},
		{
			name: "grade: out of range", method: http.MethodPost, path: "/tasks/" + tsk.ID + "/grade", token: facultyToken,
			body: marchallObj(t, task.GradeSubmission{StudentID: student.ID, Grade: iPtr(21)}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"grade": "grade must be between 0 and 20"}),
		},
		{
			name: "grade: no submission", method: http.MethodPost, path: "/tasks/" + tsk.ID + "/grade", token: facultyToken,
			body: marchallObj(t, task.GradeSubmission{StudentID: other.ID, Grade: iPtr(10)}), wantCode: http.StatusNotFound,
		},
		{
			name: "review", method: http.MethodPost, path: "/tasks/submissions/" + sub.ID + "/review", token: facultyToken,
		},
		{
			name: "review twice", method: http.MethodPost, path: "/tasks/submissions/" + sub.ID + "/review", token: facultyToken,
			wantCode: http.StatusConflict,
		},
		{
			name: "return before grading", method: http.MethodPost, path: "/tasks/submissions/" + sub.ID + "/return", token: facultyToken,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "only graded submissions can be returned"}),
		},
		{
			name: "grade latest", method: http.MethodPost, path: "/tasks/" + tsk.ID + "/grade", token: facultyToken,
			body: marchallObj(t, task.GradeSubmission{StudentID: student.ID, Grade: iPtr(15), Feedback: "ok"}),
		},
		{
			name: "regrade", method: http.MethodPost, path: "/tasks/submissions/" + sub.ID + "/grade", token: facultyToken,
			body: marchallObj(t, echoapi.GradeRequest{Grade: iPtr(18), Feedback: " good "}),
		},
		{
			name: "grade required", method: http.MethodPost, path: "/tasks/submissions/" + sub.ID + "/grade", token: facultyToken,
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"grade": "this field is required"}),
		},
		{name: "return", method: http.MethodPost, path: "/tasks/submissions/" + sub.ID + "/return", token: facultyToken},
		{
			name: "grade returned", method: http.MethodPost, path: "/tasks/submissions/" + sub.ID + "/grade", token: facultyToken,
			body: marchallObj(t, echoapi.GradeRequest{Grade: iPtr(1)}), wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "returned submissions cannot be graded"}),
		},
		{name: "unknown submission", method: http.MethodPost, path: "/tasks/submissions/lol/return", token: facultyToken, wantCode: http.StatusNotFound},
	})

	got, err := taskRepo.GetSubmission(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, task.SubmissionReturned, got.Status)
	require.NotNil(t, got.Grade)
	assert.Equal(t, 18, *got.Grade)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, "good", *got.Feedback)
	assert.Equal(t, faculty.ID, got.GradedBy)

	// graded twice, returned once
	notifs, err := notifRepo.ListNotifications(context.Background(), student.ID, false, 0)
	require.NoError(t, err)
	assert.Len(t, notifs, 3)

	t.Run("stats", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/tasks/"+tsk.ID+"/stats", facultyToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var stats task.Stats
		unmarshal(t, rec, &stats)
		assert.Equal(t, 1, stats.Total)
		assert.Equal(t, 1, stats.Students)
		assert.Equal(t, 1, stats.Returned)
		require.NotNil(t, stats.AverageGrade)
		assert.Equal(t, 18.0, *stats.AverageGrade)
	})

	t.Run("submissions", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/tasks/"+tsk.ID+"/submissions", facultyToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, got)}, rec)
	})
}

func Test_taskApi_lateSubmissions(t *testing.T) {
	resetDB(t)

	faculty := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	srv := testutil.CreateServer(t, spaceRepo, faculty, "Algebra", student.ID)
	pastDue := func(tsk *task.Task) { tsk.DueDate = time.Now().Add(-time.Hour).UTC() }
	closed := testutil.CreateTask(t, taskRepo, srv, "Closed", pastDue)
	late := testutil.CreateTask(t, taskRepo, srv, "Late", pastDue, func(tsk *task.Task) { tsk.AllowLateSubmissions = true })
	archived := testutil.CreateTask(t, taskRepo, srv, "Archived", func(tsk *task.Task) { tsk.Status = task.StatusArchived })
	studentToken := getToken(t, student)
	body := marchallObj(t, task.NewSubmission{Comment: "hi"})

	runTests(t, []httpTest{
		{
			name: "past due", method: http.MethodPost, path: "/tasks/" + closed.ID + "/submit", token: studentToken, body: body,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "the due date has passed and late submissions are not allowed"}),
		},
		{
			name: "archived", method: http.MethodPost, path: "/tasks/" + archived.ID + "/submit", token: studentToken, body: body,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "task is not active"}),
		},
		{
			name: "late allowed", method: http.MethodPost, path: "/tasks/" + late.ID + "/submit", token: studentToken,
			body: body, wantCode: http.StatusCreated,
		},
	})

	subs, err := taskRepo.ListSubmissions(context.Background(), task.SubmissionFilter{TaskIDs: []string{late.ID}})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].IsLate)
}

func Test_taskApi_projections(t *testing.T) {
	resetDB(t)

	faculty := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	teammate := testutil.CreateUser(t, usrRepo, "Zero", "zero", "zero@test.cd", "", []string{user.RoleStudent}, true)
	srv := testutil.CreateServer(t, spaceRepo, faculty, "Algebra", student.ID, teammate.ID)
	team := testutil.CreateTeam(t, spaceRepo, srv, "Reds", student.ID)

	now := time.Now().UTC()
	individual := testutil.CreateTask(t, taskRepo, srv, "Individual", func(tsk *task.Task) {
		tsk.DueDate = now.Add(time.Hour)
		tsk.MaxAttempts = 2
	})
	teamTask := testutil.CreateTask(t, taskRepo, srv, "Team", func(tsk *task.Task) {
		tsk.DueDate = now.Add(2 * time.Hour)
		tsk.AssignmentType = task.AssignmentTeam
		tsk.TeamIDs = []string{team.ID}
	})
	testutil.CreateTask(t, taskRepo, srv, "Draft", func(tsk *task.Task) { tsk.Status = task.StatusDraft })

	studentToken := getToken(t, student)
	body := marchallObj(t, task.NewSubmission{Comment: "hi"})
	for _, id := range []string{individual.ID, teamTask.ID} {
		req, rec := newAuthRequest(http.MethodPost, "/tasks/"+id+"/submit", studentToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	t.Run("team submissions carry the team", func(t *testing.T) {
		subs, err := taskRepo.ListSubmissions(context.Background(), task.SubmissionFilter{TaskIDs: []string{teamTask.ID}})
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, team.ID, subs[0].TeamID)
	})

	t.Run("teammate outside the team", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/tasks/"+teamTask.ID+"/submit", getToken(t, teammate), body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("student tasks", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/tasks/student-tasks", studentToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var tasks []task.StudentTask
		unmarshal(t, rec, &tasks)
		require.Len(t, tasks, 2)
		assert.Equal(t, individual.ID, tasks[0].ID)
		assert.Equal(t, 1, tasks[0].Attempts)
		assert.True(t, tasks[0].CanSubmit)
		assert.True(t, tasks[0].CanResubmit)
		require.NotNil(t, tasks[0].Latest)
		assert.Equal(t, 1, tasks[0].Latest.AttemptNumber)

		assert.Equal(t, teamTask.ID, tasks[1].ID)
		assert.False(t, tasks[1].CanSubmit)
		assert.False(t, tasks[1].CanResubmit)
	})

	t.Run("teammate sees only the individual task", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/tasks/student-tasks", getToken(t, teammate))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var tasks []task.StudentTask
		unmarshal(t, rec, &tasks)
		require.Len(t, tasks, 1)
		assert.Equal(t, individual.ID, tasks[0].ID)
		assert.Nil(t, tasks[0].Latest)
		assert.True(t, tasks[0].CanSubmit)
	})

	t.Run("faculty tasks", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/tasks/faculty", getToken(t, faculty))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var tasks []task.FacultyTask
		unmarshal(t, rec, &tasks)
		require.Len(t, tasks, 3)
		total := 0
		for _, ft := range tasks {
			total += ft.Stats.Submitted
		}
		assert.Equal(t, 2, total)
	})

	t.Run("faculty tasks: faculty required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/tasks/faculty", studentToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("server listing", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/tasks/server/"+srv.ID, getToken(t, faculty))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var tasks []task.Task
		unmarshal(t, rec, &tasks)
		assert.Len(t, tasks, 3)
	})

}
