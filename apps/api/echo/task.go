package echoapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/task"
)

const (
	filesField         = "files"
	collaboratorsField = "collaborators"
)

type taskApi struct {
	auth     *authenticator
	svc      *task.Service
	validate *validator.Validate
}

func registerTaskAPI(
	g *echo.Group,
	auth *authenticator,
	svc *task.Service,
	validate *validator.Validate,
	maxUploadSize int64,
) {
	api := taskApi{
		auth:     auth,
		svc:      svc,
		validate: validate,
	}

	// projections
	g.GET("/server/:serverId", api.listByServer)
	g.GET("/student-tasks", api.listForStudent)
	g.GET("/faculty", api.listForFaculty, facultyMiddleware())

	g.POST("/create", api.create, facultyMiddleware())

	g.GET("/:id", api.retrieve)
	g.PATCH("/:id", api.update, facultyMiddleware())
	g.DELETE("/:id", api.destroy, facultyMiddleware())
	g.POST("/:id/publish", api.publish, facultyMiddleware())
	g.POST("/:id/archive", api.archive, facultyMiddleware())
	g.GET("/:id/stats", api.stats, facultyMiddleware())
	g.GET("/:id/submissions", api.listSubmissions, facultyMiddleware())
	g.POST("/:id/grade", api.gradeLatest, facultyMiddleware())

	bodyLimit := middleware.BodyLimit(strconv.FormatInt(maxUploadSize, 10))
	g.POST("/:id/submit", api.submit, bodyLimit)

	sg := g.Group("/submissions/:id", facultyMiddleware())
	sg.POST("/review", api.markUnderReview)
	sg.POST("/grade", api.grade)
	sg.POST("/return", api.returnSubmission)
}

// Handlers

func (api *taskApi) create(ctx echo.Context) error {
	var data CreateTaskRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CreateTaskRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.CreateTask(ctx.Request().Context(), data.ServerID, data.NewTask, usr)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *taskApi) retrieve(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.GetTask(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "finding task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) update(ctx echo.Context) error {
	var data task.UpdateTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTask")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.UpdateTask(ctx.Request().Context(), ctx.Param("id"), data, usr)
	if err != nil {
		return errors.Wrap(err, "updating task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) publish(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.Publish(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "publishing task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) archive(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.ArchiveTask(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "archiving task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) destroy(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.DeleteTask(ctx.Request().Context(), ctx.Param("id"), usr); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *taskApi) listByServer(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	tasks, err := api.svc.ListByServer(ctx.Request().Context(), ctx.Param("serverId"), usr)
	if err != nil {
		return errors.Wrap(err, "listing server tasks")
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *taskApi) listForStudent(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	tasks, err := api.svc.ListForStudent(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing student tasks")
	}
	if tasks == nil {
		tasks = []task.StudentTask{}
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *taskApi) listForFaculty(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	tasks, err := api.svc.ListForFaculty(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing faculty tasks")
	}
	if tasks == nil {
		tasks = []task.FacultyTask{}
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *taskApi) stats(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "computing task stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *taskApi) submit(ctx echo.Context) error {
	data, closeFiles, err := bindSubmission(ctx)
	defer closeFiles()
	if err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.svc.Submit(ctx.Request().Context(), ctx.Param("id"), data, usr)
	if err != nil {
		return errors.Wrap(err, "submitting")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *taskApi) listSubmissions(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	subs, err := api.svc.ListSubmissions(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	if subs == nil {
		subs = []task.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *taskApi) gradeLatest(ctx echo.Context) error {
	var data task.GradeSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeSubmission")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.svc.GradeLatest(ctx.Request().Context(), ctx.Param("id"), data, usr)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *taskApi) grade(ctx echo.Context) error {
	var data GradeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.svc.Grade(ctx.Request().Context(), ctx.Param("id"), *data.Grade, data.Feedback, usr)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *taskApi) markUnderReview(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.svc.MarkUnderReview(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "marking submission under review")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *taskApi) returnSubmission(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.svc.Return(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "returning submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

// bindSubmission reads a multipart attempt (comment, collaborators as a JSON array, files)
// or a JSON one without files. the returned func closes the opened files.
func bindSubmission(ctx echo.Context) (task.NewSubmission, func(), error) {
	var data task.NewSubmission
	var closers []io.Closer
	closeFiles := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	ctype := ctx.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ctype, echo.MIMEMultipartForm) {
		if err := ctx.Bind(&data); err != nil {
			return data, closeFiles, errors.Wrap(err, "binding to NewSubmission")
		}
		return data, closeFiles, nil
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return data, closeFiles, echo.NewHTTPError(http.StatusBadRequest, "malformed multipart form").SetInternal(err)
	}
	if vals := form.Value["comment"]; len(vals) > 0 {
		data.Comment = vals[0]
	}
	if vals := form.Value[collaboratorsField]; len(vals) > 0 && strings.TrimSpace(vals[0]) != "" {
		if err = json.Unmarshal([]byte(vals[0]), &data.Collaborators); err != nil {
			return data, closeFiles, core.NewFieldValidationError(collaboratorsField, "must be a JSON array of email addresses")
		}
	}
	for _, fh := range form.File[filesField] {
		f, err := fh.Open()
		if err != nil {
			return data, closeFiles, errors.Wrap(err, "opening uploaded file")
		}
		closers = append(closers, f)
		data.Files = append(data.Files, task.FileUpload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Content:     f,
		})
	}
	return data, closeFiles, nil
}

type (
	CreateTaskRequest struct {
		ServerID string `json:"server_id" validate:"required"`
		task.NewTask
	}

	GradeRequest struct {
		Grade    *int   `json:"grade" validate:"required"`
		Feedback string `json:"feedback" validate:"max=10000"`
	}
)

func (cr *CreateTaskRequest) Validate(validate *validator.Validate) error {
	cr.ServerID = core.CleanString(cr.ServerID)
	if cr.ServerID == "" {
		return core.NewFieldValidationError("server_id", "this field is required")
	}
	return cr.NewTask.Validate(validate)
}

func (gr *GradeRequest) Validate(validate *validator.Validate) error {
	gr.Feedback = core.CleanString(gr.Feedback)
	return validate.Struct(gr)
}
