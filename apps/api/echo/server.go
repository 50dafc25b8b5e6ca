package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/notification"
	"github.com/classync/classync/core/space"
	"github.com/classync/classync/core/task"
	"github.com/classync/classync/core/user"
	"github.com/classync/classync/services/realtime"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		DisableReqLogs bool
		UserSvc        user.Service
		SpaceSvc       *space.Service
		TaskSvc        *task.Service
		NotifSvc       *notification.Service
		Hub            *realtime.Hub
		Validate       *validator.Validate
		Translator     ut.Translator
		MediaRoot      string // served under /media when set
	}

	Server struct {
		conf     *core.Config
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil) // interface compliance check

func NewServer(deps ServerDeps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.UserSvc, "UserSvc"),
		vala.IsNotNil(deps.SpaceSvc, "SpaceSvc"),
		vala.IsNotNil(deps.TaskSvc, "TaskSvc"),
		vala.IsNotNil(deps.NotifSvc, "NotifSvc"),
		vala.IsNotNil(deps.Hub, "Hub"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
	).CheckAndPanic()

	s := &Server{
		conf:     deps.Conf,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup(deps)
	return s
}

func (s *Server) setup(deps ServerDeps) {
	debug := s.conf.Debug
	auth := newAuthenticator(s.conf, deps.UserSvc)

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{s.conf.FrontendBaseURL},
		AllowCredentials: true,
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger, deps.Translator, s.signalShutdown)
	s.app.Debug = debug

	s.app.GET("/", s.home)
	if deps.MediaRoot != "" {
		s.app.Static("/media", deps.MediaRoot)
	}

	jwt := middleware.JWTWithConfig(auth.jwtConfig)
	v1 := s.app.Group("/v1")

	registerUserAPI(v1, jwt, auth, deps.UserSvc, deps.Validate)
	registerSpaceAPI(v1, jwt, auth, deps.SpaceSvc, deps.Validate)
	registerNotificationAPI(v1, jwt, auth, deps.NotifSvc, deps.Hub, deps.Validate, deps.Logger)

	registerTaskAPI(s.app.Group("/tasks", jwt), auth, deps.TaskSvc, deps.Validate, s.conf.Server.MaxUploadSize)
}

// Start runs the server in the background; listen errors are sent to Errors().
func (s *Server) Start() {
	go func() {
		if err := s.app.Start(s.conf.Server.Host); err != nil && err != http.ErrServerClosed {
			s.errors <- err
		}
	}()
}

func (s *Server) Errors() <-chan error { return s.errors }

// ShutdownSignal receives a signal when a handler asks for the server to be shut down.
func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}
