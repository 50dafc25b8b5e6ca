package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"

	"github.com/classync/classync/apps/api/echo"
	"github.com/classync/classync/assets"
	"github.com/classync/classync/core"
	"github.com/classync/classync/core/notification"
	"github.com/classync/classync/core/space"
	"github.com/classync/classync/core/task"
	"github.com/classync/classync/core/user"
	"github.com/classync/classync/services/email"
	"github.com/classync/classync/services/logger"
	"github.com/classync/classync/services/realtime"
	"github.com/classync/classync/storage/outbox"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.New("API", conf)
	dbLogger := logsvc.New("DB", conf)
	workerLogger := logsvc.New("WORKER", conf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// set up storage
	repos, err := setUpStorage(ctx, conf, dbLogger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer repos.close()

	box, err := outbox.Open(conf.Outbox.Path)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening outbox: %v", err), err)
	}
	defer func() {
		if err = box.Close(); err != nil {
			workerLogger.Error("closing outbox", err)
		}
	}()

	files, err := setUpFileStore(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file store: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(repos.users, mailSvc, conf)

	hub := realtime.NewHub(0)
	dispatcherDeps := notification.DispatcherDeps{
		Repo:   repos.notifications,
		Hub:    hub,
		Outbox: box,
		Logger: workerLogger,
		Now:    core.UTCNow,
	}
	if conf.NotifyByEmail {
		dispatcherDeps.Users = usrSvc
		dispatcherDeps.MailSvc = mailSvc
	}
	dispatcher := notification.NewDispatcher(dispatcherDeps)

	taskSvc := task.NewService(task.Deps{
		Repo:   repos.tasks,
		Spaces: repos.spaces,
		Files:  files.store,
		Sink:   dispatcher,
		Logger: logger,
		Now:    core.UTCNow,
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	space.InitValidators(validate, translator)
	task.InitValidators(validate, translator)

	core.ParseEmailTemplates(assets.FS, logger, false)

	user.LoadCommonPasswords(assets.FS, logger)

	// =========================================================================
	// Start Outbox Worker

	worker := notification.NewWorker(box, dispatcher, conf.Retry, conf.Outbox.PollInterval, workerLogger, core.UTCNow)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	// =========================================================================
	// Start Debug Service

	startDebugServer(conf, logger)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    usrSvc,
		SpaceSvc:   space.NewService(repos.spaces, core.UTCNow),
		TaskSvc:    taskSvc,
		NotifSvc:   notification.NewService(repos.notifications),
		Hub:        hub,
		Validate:   validate,
		Translator: translator,
		MediaRoot:  files.mediaRoot,
	})
	server.Start()

	// =========================================================================
	// Shutdown

	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-osSignals:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	}

	// give outstanding requests a deadline for completion
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancelShutdown()

	// asking listener to shutdown and shed load
	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

		if err = server.Close(); err != nil {
			logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}

	cancel()
	<-workerDone
}
