package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/notification"
	"github.com/classync/classync/core/space"
	"github.com/classync/classync/core/task"
	"github.com/classync/classync/core/user"
	"github.com/classync/classync/services/filestore/b2"
	"github.com/classync/classync/services/filestore/local"
	"github.com/classync/classync/storage/database"
	"github.com/classync/classync/storage/database/inmem"
	"github.com/classync/classync/storage/database/mongo"
	"github.com/classync/classync/storage/database/sqlx"
)

const mediaURL = "/media"

type repositories struct {
	users         user.Repository
	spaces        space.Repository
	tasks         task.Repository
	notifications notification.Repository
	closers       []func()
}

func (r *repositories) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// setUpStorage opens the main database (postgres or memory) and, when configured, the mongo notification store.
func setUpStorage(ctx context.Context, conf *core.Config, logger core.Logger) (*repositories, error) {
	repos := new(repositories)

	switch conf.Database.Engine {
	case "memory":
		logger.Info("using the in-memory database")
		db := inmemdb.NewDB()
		repos.users = inmemdb.NewUserRepository(db)
		repos.spaces = inmemdb.NewSpaceRepository(db)
		repos.tasks = inmemdb.NewTaskRepository(db)
		repos.notifications = inmemdb.NewNotificationRepository(db)

	case "postgres":
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}
		repos.closers = append(repos.closers, func() {
			if err := db.Close(); err != nil {
				logger.Error("closing database", err)
			}
		})
		if err = database.Migrate(db.DB); err != nil {
			repos.close()
			return nil, err
		}
		repos.users = sqlxrepos.NewUserRepository(db)
		repos.spaces = sqlxrepos.NewSpaceRepository(db)
		repos.tasks = sqlxrepos.NewTaskRepository(db)
		repos.notifications = sqlxrepos.NewNotificationRepository(db)

	default:
		return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}

	if conf.Mongo.URI == "" {
		return repos, nil
	}

	client, err := mongorepos.Connect(ctx, conf.Mongo.URI, conf.Retry)
	if err != nil {
		repos.close()
		return nil, err
	}
	repos.closers = append(repos.closers, func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error("disconnecting from mongo", err)
		}
	})
	notifRepo := mongorepos.NewNotificationRepository(client.Database(conf.Mongo.Database))
	if err = notifRepo.EnsureIndexes(ctx); err != nil {
		repos.close()
		return nil, err
	}
	repos.notifications = notifRepo
	logger.Info(fmt.Sprintf("notifications are kept in mongo database %q", conf.Mongo.Database))
	return repos, nil
}

type fileStore struct {
	store     task.FileStore
	mediaRoot string // local files served by the API
}

func setUpFileStore(ctx context.Context, conf *core.Config) (fileStore, error) {
	switch conf.Storage.Backend {
	case "local":
		store, err := localstore.New(conf.Storage.LocalRoot, mediaURL)
		if err != nil {
			return fileStore{}, err
		}
		return fileStore{store: store, mediaRoot: conf.Storage.LocalRoot}, nil
	case "b2":
		store, err := b2store.New(ctx, conf.Storage.B2AccountID, conf.Storage.B2AppKey, conf.Storage.B2Bucket, conf.Retry)
		if err != nil {
			return fileStore{}, err
		}
		return fileStore{store: store}, nil
	default:
		return fileStore{}, errors.Errorf("unknown storage backend %q", conf.Storage.Backend)
	}
}
