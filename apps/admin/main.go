package main

import (
	"context"
	"os"

	"github.com/classync/classync/core"
	"github.com/classync/classync/services/logger"
	"github.com/classync/classync/storage/database"
	"github.com/classync/classync/storage/database/inmem"
	"github.com/classync/classync/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.New("ADMIN", conf)

	cli := commandLine{}
	if conf.Database.Engine == "memory" {
		cli.usrRepo = inmemdb.NewUserRepository(inmemdb.NewDB())
	} else {
		// set up DB
		db, err := database.Open(context.Background(), conf)
		if err != nil {
			logger.Fatal("opening database", err)
		}
		defer func() { _ = db.Close() }()
		cli.db = db.DB
		cli.usrRepo = sqlxrepos.NewUserRepository(db)
	}

	// start CLI
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}
