package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/trezcool/presence/apps/shared"
	"github.com/trezcool/presence/core"
	logsvc "github.com/trezcool/presence/services/logger"
	notifysvc "github.com/trezcool/presence/services/notify"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf, err := core.LoadConfig("config")
	if err != nil {
		log.Printf("loading config: %+v", err)
		return 1
	}
	logger, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Printf("setting up logger: %+v", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// set up DB
	journalSvc, db, err := shared.OpenJournal(ctx, conf, logger, false /* migrate */)
	if err != nil {
		logger.Error("setting up journal", err)
		return 1
	}
	if db != nil {
		defer db.Close()
	}

	notifier, err := notifysvc.New(conf)
	if err != nil {
		logger.Error("setting up notifier", err)
		return 1
	}

	// start CLI
	cli := commandLine{
		conf:     conf,
		db:       db,
		journal:  journalSvc,
		notifier: journalSvc.Notifier(notifier),
		out:      os.Stdout,
		now:      time.Now,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		return 1
	}
	return 0
}
