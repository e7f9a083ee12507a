package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/presence/apps/api/echo"
	"github.com/trezcool/presence/apps/shared"
	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/attendance"
	"github.com/trezcool/presence/core/clock"
	logsvc "github.com/trezcool/presence/services/logger"
	notifysvc "github.com/trezcool/presence/services/notify"
	"github.com/trezcool/presence/services/rostercache"
	sheetsvc "github.com/trezcool/presence/services/sheets"
	"github.com/trezcool/presence/services/uifeed"
)

// setupTimeout bounds waiting on the database and redis at startup.
const setupTimeout = time.Minute

func main() {
	conf, err := core.LoadConfig("config")
	if err != nil {
		log.Fatalf("loading config: %+v", err)
	}

	// set up loggers
	zapLogger, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up logger: %+v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	logger := logsvc.NewRollbarLogger(zapLogger, conf)
	logger.Enable(!conf.Debug)

	if err = run(conf, logger); err != nil {
		logger.Fatal(fmt.Sprintf("%v", err), err)
	}
}

func run(conf *core.Config, logger core.Logger) error {
	// =========================================================================
	// Set up Dependencies

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	journalSvc, db, err := shared.OpenJournal(ctx, conf, logger, true /* migrate */)
	if err != nil {
		return errors.Wrap(err, "setting up journal")
	}
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close database", err)
			}
		}()
	}

	sheets := sheetsvc.New(conf.Sheets, logger)
	var loader core.DataLoader = sheets
	if conf.Redis.URL != "" {
		rdb, err := rostercache.Dial(ctx, conf.Redis)
		if err != nil {
			return errors.Wrap(err, "setting up roster cache")
		}
		defer func() { _ = rdb.Close() }()
		loader = rostercache.New(sheets, rdb, conf.Redis.TTL, logger)
	}

	notifier, err := notifysvc.New(conf)
	if err != nil {
		return errors.Wrap(err, "setting up notifier")
	}

	loop := clock.NewLoop()
	loop.OnPanic = func(v interface{}) {
		logger.Error("attendance loop recovered from a panic", errors.Errorf("%v", v))
	}
	feed := uifeed.New(conf.Server.FeedSize, loop.Now)

	attendanceSvc, err := attendance.NewService(attendance.Options{
		Clock:     loop,
		Config:    conf,
		Loader:    loader,
		Submitter: journalSvc.Submitter(sheets),
		Notifier:  journalSvc.Notifier(notifier),
		Recorder:  sheets,
		Sink:      feed,
		Logger:    logger,
	})
	if err != nil {
		return errors.Wrap(err, "setting up attendance")
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(loopCtx)
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	validate, translator := core.NewValidator(conf.Debounce.ContentRules())

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	if conf.Server.DebugHost != "" {
		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Loop:       loop,
			Attendance: attendanceSvc,
			Feed:       feed,
			Journal:    journalSvc,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		return errors.Wrap(err, "server error")

	case err = <-loopDone:
		loopDone <- err // for the deferred wait
		_ = server.Close()
		return errors.Wrap(err, "attendance loop stopped")

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				return errors.Wrap(err, "could not force stop server")
			}
		}

		// open sessions are dropped; pending summaries are not sent
		if err = loop.Do(ctx, attendanceSvc.CloseAll); err != nil {
			logger.Warn("could not close open sessions", err)
		}
	}
	return nil
}
