package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/formify/apps/api/echo"
	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
	"github.com/trezcool/formify/services/filestore"
	"github.com/trezcool/formify/services/logger"
	"github.com/trezcool/formify/storage"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := storage.Open(ctx, conf, storage.Options{Migrate: true})
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up %s storage: %v", conf.Storage.Driver, err), err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("closing storage", err)
		}
	}()

	files, err := filestore.NewDisk(conf.Uploads)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up uploads dir: %v", err), err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build), map[string]interface{}{
		"storage": conf.Storage.Driver,
	})
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	group.InitValidators(validate, translator)

	user.LoadCommonPasswords(logger)

	users := user.NewService(st.Users, logger)
	groups := group.NewService(group.Deps{
		Tx:          st.Tx,
		Groups:      st.Groups,
		Submissions: st.Submissions,
		Marks:       st.Marks,
		Logs:        st.Logs,
		Users:       users,
		Logger:      logger,
		Validate:    validate,
	})

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Storage.Driver)

	if conf.Server.DebugHost != "" {
		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(&echoapi.Options{
		Conf:       conf,
		Logger:     logger,
		Pinger:     st.Tx,
		Users:      users,
		Groups:     groups,
		Files:      files,
		Validate:   validate,
		Translator: translator,
	})
	go server.Start()

	// =========================================================================
	// Shutdown

	<-ctx.Done()
	logger.Info("Start shutdown...")

	// give outstanding requests a deadline for completion
	sctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if err = server.Stop(sctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}
