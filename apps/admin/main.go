package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
	"github.com/trezcool/formify/services/logger"
	"github.com/trezcool/formify/storage"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	rl := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	rl.Enable(!conf.Debug && conf.RollbarToken != "")
	logger = rl

	// set up storage
	ctx := context.Background()
	st, err := storage.Open(ctx, conf, storage.Options{})
	errAndDie(err)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	group.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)

	users := user.NewService(st.Users, logger)

	// start CLI
	cli := commandLine{
		users:    users,
		validate: validate,
		out:      os.Stdout,
		groups: group.NewService(group.Deps{
			Tx:          st.Tx,
			Groups:      st.Groups,
			Submissions: st.Submissions,
			Marks:       st.Marks,
			Logs:        st.Logs,
			Users:       users,
			Logger:      logger,
			Validate:    validate,
		}),
	}
	if st.SQL != nil {
		cli.db = st.SQL.DB
	}
	err = cli.run(os.Args)
	_ = st.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
