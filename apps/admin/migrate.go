package main

import (
	"errors"

	"github.com/pressly/goose/v3"

	"github.com/trezcool/formify/storage/database"
)

var (
	gooseRunFunc = goose.Run // mockable

	errNoSQL = errors.New("migrate requires the postgres storage driver")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoSQL
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	// database registers the embedded migrations as goose's base FS
	return gooseRunFunc(args[0], cli.db, database.MigrationsDir(), arguments...)
}
