package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB // postgres only
	users    *user.Service
	groups   *group.Service
	validate *validator.Validate
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status...) against the database")
	fmt.Fprintln(cli.out, "  adduser -roll ROLL -name NAME -role Student|Teacher|Admin [-capacity N] - create a user")
	fmt.Fprintln(cli.out, "  resetpassword -roll ROLL - reset user's password")
	fmt.Fprintln(cli.out, "  reconcile [-apply] - compare teachers' assigned groups counts with their supervised groups")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserRoll := addUserCmd.String("roll", "", "The user's roll number. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's display name.")
	addUserRole := addUserCmd.String("role", "", "One of Student, Teacher or Admin.")
	addUserCapacity := addUserCmd.Int("capacity", 0, "The number of groups a Teacher may supervise.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordRoll := resetPasswordCmd.String("roll", "", "The user's roll number. The password will be prompted next.")

	reconcileCmd := flag.NewFlagSet("reconcile", flag.ExitOnError)
	reconcileApply := reconcileCmd.Bool("apply", false, "Overwrite drifted counts with the number of supervised groups.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			fmt.Fprintln(cli.out, "Usage: migrate COMMAND [ARGS]")
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserRoll == "" || *addUserName == "" || *addUserRole == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		usr, err := cli.addUser(ctx, user.NewUser{
			RollNumber:      *addUserRoll,
			Name:            *addUserName,
			Password:        pwd,
			Role:            *addUserRole,
			TeacherCapacity: *addUserCapacity,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "created %s %s (%s)\n", usr.Role, usr.RollNumber, usr.ID)
		return nil

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordRoll == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordRoll, pwd)

	case "reconcile":
		if err := reconcileCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.reconcile(ctx, *reconcileApply)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
