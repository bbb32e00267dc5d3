package main

import (
	"context"

	"github.com/trezcool/formify/core/user"
)

func (cli *commandLine) resetPassword(ctx context.Context, roll, pwd string) error {
	usr, err := cli.users.GetByRollNumber(ctx, roll)
	if err != nil {
		return err
	}
	uu := user.UpdateUser{Password: &pwd}
	if err = uu.Validate(usr, cli.validate); err != nil {
		return err
	}
	_, err = cli.users.Update(ctx, usr, uu)
	return err
}
