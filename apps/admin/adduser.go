package main

import (
	"context"

	"github.com/trezcool/formify/core/user"
)

// addUser creates a user.User; the roll number must not be taken.
func (cli *commandLine) addUser(ctx context.Context, nu user.NewUser) (user.User, error) {
	if err := nu.Validate(cli.validate); err != nil {
		return user.User{}, err
	}
	return cli.users.Create(ctx, nu)
}
