package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/user"
)

// addUser updates or creates an active user.User with the given password and roles.
func (cli *commandLine) addUser(name, uname, email, pwd string, roles []string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	roles = core.CleanStrings(roles, true /* lower */)
	for _, r := range roles {
		if !core.ContainsString(user.AllRoles, r) {
			return fmt.Errorf("%q: invalid role", r)
		}
	}

	filter := user.GetFilter{Username: uname}
	if uname == "" {
		filter = user.GetFilter{Email: email}
	}
	usr, err := cli.usrRepo.GetUser(ctx, filter)
	create := errors.Cause(err) == user.ErrNotFound
	if err != nil && !create {
		return err
	}

	if create {
		now := time.Now().UTC()
		usr = user.User{Username: uname, Email: email, CreatedAt: now}
	}
	if name != "" {
		usr.Name = core.CleanString(name)
	}
	if email != "" {
		usr.Email = email
	}
	if roles != nil {
		usr.Roles = roles
	}
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if create {
		if err = cli.usrRepo.CheckUsernameUniqueness(ctx, usr.Username, usr.Email); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(ctx, usr)
		return err
	}
	if err = cli.usrRepo.CheckUsernameUniqueness(ctx, usr.Username, usr.Email, usr); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateUser(ctx, usr)
	return err
}
