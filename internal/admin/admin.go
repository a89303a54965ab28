// Package admin implements the operator tool used to bootstrap officer
// accounts and reset passwords without a verification code.
package admin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/coursekeeper/internal/common"
	"github.com/dmitrijs2005/coursekeeper/internal/flagx"
	"github.com/dmitrijs2005/coursekeeper/internal/server/models"
)

var (
	ErrUsage            = errors.New("usage error")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

const usage = `Usage: admin <command> [flags]

Commands:
  create-officer  -phone <number> [-name <real name>]
  reset-password  -id <user id>

Passwords are read from the terminal. Server config flags (-d, -c, -env)
may follow the command.
`

// UserAdmin is the part of the user service the tool drives.
type UserAdmin interface {
	CreateUser(ctx context.Context, phone, password string, role models.Role, realName string) (*models.User, error)
	AdminResetPassword(ctx context.Context, userID, newPassword string) error
}

// Tool runs one operator command, prompting on in and reporting on out.
type Tool struct {
	users  UserAdmin
	reader *bufio.Reader
	out    io.Writer
}

// New returns a Tool bound to users and the given terminal streams.
func New(users UserAdmin, in io.Reader, out io.Writer) *Tool {
	return &Tool{users: users, reader: bufio.NewReader(in), out: out}
}

// Run executes the command named by args[0].
func (t *Tool) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(t.out, usage)
		return ErrUsage
	}

	switch args[0] {
	case "create-officer":
		return t.createOfficer(ctx, args[1:])
	case "reset-password":
		return t.resetPassword(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(t.out, usage)
		return nil
	default:
		fmt.Fprint(t.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

func (t *Tool) createOfficer(ctx context.Context, args []string) error {
	phone, err := t.valueOrPrompt(args, "phone", "Phone number")
	if err != nil {
		return err
	}
	name := flagx.LookupString(args, "name")

	pw, err := t.newPassword()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	u, err := t.users.CreateUser(ctx, phone, string(pw), models.RoleOfficer, name)
	if err != nil {
		return fmt.Errorf("create officer: %w", err)
	}

	fmt.Fprintf(t.out, "Officer created: %s (%s)\n", u.ID, u.PhoneNumber)
	return nil
}

func (t *Tool) resetPassword(ctx context.Context, args []string) error {
	id, err := t.valueOrPrompt(args, "id", "User ID")
	if err != nil {
		return err
	}

	pw, err := t.newPassword()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	if err := t.users.AdminResetPassword(ctx, id, string(pw)); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	fmt.Fprintf(t.out, "Password reset for %s\n", id)
	return nil
}

func (t *Tool) valueOrPrompt(args []string, flagName, prompt string) (string, error) {
	if v := flagx.LookupString(args, flagName); v != "" {
		return v, nil
	}
	v, err := GetSimpleText(t.reader, prompt, t.out)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", ErrUsage, flagName)
	}
	return v, nil
}

// newPassword asks twice and returns the password once both entries match.
func (t *Tool) newPassword() ([]byte, error) {
	pw, err := GetPassword("New password", t.out)
	if err != nil {
		return nil, err
	}
	confirm, err := GetPassword("Repeat password", t.out)
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(pw, confirm) {
		common.WipeByteArray(pw)
		return nil, ErrPasswordMismatch
	}
	return pw, nil
}
