// Package fsctl is the operator console for the fileshare server: it
// registers users and checks credentials directly against the database.
package fsctl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/dmitrijs2005/fileshare/internal/logging"
	"github.com/dmitrijs2005/fileshare/internal/server/config"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fileshare/internal/server/services"
)

// UserAdmin is the subset of the identity provider the console drives.
type UserAdmin interface {
	Register(ctx context.Context, username, password, email string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*services.TokenPair, error)
}

type App struct {
	users    UserAdmin
	reader   *bufio.Reader
	out      io.Writer
	password func(io.Writer) (string, error)
	closer   io.Closer
}

func newApp(users UserAdmin, in io.Reader, out io.Writer) *App {
	return &App{users: users, reader: bufio.NewReader(in), out: out, password: GetPassword}
}

// NewApp connects to the configured database and migrates it.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	db, err := repomanager.Open(ctx, c.DatabaseDSN, 10*time.Second)
	if err != nil {
		return nil, err
	}
	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger := logging.NewJSONLogger(os.Stderr, c.LogLevel)

	a := newApp(services.NewUserService(db, rm, c, logger), os.Stdin, os.Stdout)
	a.closer = db
	return a, nil
}

func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// Run executes the command named in args, or the interactive menu when
// args is empty.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return a.command(ctx, args[0])
	}
	for {
		fmt.Fprintln(a.out, "\n=== fileshare console ===")
		fmt.Fprintln(a.out, "1. Register user")
		fmt.Fprintln(a.out, "2. Login user")
		fmt.Fprintln(a.out, "3. Exit")
		choice, err := GetSimpleText(a.reader, "Choose option:", a.out)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		switch choice {
		case "1":
			choice = "register"
		case "2":
			choice = "login"
		case "3":
			choice = "exit"
		}
		if choice == "exit" || choice == "quit" {
			fmt.Fprintln(a.out, "Bye!")
			return nil
		}
		if err := a.command(ctx, choice); err != nil {
			fmt.Fprintln(a.out, "error:", err)
		}
	}
}

func (a *App) command(ctx context.Context, name string) error {
	switch strings.ToLower(name) {
	case "register":
		return a.register(ctx)
	case "login":
		return a.login(ctx)
	default:
		return fmt.Errorf("unknown command %q (want register or login)", name)
	}
}

func (a *App) register(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	password, err := a.password(a.out)
	if err != nil {
		return err
	}
	email, err := GetSimpleText(a.reader, "Enter email (optional)", a.out)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	u, err := a.users.Register(ctx, username, password, email)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return fmt.Errorf("user %q already exists", username)
		}
		return err
	}
	fmt.Fprintf(a.out, "User registered with id %d\n", u.ID)
	return nil
}

func (a *App) login(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	password, err := a.password(a.out)
	if err != nil {
		return err
	}

	pair, err := a.users.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return errors.New("login failed")
		}
		return err
	}
	fmt.Fprintf(a.out, "Login successful (user id %d)\nAccess token: %s\n", pair.UserID, pair.AccessToken)
	return nil
}
