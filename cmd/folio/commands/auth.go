package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/folio/internal/app"
)

func loginCommand(run func(appAction) cli.ActionFunc) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in and store the access token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Aliases:  []string{"e"},
				Usage:    "account email",
				Required: true,
			},
		},
		Action: run(loginAction),
	}
}

func loginAction(ctx context.Context, cmd *cli.Command, application *app.App) error {
	password, err := readPassword(cmd.Root().Reader, cmd.Root().ErrWriter)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	if err := application.Library().Login(ctx, cmd.String("email"), password); err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.Root().Writer, "Logged in.")
	return err
}

func logoutCommand(run func(appAction) cli.ActionFunc) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "end the session and forget the access token",
		Action: run(logoutAction),
	}
}

func logoutAction(ctx context.Context, cmd *cli.Command, application *app.App) error {
	if err := application.Library().Logout(ctx); err != nil {
		return err
	}
	_, err := fmt.Fprintln(cmd.Root().Writer, "Logged out.")
	return err
}

func statusCommand(run func(appAction) cli.ActionFunc) *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "show the backend and whether a token is stored",
		Action: run(statusAction),
	}
}

func statusAction(ctx context.Context, cmd *cli.Command, application *app.App) error {
	cfg := application.Config()
	storage := string(cfg.Auth.Storage)
	if cfg.Auth.Ephemeral {
		storage = "memory"
	}

	return renderDetails(cmd.Root().Writer, [][2]string{
		{"Backend", cfg.API.BaseURL},
		{"Offline", yesNo(cfg.API.Offline())},
		{"Token storage", storage},
		{"Logged in", yesNo(application.Authenticated(ctx))},
	})
}

// readPassword prompts on a terminal without echo, or reads one line from piped input.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
