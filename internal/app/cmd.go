package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/nutrisport/internal/model"
)

// Version はビルド時に -ldflags "-X" で上書きされる。
var Version = "dev"

const appName = "nutrisport"

// errNotLoggedIn はセッションが無い状態でAPIを呼ぼうとした場合のエラー。
var errNotLoggedIn = errors.New("not logged in: run `nutrisport login`")

// passwordEnv は--password省略時にパスワードを読む環境変数。
const passwordEnv = "NUTRISPORT_PASSWORD"

// NewRootCommand はnutrisportのコマンドツリーを生成する。
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Client for the NutriSportPro API",
		Long: `nutrisport logs in to the NutriSportPro API and manages nutrition,
training and statistics records from the command line or a local web console.

The session is persisted (file or redis backend) and shared between the CLI
and the console server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newLoginCommand(),
		newLogoutCommand(),
		newWhoamiCommand(),
		newHealthcheckCommand(),
		newVersionCommand(),
	)
	root.AddCommand(newResourceCommands()...)

	return root
}

// withComponents は設定を読み込んで依存関係を組み立て、fnの終了後に後片付けする。
func withComponents(cmd *cobra.Command, fn func(ctx context.Context, c *components) error) error {
	cfg, err := Init(nil)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local web console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, runServe)
		},
	}
}

func newLoginCommand() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			email = strings.TrimSpace(email)
			if email == "" {
				return errors.New("email is required (--email)")
			}
			if password == "" {
				return fmt.Errorf("password is required (--password or %s)", passwordEnv)
			}

			return withComponents(cmd, func(ctx context.Context, c *components) error {
				if !c.sessions.Login(ctx, email, password) {
					return fmt.Errorf("login failed: %s", c.sessions.Err())
				}
				session, _ := c.sessions.Session()
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (session expires %s)\n",
					session.Email, session.ExpiresAt.Local().Format(time.RFC1123))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (defaults to $"+passwordEnv+")")

	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the persisted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				c.sessions.Logout(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				session, ok := c.sessions.Session()
				if !ok {
					return errNotLoggedIn
				}
				printSession(cmd, session)
				return nil
			})
		},
	}
}

func printSession(cmd *cobra.Command, s model.Session) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Email:   %s\n", s.Email)
	fmt.Fprintf(out, "User ID: %s\n", s.UserID)
	roles := "-"
	if len(s.Roles) > 0 {
		roles = strings.Join(s.Roles, ", ")
	}
	fmt.Fprintf(out, "Roles:   %s\n", roles)
	fmt.Fprintf(out, "Expires: %s\n", s.ExpiresAt.Local().Format(time.RFC1123))
}

func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check that the local console is healthy",
		Args:  cobra.NoArgs,
		// 軽量サブコマンドのため、フル初期化をスキップする
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runHealthcheck(ctx, healthcheckPort())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	}
}
