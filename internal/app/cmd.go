package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/database"
	"github.com/hitoshi/storytime/internal/middleware"
	"github.com/hitoshi/storytime/internal/model"
)

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サブコマンドを省略した場合はserveとして起動する。
// SIGINTまたはSIGTERMを受信するとコマンドのcontextがキャンセルされる。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand はstorytimeのコマンドツリーを構築する。
// logOutは構造化ログの出力先。
func NewRootCommand(logOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "storytime",
		Short:         "Storytime CMS engine",
		Long:          "Storytime is a blogging and CMS engine mounted under a host application's namespace.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCommand(cmd, logOut)
		},
	}

	root.AddCommand(
		newServeCmd(logOut),
		newWorkerCmd(logOut),
		newMigrateCmd(logOut),
		newHealthcheckCmd(),
		newUserCmd(logOut),
		newSessionCmd(logOut),
	)
	return root
}

func serveCommand(cmd *cobra.Command, logOut io.Writer) error {
	cfg, err := Init(logOut)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	slog.Info("starting application",
		slog.String("command", "serve"),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)
	return runServe(cmd.Context(), cfg)
}

func newServeCmd(logOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCommand(cmd, logOut)
		},
	}
}

func newWorkerCmd(logOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run background jobs (expired session cleanup)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(logOut)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			slog.Info("starting application", slog.String("command", "worker"))
			return runWorker(cmd.Context(), cfg)
		},
	}
}

func newMigrateCmd(logOut io.Writer) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply all pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(logOut)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runMigrate(cfg)
		},
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending database migrations",
		Args:  cobra.NoArgs,
		RunE:  migrateCmd.RunE,
	}

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive, got %d", steps)
			}
			cfg, err := Init(logOut)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runRollback(cfg, steps)
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(logOut)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)
	return migrateCmd
}

func newHealthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the local server's /healthz endpoint",
		Args:  cobra.NoArgs,
		// フル初期化は行わない
		RunE: func(cmd *cobra.Command, args []string) error {
			port := os.Getenv("SERVER_PORT")
			if port == "" {
				port = "8080"
			}
			return runHealthcheck("http://localhost:" + port)
		},
	}
}

// withUserService はDBを開いてuser.Serviceをfnに渡す。
func withUserService(cmd *cobra.Command, logOut io.Writer, fn func(ctx context.Context, cfg *config.Config, svc userService) error) error {
	cfg, err := Init(logOut)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := newUserService(cfg, db)
	if err != nil {
		return err
	}
	return fn(cmd.Context(), cfg, svc)
}

// userService はuser/sessionサブコマンドが使う操作。
type userService interface {
	Create(ctx context.Context, email, name string, role model.Role) (*model.User, error)
	IssueSession(ctx context.Context, email string, ttl time.Duration) (*model.Session, error)
	RevokeSessions(ctx context.Context, email string) error
}

func newUserCmd(logOut io.Writer) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard users",
	}

	var email, name, role string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a dashboard user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserService(cmd, logOut, func(ctx context.Context, _ *config.Config, svc userService) error {
				return createUser(ctx, cmd.OutOrStdout(), svc, email, name, model.Role(role))
			})
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "email address (required)")
	createCmd.Flags().StringVar(&name, "name", "", "display name (required)")
	createCmd.Flags().StringVar(&role, "role", string(model.RoleWriter), "role: admin, editor or writer")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("name")

	userCmd.AddCommand(createCmd)
	return userCmd
}

func newSessionCmd(logOut io.Writer) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage dashboard login sessions",
	}

	var issueEmail string
	var ttl time.Duration
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a session for a user and print its cookie value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserService(cmd, logOut, func(ctx context.Context, cfg *config.Config, svc userService) error {
				d := ttl
				if d <= 0 {
					d = time.Duration(cfg.SessionMaxAge) * time.Second
				}
				return issueSession(ctx, cmd.OutOrStdout(), svc, issueEmail, d)
			})
		},
	}
	issueCmd.Flags().StringVar(&issueEmail, "email", "", "email address of the user (required)")
	issueCmd.Flags().DurationVar(&ttl, "ttl", 0, "session lifetime (defaults to SESSION_MAX_AGE)")
	_ = issueCmd.MarkFlagRequired("email")

	var revokeEmail string
	revokeCmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke all sessions of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserService(cmd, logOut, func(ctx context.Context, _ *config.Config, svc userService) error {
				return svc.RevokeSessions(ctx, revokeEmail)
			})
		},
	}
	revokeCmd.Flags().StringVar(&revokeEmail, "email", "", "email address of the user (required)")
	_ = revokeCmd.MarkFlagRequired("email")

	sessionCmd.AddCommand(issueCmd, revokeCmd)
	return sessionCmd
}

func createUser(ctx context.Context, out io.Writer, svc userService, email, name string, role model.Role) error {
	u, err := svc.Create(ctx, email, name, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created user %s (%s, %s)\n", u.ID, u.Email, u.Role)
	return nil
}

func issueSession(ctx context.Context, out io.Writer, svc userService, email string, ttl time.Duration) error {
	session, err := svc.IssueSession(ctx, email, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s=%s\nexpires_at=%s\n", middleware.SessionCookieName, session.ID, session.ExpiresAt.UTC().Format(time.RFC3339))
	return nil
}
