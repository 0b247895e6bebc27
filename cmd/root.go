package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/vitals/internal/config"
	"github.com/andresmejia3/vitals/internal/store"
	"github.com/andresmejia3/vitals/internal/utils"
	"github.com/spf13/cobra"
)

var (
	// DB is the global database connection shared by subcommands. It is nil
	// when no database is configured.
	DB *store.Store
	// dbURL is the connection string
	dbURL string

	logLevel   string
	configPath string

	logger = slog.New(slog.DiscardHandler)
	cfg    = config.DefaultConfig()
)

// Version is the application version.
const Version = "0.1.0"

// errNoDatabase is returned by commands that need persistence when none is configured.
var errNoDatabase = errors.New("no database configured (use --db or POSTGRES_HOST)")

// commandError carries the context line and captured subprocess logs for the error box.
type commandError struct {
	msg string
	err error
	cmd *utils.SafeCommand
}

func (e *commandError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %v", e.msg, e.err)
}

func (e *commandError) Unwrap() error { return e.err }

// fail wraps err for Execute, which prints it as an error box.
func fail(msg string, err error, sc *utils.SafeCommand) error {
	return &commandError{msg: msg, err: err, cmd: sc}
}

var rootCmd = &cobra.Command{
	Use:           "vitals",
	Short:         "Camera-based heart rate estimation (rPPG)",
	Version:       Version, // This enables the --version flag
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := utils.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger = utils.NewLogger(os.Stderr, level)

		cfg, err = config.Load(configPath)
		if err != nil {
			return fail("Failed to load config", err, nil)
		}

		url := resolveDBURL(dbURL, os.Getenv)
		if url == "" {
			logger.Debug("no database configured, persistence disabled")
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			return fail("Failed to connect to database", err, nil)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
}

// resolveDBURL prefers the flag, then the POSTGRES_* environment. An empty
// result disables persistence.
func resolveDBURL(flag string, getenv func(string) string) string {
	if flag != "" {
		return flag
	}
	host := getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		getenv("POSTGRES_USER"), getenv("POSTGRES_PASSWORD"), host, port, getenv("POSTGRES_DB"))
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var ce *commandError
		if errors.As(err, &ce) {
			utils.ShowError(ce.msg, ce.err, ce.cmd)
		} else {
			utils.ShowError("Command failed", err, nil)
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: from POSTGRES_* env, persistence disabled if unset)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file")
}
