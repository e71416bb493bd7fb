package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"authz/internal/app"
	"authz/internal/authz"
	"authz/internal/config"
	"authz/pkg/oauth"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates the account has no usable session and needs a login.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the authorization server or the user refused access.
	ExitCodeAuthFailed = 3
)

// errRefreshFailed is returned when a stored session could not be renewed.
var errRefreshFailed = errors.New("token refresh failed")

// Global flags
var (
	configPath  string
	logLevel    string
	quiet       bool
	showMetrics bool
)

// rootCmd represents the base command for the authz application.
var rootCmd = &cobra.Command{
	Use:   "authz",
	Short: "Obtain and manage OAuth2 access tokens",
	Long: `authz obtains OAuth2 access tokens for configured accounts and keeps
them fresh.

Accounts are described in config.yaml inside the configuration directory.
A login sends you to the authorization server in your browser and captures
the authorization code on a local callback server. Tokens are stored in the
session store and refreshed automatically when they expire.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if !showMetrics || currentApp == nil {
			return nil
		}
		return renderMetrics(cmd.OutOrStdout(), currentApp.Registry())
	},
}

// currentApp is the application opened by the running command, kept for
// the metrics report after the command finished.
var currentApp *app.Application

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// An interrupt cancels the running command, which abandons a pending login.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "authz version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeApplication()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	if errors.Is(err, authz.ErrNoToken) || errors.Is(err, authz.ErrNoAcquirer) {
		return ExitCodeAuthRequired
	}

	var authErr *oauth.AuthorizationError
	if errors.As(err, &authErr) || errors.Is(err, oauth.ErrDialogDismissed) || errors.Is(err, errRefreshFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

// openApplication bootstraps the application for the running command.
func openApplication(cmd *cobra.Command) (*app.Application, error) {
	if currentApp != nil {
		return currentApp, nil
	}

	cfg := app.NewConfig(configPath, logLevel)
	if !quiet {
		cfg.Out = cmd.OutOrStdout()
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return nil, err
	}
	currentApp = application
	return application, nil
}

// closeApplication releases the application opened by openApplication.
func closeApplication() {
	if currentApp != nil {
		_ = currentApp.Close()
		currentApp = nil
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", config.GetDefaultConfigPathOrPanic(), "Configuration directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (env: AUTHZ_LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "show-metrics", false, "Print token exchange metrics after the command")
}
