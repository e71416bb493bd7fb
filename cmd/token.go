package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"authz/internal/app"
)

var tokenHeader bool

var refreshCmd = &cobra.Command{
	Use:   "refresh <account-id>",
	Short: "Make sure an account holds a valid access token",
	Long: `Renew the access token of an account when it has expired.

A valid token is kept. An expired token is renewed with the refresh token,
and a pending authorization code is exchanged. Nothing is done for accounts
without a stored session.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefresh,
}

var tokenCmd = &cobra.Command{
	Use:   "token <account-id>",
	Short: "Print the access token of an account",
	Long: `Print the access token of an account, renewing it first when it expired.

Examples:
  authz token work                                   # Print the raw token
  curl -H "$(authz token work --header)" https://api.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <account-id>",
	Short: "Delete the stored session of an account",
	Long: `Delete the stored session of an account. The account stays configured;
the next login starts a new authorization.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(logoutCmd)

	tokenCmd.Flags().BoolVar(&tokenHeader, "header", false, "Print an Authorization header line instead of the raw token")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	module, err := requireSession(cmd, args[0])
	if err != nil {
		return err
	}

	if !module.RefreshAccess(commandContext(cmd)) {
		return fmt.Errorf("%w for %s, run: authz login --force %s", errRefreshFailed, args[0], args[0])
	}

	printf(cmd, "%s %s holds a valid access token.\n", text.FgGreen.Sprint("✓"), args[0])
	if session := module.Session(); session != nil {
		printf(cmd, "  Expires:   %s\n", formatExpiry(session.Expiry(), currentApp.Service().Now()))
	}
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	module, err := requireSession(cmd, args[0])
	if err != nil {
		return err
	}

	if !module.IsAuthorized() && !module.RefreshAccess(commandContext(cmd)) {
		return fmt.Errorf("%w for %s, run: authz login --force %s", errRefreshFailed, args[0], args[0])
	}

	fields := module.GetAuthorizationFields("", "GET", nil)
	if tokenHeader {
		keys := make([]string, 0, len(fields.Headers))
		for k := range fields.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, fields.Headers[k])
		}
		return nil
	}

	token, err := module.Token()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token.AccessToken)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	application, err := openApplication(cmd)
	if err != nil {
		return err
	}

	module, err := application.Module(ctx, args[0])
	switch {
	case err == nil:
		err = module.DeleteAccount(ctx)
	case errors.Is(err, app.ErrUnknownAccount):
		// sessions of accounts dropped from config.yaml can still be cleared
		err = application.Service().RemoveAccount(ctx, args[0])
	}
	if err != nil {
		return err
	}

	printf(cmd, "Logged out of %s.\n", args[0])
	return nil
}
