package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"authz/internal/authz"
	"authz/pkg/oauth"
)

var loginForce bool

var loginCmd = &cobra.Command{
	Use:   "login <account-id>",
	Short: "Authorize an account in the browser",
	Long: `Obtain an access token for an account.

If the account has no stored session, the authorization URL is opened in
your browser and the authorization code is captured on a local callback
server listening on the redirect URL. A stored session is refreshed instead
when needed.

Examples:
  authz login work           # Login, reusing a valid stored session
  authz login work --force   # Discard the stored session and login again`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().BoolVar(&loginForce, "force", false, "Discard the stored session before logging in")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	accountID := args[0]

	application, err := openApplication(cmd)
	if err != nil {
		return err
	}
	module, err := application.Module(ctx, accountID)
	if err != nil {
		return err
	}

	if loginForce {
		if err := module.DeleteAccount(ctx); err != nil {
			return err
		}
	} else if module.IsAuthorized() {
		printf(cmd, "%s Already logged in to %s.\n", text.FgGreen.Sprint("✓"), accountID)
		return nil
	}

	var s *spinner.Spinner
	if !quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Writer = cmd.ErrOrStderr()
		s.Suffix = fmt.Sprintf(" Waiting for authorization of %s...", accountID)
		s.Start()
	}

	_, err = module.RequestAccess(ctx).Wait(ctx)

	if s != nil {
		s.Stop()
	}

	if err != nil {
		if errors.Is(err, oauth.ErrDialogDismissed) {
			return fmt.Errorf("login to %s was cancelled: %w", accountID, err)
		}
		return fmt.Errorf("login to %s failed: %w", accountID, err)
	}

	printf(cmd, "%s Logged in to %s.\n", text.FgGreen.Sprint("✓"), accountID)
	if session := module.Session(); session != nil {
		printf(cmd, "  Expires:   %s\n", formatExpiry(session.Expiry(), application.Service().Now()))
	}
	return nil
}

// requireSession returns the module of a configured account that has a
// stored session, or an error wrapping authz.ErrNoToken.
func requireSession(cmd *cobra.Command, accountID string) (*authz.Module, error) {
	application, err := openApplication(cmd)
	if err != nil {
		return nil, err
	}
	module, err := application.Module(commandContext(cmd), accountID)
	if err != nil {
		return nil, err
	}

	has, err := application.Service().HasAccount(commandContext(cmd), accountID)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w for %s, run: authz login %s", authz.ErrNoToken, accountID, accountID)
	}
	return module, nil
}
