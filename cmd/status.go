package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"authz/pkg/oauth"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state of every account",
	Long: `Show every configured account and every stored session with its state:

  NO_SESSION    nothing stored, a login is required
  CODE_PENDING  an authorization code waits to be exchanged
  HAS_TOKENS    a valid access token is stored
  EXPIRED       the access token expired, a refresh token is stored`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	application, err := openApplication(cmd)
	if err != nil {
		return err
	}

	statuses, err := application.Status(commandContext(cmd))
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		printf(cmd, "No accounts configured and no stored sessions.\n")
		return nil
	}

	now := application.Service().Now()
	t := newTable(cmd)
	t.AppendHeader(table.Row{"ACCOUNT", "PROVIDER", "STATE", "EXPIRES", "CONFIGURED"})
	for _, status := range statuses {
		expires := "-"
		if status.State == oauth.StateHasTokens || (status.State == oauth.StateExpired && !status.Expiry.IsZero()) {
			expires = formatExpiry(status.Expiry, now)
		}
		configured := "yes"
		if !status.Configured {
			configured = "no"
		}
		t.AppendRow(table.Row{status.AccountID, dashIfEmpty(status.Provider), stateText(status.State), expires, configured})
	}
	t.Render()
	return nil
}
