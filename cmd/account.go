package cmd

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"authz/internal/config"
	"authz/pkg/oauth"
)

// accountCmd represents the account command group
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage configured accounts",
	Long: `Manage the OAuth2 accounts described in config.yaml.

Examples:
  authz account add work --provider keycloak --realm eng --base-url https://sso.example.com/auth --client-id cli
  authz account add personal --provider google --client-id <id> --client-secret <secret> --scope email
  authz account list
  authz account remove work`,
}

var accountAddCmd = &cobra.Command{
	Use:   "add <account-id>",
	Short: "Add or replace an account",
	Long: `Add an account to config.yaml, replacing any account with the same id.

With --provider the endpoints of a well-known provider are used; explicit
endpoint flags override the preset.`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountAdd,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccountList,
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove <account-id>",
	Short: "Remove an account and its stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountRemove,
}

// Account add flags
var (
	accountProvider        string
	accountRealm           string
	accountBaseURL         string
	accountAuthzEndpoint   string
	accountTokenEndpoint   string
	accountRefreshEndpoint string
	accountRedirectURL     string
	accountClientID        string
	accountClientSecret    string
	accountScopes          []string
	accountAuthzParams     []string
	accountAccessParams    []string
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountRemoveCmd)

	f := accountAddCmd.Flags()
	f.StringVar(&accountProvider, "provider", "", "Provider preset: google, keycloak, facebook")
	f.StringVar(&accountRealm, "realm", "", "Keycloak realm")
	f.StringVar(&accountBaseURL, "base-url", "", "Authorization server base URL")
	f.StringVar(&accountAuthzEndpoint, "authz-endpoint", "", "Authorization endpoint, relative to the base URL or absolute")
	f.StringVar(&accountTokenEndpoint, "token-endpoint", "", "Token endpoint for code exchanges")
	f.StringVar(&accountRefreshEndpoint, "refresh-endpoint", "", "Token endpoint for refresh exchanges")
	f.StringVar(&accountRedirectURL, "redirect-url", "", "Redirect URL registered with the authorization server")
	f.StringVar(&accountClientID, "client-id", "", "OAuth2 client id")
	f.StringVar(&accountClientSecret, "client-secret", "", "OAuth2 client secret")
	f.StringSliceVar(&accountScopes, "scope", nil, "Scope to request (repeatable)")
	f.StringArrayVar(&accountAuthzParams, "authz-param", nil, "Extra authorization URL parameter as key=value (repeatable)")
	f.StringArrayVar(&accountAccessParams, "access-param", nil, "Extra token request parameter as key=value (repeatable)")
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	authzParams, err := parseParams(accountAuthzParams)
	if err != nil {
		return err
	}
	accessParams, err := parseParams(accountAccessParams)
	if err != nil {
		return err
	}

	account := config.AccountConfig{
		Provider: accountProvider,
		Realm:    accountRealm,
		Config: oauth.Config{
			AccountID:                     args[0],
			BaseURL:                       accountBaseURL,
			AuthzEndpoint:                 accountAuthzEndpoint,
			AccessTokenEndpoint:           accountTokenEndpoint,
			RefreshEndpoint:               accountRefreshEndpoint,
			RedirectURL:                   accountRedirectURL,
			ClientID:                      accountClientID,
			ClientSecret:                  accountClientSecret,
			Scopes:                        accountScopes,
			AdditionalAuthorizationParams: authzParams,
			AdditionalAccessParams:        accessParams,
		},
	}

	application, err := openApplication(cmd)
	if err != nil {
		return err
	}
	if err := application.AddAccount(account); err != nil {
		return fmt.Errorf("failed to add account %s: %w", args[0], err)
	}

	printf(cmd, "%s Account %s saved to %s\n", text.FgGreen.Sprint("✓"), args[0], config.ConfigFilePath(application.ConfigPath()))
	return nil
}

func runAccountList(cmd *cobra.Command, args []string) error {
	application, err := openApplication(cmd)
	if err != nil {
		return err
	}

	accounts := application.Settings().Accounts
	if len(accounts) == 0 {
		printf(cmd, "No accounts configured. Add one with: authz account add <account-id>\n")
		return nil
	}

	t := newTable(cmd)
	t.AppendHeader(table.Row{"ACCOUNT", "PROVIDER", "AUTHORIZATION URL", "CLIENT ID", "SCOPES"})
	for _, account := range accounts {
		authorizationURL := ""
		if cfg, err := account.OAuthConfig(); err == nil {
			authorizationURL = cfg.AuthorizationEndpointURL()
		}
		t.AppendRow(table.Row{
			account.AccountID,
			dashIfEmpty(account.Provider),
			truncate(authorizationURL, 60),
			dashIfEmpty(account.ClientID),
			dashIfEmpty(strings.Join(account.Scopes, " ")),
		})
	}
	t.Render()
	return nil
}

func runAccountRemove(cmd *cobra.Command, args []string) error {
	application, err := openApplication(cmd)
	if err != nil {
		return err
	}
	if err := application.RemoveAccount(commandContext(cmd), args[0]); err != nil {
		return fmt.Errorf("failed to remove account %s: %w", args[0], err)
	}

	printf(cmd, "Account %s removed.\n", args[0])
	return nil
}

// parseParams parses key=value pairs. Values may contain '='.
func parseParams(pairs []string) ([]oauth.Param, error) {
	var params []oauth.Param
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params = append(params, oauth.Param{Key: key, Value: value})
	}
	return params, nil
}
