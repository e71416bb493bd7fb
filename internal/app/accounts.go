package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"authz/internal/authz"
	"authz/internal/config"
	"authz/pkg/oauth"
)

// ErrUnknownAccount is returned for account ids missing from config.yaml.
var ErrUnknownAccount = errors.New("account is not configured")

// AccountStatus summarizes one account for display.
type AccountStatus struct {
	AccountID  string
	Provider   string
	Configured bool
	State      oauth.SessionState

	// Expiry is the access token expiry, zero when it never expires or
	// there is no token.
	Expiry time.Time
}

// Module returns the authorization module of a configured account.
func (a *Application) Module(ctx context.Context, accountID string) (*authz.Module, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if m, ok := a.modules[accountID]; ok {
		return m, nil
	}

	account, ok := a.settings.Account(accountID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	cfg, err := account.OAuthConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration for account %s: %w", accountID, err)
	}

	m, err := authz.NewModule(ctx, *cfg, a.service, authz.WithAcquirer(a.acquirer))
	if err != nil {
		return nil, err
	}
	a.modules[accountID] = m
	return m, nil
}

// AddAccount validates account, adds or replaces it in the configuration and
// saves config.yaml. A replaced account keeps its stored session.
func (a *Application) AddAccount(account config.AccountConfig) error {
	if _, err := account.OAuthConfig(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	updated := a.settings
	updated.Accounts = append([]config.AccountConfig(nil), a.settings.Accounts...)
	updated.SetAccount(account)
	if err := config.SaveConfig(a.configPath, updated); err != nil {
		return err
	}

	a.settings = updated
	delete(a.modules, account.AccountID)
	return nil
}

// RemoveAccount deletes the stored session of accountID and removes the
// account from config.yaml. Sessions of accounts that are no longer
// configured can be removed too.
func (a *Application) RemoveAccount(ctx context.Context, accountID string) error {
	if err := a.service.RemoveAccount(ctx, accountID); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.modules, accountID)

	updated := a.settings
	updated.Accounts = append([]config.AccountConfig(nil), a.settings.Accounts...)
	if !updated.RemoveAccount(accountID) {
		return nil
	}
	if err := config.SaveConfig(a.configPath, updated); err != nil {
		return err
	}
	a.settings = updated
	return nil
}

// Status reports every configured account and every stored session, ordered
// by account id.
func (a *Application) Status(ctx context.Context) ([]AccountStatus, error) {
	stored, err := a.service.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*AccountStatus)
	for _, account := range a.Settings().Accounts {
		byID[account.AccountID] = &AccountStatus{
			AccountID:  account.AccountID,
			Provider:   account.Provider,
			Configured: true,
			State:      oauth.StateNoSession,
		}
	}

	now := a.service.Now()
	for _, id := range stored {
		session, err := a.service.GetAccount(ctx, id)
		if errors.Is(err, authz.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		status, ok := byID[id]
		if !ok {
			status = &AccountStatus{AccountID: id}
			byID[id] = status
		}
		status.State = session.State(now)
		if session.AccessToken != "" {
			status.Expiry = session.Expiry()
		}
	}

	statuses := make([]AccountStatus, 0, len(byID))
	for _, status := range byID {
		statuses = append(statuses, *status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].AccountID < statuses[j].AccountID
	})
	return statuses, nil
}
