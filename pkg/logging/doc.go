// Package logging provides the structured logger used across authz.
//
// It is a thin layer over Go's log/slog package that tags every record with a
// subsystem name so output from the session store, the token exchange and the
// authorization modules can be told apart and filtered.
//
// # Log Levels
//   - **Debug**: request/response shapes, cache decisions
//   - **Info**: completed exchanges, account lifecycle
//   - **Warn**: recoverable failures (refresh failed, store watch lost)
//   - **Error**: failures surfaced to the caller
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("AuthzService", "Refreshed access token for account %s", accountID)
//	logging.Error("SessionStore", err, "Failed to persist session %s", accountID)
//
// Before InitForCLI is called only warnings and errors are written (to stderr),
// which keeps the packages usable as a library without configuration.
//
// # Audit Logging
//
// Credential lifecycle events are reported through Audit:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:    "token_refresh",
//	    Outcome:   "success",
//	    AccountID: accountID,
//	    Target:    refreshURL,
//	})
//
// Audit events are logged at INFO level with an [AUDIT] prefix. Token values
// are never logged, only account ids and endpoints.
package logging
