// Package app is the composition root of authz.
//
// NewApplication loads the configuration, opens the session store it names
// and creates the authorization service together with a Prometheus registry
// for its metrics. Authorization modules are created per account on demand
// through Application.Module; there is no process-wide registry of modules.
//
// Account management (AddAccount, RemoveAccount) keeps config.yaml and the
// session store in step: adding writes the account to config.yaml, removing
// drops both the configuration entry and the stored session.
package app
