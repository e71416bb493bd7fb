// Package config loads the authz configuration.
//
// Configuration lives in a single directory, ~/.config/authz by default, or
// the directory given with --config-path. It contains:
//   - config.yaml, the file read by LoadConfig
//   - the session store, sessions.db or sessions/, unless store.path points elsewhere
//
// # config.yaml
//
//	logLevel: info
//	callbackPort: 3000
//	store:
//	  type: sqlite        # memory, file or sqlite
//	  path: sessions.db   # relative to the configuration directory
//	accounts:
//	  - accountId: work
//	    provider: keycloak
//	    realm: engineering
//	    baseURL: https://sso.example.com/auth
//	    clientId: cli
//	    redirectURL: http://127.0.0.1:3000/callback
//	    scopes: [openid, profile]
//
// Accounts with a provider (google, keycloak, facebook) take their endpoints
// from the preset; any endpoint given inline wins over the preset.
//
// # Environment
//
// AUTHZ_LOG_LEVEL, AUTHZ_CALLBACK_PORT, AUTHZ_STORE_TYPE and AUTHZ_STORE_PATH
// override the matching keys of config.yaml.
package config
