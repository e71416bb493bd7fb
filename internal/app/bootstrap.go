package app

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"authz/internal/acquirer"
	"authz/internal/authz"
	"authz/internal/config"
	"authz/internal/sessionstore"
	"authz/pkg/logging"
)

// Application wires the configured session store, the authorization service
// and one authorization module per account.
//
// Modules are built on first use and cached, so every caller asking for the
// same account shares one module and its cached session.
//
// Example usage:
//
//	application, err := app.NewApplication(app.NewConfig("", "debug"))
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	defer application.Close()
//
//	module, err := application.Module(ctx, "work")
type Application struct {
	config     *Config
	configPath string
	settings   config.Config

	store    sessionstore.Store
	service  *authz.Service
	registry *prometheus.Registry
	acquirer authz.Acquirer

	mu      sync.Mutex
	modules map[string]*authz.Module
}

// NewApplication performs the bootstrap sequence:
//
//  1. Configures logging from cfg.LogLevel
//  2. Loads config.yaml unless cfg.Settings is set
//  3. Opens the session store named by the configuration
//  4. Creates the metrics registry, the service and the acquirer
func NewApplication(cfg *Config) (*Application, error) {
	if cfg == nil {
		cfg = NewConfig("", "")
	}

	initLogging(cfg, config.DefaultLogLevel)

	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}

	var settings config.Config
	if cfg.Settings != nil {
		settings = *cfg.Settings
	} else {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration from path: %s", configPath)
			return nil, fmt.Errorf("failed to load configuration from path %s: %w", configPath, err)
		}
		settings = loaded
	}
	initLogging(cfg, settings.LogLevel)

	storePath := settings.StoreLocation(configPath)
	store, err := sessionstore.New(sessionstore.Kind(settings.Store.Type), storePath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to open %s session store at %s", settings.Store.Type, storePath)
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	logging.Debug("Bootstrap", "Using %s session store at %s", settings.Store.Type, storePath)

	registry := prometheus.NewRegistry()
	serviceOpts := []authz.ServiceOption{authz.WithMetrics(authz.NewMetrics(registry))}
	if cfg.HTTPClient != nil {
		serviceOpts = append(serviceOpts, authz.WithHTTPClient(cfg.HTTPClient))
	}

	codeAcquirer := cfg.Acquirer
	if codeAcquirer == nil {
		codeAcquirer = &acquirer.Loopback{
			Port: settings.CallbackPort,
			Out:  cfg.Out,
		}
	}

	return &Application{
		config:     cfg,
		configPath: configPath,
		settings:   settings,
		store:      store,
		service:    authz.NewService(store, serviceOpts...),
		registry:   registry,
		acquirer:   codeAcquirer,
		modules:    make(map[string]*authz.Module),
	}, nil
}

// initLogging applies cfg.LogLevel, falling back to fallback. Unknown
// levels keep info.
func initLogging(cfg *Config, fallback string) {
	levelName := cfg.LogLevel
	if levelName == "" {
		levelName = fallback
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		level = logging.LevelInfo
	}

	var logOutput io.Writer = os.Stderr
	if cfg.Silent {
		logOutput = io.Discard
	}
	logging.InitForCLI(level, logOutput)
}

// ConfigPath returns the configuration directory in use.
func (a *Application) ConfigPath() string {
	return a.configPath
}

// Settings returns a copy of the loaded configuration.
func (a *Application) Settings() config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	settings := a.settings
	settings.Accounts = append([]config.AccountConfig(nil), a.settings.Accounts...)
	return settings
}

// Service returns the authorization service.
func (a *Application) Service() *authz.Service {
	return a.service
}

// Registry returns the registry the service metrics are registered with.
func (a *Application) Registry() *prometheus.Registry {
	return a.registry
}

// Close releases the session store.
func (a *Application) Close() error {
	return a.store.Close()
}
