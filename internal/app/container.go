// Package app provides the dependency injection container for the application.
package app

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/runoshun/termux-tasker/internal/domain"
	"github.com/runoshun/termux-tasker/internal/infra/config"
	"github.com/runoshun/termux-tasker/internal/infra/delivery"
	"github.com/runoshun/termux-tasker/internal/infra/executor"
	"github.com/runoshun/termux-tasker/internal/infra/filecheck"
	"github.com/runoshun/termux-tasker/internal/infra/ipc"
	"github.com/runoshun/termux-tasker/internal/infra/jsonstore"
	"github.com/runoshun/termux-tasker/internal/infra/logging"
	"github.com/runoshun/termux-tasker/internal/infra/metrics"
	"github.com/runoshun/termux-tasker/internal/infra/redisstore"
	"github.com/runoshun/termux-tasker/internal/infra/tmux"
	"github.com/runoshun/termux-tasker/internal/usecase"
)

// Config holds the resolved application paths and settings.
// Fields are ordered to minimize memory padding.
type Config struct {
	Paths        domain.Paths // Home, prefix and scripts directory
	DataDir      string       // Root for state, queues, logs and transcripts
	StorePath    string       // Path to state.json
	IntentsDir   string       // Intent queue directory
	CallbacksDir string       // Callback queue directory
	SocketPath   string       // Path to tmux socket
	TmuxConfig   string       // Path to the tmux config written for sessions
	PendingTTL   time.Duration
}

// newConfig resolves paths from the loaded application config.
func newConfig(appConfig *domain.Config) (Config, error) {
	paths := appConfig.ResolvedPaths()
	dataDir := paths.Expand(appConfig.Paths.DataDir)
	ttl, err := appConfig.PendingTTLDuration()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Paths:        paths,
		DataDir:      dataDir,
		StorePath:    domain.StatePath(dataDir),
		IntentsDir:   domain.IntentsDir(dataDir),
		CallbacksDir: domain.CallbacksDir(dataDir),
		SocketPath:   domain.TmuxSocketPath(dataDir),
		TmuxConfig:   domain.TmuxConfigPath(dataDir),
		PendingTTL:   ttl,
	}, nil
}

// Container provides dependency injection for the application.
// It holds all port implementations and provides factory methods for use cases.
type Container struct {
	// Ports (interfaces bound to implementations)
	Callbacks        domain.CallbackStore
	StoreInitializer domain.StoreInitializer
	Clock            domain.Clock
	Service          domain.ExecutionService
	Intents          domain.IntentSource
	CallbackSource   domain.CallbackSource
	CallbackSink     domain.CallbackSink
	Notifier         domain.HostNotifier
	Validator        domain.PathValidator
	Fixer            domain.PathFixer
	Executor         domain.CommandExecutor
	Sessions         domain.SessionManager
	ConfigLoader     domain.ConfigLoader
	ConfigManager    domain.ConfigManager

	// Pointer fields
	Logger    *logging.Logger
	Metrics   *metrics.Metrics
	AppConfig *domain.Config

	closers []io.Closer

	// Configuration
	Config Config
}

// New creates a new Container from the system and user config files.
func New() (*Container, error) {
	configLoader := config.NewLoader()
	appConfig, err := configLoader.Load()
	if err != nil {
		return nil, err
	}
	c, err := NewWithConfig(appConfig)
	if err != nil {
		return nil, err
	}
	c.ConfigLoader = configLoader
	c.ConfigManager = config.NewManager()
	return c, nil
}

// NewWithConfig creates a new Container for an already loaded config.
func NewWithConfig(appConfig *domain.Config) (*Container, error) {
	cfg, err := newConfig(appConfig)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Clock:     domain.RealClock{},
		Logger:    logging.New(cfg.DataDir, logging.ParseLevel(appConfig.Log.Level)),
		Metrics:   metrics.New(),
		AppConfig: appConfig,
		Config:    cfg,
	}
	c.closers = append(c.closers, c.Logger)

	// Create callback store based on config
	// Default is the JSON file; redis only when explicitly configured
	switch appConfig.Store.Type {
	case domain.StoreTypeRedis:
		store, err := redisstore.New(appConfig.Store.RedisURL, appConfig.Store.KeyPrefix)
		if err != nil {
			return nil, err
		}
		c.Callbacks = store
		c.StoreInitializer = store
		c.closers = append(c.closers, store)
	case domain.StoreTypeJSON, "":
		store := jsonstore.New(cfg.StorePath)
		c.Callbacks = store
		c.StoreInitializer = store
	default:
		return nil, fmt.Errorf("unknown store type %q", appConfig.Store.Type)
	}
	if err := c.StoreInitializer.Initialize(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	intents := ipc.NewIntentQueue(cfg.IntentsDir)
	checker := filecheck.New()

	c.Service = intents
	c.Intents = intents
	c.CallbackSource = ipc.NewCallbackQueue(cfg.CallbacksDir)
	c.CallbackSink = delivery.NewCallbackSender()
	c.Notifier = delivery.NewNotifier(cfg.DataDir)
	c.Validator = checker
	c.Fixer = checker
	c.Executor = executor.NewClient()
	c.Sessions = tmux.NewClient(cfg.SocketPath, cfg.TmuxConfig, appConfig.Service.Shell)

	for _, w := range appConfig.Warnings {
		c.Logger.Warn(0, "config", w)
	}
	return c, nil
}

// Close releases the store connection and open log files.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i].Close())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// UseCase factory methods

// DispatchExecutionUseCase returns a new DispatchExecution use case.
func (c *Container) DispatchExecutionUseCase() *usecase.DispatchExecution {
	return usecase.NewDispatchExecution(c.Callbacks, c.Service, c.Validator, c.Logger, c.Metrics, c.Clock,
		usecase.DispatchPolicy{
			CallbackQueue:     c.Config.CallbacksDir,
			Paths:             c.Config.Paths,
			AllowExternalApps: c.AppConfig.Policy.AllowExternalApps,
		})
}

// RelayResultUseCase returns a new RelayResult use case.
func (c *Container) RelayResultUseCase() *usecase.RelayResult {
	return usecase.NewRelayResult(c.Callbacks, c.Notifier, c.Logger, c.Metrics)
}

// RunExecutionUseCase returns a new RunExecution use case.
func (c *Container) RunExecutionUseCase() *usecase.RunExecution {
	return usecase.NewRunExecution(c.Fixer, c.Executor, c.Sessions, c.CallbackSink, c.Logger, c.Clock,
		usecase.ExecutionSettings{
			Paths:          c.Config.Paths,
			DataDir:        c.Config.DataDir,
			MaxOutputBytes: c.AppConfig.Service.MaxOutputBytes,
		})
}

// DeliverResultUseCase returns a new DeliverResult use case.
func (c *Container) DeliverResultUseCase() *usecase.DeliverResult {
	return usecase.NewDeliverResult(c.CallbackSink, c.Logger, c.Clock)
}

// PruneCallbacksUseCase returns a new PruneCallbacks use case.
func (c *Container) PruneCallbacksUseCase() *usecase.PruneCallbacks {
	return usecase.NewPruneCallbacks(c.Callbacks, c.Logger, c.Metrics, c.Clock)
}

// ListPendingUseCase returns a new ListPending use case.
func (c *Container) ListPendingUseCase() *usecase.ListPending {
	return usecase.NewListPending(c.Callbacks, c.Clock)
}

// ConfigureActionUseCase returns a new ConfigureAction use case.
func (c *Container) ConfigureActionUseCase() *usecase.ConfigureAction {
	return usecase.NewConfigureAction(c.Validator, c.Config.Paths, c.AppConfig.Policy.AllowExternalApps)
}

// ShowConfigUseCase returns a new ShowConfig use case.
func (c *Container) ShowConfigUseCase() *usecase.ShowConfig {
	return usecase.NewShowConfig(c.ConfigManager, c.ConfigLoader)
}

// InitConfigUseCase returns a new InitConfig use case.
func (c *Container) InitConfigUseCase() *usecase.InitConfig {
	return usecase.NewInitConfig(c.ConfigManager)
}
