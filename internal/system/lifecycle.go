package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenBusSpoofer/internal/api/rest"
	"github.com/KevinKickass/OpenBusSpoofer/internal/api/websocket"
	"github.com/KevinKickass/OpenBusSpoofer/internal/audit"
	"github.com/KevinKickass/OpenBusSpoofer/internal/auth"
	"github.com/KevinKickass/OpenBusSpoofer/internal/bus"
	"github.com/KevinKickass/OpenBusSpoofer/internal/config"
	"github.com/KevinKickass/OpenBusSpoofer/internal/interfaces"
	"github.com/KevinKickass/OpenBusSpoofer/internal/registry"
	"github.com/KevinKickass/OpenBusSpoofer/internal/storage"
	"github.com/KevinKickass/OpenBusSpoofer/internal/tables"
	"github.com/KevinKickass/OpenBusSpoofer/internal/telemetry"
	"github.com/KevinKickass/OpenBusSpoofer/internal/watcher"
	"go.uber.org/zap"
)

// EventSource delivers telemetry events; MQTTSource in production.
type EventSource interface {
	Connect(ctx context.Context) error
	Events() <-chan telemetry.Event
	Close()
}

type LifecycleManager struct {
	config  *config.Config
	logger  *zap.Logger
	cache   *registry.Cache
	overlay *registry.Overlay
	loader  tables.Loader
	storage *storage.PostgresClient

	source   EventSource
	ingester *telemetry.Ingester
	watcher  *watcher.Watcher

	busServer   *bus.Server
	restServer  *rest.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService

	cancel context.CancelFunc
	wg     sync.WaitGroup

	reloadMu sync.Mutex

	stateMu      sync.RWMutex
	currentState SystemState

	fatal        chan error
	shutdownOnce sync.Once
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) *LifecycleManager {
	cache := registry.NewCache()
	overlay := registry.NewOverlay()

	var loader tables.Loader
	if cfg.Mode.Telemetry {
		loader = tables.NewSpoofTableLoader(cfg.Telemetry.SpoofFile, overlay, logger)
	} else {
		loader = tables.NewDatasetLoader(cfg.Dataset.DataFile, cache, logger)
	}

	lm := &LifecycleManager{
		config:       cfg,
		logger:       logger,
		cache:        cache,
		overlay:      overlay,
		loader:       loader,
		currentState: StateInitializing,
		fatal:        make(chan error, 1),
	}

	lm.busServer = bus.NewServer(
		fmt.Sprintf(":%d", cfg.Server.ListenPort),
		cache,
		bus.ServerOptions{
			ReadTimeout:    cfg.Bus.ReadTimeout,
			MaxConnections: cfg.Bus.MaxConnections,
		},
		logger)

	if cfg.Mode.Telemetry {
		lm.source = telemetry.NewMQTTSource(cfg.Telemetry, logger)
	}

	return lm
}

// SetEventSource replaces the telemetry transport. Must be called before Start.
func (lm *LifecycleManager) SetEventSource(src EventSource) {
	lm.source = src
}

// Start loads the table and brings up every service
func (lm *LifecycleManager) Start(ctx context.Context) error {
	mode := lm.config.OperatingMode()
	lm.logger.Info("Starting register spoofer", zap.String("mode", string(mode)))

	runCtx, cancel := context.WithCancel(context.Background())
	lm.cancel = cancel

	if err := lm.start(ctx, runCtx); err != nil {
		lm.setState(StateError)
		cancel()
		return err
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.String("mode", string(mode)),
		zap.Int("listen_port", lm.config.Server.ListenPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("cache_size", lm.cache.Len()))

	return nil
}

func (lm *LifecycleManager) start(ctx, runCtx context.Context) error {
	if lm.config.Database.Enabled {
		store, err := storage.NewPostgresClient(ctx, lm.config.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return err
		}
		lm.storage = store
		lm.logger.Info("Database connected successfully")
	}

	if lm.config.Server.HTTPPort > 0 {
		lm.wsHub = websocket.NewHub(lm.logger)
		lm.goRun(func() { lm.wsHub.Run(runCtx) })
		lm.goRun(func() { lm.forwardUpdates(runCtx) })
	}

	// The service cannot answer anything without its table
	if err := lm.reload(); err != nil {
		return fmt.Errorf("initial %s load failed: %w", lm.loader.Name(), err)
	}

	if lm.config.Mode.Telemetry {
		if err := lm.startTelemetry(ctx); err != nil {
			return err
		}
	}

	w, err := watcher.New(lm.loader.Path(), lm.reload, watcher.Options{
		Debounce: lm.config.Watcher.Debounce,
		FailFast: lm.config.Reload.FailFast,
	}, lm.logger)
	if err != nil {
		return err
	}
	lm.watcher = w
	lm.goRun(func() {
		if err := w.Run(runCtx); err != nil {
			lm.fail(err)
		}
	})
	select {
	case <-w.Ready():
	case err := <-lm.fatal:
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	if err := lm.busServer.Start(); err != nil {
		return fmt.Errorf("failed to start bus server: %w", err)
	}

	if lm.config.Server.HTTPPort > 0 {
		if lm.config.Auth.Enabled {
			if !lm.config.Auth.IsProductionReady() {
				lm.logger.Warn("API auth enabled with development JWT secret",
					zap.String("env", lm.config.Auth.JWTSecretEnv))
			}
			lm.authService = auth.NewAuthService(lm.config.Auth)
		}
		lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService)
		if err := lm.restServer.Start(); err != nil {
			return fmt.Errorf("failed to start REST API: %w", err)
		}
	}

	return nil
}

func (lm *LifecycleManager) startTelemetry(ctx context.Context) error {
	var recorders audit.Multi
	if lm.config.Audit.Enabled {
		fileRecorder, err := audit.NewFileRecorder(lm.config.Audit.Dir, lm.config.Audit.Prefix)
		if err != nil {
			return err
		}
		recorders = append(recorders, fileRecorder)
	}
	if lm.storage != nil {
		recorders = append(recorders, lm.storage)
	}

	var recorder audit.Recorder
	if len(recorders) > 0 {
		recorder = recorders
	}

	lm.ingester = telemetry.NewIngester(
		lm.config.Telemetry.Topic,
		lm.source.Events(),
		lm.cache,
		lm.overlay,
		recorder,
		lm.logger)

	if err := lm.ingester.Start(); err != nil {
		return fmt.Errorf("failed to start ingester: %w", err)
	}

	if err := lm.source.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect telemetry source: %w", err)
	}

	return nil
}

func (lm *LifecycleManager) goRun(fn func()) {
	lm.wg.Add(1)
	go func() {
		defer lm.wg.Done()
		fn()
	}()
}

// reload runs the active loader; reloads from the watcher and the API are serialized.
func (lm *LifecycleManager) reload() error {
	lm.reloadMu.Lock()
	defer lm.reloadMu.Unlock()

	err := lm.loader.Load()
	status := lm.loader.Status()

	if lm.storage != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if logErr := lm.storage.LogReload(ctx, lm.loader.Name(), lm.loader.Path(), status.Entries, err); logErr != nil {
			lm.logger.Warn("Failed to log reload", zap.Error(logErr))
		}
		cancel()
	}

	if lm.wsHub != nil {
		lm.wsHub.Broadcast(websocket.NewReloadMessage(lm.loader.Name(), lm.loader.Path(), status.Entries, err))
	}

	return err
}

func (lm *LifecycleManager) forwardUpdates(ctx context.Context) {
	updates := lm.cache.Subscribe()
	defer lm.cache.Unsubscribe(updates)

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			lm.wsHub.Broadcast(websocket.NewRegisterUpdateMessage(u.Register.String(), bus.Hex(u.Payload), len(u.Payload)))
		}
	}
}

// fail reports a fatal runtime error to whoever waits on Done.
func (lm *LifecycleManager) fail(err error) {
	lm.setState(StateError)
	select {
	case lm.fatal <- err:
	default:
	}
}

// Done delivers a fatal runtime error, such as a failed reload with fail_fast set.
func (lm *LifecycleManager) Done() <-chan error {
	return lm.fatal
}

// TriggerReload reloads the active table immediately
func (lm *LifecycleManager) TriggerReload() error {
	return lm.reload()
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var errs []error

	if lm.restServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
		}
		cancel()
	}

	if err := lm.busServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if lm.source != nil {
		lm.source.Close()
	}
	if lm.ingester != nil {
		lm.ingester.Stop()
	}

	if lm.cancel != nil {
		lm.cancel()
	}

	done := make(chan struct{})
	go func() {
		lm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		errs = append(errs, fmt.Errorf("shutdown timeout exceeded"))
	}

	if lm.storage != nil {
		lm.storage.Close()
	}

	if len(errs) > 0 {
		return errs[0]
	}

	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil && lm.currentState != state {
		lm.logger.Warn("Unexpected state transition", zap.Error(err))
	}
	lm.currentState = state
}

// State returns the current lifecycle state
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	status := interfaces.SystemStatus{
		State:        lm.State().String(),
		Mode:         string(lm.config.OperatingMode()),
		CacheSize:    lm.cache.Len(),
		SpoofEntries: lm.overlay.Len(),
		Connections:  lm.busServer.ActiveConnections(),
		Requests:     lm.busServer.RequestCount(),
		Table:        lm.loader.Status(),
	}
	if lm.wsHub != nil {
		status.WebSocketClients = lm.wsHub.GetClientCount()
	}
	if lm.ingester != nil {
		stats := lm.ingester.Stats()
		status.Telemetry = &stats
	}
	return status
}

// BusAddr returns the bound bus listener address
func (lm *LifecycleManager) BusAddr() string {
	if addr := lm.busServer.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// Cache returns the register cache
func (lm *LifecycleManager) Cache() *registry.Cache {
	return lm.cache
}

// Overlay returns the spoof overlay
func (lm *LifecycleManager) Overlay() *registry.Overlay {
	return lm.overlay
}

// Storage returns the database client, nil when disabled
func (lm *LifecycleManager) Storage() *storage.PostgresClient {
	return lm.storage
}
