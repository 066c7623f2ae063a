package system

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/KevinKickass/OpenRotoCore/internal/api/rest"
	"github.com/KevinKickass/OpenRotoCore/internal/api/websocket"
	"github.com/KevinKickass/OpenRotoCore/internal/auth"
	"github.com/KevinKickass/OpenRotoCore/internal/catalog"
	"github.com/KevinKickass/OpenRotoCore/internal/config"
	"github.com/KevinKickass/OpenRotoCore/internal/interfaces"
	"github.com/KevinKickass/OpenRotoCore/internal/layout"
	"github.com/KevinKickass/OpenRotoCore/internal/machine"
	"github.com/KevinKickass/OpenRotoCore/internal/metrics"
	"github.com/KevinKickass/OpenRotoCore/internal/molding"
	"github.com/KevinKickass/OpenRotoCore/internal/orders"
	"github.com/KevinKickass/OpenRotoCore/internal/storage"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// MoldStore is the mold persistence used at startup and on import.
type MoldStore interface {
	LoadMolds(ctx context.Context) ([]molding.Mold, error)
	UpsertMolds(ctx context.Context, molds []molding.Mold) error
}

type LifecycleManager struct {
	config  *config.Config
	storage *storage.PostgresClient
	logger  *zap.Logger

	catalog     *catalog.Catalog
	spiders     *catalog.ProfileLoader
	machines    *machine.Registry
	orders      *orders.Service
	metrics     *metrics.Metrics
	wsHub       *websocket.Hub
	health      *health.Server
	authService *auth.AuthService

	restServer *rest.Server
	grpcServer *grpc.Server

	cancelBackground context.CancelFunc
	background       sync.WaitGroup

	stateMu      sync.RWMutex
	currentState SystemState

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(store *storage.PostgresClient, cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	spiders, err := catalog.NewProfileLoader(cfg.Catalog.SpiderProfilePaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create spider loader: %w", err)
	}

	authService := auth.NewAuthService(store, cfg.Auth, logger)
	if !cfg.Auth.IsProductionReady() {
		logger.Warn("JWT secret is the development default or too short")
	}

	hub := websocket.NewHub(logger, authService)

	return &LifecycleManager{
		config:       cfg,
		storage:      store,
		logger:       logger,
		catalog:      catalog.New(),
		spiders:      spiders,
		machines:     machine.NewRegistry(),
		metrics:      metrics.New(),
		wsHub:        hub,
		health:       health.NewServer(),
		authService:  authService,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}, nil
}

// Start loads the plant and brings up every server.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting OpenRotoCore")

	bgCtx, cancel := context.WithCancel(context.Background())
	lm.cancelBackground = cancel

	lm.background.Add(1)
	go func() {
		defer lm.background.Done()
		lm.wsHub.Run(bgCtx)
	}()

	if err := BootstrapCatalog(ctx, lm.storage, lm.catalog, lm.config.Catalog.CSVPath, lm.logger); err != nil {
		lm.setError(err)
		return err
	}

	if err := lm.loadSpiderSheet(); err != nil {
		lm.setError(err)
		return err
	}

	repo, err := orders.OpenRepository(lm.storage.Pool())
	if err != nil {
		lm.setError(err)
		return err
	}
	if err := repo.Migrate(ctx); err != nil {
		lm.setError(err)
		return err
	}
	lm.orders = orders.NewService(repo, lm.wsHub, lm.logger)
	if err := lm.orders.Load(ctx); err != nil {
		lm.setError(fmt.Errorf("failed to load orders: %w", err))
		return err
	}

	layouts, err := LoadLayouts(lm.config.Layouts.Paths)
	if err != nil {
		lm.setError(err)
		return err
	}
	if err := lm.buildMachines(layouts); err != nil {
		lm.setError(err)
		return err
	}

	if err := lm.startGRPCServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start gRPC: %w", err))
		return err
	}

	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService, lm.metrics)
	if err := lm.restServer.Start(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.background.Add(1)
	go func() {
		defer lm.background.Done()
		lm.runDailyReset(bgCtx)
	}()

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("machines", len(lm.machines.List())),
		zap.Int("molds", lm.catalog.Len()))

	return nil
}

// BootstrapCatalog fills cat from the database. An empty database is seeded from the
// CSV sheet at csvPath when one exists.
func BootstrapCatalog(ctx context.Context, store MoldStore, cat *catalog.Catalog, csvPath string, logger *zap.Logger) error {
	molds, err := store.LoadMolds(ctx)
	if err != nil {
		return fmt.Errorf("failed to load molds: %w", err)
	}

	if len(molds) == 0 && csvPath != "" {
		if _, statErr := os.Stat(csvPath); statErr == nil {
			sheet, rowErrs, err := catalog.LoadMoldsCSVFile(csvPath)
			if err != nil {
				return err
			}
			for _, re := range rowErrs {
				logger.Warn("Skipped mold row", zap.String("file", csvPath), zap.Int("line", re.Line), zap.Error(re.Err))
			}
			if err := store.UpsertMolds(ctx, sheet); err != nil {
				return fmt.Errorf("failed to seed molds: %w", err)
			}
			molds = sheet
			logger.Info("Mold catalog seeded from CSV", zap.String("file", csvPath), zap.Int("count", len(sheet)))
		} else {
			logger.Warn("No molds in database and no mold sheet found", zap.String("file", csvPath))
		}
	}

	for _, m := range molds {
		cat.Put(m)
	}
	return nil
}

func (lm *LifecycleManager) loadSpiderSheet() error {
	path := lm.config.Catalog.SpiderCSVPath
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open spider sheet: %w", err)
	}
	defer f.Close()

	profiles, err := catalog.LoadSpidersCSV(f)
	if err != nil {
		return fmt.Errorf("spider sheet %s: %w", path, err)
	}
	for _, p := range profiles {
		lm.spiders.Register(p)
	}
	lm.logger.Info("Spider sheet loaded", zap.String("file", path), zap.Int("count", len(profiles)))
	return nil
}

// LoadLayouts reads every layout matched by paths. Each entry may be a file, a
// directory of *.yaml files, or a glob pattern.
func LoadLayouts(paths []string) ([]*layout.Layout, error) {
	var files []string
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			matches, err := filepath.Glob(filepath.Join(p, "*.yaml"))
			if err != nil {
				return nil, err
			}
			files = append(files, matches...)
			continue
		}

		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("invalid layout pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("layout %s: %w", p, os.ErrNotExist)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	layouts := make([]*layout.Layout, 0, len(files))
	seen := make(map[string]string)
	for _, f := range files {
		l, err := layout.Load(f)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[l.MachineID]; dup {
			return nil, fmt.Errorf("machine %s defined in both %s and %s", l.MachineID, prev, f)
		}
		seen[l.MachineID] = f
		layouts = append(layouts, l)
	}
	return layouts, nil
}

func (lm *LifecycleManager) buildMachines(layouts []*layout.Layout) error {
	composer := layout.NewComposer(lm.catalog, lm.spiders, lm.config.Scheduling.MaxDailyCycles, lm.logger)

	for _, l := range layouts {
		m, err := composer.Compose(l)
		if err != nil {
			return fmt.Errorf("failed to compose machine %s: %w", l.MachineID, err)
		}

		ctrl := machine.NewController(m, lm.catalog, lm.logger, machine.Options{
			Recorder: lm.storage,
			Hub:      lm.wsHub,
			Metrics:  lm.metrics,
			Health:   lm.health,
		})
		if err := lm.machines.Add(ctrl); err != nil {
			return err
		}
	}
	return nil
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(lm.grpcServer, lm.health)
	lm.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.Int("port", lm.config.Server.GRPCPort),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

// runDailyReset resets every machine's daily counter at each production-day boundary.
func (lm *LifecycleManager) runDailyReset(ctx context.Context) {
	for {
		next, err := lm.config.Scheduling.NextDayStart(time.Now())
		if err != nil {
			lm.logger.Error("Daily reset disabled", zap.Error(err))
			return
		}

		lm.logger.Debug("Next daily reset scheduled", zap.Time("at", next))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			lm.logger.Info("Production day boundary reached, resetting daily counters")
			lm.machines.ResetAllDaily()
		}
	}
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has finished.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	lm.health.Shutdown()

	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		if lm.cancelBackground != nil {
			lm.cancelBackground()
		}
		lm.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		return fmt.Errorf("shutdown timeout exceeded")
	case err := <-errChan:
		return err
	}
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected system state change", zap.Error(err))
	}
	lm.currentState = state
	lm.stateMu.Unlock()

	lm.wsHub.Broadcast(websocket.NewMessage(websocket.MessageTypeSystemStatus, lm.GetCurrentStatus()))
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.setState(StateError)
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	lm.stateMu.RUnlock()

	status := interfaces.SystemStatus{
		State:      state.String(),
		MoldCount:  lm.catalog.Len(),
		Persistent: lm.storage != nil,
	}
	for _, ctrl := range lm.machines.List() {
		status.MachineCount++
		if ctrl.Status().State == machine.StateReady {
			status.MachinesReady++
		}
	}
	if lm.orders != nil {
		status.OrderCount = len(lm.orders.List())
	}
	return status
}

// ImportMolds parses a mold sheet, persists the accepted rows, then merges them into
// the live catalog. Counts are stock totals; units mounted on machines stay reserved
// against the new count.
func (lm *LifecycleManager) ImportMolds(ctx context.Context, r io.Reader) (int, []catalog.RowError, error) {
	molds, rowErrs, err := catalog.LoadMoldsCSV(r)
	if err != nil {
		return 0, nil, err
	}
	if err := lm.storage.UpsertMolds(ctx, molds); err != nil {
		return 0, rowErrs, fmt.Errorf("failed to persist molds: %w", err)
	}
	for _, m := range molds {
		lm.catalog.Put(m)
		if stock, reserved, _ := lm.catalog.Stock(m.MoldID); reserved > stock {
			lm.logger.Warn("Imported stock is below mounted units",
				zap.String("mold_id", m.MoldID),
				zap.Int("stock", stock),
				zap.Int("mounted", reserved))
		}
	}

	lm.logger.Info("Mold sheet imported",
		zap.Int("imported", len(molds)),
		zap.Int("skipped", len(rowErrs)))
	return len(molds), rowErrs, nil
}

func (lm *LifecycleManager) CycleHistory(ctx context.Context, machineID string, limit int) ([]storage.CycleRecord, error) {
	if lm.storage == nil {
		return nil, errors.New("no database configured")
	}
	return lm.storage.ListCycles(ctx, machineID, limit)
}

func (lm *LifecycleManager) SpiderProfile(ref string) (*catalog.SpiderProfile, error) {
	return lm.spiders.Load(ref)
}

func (lm *LifecycleManager) AuthService() *auth.AuthService { return lm.authService }

func (lm *LifecycleManager) Config() *config.Config { return lm.config }

func (lm *LifecycleManager) Catalog() *catalog.Catalog { return lm.catalog }

func (lm *LifecycleManager) Machines() *machine.Registry { return lm.machines }

func (lm *LifecycleManager) Orders() *orders.Service { return lm.orders }
