package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/psantana5/ytconvert/pkg/logging"
)

// CleanupConfig defines retention policies and cleanup intervals
type CleanupConfig struct {
	Enabled         bool
	Retention       time.Duration
	CleanupInterval time.Duration
	VacuumInterval  time.Duration
	InitialDelay    time.Duration
}

// DefaultConfig returns defaults for the audit log
func DefaultConfig() CleanupConfig {
	return CleanupConfig{
		Enabled:         true,
		Retention:       7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
		VacuumInterval:  7 * 24 * time.Hour,
		InitialDelay:    time.Minute,
	}
}

// Store is the subset of the history store cleanup needs
type Store interface {
	DeleteConversionsBefore(cutoff time.Time) (int64, error)
	Vacuum() error
}

// Pruner is anything else that wants a periodic sweep, e.g. idle rate limiters
type Pruner func()

// CleanupManager handles automatic pruning of old records and maintenance
type CleanupManager struct {
	config  CleanupConfig
	store   Store
	pruners []Pruner
	logger  *logging.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.RWMutex
	stats CleanupStats
}

// CleanupStats tracks cleanup operations
type CleanupStats struct {
	LastCleanupTime     time.Time
	LastVacuumTime      time.Time
	TotalDeleted        int64
	TotalVacuumRuns     int64
	LastCleanupDuration time.Duration
	LastVacuumDuration  time.Duration
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(config CleanupConfig, store Store, logger *logging.Logger) *CleanupManager {
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CleanupManager{
		config: config,
		store:  store,
		logger: logger.WithField("component", "cleanup"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddPruner registers an extra sweep run on every cleanup tick.
// Must be called before Start.
func (cm *CleanupManager) AddPruner(p Pruner) {
	cm.pruners = append(cm.pruners, p)
}

// Start begins the automatic cleanup process
func (cm *CleanupManager) Start() {
	if !cm.config.Enabled {
		cm.logger.Info("cleanup manager disabled")
		return
	}

	cm.logger.Info("starting cleanup manager", logging.Fields{
		"retention": cm.config.Retention.String(),
		"interval":  cm.config.CleanupInterval.String(),
	})

	cm.wg.Add(1)
	go cm.cleanupLoop()
	if cm.config.VacuumInterval > 0 {
		cm.wg.Add(1)
		go cm.vacuumLoop()
	}
}

// Stop gracefully stops the cleanup manager
func (cm *CleanupManager) Stop() {
	cm.cancel()
	cm.wg.Wait()
	cm.logger.Info("cleanup manager stopped")
}

// Close implements io.Closer for the shutdown manager
func (cm *CleanupManager) Close() error {
	cm.Stop()
	return nil
}

func (cm *CleanupManager) cleanupLoop() {
	defer cm.wg.Done()

	select {
	case <-cm.ctx.Done():
		return
	case <-time.After(cm.config.InitialDelay):
	}
	cm.CleanupNow()

	ticker := time.NewTicker(cm.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.ctx.Done():
			return
		case <-ticker.C:
			cm.CleanupNow()
		}
	}
}

func (cm *CleanupManager) vacuumLoop() {
	defer cm.wg.Done()

	ticker := time.NewTicker(cm.config.VacuumInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.ctx.Done():
			return
		case <-ticker.C:
			cm.VacuumNow()
		}
	}
}

// CleanupNow deletes records older than the retention period and runs pruners
func (cm *CleanupManager) CleanupNow() {
	startTime := time.Now()

	for _, p := range cm.pruners {
		p()
	}

	if cm.store == nil || cm.config.Retention <= 0 {
		return
	}

	cutoff := startTime.Add(-cm.config.Retention)
	deleted, err := cm.store.DeleteConversionsBefore(cutoff)
	if err != nil {
		cm.logger.Error("history cleanup failed", logging.Fields{"error": err})
		return
	}

	duration := time.Since(startTime)

	cm.mu.Lock()
	cm.stats.LastCleanupTime = time.Now()
	cm.stats.LastCleanupDuration = duration
	cm.stats.TotalDeleted += deleted
	cm.mu.Unlock()

	if deleted > 0 {
		cm.logger.Info("history cleanup complete", logging.Fields{
			"deleted":     deleted,
			"duration_ms": duration.Milliseconds(),
		})
	}
}

// VacuumNow triggers an immediate vacuum run
func (cm *CleanupManager) VacuumNow() {
	if cm.store == nil {
		return
	}
	startTime := time.Now()

	if err := cm.store.Vacuum(); err != nil {
		cm.logger.Error("database vacuum failed", logging.Fields{"error": err})
		return
	}

	duration := time.Since(startTime)

	cm.mu.Lock()
	cm.stats.LastVacuumTime = time.Now()
	cm.stats.LastVacuumDuration = duration
	cm.stats.TotalVacuumRuns++
	cm.mu.Unlock()

	cm.logger.Debug("database vacuum complete", logging.Fields{"duration_ms": duration.Milliseconds()})
}

// GetStats returns current cleanup statistics
func (cm *CleanupManager) GetStats() CleanupStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.stats
}
