package cleanup

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/psantana5/ytconvert/pkg/models"
	"github.com/psantana5/ytconvert/pkg/store"
)

func TestCleanupNowDeletesExpired(t *testing.T) {
	s := store.NewMemoryStore(0)
	now := time.Now()
	s.SaveConversion(&models.ConversionRecord{ID: "old", CreatedAt: now.Add(-48 * time.Hour)})
	s.SaveConversion(&models.ConversionRecord{ID: "new", CreatedAt: now})

	cfg := DefaultConfig()
	cfg.Retention = 24 * time.Hour
	cm := NewCleanupManager(cfg, s, nil)

	var pruned atomic.Int32
	cm.AddPruner(func() { pruned.Add(1) })

	cm.CleanupNow()

	if _, err := s.GetConversion("old"); err == nil {
		t.Error("Expected expired record to be deleted")
	}
	if _, err := s.GetConversion("new"); err != nil {
		t.Errorf("Expected fresh record to survive, got %v", err)
	}
	if pruned.Load() != 1 {
		t.Errorf("Expected pruner to run once, got %d", pruned.Load())
	}
	if stats := cm.GetStats(); stats.TotalDeleted != 1 {
		t.Errorf("Expected 1 deleted in stats, got %d", stats.TotalDeleted)
	}
}

func TestStartStop(t *testing.T) {
	s := store.NewMemoryStore(0)
	s.SaveConversion(&models.ConversionRecord{ID: "old", CreatedAt: time.Now().Add(-time.Hour)})

	cm := NewCleanupManager(CleanupConfig{
		Enabled:         true,
		Retention:       time.Minute,
		CleanupInterval: 10 * time.Millisecond,
		InitialDelay:    time.Millisecond,
	}, s, nil)
	cm.Start()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.GetConversion("old"); err != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cm.Stop()

	if _, err := s.GetConversion("old"); err == nil {
		t.Error("Expected background loop to delete expired record")
	}
}

func TestDisabledDoesNothing(t *testing.T) {
	cm := NewCleanupManager(CleanupConfig{Enabled: false}, store.NewMemoryStore(0), nil)
	cm.Start()
	cm.Stop()
	if stats := cm.GetStats(); !stats.LastCleanupTime.IsZero() {
		t.Error("Expected no cleanup when disabled")
	}
}
