package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/psantana5/ytconvert/pkg/models"
)

func record(id string, created time.Time) *models.ConversionRecord {
	return &models.ConversionRecord{
		ID:          id,
		Source:      "https://youtu.be/" + id,
		Format:      models.OutputAudio,
		Quality:     "192",
		Title:       "Title " + id,
		FileName:    "title-" + id + ".mp3",
		State:       models.SessionCompleted,
		ExitReason:  "success",
		Bytes:       1024,
		DurationMs:  1500,
		ClientIP:    "203.0.113.9",
		CreatedAt:   created,
		CompletedAt: created.Add(1500 * time.Millisecond),
	}
}

// testStoreContract runs the behaviour every backend must share
func testStoreContract(t *testing.T, s Store) {
	base := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		if err := s.SaveConversion(record(fmt.Sprintf("c%d", i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveConversion failed: %v", err)
		}
	}

	t.Run("Get", func(t *testing.T) {
		got, err := s.GetConversion("c2")
		if err != nil {
			t.Fatalf("GetConversion failed: %v", err)
		}
		if got.Title != "Title c2" || got.Format != models.OutputAudio || got.State != models.SessionCompleted {
			t.Errorf("Unexpected record: %+v", got)
		}
		if !got.CreatedAt.Equal(base.Add(2 * time.Minute)) {
			t.Errorf("Expected created_at %v, got %v", base.Add(2*time.Minute), got.CreatedAt)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := s.GetConversion("nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		list, err := s.ListConversions(3)
		if err != nil {
			t.Fatalf("ListConversions failed: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("Expected 3 records, got %d", len(list))
		}
		if list[0].ID != "c4" || list[2].ID != "c2" {
			t.Errorf("Expected c4..c2, got %s..%s", list[0].ID, list[2].ID)
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		rec := record("c0", base)
		rec.State = models.SessionFailed
		rec.ExitCode = 1
		if err := s.SaveConversion(rec); err != nil {
			t.Fatalf("SaveConversion failed: %v", err)
		}
		got, _ := s.GetConversion("c0")
		if got.State != models.SessionFailed || got.ExitCode != 1 {
			t.Errorf("Expected updated record, got %+v", got)
		}
	})

	t.Run("DeleteBefore", func(t *testing.T) {
		removed, err := s.DeleteConversionsBefore(base.Add(2 * time.Minute))
		if err != nil {
			t.Fatalf("DeleteConversionsBefore failed: %v", err)
		}
		if removed != 2 {
			t.Errorf("Expected 2 removed, got %d", removed)
		}
		list, _ := s.ListConversions(0)
		if len(list) != 3 {
			t.Errorf("Expected 3 records left, got %d", len(list))
		}
	})

	if err := s.HealthCheck(); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
	if err := s.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore(0))
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	s := NewMemoryStore(2)
	now := time.Now()
	s.SaveConversion(record("a", now))
	s.SaveConversion(record("b", now.Add(time.Second)))
	s.SaveConversion(record("c", now.Add(2*time.Second)))

	if _, err := s.GetConversion("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected oldest record evicted, got %v", err)
	}
	list, _ := s.ListConversions(10)
	if len(list) != 2 {
		t.Errorf("Expected 2 records, got %d", len(list))
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	testStoreContract(t, s)
}

// TestSQLiteConcurrentWrites checks concurrent handlers don't hit SQLITE_BUSY
func TestSQLiteConcurrentWrites(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "concurrent.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := s.SaveConversion(record(fmt.Sprintf("job-%d", idx), time.Now())); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent write failed: %v", err)
	}
	list, _ := s.ListConversions(100)
	if len(list) != 20 {
		t.Errorf("Expected 20 records, got %d", len(list))
	}
}

// TestPostgreSQLIntegration needs a real database:
// export DATABASE_DSN="postgresql://..."
func TestPostgreSQLIntegration(t *testing.T) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("Skipping PostgreSQL integration test: DATABASE_DSN not set")
	}

	s, err := NewStore(Config{Type: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL store: %v", err)
	}
	defer s.Close()

	// start from a clean table
	if _, err := s.DeleteConversionsBefore(time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Failed to reset table: %v", err)
	}
	testStoreContract(t, s)
}

func TestNewStoreUnsupported(t *testing.T) {
	if _, err := NewStore(Config{Type: "mongo"}); !errors.Is(err, ErrUnsupportedDatabase) {
		t.Errorf("Expected ErrUnsupportedDatabase, got %v", err)
	}
	s, err := NewStore(Config{})
	if err != nil {
		t.Fatalf("Expected memory store by default, got %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("Expected *MemoryStore, got %T", s)
	}
}
