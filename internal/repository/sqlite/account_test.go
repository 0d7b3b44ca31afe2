package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sakif/birthday-reminder/internal/repository"
	"github.com/sakif/birthday-reminder/internal/repository/repotest"
)

// newTestDB returns a fresh in-memory database closed at the end of the test.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStoreConformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Store {
		return newTestDB(t)
	})
}

// The file-backed run uses a real connection pool in WAL mode, where
// concurrent writers contend for the database lock.
func TestStoreConformance_File(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Store {
		db, err := New(filepath.Join(t.TempDir(), "birthdays.db"))
		if err != nil {
			t.Fatalf("failed to create file db: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		return db
	})
}

func TestDSN(t *testing.T) {
	got := dsn("data/birthdays.db")
	for _, want := range []string{"_txlock=immediate", "busy_timeout(5000)", "journal_mode(WAL)"} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn() = %q, missing %q", got, want)
		}
	}
	if strings.Contains(dsn(":memory:"), "journal_mode") {
		t.Errorf("in-memory dsn must not request WAL")
	}
}

func TestNew_FileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "birthdays.db")

	db, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	repotest.Create(t, db, "alice", 6, 1)
	repotest.Create(t, db, "bob", 7, 2)
	if _, err := db.AddSubscription(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("AddSubscription() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopening runs migrations again; they must be idempotent.
	reopened, err := New(path)
	if err != nil {
		t.Fatalf("New() on existing file error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if len(got.Subscriptions) != 1 || got.Subscriptions[0] != "bob" {
		t.Errorf("Subscriptions after reopen = %v, want [bob]", got.Subscriptions)
	}
}

func TestCreate_WithSubscriptions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repotest.Create(t, db, "bob", 7, 2)

	alice := repotest.NewAccount("alice", 6, 1)
	alice.Subscriptions = []string{"bob"}
	if err := db.Create(ctx, alice); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	subs, err := db.Subscribers(ctx, "bob")
	if err != nil {
		t.Fatalf("Subscribers() error = %v", err)
	}
	if len(subs) != 1 || subs[0] != "alice" {
		t.Errorf("Subscribers(bob) = %v, want [alice]", subs)
	}
}

func TestBirthdayCheckConstraint(t *testing.T) {
	db := newTestDB(t)

	bad := repotest.NewAccount("alice", 13, 1)
	if err := db.Create(context.Background(), bad); err == nil {
		t.Fatal("Create() should reject month 13 at the schema level")
	}
}
