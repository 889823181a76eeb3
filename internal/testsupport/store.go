package testsupport

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"minewatch/internal/config"
	"minewatch/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// RejectAlertWrites installs a trigger on st's database that aborts every
// alert insert, so a batch fails after its observations and violations have
// been written inside the transaction.
func RejectAlertWrites(t testing.TB, st *store.Store) {
	t.Helper()

	db, err := sql.Open("sqlite", st.Path())
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TRIGGER IF NOT EXISTS reject_alert_writes
        BEFORE INSERT ON violation_alerts
        BEGIN
            SELECT RAISE(ABORT, 'alert writes rejected');
        END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
}
