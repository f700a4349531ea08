package db_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/snackmasta/sakan-munazam/internal/db"
)

func TestOpen_MigratesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gateway.db")

	conn, err := db.Open(ctx, db.Config{Path: path, Env: "prod"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for _, table := range []string{"slave", "room_reservations", "access_events"} {
		var name string
		err := conn.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?;`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
	conn.Close()

	// Reopening re-runs Migrate against the applied schema.
	conn, err = db.Open(ctx, db.Config{Path: path, Env: "prod"})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	conn.Close()
}

func TestSeedDev_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gateway.db")

	conn, err := db.Open(ctx, db.Config{Path: path, Env: "dev"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.SeedDev(ctx, conn); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.SeedDev(ctx, conn); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	var rooms int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM slave;`).Scan(&rooms); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rooms != 2 {
		t.Errorf("slave rows = %d, want the two seeded classrooms", rooms)
	}

	var room string
	if err := conn.QueryRowContext(ctx,
		`SELECT room_id FROM slave WHERE ip_address = '192.168.137.250';`).Scan(&room); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if room != "207" {
		t.Errorf("room = %q", room)
	}
}
