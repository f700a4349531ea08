package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedDev populates the dev database with the two-classroom deployment the
// firmware images are flashed for: rooms 207 and 208, each with a lock and
// a reservation-driven light, plus a reservation that is active right now
// so a dev gateway can authorize immediately.
func SeedDev(ctx context.Context, db *sql.DB) error {
	rooms := []struct {
		ip   string
		room string
	}{
		{"192.168.137.250", "207"},
		{"192.168.137.249", "208"},
	}

	for _, r := range rooms {
		if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO slave(ip_address, room_id) VALUES (?, ?);
`, r.ip, r.room); err != nil {
			return fmt.Errorf("seed slave %s: %w", r.ip, err)
		}
	}

	// One reservation covering the current hour for room 207.
	now := time.Now()
	start := now.Add(-30 * time.Minute)
	end := now.Add(30 * time.Minute)

	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_reservations WHERE room_id = '207' AND date = ?;`,
		now.Format("2006-01-02"),
	).Scan(&count); err != nil {
		return fmt.Errorf("seed reservation check: %w", err)
	}
	if count > 0 {
		return nil
	}

	if _, err := db.ExecContext(ctx, `
INSERT INTO room_reservations(room_id, user_id, date, start_time, end_time)
VALUES ('207', '04:47:43:12:7A:6A:80', ?, ?, ?);
`,
		now.Format("2006-01-02"),
		start.Format("15:04:05"),
		end.Format("15:04:05"),
	); err != nil {
		return fmt.Errorf("seed reservation: %w", err)
	}

	return nil
}
