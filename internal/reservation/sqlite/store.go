// Package sqlite implements the reservation query interface over the
// gateway's SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/snackmasta/sakan-munazam/internal/reservation"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// Store reads reservations and the slave (device→room) mapping.  All
// methods are plain reads; writes to these tables belong to the external
// reservation system.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CredentialExists(ctx context.Context, credential string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
SELECT 1 FROM room_reservations WHERE user_id = ? LIMIT 1;
`, credential).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("CredentialExists query: %w", err)
	}
	return true, nil
}

func (s *Store) RoomForAddress(ctx context.Context, addr string) (string, bool, error) {
	var room string
	err := s.db.QueryRowContext(ctx, `
SELECT room_id FROM slave WHERE ip_address = ?;
`, addr).Scan(&room)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("RoomForAddress query: %w", err)
	}
	return room, true, nil
}

func (s *Store) ActiveReservation(ctx context.Context, roomID string, now time.Time) (reservation.Active, bool, error) {
	today := now.Format(dateLayout)
	clock := now.Format(timeLayout)

	var credential, end string
	err := s.db.QueryRowContext(ctx, `
SELECT user_id, end_time FROM room_reservations
WHERE room_id = ? AND date = ? AND start_time <= ? AND end_time >= ?;
`, roomID, today, clock, clock).Scan(&credential, &end)

	if err == sql.ErrNoRows {
		return reservation.Active{}, false, nil
	}
	if err != nil {
		return reservation.Active{}, false, fmt.Errorf("ActiveReservation query: %w", err)
	}

	endsAt, err := atClock(now, end)
	if err != nil {
		return reservation.Active{}, false, fmt.Errorf("ActiveReservation end_time: %w", err)
	}
	return reservation.Active{Credential: credential, EndsAt: endsAt}, true, nil
}

func (s *Store) MostRecentlyEndedReservation(ctx context.Context, roomID string, now time.Time) (reservation.Ended, bool, error) {
	today := now.Format(dateLayout)
	clock := now.Format(timeLayout)

	var credential, end string
	err := s.db.QueryRowContext(ctx, `
SELECT user_id, end_time FROM room_reservations
WHERE room_id = ? AND date = ? AND end_time < ?
ORDER BY end_time DESC LIMIT 1;
`, roomID, today, clock).Scan(&credential, &end)

	if err == sql.ErrNoRows {
		return reservation.Ended{}, false, nil
	}
	if err != nil {
		return reservation.Ended{}, false, fmt.Errorf("MostRecentlyEndedReservation query: %w", err)
	}

	endedAt, err := atClock(now, end)
	if err != nil {
		return reservation.Ended{}, false, fmt.Errorf("MostRecentlyEndedReservation end_time: %w", err)
	}
	return reservation.Ended{Credential: credential, EndedAt: endedAt}, true, nil
}

// atClock combines now's date with a stored HH:MM:SS value.
func atClock(now time.Time, clock string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, clock, now.Location())
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(now.Year(), now.Month(), now.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, now.Location()), nil
}
