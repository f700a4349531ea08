// Package memory is an in-memory reservation store for tests and dev runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/snackmasta/sakan-munazam/internal/reservation"
)

// Reservation is one stored reservation window.
type Reservation struct {
	RoomID     string
	Credential string
	Date       string // 2006-01-02
	Start      string // 15:04:05
	End        string // 15:04:05
}

// Store holds reservations and the address→room mapping in memory.
type Store struct {
	mu           sync.RWMutex
	reservations []Reservation
	rooms        map[string]string // host addr -> room

	// failWith, when set, makes every query return that error.  Used by
	// tests to exercise the evaluator's fail-closed contract.
	failWith error
}

func New() *Store {
	return &Store{rooms: make(map[string]string)}
}

// Add stores a reservation.
func (s *Store) Add(r Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations = append(s.reservations, r)
}

// MapAddress assigns a device host address to a room.
func (s *Store) MapAddress(addr, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[addr] = roomID
}

// FailWith makes all subsequent queries fail with err.  Pass nil to heal.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

func (s *Store) CredentialExists(_ context.Context, credential string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return false, s.failWith
	}
	for _, r := range s.reservations {
		if r.Credential == credential {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) RoomForAddress(_ context.Context, addr string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return "", false, s.failWith
	}
	room, ok := s.rooms[addr]
	return room, ok, nil
}

func (s *Store) ActiveReservation(_ context.Context, roomID string, now time.Time) (reservation.Active, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return reservation.Active{}, false, s.failWith
	}

	today := now.Format(dateLayout)
	clock := now.Format(timeLayout)
	for _, r := range s.reservations {
		if r.RoomID != roomID || r.Date != today {
			continue
		}
		if r.Start <= clock && r.End >= clock {
			return reservation.Active{
				Credential: r.Credential,
				EndsAt:     atClock(now, r.End),
			}, true, nil
		}
	}
	return reservation.Active{}, false, nil
}

func (s *Store) MostRecentlyEndedReservation(_ context.Context, roomID string, now time.Time) (reservation.Ended, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return reservation.Ended{}, false, s.failWith
	}

	today := now.Format(dateLayout)
	clock := now.Format(timeLayout)

	var best *Reservation
	for i := range s.reservations {
		r := &s.reservations[i]
		if r.RoomID != roomID || r.Date != today || r.End >= clock {
			continue
		}
		if best == nil || r.End > best.End {
			best = r
		}
	}
	if best == nil {
		return reservation.Ended{}, false, nil
	}
	return reservation.Ended{
		Credential: best.Credential,
		EndedAt:    atClock(now, best.End),
	}, true, nil
}

// atClock combines now's date with an HH:MM:SS clock string.
func atClock(now time.Time, clock string) time.Time {
	t, err := time.ParseInLocation(timeLayout, clock, now.Location())
	if err != nil {
		return now
	}
	return time.Date(now.Year(), now.Month(), now.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, now.Location())
}
