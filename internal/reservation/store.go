// Package reservation defines the query interface the gateway uses against
// the external reservation store.  The store's schema and connection
// management live behind this interface; the core only reads.
package reservation

import (
	"context"
	"time"
)

// Active describes the reservation currently covering a room.
type Active struct {
	Credential string
	EndsAt     time.Time
}

// Ended describes the most recently finished reservation of a room today.
type Ended struct {
	Credential string
	EndedAt    time.Time
}

// Store is the read-only reservation interface required by the core.
// Every method can fail (the store is remote from the gateway's point of
// view); the policy evaluator maps any error to a deny.
type Store interface {
	// CredentialExists reports whether a credential appears in any
	// reservation, independent of room.
	CredentialExists(ctx context.Context, credential string) (bool, error)

	// RoomForAddress maps a device host address to its room.  ok is false
	// when the address is not commissioned.
	RoomForAddress(ctx context.Context, addr string) (room string, ok bool, err error)

	// ActiveReservation returns the reservation covering roomID at now,
	// if any.  The core assumes at most one.
	ActiveReservation(ctx context.Context, roomID string, now time.Time) (Active, bool, error)

	// MostRecentlyEndedReservation returns the latest reservation of roomID
	// that ended before now, today.
	MostRecentlyEndedReservation(ctx context.Context, roomID string, now time.Time) (Ended, bool, error)
}
