// Package audit records access decisions as an append-only log.
package audit

import (
	"context"
	"time"
)

// Record captures a single access decision.
type Record struct {
	ID         string
	DeviceID   string
	Credential string
	SourceAddr string
	Decision   string // "UNLOCK" | "LOCK"
	Reason     string
	DecidedAt  time.Time
}

// Store persists access decisions.  A failed audit write must never block
// or change the decision delivered to the device.
type Store interface {
	Record(ctx context.Context, rec Record) error
}
