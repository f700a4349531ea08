// Package policy decides UNLOCK/LOCK for credential events against the
// reservation store, and owns the one-time access grants issued just after
// a reservation ends.
//
// The evaluator is fail-closed by contract: any store error, unmapped
// address, or unknown device resolves to LOCK.
package policy

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/snackmasta/sakan-munazam/internal/audit"
	"github.com/snackmasta/sakan-munazam/internal/device"
	"github.com/snackmasta/sakan-munazam/internal/logger"
	"github.com/snackmasta/sakan-munazam/internal/metrics"
	"github.com/snackmasta/sakan-munazam/internal/protocol"
	"github.com/snackmasta/sakan-munazam/internal/reservation"
)

// Decision is the outcome of one authorization.
type Decision int

const (
	DecisionLock Decision = iota
	DecisionUnlock
)

func (d Decision) String() string {
	if d == DecisionUnlock {
		return protocol.CmdUnlock
	}
	return protocol.CmdLock
}

// Decision reasons, recorded in the audit log.
const (
	ReasonActiveReservation = "active_reservation"
	ReasonOneTimeGrant      = "one_time_grant"
	ReasonNoReservation     = "no_reservation"
	ReasonUnknownCredential = "unknown_credential"
	ReasonUnknownDevice     = "unknown_device"
	ReasonUnmappedAddress   = "unmapped_address"
	ReasonStoreError        = "store_error"
)

// CommandSender is the relay surface the evaluator needs.
type CommandSender interface {
	Send(deviceID, command string) bool
}

// Config holds the policy timing constants and the room pairings.
type Config struct {
	RelockDelay   time.Duration // auto re-lock after a grant-driven unlock
	GrantWindow   time.Duration // post-reservation grant detection window
	GrantLifetime time.Duration // unused grant expiry
	LockToLight   map[string]string
}

// Evaluator owns the grant table, the reservation-driven light flags, and
// the pending re-lock timers.  All three are mutated from the authorization
// workers, the expiry scheduler, and timer callbacks, so every access goes
// through one mutex.
type Evaluator struct {
	cfg      Config
	registry *device.Registry
	store    reservation.Store
	sender   CommandSender
	audit    audit.Store
	log      *logger.Logger

	mu         sync.Mutex
	grants     map[string]grant // lock device id -> live grant
	reservedOn map[string]bool  // light device id -> ON due to reservation
	relocks    map[string]*time.Timer

	closed    chan struct{}
	closeOnce sync.Once

	now func() time.Time
}

func NewEvaluator(cfg Config, reg *device.Registry, store reservation.Store, sender CommandSender, auditStore audit.Store, log *logger.Logger) *Evaluator {
	if cfg.RelockDelay <= 0 {
		cfg.RelockDelay = 3 * time.Second
	}
	if cfg.GrantWindow <= 0 {
		cfg.GrantWindow = 3 * time.Second
	}
	if cfg.GrantLifetime <= 0 {
		cfg.GrantLifetime = 60 * time.Second
	}
	return &Evaluator{
		cfg:        cfg,
		registry:   reg,
		store:      store,
		sender:     sender,
		audit:      auditStore,
		log:        log,
		grants:     make(map[string]grant),
		reservedOn: make(map[string]bool),
		relocks:    make(map[string]*time.Timer),
		closed:     make(chan struct{}),
		now:        func() time.Time { return time.Now() },
	}
}

// Authorize evaluates one credential event and returns the decision.  The
// corresponding command datagram is sent to the device as a side effect.
func (e *Evaluator) Authorize(ctx context.Context, credential, sourceAddr string) Decision {
	now := e.now()
	host := hostOf(sourceAddr)

	dev, ok := e.registry.LockByHost(host)
	if !ok {
		// No lock ever sent from this address; nothing to command either.
		e.record(ctx, audit.Record{
			Credential: credential,
			SourceAddr: sourceAddr,
			DecidedAt:  now,
		}, DecisionLock, ReasonUnknownDevice, false)
		return DecisionLock
	}

	rec := audit.Record{
		DeviceID:   dev.ID,
		Credential: credential,
		SourceAddr: sourceAddr,
		DecidedAt:  now,
	}

	exists, err := e.store.CredentialExists(ctx, credential)
	if err != nil {
		metrics.StoreError()
		e.log.Errorw("credential lookup failed, failing closed", "device", dev.ID, "err", err)
		return e.deny(ctx, dev.ID, rec, ReasonStoreError)
	}
	if !exists {
		return e.deny(ctx, dev.ID, rec, ReasonUnknownCredential)
	}

	room, mapped, err := e.store.RoomForAddress(ctx, host)
	if err != nil {
		metrics.StoreError()
		e.log.Errorw("room lookup failed, failing closed", "device", dev.ID, "addr", host, "err", err)
		return e.deny(ctx, dev.ID, rec, ReasonStoreError)
	}
	if !mapped {
		return e.deny(ctx, dev.ID, rec, ReasonUnmappedAddress)
	}

	active, reserved, err := e.store.ActiveReservation(ctx, room, now)
	if err != nil {
		metrics.StoreError()
		e.log.Errorw("reservation lookup failed, failing closed", "device", dev.ID, "room", room, "err", err)
		return e.deny(ctx, dev.ID, rec, ReasonStoreError)
	}

	if reserved && active.Credential == credential {
		d := e.allow(ctx, dev.ID, rec, ReasonActiveReservation)
		e.lightOnForReservation(dev.ID)
		return d
	}

	if e.consumeGrant(dev.ID, credential, now) {
		metrics.GrantConsumed()
		d := e.allow(ctx, dev.ID, rec, ReasonOneTimeGrant)
		e.scheduleRelock(dev.ID)
		return d
	}

	return e.deny(ctx, dev.ID, rec, ReasonNoReservation)
}

func (e *Evaluator) allow(ctx context.Context, deviceID string, rec audit.Record, reason string) Decision {
	e.registry.SetState(deviceID, device.LockStateUnlocked)
	e.sender.Send(deviceID, protocol.CmdUnlock)
	e.record(ctx, rec, DecisionUnlock, reason, true)
	return DecisionUnlock
}

func (e *Evaluator) deny(ctx context.Context, deviceID string, rec audit.Record, reason string) Decision {
	e.registry.SetState(deviceID, device.LockStateLocked)
	e.sender.Send(deviceID, protocol.CmdLock)
	e.record(ctx, rec, DecisionLock, reason, true)
	return DecisionLock
}

func (e *Evaluator) record(ctx context.Context, rec audit.Record, d Decision, reason string, commanded bool) {
	rec.Decision = d.String()
	rec.Reason = reason

	metrics.Decision(rec.Decision, reason)
	e.log.Infow("access decision",
		"device", rec.DeviceID, "decision", rec.Decision, "reason", reason,
		"source", rec.SourceAddr, "commanded", commanded)

	// Audit failures are logged, never propagated: the device must get its
	// decision whether or not the log write lands.
	if err := e.audit.Record(ctx, rec); err != nil {
		e.log.Errorw("audit write failed", "device", rec.DeviceID, "err", err)
	}
}

// lightOnForReservation switches the room's paired light on and marks it as
// reservation-driven so the expiry scheduler takes over its lifecycle.
func (e *Evaluator) lightOnForReservation(lockID string) {
	lightID, ok := e.cfg.LockToLight[lockID]
	if !ok {
		return
	}
	e.sender.Send(lightID, protocol.CmdOn)

	e.mu.Lock()
	e.reservedOn[lightID] = true
	e.mu.Unlock()
}

// scheduleRelock arms the automatic re-LOCK that follows a grant-driven
// unlock, restoring the default-secure posture without operator action.
// A new grant consumption on the same lock replaces any pending timer, and
// the evaluator's own pending state is authoritative over late status echoes.
func (e *Evaluator) scheduleRelock(lockID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.relocks[lockID]; ok {
		t.Stop()
	}
	e.relocks[lockID] = time.AfterFunc(e.cfg.RelockDelay, func() {
		select {
		case <-e.closed:
			return
		default:
		}

		e.sender.Send(lockID, protocol.CmdLock)
		e.registry.SetState(lockID, device.LockStateLocked)
		e.log.Infow("auto re-lock", "device", lockID)

		e.mu.Lock()
		delete(e.relocks, lockID)
		e.mu.Unlock()
	})
}

// Close cancels pending re-lock timers and prevents new ones from firing.
func (e *Evaluator) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)

		e.mu.Lock()
		defer e.mu.Unlock()
		for id, t := range e.relocks {
			t.Stop()
			delete(e.relocks, id)
		}
	})
}

// SetClock overrides the evaluator clock.  Test helper.
func (e *Evaluator) SetClock(now func() time.Time) { e.now = now }

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
