package policy

import (
	"context"
	"time"

	"github.com/snackmasta/sakan-munazam/internal/metrics"
	"github.com/snackmasta/sakan-munazam/internal/protocol"
)

// grant is a single-use authorization issued just after a reservation ends,
// letting the outgoing occupant open the door once on their way out.
type grant struct {
	credential string
	grantedAt  time.Time
}

// issueGrant creates (or overwrites) the live grant for a lock.  At most one
// grant exists per lock; re-granting discards any unconsumed predecessor.
func (e *Evaluator) issueGrant(lockID, credential string, now time.Time) {
	e.mu.Lock()
	e.grants[lockID] = grant{credential: credential, grantedAt: now}
	e.mu.Unlock()

	metrics.GrantIssued()
	e.log.Infow("one-time access grant issued", "device", lockID, "credential", credential)
}

// consumeGrant atomically checks and deletes the grant for a lock.  It only
// succeeds for a matching credential on a grant younger than the configured
// lifetime; an aged-out grant is discarded rather than honored.
func (e *Evaluator) consumeGrant(lockID, credential string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.grants[lockID]
	if !ok {
		return false
	}
	if now.Sub(g.grantedAt) > e.cfg.GrantLifetime {
		delete(e.grants, lockID)
		return false
	}
	if g.credential != credential {
		return false
	}
	delete(e.grants, lockID)
	return true
}

// HasGrant reports whether a live grant exists for the lock.  Observability
// helper for the console.
func (e *Evaluator) HasGrant(lockID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.grants[lockID]
	return ok
}

// SweepExpiry is the scheduler entry point.  For every room pairing it
// either walks the reserved-light lifecycle (still reserved → nothing;
// just ended → issue grant; long ended → light off) or prunes an aged-out
// unconsumed grant.  Errors are contained per pairing so one bad lookup
// cannot stall the rest of the sweep.
func (e *Evaluator) SweepExpiry(ctx context.Context) {
	now := e.now()
	for lockID, lightID := range e.cfg.LockToLight {
		if e.lightReservedOn(lightID) {
			e.sweepReservedLight(ctx, lockID, lightID, now)
		} else {
			e.pruneGrant(lockID, now)
		}
	}
}

func (e *Evaluator) lightReservedOn(lightID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reservedOn[lightID]
}

func (e *Evaluator) sweepReservedLight(ctx context.Context, lockID, lightID string, now time.Time) {
	dev, ok := e.registry.Get(lockID)
	if !ok {
		return
	}

	room, mapped, err := e.store.RoomForAddress(ctx, hostOf(dev.Addr))
	if err != nil {
		metrics.StoreError()
		e.log.Errorw("expiry sweep: room lookup failed", "device", lockID, "err", err)
		return
	}
	if !mapped {
		return
	}

	_, reserved, err := e.store.ActiveReservation(ctx, room, now)
	if err != nil {
		metrics.StoreError()
		e.log.Errorw("expiry sweep: reservation lookup failed", "room", room, "err", err)
		return
	}
	if reserved {
		return
	}

	// The room is no longer reserved.  A reservation that ended within the
	// detection window converts into a one-time exit grant instead of an
	// immediate light-off; this is the sole creation path for grants.
	ended, found, err := e.store.MostRecentlyEndedReservation(ctx, room, now)
	if err != nil {
		metrics.StoreError()
		e.log.Errorw("expiry sweep: ended-reservation lookup failed", "room", room, "err", err)
		return
	}
	if found && now.Sub(ended.EndedAt) < e.cfg.GrantWindow {
		e.issueGrant(lockID, ended.Credential, now)
		return
	}

	e.sender.Send(lightID, protocol.CmdOff)
	e.mu.Lock()
	e.reservedOn[lightID] = false
	e.mu.Unlock()
	e.log.Infow("reservation ended, light off", "light", lightID, "room", room)
}

func (e *Evaluator) pruneGrant(lockID string, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.grants[lockID]
	if ok && now.Sub(g.grantedAt) > e.cfg.GrantLifetime {
		delete(e.grants, lockID)
		e.log.Infow("unused one-time grant expired", "device", lockID)
	}
}
