package device

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/snackmasta/sakan-munazam/internal/metrics"
)

// Registry is the in-memory table of known devices, keyed by device ID.
// It is rebuilt purely from observed traffic: there is no persistence and
// no explicit deletion.  All access is mutex-guarded because entries are
// mutated from the receive loop, the scheduler, and operator calls.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device

	onRegister []func(id string, kind Kind)

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		now:     func() time.Time { return time.Now() },
	}
}

// OnRegister adds a callback invoked once per newly observed device.
// Callbacks run outside the registry lock.  Register them before traffic
// starts; the slice is not guarded after that.
func (r *Registry) OnRegister(fn func(id string, kind Kind)) {
	r.onRegister = append(r.onRegister, fn)
}

// upsert returns the entry for id, creating it if needed, and refreshes its
// address and timestamp.  Reports whether the entry was created.
func (r *Registry) upsert(id string, kind Kind, addr string) (*Device, bool) {
	d, ok := r.devices[id]
	if !ok {
		d = &Device{ID: id, Kind: kind, State: StateUnknown}
		r.devices[id] = d
	}
	if addr != "" {
		d.Addr = addr
	}
	d.LastUpdate = r.now()
	return d, !ok
}

func (r *Registry) notifyRegistered(id string, kind Kind, count int) {
	metrics.SetRegisteredDevices(count)
	for _, fn := range r.onRegister {
		fn(id, kind)
	}
}

// ApplyLightStatus records a light status report.  Telemetry fields are
// optional: a nil pointer leaves the prior value untouched, so a short or
// partially unparseable message never resets readings to defaults.
func (r *Registry) ApplyLightStatus(id, addr, state string, lux *float64, pwm, raw *int) {
	r.mu.Lock()
	d, created := r.upsert(id, KindLight, addr)
	if state != "" {
		d.State = state
	}
	if lux != nil {
		d.Lux = *lux
	}
	if pwm != nil {
		d.PWM = *pwm
	}
	if raw != nil {
		d.RawLDR = *raw
	}
	count := len(r.devices)
	r.mu.Unlock()

	if created {
		r.notifyRegistered(id, KindLight, count)
	}
}

// NoteCredential records that a lock presented a credential.  The access
// decision itself happens in the policy evaluator; the registry only keeps
// the observation.
func (r *Registry) NoteCredential(id, addr, credential string) {
	r.mu.Lock()
	d, created := r.upsert(id, KindLock, addr)
	d.LastCredential = credential
	count := len(r.devices)
	r.mu.Unlock()

	if created {
		r.notifyRegistered(id, KindLock, count)
	}
}

// Touch refreshes a device's address and timestamp without changing state.
func (r *Registry) Touch(id string, kind Kind, addr string) {
	r.mu.Lock()
	_, created := r.upsert(id, kind, addr)
	count := len(r.devices)
	r.mu.Unlock()

	if created {
		r.notifyRegistered(id, kind, count)
	}
}

// SetState overwrites a device's operational state.  Reports whether the
// device was known.
func (r *Registry) SetState(id, state string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return false
	}
	d.State = state
	d.LastUpdate = r.now()
	return true
}

// Get returns a copy of the device, if known.
func (r *Registry) Get(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// Addr returns the last-known address of a device.
func (r *Registry) Addr(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok || d.Addr == "" {
		return "", false
	}
	return d.Addr, true
}

// LockByHost resolves the lock device whose last-known address has the given
// host.  Used by the policy evaluator to map a datagram's source back to the
// lock that sent it.
func (r *Registry) LockByHost(host string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.Kind != KindLock || d.Addr == "" {
			continue
		}
		h, _, err := net.SplitHostPort(d.Addr)
		if err != nil {
			h = d.Addr
		}
		if h == host {
			return *d, true
		}
	}
	return Device{}, false
}

// All returns copies of every registered device.
func (r *Registry) All() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	return out
}

// Status builds the sorted lights/locks snapshot served to the console and
// the supervisory bridge.
func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var st Status
	for _, d := range r.devices {
		switch d.Kind {
		case KindLight:
			st.Lights = append(st.Lights, LightStatus{
				ID:         d.ID,
				State:      d.State,
				Lux:        d.Lux,
				PWM:        d.PWM,
				RawLDR:     d.RawLDR,
				Addr:       d.Addr,
				LastUpdate: d.LastUpdate,
			})
		case KindLock:
			st.Locks = append(st.Locks, LockStatus{
				ID:             d.ID,
				State:          d.State,
				LastCredential: d.LastCredential,
				Addr:           d.Addr,
				LastUpdate:     d.LastUpdate,
			})
		}
	}

	sort.Slice(st.Lights, func(i, j int) bool { return st.Lights[i].ID < st.Lights[j].ID })
	sort.Slice(st.Locks, func(i, j int) bool { return st.Locks[i].ID < st.Locks[j].ID })
	return st
}

// SetClock overrides the registry clock.  Test helper.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }
