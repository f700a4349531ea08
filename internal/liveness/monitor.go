// Package liveness tracks per-device heartbeats and drives the alarm state
// machine.  The state machine is pure (Observe/Sweep on explicit clocks);
// the Run loop merely feeds it from the heartbeat socket so that visual
// rendering and telemetry stay external subscribers.
package liveness

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/snackmasta/sakan-munazam/internal/logger"
	"github.com/snackmasta/sakan-munazam/internal/metrics"
	"github.com/snackmasta/sakan-munazam/internal/protocol"
)

// AlarmState is the per-device alarm lifecycle.
type AlarmState int

const (
	// AlarmNormal: heartbeats healthy, or an unacknowledged alarm that
	// self-cleared on recovery.
	AlarmNormal AlarmState = iota
	// AlarmBlinking: heartbeat silence exceeded the timeout and no operator
	// has acknowledged yet.  Auto-clears when heartbeats resume.
	AlarmBlinking
	// AlarmAcknowledged: an operator acknowledged the alarm.  Sticky until
	// an explicit maintenance reset, even if heartbeats resume.
	AlarmAcknowledged
)

func (s AlarmState) String() string {
	switch s {
	case AlarmBlinking:
		return "BLINKING"
	case AlarmAcknowledged:
		return "ACKNOWLEDGED"
	default:
		return "NORMAL"
	}
}

// CommandSender lets the monitor push ACK datagrams to devices.
type CommandSender interface {
	Send(deviceID, command string) bool
}

// AlarmFunc is invoked on alarm transitions: raised=true on NORMAL→BLINKING,
// raised=false when an alarm clears back to NORMAL.
type AlarmFunc func(deviceID string, raised bool)

// Config for the monitor.
type Config struct {
	Port             int
	SweepInterval    time.Duration
	HeartbeatTimeout time.Duration
	BufferSize       int
}

type entry struct {
	lastSeen time.Time
	state    AlarmState
}

// Monitor owns the AlarmState table and the per-room maintenance flags.
type Monitor struct {
	cfg    Config
	sender CommandSender
	log    *logger.Logger

	mu          sync.Mutex
	entries     map[string]*entry
	maintenance map[string]bool // room id -> flag

	onAlarm AlarmFunc

	now func() time.Time
}

func NewMonitor(cfg Config, sender CommandSender, log *logger.Logger) *Monitor {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 200 * time.Millisecond
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 128
	}
	return &Monitor{
		cfg:         cfg,
		sender:      sender,
		log:         log,
		entries:     make(map[string]*entry),
		maintenance: make(map[string]bool),
		now:         func() time.Time { return time.Now() },
	}
}

// OnAlarm sets the alarm transition callback.  Set it before Run starts.
func (m *Monitor) OnAlarm(fn AlarmFunc) { m.onAlarm = fn }

// Track starts liveness tracking for a device, seeded as healthy so a device
// registered from its first datagram is not instantly alarmed.
func (m *Monitor) Track(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[deviceID]; !ok {
		m.entries[deviceID] = &entry{lastSeen: m.now(), state: AlarmNormal}
	}
}

// Observe records a heartbeat from a device, tracking it if unseen.
func (m *Monitor) Observe(deviceID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[deviceID]
	if !ok {
		e = &entry{state: AlarmNormal}
		m.entries[deviceID] = e
	}
	e.lastSeen = at
}

// Sweep advances the alarm state machine for every tracked device at the
// given instant.  Callbacks fire outside the lock.
func (m *Monitor) Sweep(now time.Time) {
	type transition struct {
		id     string
		raised bool
	}
	var fired []transition

	m.mu.Lock()
	for id, e := range m.entries {
		silent := now.Sub(e.lastSeen) > m.cfg.HeartbeatTimeout
		switch {
		case silent && e.state == AlarmNormal:
			e.state = AlarmBlinking
			fired = append(fired, transition{id, true})
		case !silent && e.state == AlarmBlinking:
			// Never acknowledged: recovery self-clears.
			e.state = AlarmNormal
			fired = append(fired, transition{id, false})
		}
		// AlarmAcknowledged holds in both directions until ResetMaintenance.
	}
	m.mu.Unlock()

	for _, t := range fired {
		if t.raised {
			metrics.AlarmTransition("raised")
			m.log.Warnw("heartbeat lost", "device", t.id)
		} else {
			metrics.AlarmTransition("cleared")
			m.log.Infow("heartbeat recovered", "device", t.id)
		}
		if m.onAlarm != nil {
			m.onAlarm(t.id, t.raised)
		}
	}
}

// Acknowledge moves a blinking alarm to ACKNOWLEDGED, raises the owning
// room's maintenance flag, and pushes an ACK datagram to the device.
// Reports whether the device is tracked.
func (m *Monitor) Acknowledge(deviceID string) bool {
	m.mu.Lock()
	e, ok := m.entries[deviceID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if e.state == AlarmBlinking {
		e.state = AlarmAcknowledged
	}
	m.maintenance[roomOf(deviceID)] = true
	m.mu.Unlock()

	metrics.AlarmTransition("acknowledged")
	m.sender.Send(deviceID, protocol.CmdAck)
	m.log.Infow("alarm acknowledged", "device", deviceID, "room", roomOf(deviceID))
	return true
}

// ResetMaintenance clears a room's maintenance flag and returns any
// acknowledged device in the room with healthy heartbeats to NORMAL.
func (m *Monitor) ResetMaintenance(roomID string) {
	now := m.now()

	m.mu.Lock()
	delete(m.maintenance, roomID)
	for id, e := range m.entries {
		if roomOf(id) != roomID || e.state != AlarmAcknowledged {
			continue
		}
		if now.Sub(e.lastSeen) <= m.cfg.HeartbeatTimeout {
			e.state = AlarmNormal
		}
	}
	m.mu.Unlock()

	m.log.Infow("maintenance reset", "room", roomID)
}

// State returns the alarm state of one device.
func (m *Monitor) State(deviceID string) (AlarmState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[deviceID]
	if !ok {
		return AlarmNormal, false
	}
	return e.state, true
}

// MaintenanceFlag reports whether a room is flagged for maintenance.
func (m *Monitor) MaintenanceFlag(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maintenance[roomID]
}

// Snapshot returns every device's alarm state plus the room flags.
func (m *Monitor) Snapshot() (alarms map[string]string, rooms map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alarms = make(map[string]string, len(m.entries))
	for id, e := range m.entries {
		alarms[id] = e.state.String()
	}
	rooms = make(map[string]bool, len(m.maintenance))
	for room, flag := range m.maintenance {
		rooms[room] = flag
	}
	return alarms, rooms
}

// Run binds the heartbeat port and alternates short reads with sweeps so a
// single loop both consumes heartbeats and advances the state machine.
// It returns when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: m.cfg.Port})
	if err != nil {
		return fmt.Errorf("listen heartbeat port %d: %w", m.cfg.Port, err)
	}
	defer conn.Close()

	m.log.Infow("heartbeat listener started", "port", m.cfg.Port,
		"timeout", m.cfg.HeartbeatTimeout, "sweep", m.cfg.SweepInterval)

	buf := make([]byte, m.cfg.BufferSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		m.Sweep(m.now())

		_ = conn.SetReadDeadline(time.Now().Add(m.cfg.SweepInterval))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			m.log.Warnw("heartbeat read error", "err", err)
			continue
		}

		msg, err := protocol.Decode(buf[:n])
		if err != nil {
			metrics.Datagram("heartbeat", "malformed")
			continue
		}
		hb, ok := msg.(protocol.Heartbeat)
		if !ok {
			metrics.Datagram("heartbeat", "ignored")
			continue
		}
		metrics.Datagram("heartbeat", "ok")
		m.Observe(hb.DeviceID, m.now())
	}
}

// SetClock overrides the monitor clock.  Test helper.
func (m *Monitor) SetClock(now func() time.Time) { m.now = now }

// roomOf derives the owning room from a device ID: lock_207 → 207.
// Devices without a suffix map to their full ID.
func roomOf(deviceID string) string {
	if i := strings.LastIndex(deviceID, "_"); i >= 0 && i+1 < len(deviceID) {
		return deviceID[i+1:]
	}
	return deviceID
}
