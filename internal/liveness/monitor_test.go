package liveness_test

import (
	"sync"
	"testing"
	"time"

	"github.com/snackmasta/sakan-munazam/internal/liveness"
	"github.com/snackmasta/sakan-munazam/internal/logger"
	"github.com/snackmasta/sakan-munazam/internal/protocol"
)

type ackSender struct {
	mu   sync.Mutex
	sent []string
}

func (a *ackSender) Send(deviceID, command string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, deviceID+" "+command)
	return true
}

func (a *ackSender) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.sent))
	copy(out, a.sent)
	return out
}

func newMonitor(t *testing.T, base time.Time) (*liveness.Monitor, *ackSender) {
	t.Helper()
	s := &ackSender{}
	m := liveness.NewMonitor(liveness.Config{
		HeartbeatTimeout: time.Second,
		SweepInterval:    200 * time.Millisecond,
	}, s, logger.Nop())
	m.SetClock(func() time.Time { return base })
	return m, s
}

func TestMonitor_SilenceRaisesAlarm(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m, _ := newMonitor(t, base)

	var transitions []string
	m.OnAlarm(func(id string, raised bool) {
		if raised {
			transitions = append(transitions, id+" raised")
		} else {
			transitions = append(transitions, id+" cleared")
		}
	})

	m.Observe("lock_207", base)

	// Within the timeout: still NORMAL.
	m.Sweep(base.Add(900 * time.Millisecond))
	if st, _ := m.State("lock_207"); st != liveness.AlarmNormal {
		t.Fatalf("state = %v before timeout", st)
	}

	// Past the timeout: BLINKING, callback fired once.
	m.Sweep(base.Add(1100 * time.Millisecond))
	if st, _ := m.State("lock_207"); st != liveness.AlarmBlinking {
		t.Fatalf("state = %v after timeout", st)
	}
	m.Sweep(base.Add(1300 * time.Millisecond))
	if len(transitions) != 1 || transitions[0] != "lock_207 raised" {
		t.Errorf("transitions = %v, want a single raise", transitions)
	}
}

func TestMonitor_RecoverySelfClears(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m, _ := newMonitor(t, base)

	var cleared bool
	m.OnAlarm(func(id string, raised bool) {
		if !raised {
			cleared = true
		}
	})

	m.Observe("light_207", base)
	m.Sweep(base.Add(2 * time.Second))
	if st, _ := m.State("light_207"); st != liveness.AlarmBlinking {
		t.Fatalf("state = %v", st)
	}

	// Heartbeats resume without any acknowledgement.
	m.Observe("light_207", base.Add(3*time.Second))
	m.Sweep(base.Add(3*time.Second + 100*time.Millisecond))
	if st, _ := m.State("light_207"); st != liveness.AlarmNormal {
		t.Fatalf("state = %v, want self-clear", st)
	}
	if !cleared {
		t.Error("clear transition not reported")
	}
}

func TestMonitor_AcknowledgeIsSticky(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m, s := newMonitor(t, base)

	m.Observe("lock_208", base)
	m.Sweep(base.Add(2 * time.Second))

	if !m.Acknowledge("lock_208") {
		t.Fatal("Acknowledge on tracked device must report true")
	}
	if st, _ := m.State("lock_208"); st != liveness.AlarmAcknowledged {
		t.Fatalf("state = %v", st)
	}
	if !m.MaintenanceFlag("208") {
		t.Error("maintenance flag not raised for room 208")
	}
	if got := s.all(); len(got) != 1 || got[0] != "lock_208 "+protocol.CmdAck {
		t.Errorf("commands = %v, want one ACK", got)
	}

	// Recovery does not clear an acknowledged alarm.
	m.Observe("lock_208", base.Add(3*time.Second))
	m.Sweep(base.Add(3*time.Second + 100*time.Millisecond))
	if st, _ := m.State("lock_208"); st != liveness.AlarmAcknowledged {
		t.Fatalf("state = %v, acknowledged must hold through recovery", st)
	}

	// Continued silence does not re-raise either.
	m.Sweep(base.Add(10 * time.Second))
	if st, _ := m.State("lock_208"); st != liveness.AlarmAcknowledged {
		t.Fatalf("state = %v", st)
	}
}

func TestMonitor_AcknowledgeUnknownDevice(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m, s := newMonitor(t, base)

	if m.Acknowledge("lock_999") {
		t.Error("Acknowledge on unknown device must report false")
	}
	if len(s.all()) != 0 {
		t.Errorf("no ACK should be sent, got %v", s.all())
	}
}

func TestMonitor_ResetMaintenance(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m, _ := newMonitor(t, base)

	m.Observe("lock_208", base)
	m.Sweep(base.Add(2 * time.Second))
	m.Acknowledge("lock_208")

	// Device is healthy again by the time maintenance finishes.
	healthy := base.Add(5 * time.Second)
	m.Observe("lock_208", healthy)
	m.SetClock(func() time.Time { return healthy.Add(100 * time.Millisecond) })

	m.ResetMaintenance("208")
	if m.MaintenanceFlag("208") {
		t.Error("maintenance flag must clear")
	}
	if st, _ := m.State("lock_208"); st != liveness.AlarmNormal {
		t.Fatalf("state = %v, want NORMAL after reset with healthy heartbeats", st)
	}
}

func TestMonitor_ResetWhileStillSilent(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m, _ := newMonitor(t, base)

	m.Observe("lock_208", base)
	m.Sweep(base.Add(2 * time.Second))
	m.Acknowledge("lock_208")

	// Still no heartbeats: the device stays acknowledged so the next sweep
	// does not immediately re-raise a fresh alarm storm.
	m.SetClock(func() time.Time { return base.Add(10 * time.Second) })
	m.ResetMaintenance("208")

	if m.MaintenanceFlag("208") {
		t.Error("maintenance flag must clear")
	}
	if st, _ := m.State("lock_208"); st != liveness.AlarmAcknowledged {
		t.Fatalf("state = %v, want ACKNOWLEDGED while silence persists", st)
	}
}

func TestMonitor_TrackSeedsHealthy(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m, _ := newMonitor(t, base)

	m.Track("light_207")
	m.Sweep(base.Add(500 * time.Millisecond))
	if st, ok := m.State("light_207"); !ok || st != liveness.AlarmNormal {
		t.Fatalf("state = %v, %v", st, ok)
	}

	alarms, rooms := m.Snapshot()
	if alarms["light_207"] != "NORMAL" {
		t.Errorf("snapshot = %v", alarms)
	}
	if len(rooms) != 0 {
		t.Errorf("rooms = %v", rooms)
	}
}
