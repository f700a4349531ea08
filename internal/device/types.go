package device

import "time"

// Kind discriminates the two device families on the mesh.
type Kind string

const (
	KindLock  Kind = "lock"
	KindLight Kind = "light"
)

// Lock operational states.
const (
	LockStateLocked   = "LOCKED"
	LockStateUnlocked = "UNLOCKED"
)

// Light operational states.
const (
	LightStateOn  = "ON"
	LightStateOff = "OFF"
)

// StateUnknown is the state of a device before any status report arrives.
const StateUnknown = "UNKNOWN"

// Device is one entry in the registry.  Entries are created on first
// datagram and never deleted; the address is refreshed on every datagram so
// DHCP churn on the mesh does not strand a device.
type Device struct {
	ID   string
	Kind Kind
	Addr string // host:port of the last datagram from this device

	State string

	// Light telemetry.  Zero until the first full status report.
	Lux    float64
	PWM    int
	RawLDR int

	// LastCredential is the most recent accepted credential presented at a
	// lock.  Empty for lights.
	LastCredential string

	LastUpdate time.Time
}

// LightStatus is the console-facing view of a light.
type LightStatus struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	Lux        float64   `json:"lux"`
	PWM        int       `json:"pwm"`
	RawLDR     int       `json:"raw_ldr"`
	Addr       string    `json:"addr"`
	LastUpdate time.Time `json:"last_update"`
}

// LockStatus is the console-facing view of a lock.
type LockStatus struct {
	ID             string    `json:"id"`
	State          string    `json:"state"`
	LastCredential string    `json:"last_credential,omitempty"`
	Addr           string    `json:"addr"`
	LastUpdate     time.Time `json:"last_update"`
}

// Status is the full registry snapshot returned to external consumers.
type Status struct {
	Lights []LightStatus `json:"lights"`
	Locks  []LockStatus  `json:"locks"`
}
