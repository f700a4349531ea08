// Package protocol parses the gateway's colon-delimited ASCII wire format.
//
// Device datagrams look like `<device_id>:<field2>[:<field3>...]`.  Device
// IDs containing "light" report status and telemetry; everything else is a
// lock presenting a credential.  Credentials are colon-separated hex byte
// groups, e.g. `04:47:43:12:7A:6A:80`.
package protocol

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrShortMessage marks datagrams with fewer than two fields.
	ErrShortMessage = errors.New("message has fewer than two fields")

	// ErrInvalidCredential marks lock datagrams whose trailing fields do not
	// form a 14-hex-character credential.
	ErrInvalidCredential = errors.New("credential is not 14 hex characters")
)

// credentialHexLen is the length of a credential after stripping colons:
// 7 byte groups of 2 hex digits.
const credentialHexLen = 14

const heartbeatToken = "HEARTBEAT"

// Message is a decoded datagram.  Concrete types: LightStatus, AccessEvent,
// Heartbeat.
type Message interface {
	Device() string
}

// LightStatus is a status/telemetry report from a light.  Telemetry pointers
// are nil when the field was absent or unparseable; a nil field must leave
// the registry's prior value untouched.
type LightStatus struct {
	DeviceID string
	State    string
	Lux      *float64
	PWM      *int
	RawLDR   *int
}

func (m LightStatus) Device() string { return m.DeviceID }

// AccessEvent is a credential presented at a lock.
type AccessEvent struct {
	DeviceID   string
	Credential string
}

func (m AccessEvent) Device() string { return m.DeviceID }

// Heartbeat is a liveness datagram (`<device_id>:HEARTBEAT`).
type Heartbeat struct {
	DeviceID string
}

func (m Heartbeat) Device() string { return m.DeviceID }

// Decode parses one raw datagram.  It never panics; anything that cannot be
// decoded comes back as an error and the caller drops the datagram.
func Decode(raw []byte) (Message, error) {
	msg := strings.TrimSpace(string(raw))
	parts := strings.Split(msg, ":")
	if len(parts) < 2 || parts[0] == "" {
		return nil, ErrShortMessage
	}

	deviceID := parts[0]

	if len(parts) == 2 && parts[1] == heartbeatToken {
		return Heartbeat{DeviceID: deviceID}, nil
	}

	if strings.Contains(deviceID, kindLightSubstr) {
		return decodeLight(deviceID, parts), nil
	}

	// Lock: the credential is itself colon-delimited, so rejoin everything
	// after the device ID.
	uid := strings.TrimSpace(strings.Join(parts[1:], ":"))
	if !validCredential(uid) {
		return nil, ErrInvalidCredential
	}
	return AccessEvent{DeviceID: deviceID, Credential: uid}, nil
}

// kindLightSubstr identifies light devices by ID, mirroring the device
// firmware naming convention (light_207, light_208, ...).
const kindLightSubstr = "light"

// IsLight reports whether a device ID names a light.
func IsLight(deviceID string) bool {
	return strings.Contains(deviceID, kindLightSubstr)
}

func decodeLight(deviceID string, parts []string) LightStatus {
	st := LightStatus{
		DeviceID: deviceID,
		State:    parts[1],
	}

	// Fields beyond the state are parsed independently: one bad number must
	// not discard the rest of the message.
	if len(parts) >= 4 {
		if lux, err := strconv.ParseFloat(parts[2], 64); err == nil {
			st.Lux = &lux
		}
		if pwm, err := strconv.Atoi(parts[3]); err == nil {
			st.PWM = &pwm
		}
	}
	if len(parts) >= 5 {
		if raw, err := strconv.Atoi(parts[4]); err == nil {
			st.RawLDR = &raw
		}
	}
	return st
}

// validCredential reports whether uid, with colons stripped, is exactly 14
// hex characters.
func validCredential(uid string) bool {
	stripped := strings.ReplaceAll(uid, ":", "")
	if len(stripped) != credentialHexLen {
		return false
	}
	for _, c := range stripped {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
