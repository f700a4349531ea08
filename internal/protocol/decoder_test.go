package protocol_test

import (
	"errors"
	"testing"

	"github.com/snackmasta/sakan-munazam/internal/protocol"
)

func TestDecode_LightFullTelemetry(t *testing.T) {
	msg, err := protocol.Decode([]byte("light_207:ON:12.3:512:300"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	st, ok := msg.(protocol.LightStatus)
	if !ok {
		t.Fatalf("expected LightStatus, got %T", msg)
	}
	if st.DeviceID != "light_207" {
		t.Errorf("device = %q", st.DeviceID)
	}
	if st.State != "ON" {
		t.Errorf("state = %q", st.State)
	}
	if st.Lux == nil || *st.Lux != 12.3 {
		t.Errorf("lux = %v", st.Lux)
	}
	if st.PWM == nil || *st.PWM != 512 {
		t.Errorf("pwm = %v", st.PWM)
	}
	if st.RawLDR == nil || *st.RawLDR != 300 {
		t.Errorf("raw = %v", st.RawLDR)
	}
}

func TestDecode_LightStateOnly(t *testing.T) {
	msg, err := protocol.Decode([]byte("light_208:OFF"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	st := msg.(protocol.LightStatus)
	if st.State != "OFF" {
		t.Errorf("state = %q", st.State)
	}
	if st.Lux != nil || st.PWM != nil || st.RawLDR != nil {
		t.Error("telemetry must be absent for a 2-field message")
	}
}

func TestDecode_LightPartiallyUnparseable(t *testing.T) {
	// A bad lux must not discard the PWM field.
	msg, err := protocol.Decode([]byte("light_207:ON:garbage:128"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	st := msg.(protocol.LightStatus)
	if st.Lux != nil {
		t.Errorf("lux should be nil, got %v", *st.Lux)
	}
	if st.PWM == nil || *st.PWM != 128 {
		t.Errorf("pwm = %v", st.PWM)
	}
}

func TestDecode_LockCredential(t *testing.T) {
	msg, err := protocol.Decode([]byte("lock_208:04:47:43:12:7A:6A:80"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	ev, ok := msg.(protocol.AccessEvent)
	if !ok {
		t.Fatalf("expected AccessEvent, got %T", msg)
	}
	if ev.DeviceID != "lock_208" {
		t.Errorf("device = %q", ev.DeviceID)
	}
	if ev.Credential != "04:47:43:12:7A:6A:80" {
		t.Errorf("credential = %q", ev.Credential)
	}
}

func TestDecode_LockBadCredentials(t *testing.T) {
	cases := []string{
		"lock_208:04:47:43",                // too short
		"lock_208:04:47:43:12:7A:6A:80:11", // too long
		"lock_208:UNLOCKED",                // state echo, not a credential
		"lock_208:ZZ:47:43:12:7A:6A:80",    // not hex
	}
	for _, raw := range cases {
		if _, err := protocol.Decode([]byte(raw)); !errors.Is(err, protocol.ErrInvalidCredential) {
			t.Errorf("Decode(%q) err = %v, want ErrInvalidCredential", raw, err)
		}
	}
}

func TestDecode_Heartbeat(t *testing.T) {
	msg, err := protocol.Decode([]byte("lock_207:HEARTBEAT"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	hb, ok := msg.(protocol.Heartbeat)
	if !ok {
		t.Fatalf("expected Heartbeat, got %T", msg)
	}
	if hb.DeviceID != "lock_207" {
		t.Errorf("device = %q", hb.DeviceID)
	}
}

func TestDecode_ShortOrEmpty(t *testing.T) {
	for _, raw := range []string{"", "light_207", ":ON", "   "} {
		if _, err := protocol.Decode([]byte(raw)); !errors.Is(err, protocol.ErrShortMessage) {
			t.Errorf("Decode(%q) err = %v, want ErrShortMessage", raw, err)
		}
	}
}
