package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/snackmasta/sakan-munazam/internal/device"
	"github.com/snackmasta/sakan-munazam/internal/httpapi"
	"github.com/snackmasta/sakan-munazam/internal/logger"
)

// fakeCore records operator calls and returns canned results.
type fakeCore struct {
	sent      []string
	meshed    []string
	acked     []string
	resets    []string
	known     bool
	status    device.Status
	alarms    map[string]string
	maintFlag map[string]bool
}

func (f *fakeCore) SendCommand(id, cmd string) bool {
	f.sent = append(f.sent, id+" "+cmd)
	return f.known
}

func (f *fakeCore) BroadcastMeshCommand(id, cmd string) bool {
	f.meshed = append(f.meshed, id+" "+cmd)
	return f.known
}

func (f *fakeCore) GetDeviceStatus() device.Status { return f.status }

func (f *fakeCore) Acknowledge(id string) bool {
	f.acked = append(f.acked, id)
	return f.known
}

func (f *fakeCore) ResetMaintenance(room string) { f.resets = append(f.resets, room) }

func (f *fakeCore) AlarmSnapshot() (map[string]string, map[string]bool) {
	return f.alarms, f.maintFlag
}

func newServer(core *fakeCore) http.Handler {
	if core.alarms == nil {
		core.alarms = map[string]string{}
	}
	if core.maintFlag == nil {
		core.maintFlag = map[string]bool{}
	}
	s := httpapi.NewServer(httpapi.Dependencies{
		Logger: logger.Nop(),
		Addr:   ":0",
		Core:   core,
		Hub:    httpapi.NewHub(),
	})
	return s.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	core := &fakeCore{
		status: device.Status{
			Lights: []device.LightStatus{{ID: "light_207", State: "ON", Lux: 12.3}},
			Locks:  []device.LockStatus{{ID: "lock_207", State: "LOCKED"}},
		},
		alarms:    map[string]string{"lock_207": "BLINKING"},
		maintFlag: map[string]bool{"207": true},
	}
	h := newServer(core)

	rec := doJSON(t, h, http.MethodGet, "/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got struct {
		Lights      []device.LightStatus `json:"lights"`
		Locks       []device.LockStatus  `json:"locks"`
		Alarms      map[string]string    `json:"alarms"`
		Maintenance map[string]bool      `json:"maintenance"`
		ServerTime  string               `json:"server_time"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Lights) != 1 || got.Lights[0].ID != "light_207" {
		t.Errorf("lights = %+v", got.Lights)
	}
	if got.Alarms["lock_207"] != "BLINKING" || !got.Maintenance["207"] {
		t.Errorf("alarms = %v, maintenance = %v", got.Alarms, got.Maintenance)
	}
	if got.ServerTime == "" {
		t.Error("server_time missing")
	}
}

func TestCommandEndpoint(t *testing.T) {
	core := &fakeCore{known: true}
	h := newServer(core)

	rec := doJSON(t, h, http.MethodPost, "/v1/command",
		`{"device_id":"lock_207","command":"UNLOCK"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(core.sent) != 1 || core.sent[0] != "lock_207 UNLOCK" {
		t.Errorf("sent = %v", core.sent)
	}
}

func TestCommandEndpoint_UnknownDevice(t *testing.T) {
	core := &fakeCore{known: false}
	h := newServer(core)

	rec := doJSON(t, h, http.MethodPost, "/v1/command",
		`{"device_id":"lock_999","command":"LOCK"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCommandEndpoint_Validation(t *testing.T) {
	core := &fakeCore{known: true}
	h := newServer(core)

	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing device", `{"command":"ON"}`},
		{"free-form command", `{"device_id":"light_207","command":"rm -rf"}`},
		{"empty pwm", `{"device_id":"light_207","command":"PWM:"}`},
		{"non-numeric pwm", `{"device_id":"light_207","command":"PWM:abc"}`},
		{"unknown field", `{"device_id":"light_207","command":"ON","ttl":9}`},
	}
	for _, tc := range cases {
		rec := doJSON(t, h, http.MethodPost, "/v1/command", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", tc.name, rec.Code)
		}
	}
	if len(core.sent) != 0 {
		t.Errorf("invalid requests reached the core: %v", core.sent)
	}

	// PWM with a numeric duty is a valid token.
	rec := doJSON(t, h, http.MethodPost, "/v1/command",
		`{"device_id":"light_207","command":"PWM:512"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("PWM:512 status = %d", rec.Code)
	}
}

func TestMeshEndpoint(t *testing.T) {
	core := &fakeCore{known: true}
	h := newServer(core)

	rec := doJSON(t, h, http.MethodPost, "/v1/mesh",
		`{"device_id":"lock_207","command":"LOCK"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(core.meshed) != 1 || core.meshed[0] != "lock_207 LOCK" {
		t.Errorf("meshed = %v", core.meshed)
	}
}

func TestAckEndpoint(t *testing.T) {
	core := &fakeCore{known: true}
	h := newServer(core)

	rec := doJSON(t, h, http.MethodPost, "/v1/ack", `{"device_id":"lock_207"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(core.acked) != 1 || core.acked[0] != "lock_207" {
		t.Errorf("acked = %v", core.acked)
	}

	core.known = false
	rec = doJSON(t, h, http.MethodPost, "/v1/ack", `{"device_id":"lock_999"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d", rec.Code)
	}
}

func TestResetEndpoint(t *testing.T) {
	core := &fakeCore{}
	h := newServer(core)

	rec := doJSON(t, h, http.MethodPost, "/v1/reset", `{"room_id":"207"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(core.resets) != 1 || core.resets[0] != "207" {
		t.Errorf("resets = %v", core.resets)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/reset", `{"room_id":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank room status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := newServer(&fakeCore{})
	rec := doJSON(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}
