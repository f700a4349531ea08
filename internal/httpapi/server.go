// Package httpapi exposes the gateway's operations to the operator console
// and the supervisory bridge.  It is a thin JSON layer: all decisions and
// state live in the core.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snackmasta/sakan-munazam/internal/device"
	"github.com/snackmasta/sakan-munazam/internal/logger"
	"github.com/snackmasta/sakan-munazam/internal/protocol"
)

// Core is the gateway surface the API serves.
type Core interface {
	SendCommand(deviceID, command string) bool
	BroadcastMeshCommand(targetID, command string) bool
	GetDeviceStatus() device.Status
	Acknowledge(deviceID string) bool
	ResetMaintenance(roomID string)
	AlarmSnapshot() (alarms map[string]string, rooms map[string]bool)
}

// Dependencies for NewServer.
type Dependencies struct {
	Logger *logger.Logger
	Addr   string
	Core   Core
	Hub    *Hub
}

type Server struct {
	httpServer *http.Server
	log        *logger.Logger
	mux        *http.ServeMux
	core       Core
	hub        *Hub
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		log:  d.Logger,
		mux:  mux,
		core: d.Core,
		hub:  d.Hub,
	}

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/command", s.handleCommand)
	mux.HandleFunc("POST /v1/mesh", s.handleMesh)
	mux.HandleFunc("POST /v1/ack", s.handleAck)
	mux.HandleFunc("POST /v1/reset", s.handleReset)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Handlers ─────────────────────────────────────────────────────────────────

type statusResponse struct {
	device.Status
	Alarms      map[string]string `json:"alarms"`
	Maintenance map[string]bool   `json:"maintenance"`
	ServerTime  string            `json:"server_time"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	alarms, rooms := s.core.AlarmSnapshot()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:      s.core.GetDeviceStatus(),
		Alarms:      alarms,
		Maintenance: rooms,
		ServerTime:  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type commandRequest struct {
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
}

type commandResponse struct {
	OK       bool   `json:"ok"`
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
}

// allowedCommand validates operator command tokens against the device
// protocol; free-form payloads never reach the mesh.
func allowedCommand(cmd string) bool {
	switch cmd {
	case protocol.CmdOn, protocol.CmdOff, protocol.CmdLock, protocol.CmdUnlock,
		protocol.CmdAck, protocol.CmdPWMAuto, protocol.CmdPWMManual:
		return true
	}
	if rest, ok := strings.CutPrefix(cmd, "PWM:"); ok {
		for _, c := range rest {
			if c < '0' || c > '9' {
				return false
			}
		}
		return rest != ""
	}
	return false
}

func (s *Server) decodeCommand(w http.ResponseWriter, r *http.Request) (commandRequest, bool) {
	var req commandRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return commandRequest{}, false
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_device_id", "device_id is required")
		return commandRequest{}, false
	}
	if !allowedCommand(req.Command) {
		writeError(w, http.StatusBadRequest, "invalid_command", "unknown command token")
		return commandRequest{}, false
	}
	return req, true
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCommand(w, r)
	if !ok {
		return
	}

	sent := s.core.SendCommand(req.DeviceID, req.Command)
	status := http.StatusOK
	if !sent {
		status = http.StatusNotFound
	}
	writeJSON(w, status, commandResponse{OK: sent, DeviceID: req.DeviceID, Command: req.Command})
}

func (s *Server) handleMesh(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCommand(w, r)
	if !ok {
		return
	}

	sent := s.core.BroadcastMeshCommand(req.DeviceID, req.Command)
	status := http.StatusOK
	if !sent {
		status = http.StatusNotFound
	}
	writeJSON(w, status, commandResponse{OK: sent, DeviceID: req.DeviceID, Command: req.Command})
}

type ackRequest struct {
	DeviceID string `json:"device_id"`
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_device_id", "device_id is required")
		return
	}

	if !s.core.Acknowledge(req.DeviceID) {
		writeError(w, http.StatusNotFound, "unknown_device", "device is not tracked")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type resetRequest struct {
	RoomID string `json:"room_id"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.RoomID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id is required")
		return
	}

	s.core.ResetMaintenance(req.RoomID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ── Response helpers ─────────────────────────────────────────────────────────

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}
