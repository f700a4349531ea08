// Package gateway wires the protocol decoder, device registry, access
// policy, liveness monitor, and command relay into the running service, and
// exposes the operations external collaborators (console, supervisory
// bridge) consume.
package gateway

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/snackmasta/sakan-munazam/internal/config"
	"github.com/snackmasta/sakan-munazam/internal/device"
	"github.com/snackmasta/sakan-munazam/internal/liveness"
	"github.com/snackmasta/sakan-munazam/internal/logger"
	"github.com/snackmasta/sakan-munazam/internal/metrics"
	"github.com/snackmasta/sakan-munazam/internal/policy"
	"github.com/snackmasta/sakan-munazam/internal/protocol"
	"github.com/snackmasta/sakan-munazam/internal/relay"
	"github.com/snackmasta/sakan-munazam/internal/scheduler"
)

// authQueueSize bounds the credential events waiting on the reservation
// store.  The queue isolates store latency from the receive loop; when it
// fills, events are dropped (and counted) rather than stalling intake.
const authQueueSize = 64

// authWorkers is the number of goroutines draining the queue.
const authWorkers = 2

type authJob struct {
	credential string
	sourceAddr string
}

// Dependencies collects everything the gateway needs.
type Dependencies struct {
	Config    config.Config
	Logger    *logger.Logger
	Registry  *device.Registry
	Relay     *relay.Relay
	Evaluator *policy.Evaluator
	Monitor   *liveness.Monitor
	Scheduler *scheduler.Scheduler
}

// Gateway is the running core.
type Gateway struct {
	cfg       config.Config
	log       *logger.Logger
	registry  *device.Registry
	relay     *relay.Relay
	evaluator *policy.Evaluator
	monitor   *liveness.Monitor
	sched     *scheduler.Scheduler

	jobs chan authJob
}

func New(d Dependencies) *Gateway {
	g := &Gateway{
		cfg:       d.Config,
		log:       d.Logger,
		registry:  d.Registry,
		relay:     d.Relay,
		evaluator: d.Evaluator,
		monitor:   d.Monitor,
		sched:     d.Scheduler,
		jobs:      make(chan authJob, authQueueSize),
	}

	// Every newly observed device enters liveness tracking immediately.
	g.registry.OnRegister(func(id string, _ device.Kind) {
		g.monitor.Track(id)
	})

	return g
}

// Run starts all loops and blocks until ctx is cancelled.  Shutdown is
// cooperative: sockets close, workers drain, and no re-lock timer fires
// afterwards.
func (g *Gateway) Run(ctx context.Context) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: g.cfg.Network.DevicePort})
	if err != nil {
		return fmt.Errorf("listen device port %d: %w", g.cfg.Network.DevicePort, err)
	}
	defer conn.Close()

	g.log.Infow("gateway listening", "device_port", g.cfg.Network.DevicePort,
		"heartbeat_port", g.cfg.Network.HeartbeatPort)

	var wg sync.WaitGroup

	for i := 0; i < authWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.authWorker(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := g.monitor.Run(ctx); err != nil {
			g.log.Errorw("liveness monitor exited", "err", err)
		}
	}()

	g.sched.Start(ctx)

	g.receiveLoop(ctx, conn)

	g.sched.Stop()
	g.evaluator.Close()
	wg.Wait()
	return nil
}

// receiveLoop reads device datagrams with a bounded deadline so shutdown is
// observed within one tick.
func (g *Gateway) receiveLoop(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, g.cfg.Network.BufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(g.cfg.Network.ReadTimeout.Std()))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			g.log.Warnw("device read error", "err", err)
			continue
		}

		g.HandleMessage(buf[:n], addr.String())
	}
}

// HandleMessage decodes one raw datagram and applies it.  Malformed input
// degrades to "ignored", never to a crash; nothing here blocks on the
// reservation store.
func (g *Gateway) HandleMessage(raw []byte, sourceAddr string) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		metrics.Datagram("device", "malformed")
		g.log.Debugw("dropped datagram", "source", sourceAddr, "err", err, "raw", string(raw))
		return
	}

	switch m := msg.(type) {
	case protocol.LightStatus:
		metrics.Datagram("light", "ok")
		g.registry.ApplyLightStatus(m.DeviceID, sourceAddr, m.State, m.Lux, m.PWM, m.RawLDR)

	case protocol.AccessEvent:
		metrics.Datagram("lock", "ok")
		g.registry.NoteCredential(m.DeviceID, sourceAddr, m.Credential)
		g.enqueueAuth(m.Credential, sourceAddr)

	case protocol.Heartbeat:
		// Heartbeats normally arrive on the dedicated port, but a device
		// that sends one here still counts as alive.
		metrics.Datagram("heartbeat", "ok")
		g.registry.Touch(m.DeviceID, kindOf(m.DeviceID), sourceAddr)
		g.monitor.Observe(m.DeviceID, time.Now())
	}
}

// enqueueAuth hands a credential event to the worker pool without ever
// blocking the receive loop.
func (g *Gateway) enqueueAuth(credential, sourceAddr string) {
	select {
	case g.jobs <- authJob{credential: credential, sourceAddr: sourceAddr}:
	default:
		metrics.AuthQueueDrop()
		g.log.Warnw("authorization queue full, dropping credential event",
			"source", sourceAddr)
	}
}

func (g *Gateway) authWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-g.jobs:
			g.evaluator.Authorize(ctx, job.credential, job.sourceAddr)
		}
	}
}

// ── Operations consumed by the console and supervisory bridge ────────────────

// SendCommand transmits a command datagram to one device.  Reports whether
// the device was known.
func (g *Gateway) SendCommand(deviceID, command string) bool {
	return g.relay.Send(deviceID, command)
}

// BroadcastMeshCommand fans a mesh envelope for the target out to every
// known device.  Reports whether the target was known.
func (g *Gateway) BroadcastMeshCommand(targetID, command string) bool {
	return g.relay.BroadcastMesh(targetID, command)
}

// GetDeviceStatus returns the registry snapshot.
func (g *Gateway) GetDeviceStatus() device.Status {
	return g.registry.Status()
}

// Acknowledge acknowledges a device's alarm.
func (g *Gateway) Acknowledge(deviceID string) bool {
	return g.monitor.Acknowledge(deviceID)
}

// ResetMaintenance clears a room's maintenance flag.
func (g *Gateway) ResetMaintenance(roomID string) {
	g.monitor.ResetMaintenance(roomID)
}

// AlarmSnapshot returns per-device alarm states and room maintenance flags.
func (g *Gateway) AlarmSnapshot() (map[string]string, map[string]bool) {
	return g.monitor.Snapshot()
}

func kindOf(deviceID string) device.Kind {
	if protocol.IsLight(deviceID) {
		return device.KindLight
	}
	return device.KindLock
}
