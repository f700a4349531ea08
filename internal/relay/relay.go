// Package relay sends command datagrams to devices on the mesh.
package relay

import (
	"fmt"
	"net"

	"github.com/snackmasta/sakan-munazam/internal/device"
	"github.com/snackmasta/sakan-munazam/internal/logger"
	"github.com/snackmasta/sakan-munazam/internal/metrics"
)

// AddressBook resolves device IDs to their last-known network addresses.
// Implemented by *device.Registry.
type AddressBook interface {
	Addr(id string) (string, bool)
	All() []device.Device
}

// Relay is the unicast/mesh command sender.  Every send opens its own
// short-lived socket: command rates are low and an ephemeral socket per send
// keeps a wedged destination from serializing unrelated sends.
type Relay struct {
	book    AddressBook
	meshTTL int
	log     *logger.Logger
}

func New(book AddressBook, meshTTL int, log *logger.Logger) *Relay {
	if meshTTL <= 0 {
		meshTTL = 3
	}
	return &Relay{book: book, meshTTL: meshTTL, log: log}
}

// Send transmits one command datagram to the device's last-known address.
// Reports whether the device was known.  Send errors are logged and counted,
// never fatal: the wire protocol is unacknowledged anyway.
func (r *Relay) Send(deviceID, command string) bool {
	addr, ok := r.book.Addr(deviceID)
	if !ok {
		r.log.Warnw("send: unknown device", "device", deviceID, "command", command)
		metrics.CommandSent("unknown_device")
		return false
	}

	if err := r.sendTo(addr, command); err != nil {
		r.log.Errorw("send failed", "device", deviceID, "addr", addr, "command", command, "err", err)
		metrics.CommandSent("error")
		return false
	}

	r.log.Infow("sent command", "device", deviceID, "addr", addr, "command", command)
	metrics.CommandSent("ok")
	return true
}

// BroadcastMesh composes the mesh envelope `<targetIP>:<command>:<ttl>` and
// fans it out to every known lock and light.  The gateway only does the
// one-hop fan-out; any further propagation is device-firmware logic.
// Reports whether the target device was known.
func (r *Relay) BroadcastMesh(targetID, command string) bool {
	addr, ok := r.book.Addr(targetID)
	if !ok {
		r.log.Warnw("mesh broadcast: unknown target", "device", targetID, "command", command)
		return false
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	envelope := fmt.Sprintf("%s:%s:%d", host, command, r.meshTTL)

	sent := 0
	for _, d := range r.book.All() {
		if d.Addr == "" {
			continue
		}
		if d.Kind != device.KindLock && d.Kind != device.KindLight {
			continue
		}
		if err := r.sendTo(d.Addr, envelope); err != nil {
			r.log.Errorw("mesh send failed", "device", d.ID, "addr", d.Addr, "err", err)
			metrics.CommandSent("error")
			continue
		}
		metrics.CommandSent("ok")
		sent++
	}

	r.log.Infow("mesh broadcast", "target", targetID, "envelope", envelope, "fanout", sent)
	return true
}

func (r *Relay) sendTo(addr, payload string) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("write %s: %w", addr, err)
	}
	return nil
}
