package relay_test

import (
	"net"
	"testing"
	"time"

	"github.com/snackmasta/sakan-munazam/internal/device"
	"github.com/snackmasta/sakan-munazam/internal/logger"
	"github.com/snackmasta/sakan-munazam/internal/protocol"
	"github.com/snackmasta/sakan-munazam/internal/relay"
)

// listen opens a loopback UDP socket and returns it with its address.
func listen(t *testing.T) (*net.UDPConn, string) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().String()
}

func recv(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(buf[:n])
}

func TestRelay_SendUnicast(t *testing.T) {
	conn, addr := listen(t)

	reg := device.NewRegistry()
	reg.Touch("lock_207", device.KindLock, addr)

	r := relay.New(reg, 3, logger.Nop())
	if !r.Send("lock_207", protocol.CmdUnlock) {
		t.Fatal("Send reported failure for a known device")
	}
	if got := recv(t, conn); got != "UNLOCK" {
		t.Errorf("payload = %q", got)
	}
}

func TestRelay_SendUnknownDevice(t *testing.T) {
	r := relay.New(device.NewRegistry(), 3, logger.Nop())
	if r.Send("lock_999", protocol.CmdLock) {
		t.Error("Send must report false for an unknown device")
	}
}

func TestRelay_BroadcastMeshEnvelope(t *testing.T) {
	lockConn, lockAddr := listen(t)
	lightConn, lightAddr := listen(t)

	reg := device.NewRegistry()
	reg.Touch("lock_207", device.KindLock, lockAddr)
	reg.Touch("light_207", device.KindLight, lightAddr)

	r := relay.New(reg, 3, logger.Nop())
	if !r.BroadcastMesh("lock_207", protocol.CmdLock) {
		t.Fatal("BroadcastMesh reported failure for a known target")
	}

	lockHost, _, err := net.SplitHostPort(lockAddr)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := lockHost + ":LOCK:3"

	// Every device on the mesh gets the same envelope, target included.
	if got := recv(t, lockConn); got != want {
		t.Errorf("lock payload = %q, want %q", got, want)
	}
	if got := recv(t, lightConn); got != want {
		t.Errorf("light payload = %q, want %q", got, want)
	}
}

func TestRelay_BroadcastMeshUnknownTarget(t *testing.T) {
	r := relay.New(device.NewRegistry(), 3, logger.Nop())
	if r.BroadcastMesh("lock_999", protocol.CmdOn) {
		t.Error("BroadcastMesh must report false for an unknown target")
	}
}
