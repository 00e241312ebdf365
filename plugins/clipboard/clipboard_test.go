package clipboard

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
)

func noopLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testDeviceHandle(t *testing.T) devicemgr.DeviceHandle {
	t.Helper()
	dial := func(context.Context, net.Addr, uint16) (net.Conn, error) { return nil, nil }
	actor, h := devicemgr.New(func(devicemgr.DeviceHandle) devicemgr.PluginRepo { return noopRepo{} }, dial, hostproxy.Noop{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go actor.Run(ctx)

	_, dh := h.AddDevice("dev-1", "Test Device", &net.TCPAddr{}, make(chan packet.WithPayload, 1))
	return dh
}

type noopRepo struct{}

func (noopRepo) HandlePacket(context.Context, packet.Packet) {}
func (noopRepo) HandleEvent(eventbus.Event)                  {}
func (noopRepo) TrayMenu() hostproxy.MenuBuilder             { return hostproxy.MenuBuilder{} }
func (noopRepo) Dispose()                                    {}

type fakeAccess struct {
	text    string
	ok      bool
	written string
}

func (f *fakeAccess) Read() (string, bool) { return f.text, f.ok }
func (f *fakeAccess) Write(s string) error  { f.written = s; return nil }

func TestHandleWritesIncomingClipboardContent(t *testing.T) {
	access := &fakeAccess{}
	p := &Plugin{dev: testDeviceHandle(t), log: noopLogger(), access: access}

	pkt := packet.MustNew(packetType, wireBody{Content: "hello"})
	if err := p.Handle(context.Background(), pkt); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if access.written != "hello" {
		t.Fatalf("expected clipboard write %q, got %q", "hello", access.written)
	}
}

func TestHandleConnectIsNoop(t *testing.T) {
	access := &fakeAccess{}
	p := &Plugin{dev: testDeviceHandle(t), log: noopLogger(), access: access}

	pkt := packet.MustNew(packetTypeConnect, struct{}{})
	if err := p.Handle(context.Background(), pkt); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if access.written != "" {
		t.Fatalf("expected no clipboard write, got %q", access.written)
	}
}

func TestHandleEventSkipsUnchangedContent(t *testing.T) {
	access := &fakeAccess{text: "same", ok: true}
	p := &Plugin{dev: testDeviceHandle(t), log: noopLogger(), access: access, last: "same"}

	// Should not attempt to send (and thus not block) since content is unchanged.
	p.HandleEvent(eventbus.Event{Kind: eventbus.ClipboardUpdated})
}

func TestHandleEventIgnoresOtherKinds(t *testing.T) {
	access := &fakeAccess{text: "new", ok: true}
	p := &Plugin{dev: devicemgr.DeviceHandle{}, log: noopLogger(), access: access}

	// Zero-value handle is safe here: the event kind mismatches so
	// SendPacket is never reached.
	p.HandleEvent(eventbus.Event{Kind: eventbus.PowerStatusUpdated})
}

func TestNoAccessReportsNothing(t *testing.T) {
	var a NoAccess
	if _, ok := a.Read(); ok {
		t.Fatalf("expected NoAccess to report ok=false")
	}
	if err := a.Write("x"); err != nil {
		t.Fatalf("expected NoAccess.Write to succeed, got %v", err)
	}
}
