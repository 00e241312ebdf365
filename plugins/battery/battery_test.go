package battery

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

// testDeviceHandle spins up a real, minimal device manager actor so
// plugin methods that touch devicemgr.DeviceHandle (SendPacket,
// UpdateTray, ...) have somewhere to send without blocking forever on
// an unwired zero-value Handle.
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

func TestHandleBatteryReportStoresRemoteState(t *testing.T) {
	p := &Plugin{dev: testDeviceHandle(t), log: noopLogger(), read: NoBattery}

	pkt := packet.MustNew(packetType, report{CurrentCharge: 42, IsCharging: true})
	if err := p.Handle(context.Background(), pkt); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var b hostproxy.MenuBuilder
	p.TrayMenu(&b)
	if len(b.Items) != 1 {
		t.Fatalf("expected one disabled battery status item, got %d", len(b.Items))
	}
	if b.Items[0].Enabled {
		t.Fatalf("expected battery status item to be disabled")
	}
}

func TestTrayMenuEmptyBeforeAnyReport(t *testing.T) {
	p := &Plugin{dev: testDeviceHandle(t), log: noopLogger(), read: NoBattery}

	var b hostproxy.MenuBuilder
	p.TrayMenu(&b)
	if len(b.Items) != 0 {
		t.Fatalf("expected no menu items before a report arrives, got %d", len(b.Items))
	}
}

func TestNoBatteryReaderReportsNothing(t *testing.T) {
	if _, ok := NoBattery(); ok {
		t.Fatalf("expected NoBattery to report ok=false")
	}
}
