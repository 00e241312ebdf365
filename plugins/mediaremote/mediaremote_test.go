package mediaremote

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

func TestHandlePlayerListPopulatesPlayers(t *testing.T) {
	p := &Plugin{dev: testDeviceHandle(t), log: noopLogger(), players: map[string]*player{}}

	pkt := packet.MustNew(packetType, incomingBody{PlayerList: []string{"spotify", "vlc"}})
	if err := p.Handle(context.Background(), pkt); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var b hostproxy.MenuBuilder
	p.TrayMenu(&b)
	if len(b.Items) != 2 {
		t.Fatalf("expected two unknown-state items, got %d: %+v", len(b.Items), b.Items)
	}
}

func TestHandleMetadataUpdatesKnownPlayer(t *testing.T) {
	p := &Plugin{dev: testDeviceHandle(t), log: noopLogger(), players: map[string]*player{"spotify": {}}}

	pkt := packet.MustNew(packetType, incomingBody{
		mediaMetadata: mediaMetadata{Player: "spotify", NowPlaying: "Artist - Song"},
		playbackInfo:  playbackInfo{IsPlaying: true, CanGoNext: true},
	})
	if err := p.Handle(context.Background(), pkt); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var b hostproxy.MenuBuilder
	p.TrayMenu(&b)
	if len(b.Items) < 2 {
		t.Fatalf("expected at least a play item and now-playing item, got %+v", b.Items)
	}
	if b.Items[0].Label != "spotify - Playing" {
		t.Fatalf("unexpected play item label: %q", b.Items[0].Label)
	}
}

func TestHandleEventSendsActionForMatchingPlayer(t *testing.T) {
	dh := testDeviceHandle(t)
	p := &Plugin{dev: dh, log: noopLogger(), players: map[string]*player{"spotify": {}}}

	// Should not block or panic even though nothing observes the send;
	// the outbox channel on the fake device has capacity 1.
	p.HandleEvent(eventbus.Event{Kind: eventbus.TrayMenuClicked, MenuID: menuID(dh.DeviceID(), "spotify", "play")})
}

func TestTrayMenuEmptyWithNoPlayers(t *testing.T) {
	p := &Plugin{dev: testDeviceHandle(t), log: noopLogger(), players: map[string]*player{}}

	var b hostproxy.MenuBuilder
	p.TrayMenu(&b)
	if len(b.Items) != 0 {
		t.Fatalf("expected no items with no players, got %d", len(b.Items))
	}
}
