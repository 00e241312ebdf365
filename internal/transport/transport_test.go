package transport

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kdeconnect-go/kdeconnect/internal/appctx"
	"github.com/kdeconnect-go/kdeconnect/internal/config"
	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/identity"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
)

func TestListenPicksPortInRange(t *testing.T) {
	ln, port, err := Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	if port < MinPort || port > MaxPort {
		t.Fatalf("port %d outside [%d, %d]", port, MinPort, MaxPort)
	}
}

type fakeRepo struct {
	mu      sync.Mutex
	packets []packet.Packet
}

func (r *fakeRepo) HandlePacket(_ context.Context, pkt packet.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, pkt)
}
func (r *fakeRepo) HandleEvent(eventbus.Event)      {}
func (r *fakeRepo) TrayMenu() hostproxy.MenuBuilder { return hostproxy.MenuBuilder{} }
func (r *fakeRepo) Dispose()                        {}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.packets)
}

// TestHandleConnUpgradesAndDispatchesPacket drives the S0-S6 state
// machine over an in-memory net.Pipe: the "remote device" sends a
// plaintext identity line, performs the server side of a TLS handshake
// (since the TCP-accepting side inverts roles and becomes the TLS
// client), then sends one steady-state packet and expects it dispatched
// to the registered device's plugin repository.
func TestHandleConnUpgradesAndDispatchesPacket(t *testing.T) {
	certDER, keyDER, err := identity.GenerateCert("node-under-test")
	if err != nil {
		t.Fatalf("generate cert: %v", err)
	}
	facts, err := identity.NewFactories(certDER, keyDER)
	if err != nil {
		t.Fatalf("factories: %v", err)
	}

	repo := &fakeRepo{}
	dial := func(ctx context.Context, addr net.Addr, port uint16) (net.Conn, error) { return nil, nil }
	actor, handle := devicemgr.New(func(devicemgr.DeviceHandle) devicemgr.PluginRepo { return repo }, dial, hostproxy.Noop{}, nil)

	actorCtx, cancelActor := context.WithCancel(context.Background())
	defer cancelActor()
	go actor.Run(actorCtx)

	cfg := &config.Config{UUID: "node-under-test"}
	appCtx := appctx.New(cfg, handle, hostproxy.Noop{})
	appCtx.SetTLSFactories(facts)

	engine := New(appCtx, nil)

	clientConn, serverConn := net.Pipe()

	connCtx, cancelConn := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelConn()

	done := make(chan error, 1)
	go func() {
		done <- engine.handleConn(connCtx, serverConn)
	}()

	// Remote device: send plaintext identity, then become the TLS
	// server side of the inverted handshake.
	idPkt := packet.NewIdentity("remote-device", "Remote Phone", nil, nil, nil)
	idBytes, err := idPkt.Encode()
	if err != nil {
		t.Fatalf("encode identity: %v", err)
	}
	if _, err := clientConn.Write(idBytes); err != nil {
		t.Fatalf("write identity: %v", err)
	}

	tlsServer := tls.Server(clientConn, facts.Server)
	if err := tlsServer.HandshakeContext(connCtx); err != nil {
		t.Fatalf("remote tls handshake: %v", err)
	}

	pingPkt := packet.MustNew("kdeconnect.ping", struct{}{})
	pingBytes, err := pingPkt.Encode()
	if err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	if _, err := tlsServer.Write(pingBytes); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	deadline := time.After(time.Second)
	for repo.count() != 1 {
		select {
		case <-deadline:
			t.Fatalf("ping packet never reached plugin repository")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	tlsServer.Close()
	cancelConn()
	<-done
}
