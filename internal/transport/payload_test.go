package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/kdeconnect-go/kdeconnect/internal/appctx"
	"github.com/kdeconnect-go/kdeconnect/internal/config"
	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/identity"
)

func newTestEngine(t *testing.T) (*Engine, *identity.Factories) {
	t.Helper()

	certDER, keyDER, err := identity.GenerateCert("payload-test-node")
	if err != nil {
		t.Fatalf("generate cert: %v", err)
	}
	facts, err := identity.NewFactories(certDER, keyDER)
	if err != nil {
		t.Fatalf("factories: %v", err)
	}

	_, handle := devicemgr.New(
		func(devicemgr.DeviceHandle) devicemgr.PluginRepo { return nil },
		func(context.Context, net.Addr, uint16) (net.Conn, error) { return nil, nil },
		hostproxy.Noop{}, nil,
	)

	appCtx := appctx.New(&config.Config{UUID: "payload-test-node"}, handle, hostproxy.Noop{})
	appCtx.SetTLSFactories(facts)

	return New(appCtx, nil), facts
}

// TestServePayloadRoundTrip covers S4: a client dialing the payload
// server receives exactly the bytes it was handed.
func TestServePayloadRoundTrip(t *testing.T) {
	engine, facts := newTestEngine(t)

	ln, port, err := openPayloadListener()
	if err != nil {
		t.Fatalf("openPayloadListener: %v", err)
	}

	data := []byte("the quick brown fox jumps over the lazy dog")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		engine.servePayload(ctx, ln, &data)
	}()

	raw, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		t.Fatalf("dial payload server: %v", err)
	}
	tlsConn := tls.Client(raw, facts.Client)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		t.Fatalf("client tls handshake: %v", err)
	}

	got, err := io.ReadAll(tlsConn)
	tlsConn.Close()
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("payload mismatch: got %q, want %q", got, data)
	}

	<-serveDone
}

// TestServePayloadAcceptsExactlyOneConnection covers P4: the listener is
// torn down as soon as the first connection is accepted, so a second
// connection attempt to the same port is refused rather than served.
func TestServePayloadAcceptsExactlyOneConnection(t *testing.T) {
	engine, facts := newTestEngine(t)

	ln, port, err := openPayloadListener()
	if err != nil {
		t.Fatalf("openPayloadListener: %v", err)
	}

	data := []byte("payload")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		engine.servePayload(ctx, ln, &data)
	}()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port)))

	first, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	tlsFirst := tls.Client(first, facts.Client)
	if err := tlsFirst.HandshakeContext(ctx); err != nil {
		t.Fatalf("first client tls handshake: %v", err)
	}
	if _, err := io.ReadAll(tlsFirst); err != nil {
		t.Fatalf("read first payload: %v", err)
	}
	tlsFirst.Close()

	<-serveDone

	// The listener is closed once the first connection is accepted, so
	// this second attempt must fail rather than be served.
	if _, err := net.DialTimeout("tcp", addr, 200*time.Millisecond); err == nil {
		t.Fatalf("expected second connection to be refused, listener should be closed")
	}
}
