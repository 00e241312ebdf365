// Package appctx holds the handful of shared, effectively-immutable
// objects every connection goroutine and plugin needs: the
// configuration, a handle to the device manager actor, the TLS
// factories, and the host proxy. Built once in main and passed around
// by pointer.
package appctx

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/kdeconnect-go/kdeconnect/internal/config"
	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/identity"
)

// Context bundles everything shared across the process. Config and
// Proxy are set at construction; Devices is assigned once by main right
// after the device manager actor is built (the actor needs this
// Context's PayloadDialer first); none of them changes after that. The
// TLS factories are installed slightly later
// (after the listening TCP port is known) through SetTLSFactories,
// guarded by a sync.Once exactly as the reference installs its
// TlsAcceptor/TlsConnector pair through a OnceCell.
type Context struct {
	Config  *config.Config
	Devices devicemgr.Handle
	Proxy   hostproxy.Proxy

	tlsOnce  sync.Once
	tlsFacts *identity.Factories
}

// New builds a Context from its already-initialized parts.
func New(cfg *config.Config, devices devicemgr.Handle, proxy hostproxy.Proxy) *Context {
	if proxy == nil {
		proxy = hostproxy.Noop{}
	}
	return &Context{Config: cfg, Devices: devices, Proxy: proxy}
}

// SetTLSFactories installs the TLS client/server configuration pair.
// Only the first call takes effect, matching the reference's
// OnceCell::set semantics (a second call is silently ignored rather
// than panicking, since both callers install the same pair built from
// the same certificate).
func (c *Context) SetTLSFactories(f *identity.Factories) {
	c.tlsOnce.Do(func() {
		c.tlsFacts = f
	})
}

// TLSFactories returns the installed factories, or nil if
// SetTLSFactories has not yet been called.
func (c *Context) TLSFactories() *identity.Factories {
	return c.tlsFacts
}

// TLSConnect dials host:port and performs a TLS client handshake using
// this node's client factory. Used by the device manager actor when
// fetching an out-of-band payload from a port a peer advertised.
func (c *Context) TLSConnect(ctx context.Context, host string, port uint16) (*tls.Conn, error) {
	if c.tlsFacts == nil {
		return nil, errors.New("tls factories not installed")
	}
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	tlsConn := tls.Client(raw, c.tlsFacts.Client)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, errors.Wrap(err, "tls handshake")
	}
	return tlsConn, nil
}

// PayloadDialer adapts TLSConnect to the devicemgr.Dialer shape the
// device manager actor uses to service MsgFetchPayload.
func (c *Context) PayloadDialer() func(ctx context.Context, addr net.Addr, port uint16) (net.Conn, error) {
	return func(ctx context.Context, addr net.Addr, port uint16) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			host = addr.String()
		}
		return c.TLSConnect(ctx, host, port)
	}
}
