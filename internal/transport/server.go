// Package transport implements the TCP connection engine: accepting
// plaintext-identity-then-TLS-upgraded connections on 1716-1764, the
// per-connection read/write loop, and on-demand out-of-band payload
// transfer on ephemeral ports starting at 1765.
package transport

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/appctx"
	"github.com/kdeconnect-go/kdeconnect/ratelimiter"
)

// MinPort and MaxPort bound the range the connection-engine listener
// probes for an open port, per the wire protocol's reserved range.
const (
	MinPort = 1716
	MaxPort = 1764
)

// OutboxCapacity is the per-device send queue depth, matching the
// reference's mpsc::channel(1): backpressure is meant to be felt
// immediately, not buffered away.
const OutboxCapacity = 1

// Engine accepts TCP connections and drives one handling goroutine per
// connection.
type Engine struct {
	ctx *appctx.Context
	log *logrus.Entry
	// acceptLimiter guards against a single remote address opening
	// connections faster than a legitimate phone ever would, reusing
	// the same per-key token-bucket the reference uses to throttle
	// handshake packets per source IP.
	acceptLimiter *ratelimiter.Ratelimiter
}

// New builds a connection engine bound to the shared application
// context.
func New(ctx *appctx.Context, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	limiter := &ratelimiter.Ratelimiter{}
	limiter.Init()
	return &Engine{ctx: ctx, log: log, acceptLimiter: limiter}
}

// Listen probes MinPort..MaxPort and binds the first free one,
// returning the listener and the bound port so it can be advertised in
// this node's identity packet.
func Listen() (net.Listener, int, error) {
	var lastErr error
	for port := MinPort; port <= MaxPort; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
		if err == nil {
			return ln, port, nil
		}
		lastErr = err
	}
	return nil, 0, errors.Wrap(lastErr, "no free port in connection engine range")
}

// Serve accepts connections from ln until ctx is canceled, handling
// each on its own goroutine.
func (e *Engine) Serve(ctx context.Context, ln net.Listener) error {
	e.log.Info("tcp server started")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "accept")
		}

		if !e.allowAccept(conn.RemoteAddr()) {
			e.log.WithField("remote", conn.RemoteAddr()).Warn("connection attempt rate limited")
			conn.Close()
			continue
		}

		go func() {
			if err := e.handleConn(ctx, conn); err != nil {
				e.log.WithError(err).WithField("remote", conn.RemoteAddr()).Error("connection handler exited")
			}
		}()
	}
}

// allowAccept reports whether addr's remote IP may open another
// connection right now. Addresses the acceptLimiter can't parse (e.g.
// a non-IP net.Addr, which real TCP connections never produce) are
// always allowed, since there is no key to rate-limit by.
func (e *Engine) allowAccept(addr net.Addr) bool {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return true
	}
	ip, ok := netip.AddrFromSlice(tcpAddr.IP)
	if !ok {
		return true
	}
	return e.acceptLimiter.Allow(ip.Unmap())
}

func applyKeepalive(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(10 * time.Second)
}
