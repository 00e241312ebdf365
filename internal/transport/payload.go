package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/kdeconnect-go/kdeconnect/internal/packet"
)

// PayloadBurst bounds how many outbound payload servers a single
// device connection may have open or recently opened at once; beyond
// this a burst of payload-bearing packets (e.g. a flurry of shared
// files) degrades to one new server per PayloadMinInterval instead of
// unboundedly forking listeners.
const PayloadBurst = 4

// PayloadMinInterval paces new payload servers for one device once its
// burst allowance is spent.
const PayloadMinInterval = 100 * time.Millisecond

// newPayloadLimiter builds a fresh per-connection limiter, one per
// device since each handleConn call owns its own.
func newPayloadLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(PayloadMinInterval), PayloadBurst)
}

// PayloadMinPort is the first port an outbound payload server tries,
// one above the connection-engine range.
const PayloadMinPort = 1765

// PayloadServerTimeout bounds how long a payload server stays open
// waiting to be fetched, matching the reference's 60-second
// tokio::time::timeout.
const PayloadServerTimeout = 60 * time.Second

// openPayloadListener probes upward from PayloadMinPort for a free
// port, since net.Listen(":0") would pick any ephemeral port rather
// than the lowest one in the wire protocol's advertised range.
func openPayloadListener() (net.Listener, uint16, error) {
	for port := PayloadMinPort; port <= 65535; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
		if err == nil {
			return ln, uint16(port), nil
		}
	}
	return nil, 0, errors.New("no free port for payload server")
}

// servePayload accepts exactly one connection on ln, TLS-upgrades it as
// the server side, writes data to it in full, and exits — it never
// loops back to accept a second connection, so a payload is delivered to
// at most one fetcher. It gives up if nobody connects within
// PayloadServerTimeout.
func (e *Engine) servePayload(ctx context.Context, ln net.Listener, data *[]byte) {
	ctx, cancel := context.WithTimeout(ctx, PayloadServerTimeout)
	defer cancel()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	facts := e.ctx.TLSFactories()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() == nil {
			e.log.WithError(err).Error("error accepting payload connection")
		}
		return
	}
	ln.Close()
	defer conn.Close()

	e.log.WithField("remote", conn.RemoteAddr()).Info("payload connection")

	tlsConn := tls.Server(conn, facts.Server)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		e.log.WithError(err).Error("failed to accept payload tls connection")
		return
	}

	if _, err := tlsConn.Write(*data); err != nil {
		e.log.WithError(err).WithField("remote", conn.RemoteAddr()).Error("error writing payload")
	}
}

// sendPacket writes pkt to w, first standing up an ephemeral payload
// server if the packet carries one, exactly mirroring the reference's
// send_packet: the payload metadata (port) must be stamped into the
// packet before it is serialized. limiter paces how often this one
// device connection may open a new payload server.
func (e *Engine) sendPacket(ctx context.Context, w *bufio.Writer, pkt packet.WithPayload, limiter *rate.Limiter) error {
	if pkt.Payload != nil {
		if !limiter.Allow() {
			e.log.Warn("payload server rate limit exceeded, dropping payload")
		} else if ln, port, err := openPayloadListener(); err != nil {
			e.log.WithError(err).Error("failed to start payload server")
		} else {
			pkt.Packet.SetPayload(uint64(len(*pkt.Payload)), port)
			e.log.WithField("bytes", len(*pkt.Payload)).WithField("port", port).Info("serving payload")
			go e.servePayload(ctx, ln, pkt.Payload)
		}
	}

	b, err := pkt.Packet.Encode()
	if err != nil {
		return errors.Wrap(err, "encode packet")
	}
	if _, err := w.Write(b); err != nil {
		return errors.Wrap(err, "write to connection")
	}
	return w.Flush()
}
