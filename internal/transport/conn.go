package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/kdeconnect-go/kdeconnect/internal/packet"
)

// readResult carries one line (or the terminal error) from the
// dedicated reader goroutine to the connection's select loop. Go has
// no native "select over an async read", so the reader goroutine
// bridges a blocking bufio.Reader into a channel the loop can select
// against alongside the outbox.
type readResult struct {
	line []byte
	err  error
}

// readPlainLine reads the plaintext identity line one byte at a time,
// matching the reference's stream.read_u8() loop. A buffered reader
// would risk pulling the first bytes of the TLS handshake that follows
// into its internal buffer, silently dropping them since the TLS
// wrapper is built on the raw connection afterward.
func readPlainLine(conn net.Conn) ([]byte, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			return nil, err
		}
		if buf[0] == '\n' {
			return line, nil
		}
		line = append(line, buf[0])
	}
}

// handleConn implements states S0-S6: read the plaintext identity
// line, upgrade to TLS (this, the TCP-accepting side, becomes the TLS
// client — the protocol inverts the usual roles), register the device,
// then loop forwarding outbound packets and dispatching inbound ones
// until the connection drops.
func (e *Engine) handleConn(ctx context.Context, conn net.Conn) error {
	applyKeepalive(conn)
	defer conn.Close()

	addr := conn.RemoteAddr()

	line, err := readPlainLine(conn)
	if err != nil {
		return errors.Wrap(err, "read identity line")
	}

	idPkt, err := packet.Decode(line)
	if err != nil {
		return errors.Wrap(err, "decode identity packet")
	}
	if idPkt.Type != packet.TypeIdentity {
		return errors.Errorf("expected identity packet, got %q", idPkt.Type)
	}

	var remoteIdentity packet.Identity
	if err := idPkt.Into(&remoteIdentity); err != nil {
		return errors.Wrap(err, "decode identity body")
	}

	facts := e.ctx.TLSFactories()
	if facts == nil {
		return errors.New("tls factories not installed")
	}

	tlsConn := tls.Client(conn, facts.Client)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return errors.Wrap(err, "tls handshake")
	}

	e.log.WithFields(map[string]any{
		"device": remoteIdentity.DeviceID,
		"name":   remoteIdentity.DeviceName,
		"remote": addr.String(),
	}).Info("handshake successful")

	rw := bufio.NewReadWriter(bufio.NewReader(tlsConn), bufio.NewWriter(tlsConn))

	outbox := make(chan packet.WithPayload, OutboxCapacity)
	connID, dh := e.ctx.Devices.AddDevice(remoteIdentity.DeviceID, remoteIdentity.DeviceName, addr, outbox)

	payloadLimiter := newPayloadLimiter()

	lines := make(chan readResult)
	go func() {
		for {
			l, err := packet.ReadLine(rw.Reader)
			lines <- readResult{line: l, err: err}
			if err != nil {
				return
			}
		}
	}()

loop:
	for {
		select {
		case pkt, ok := <-outbox:
			if !ok {
				e.log.WithField("device", remoteIdentity.DeviceID).Info("device packet sender disconnected")
				break loop
			}
			if err := e.sendPacket(ctx, rw.Writer, pkt, payloadLimiter); err != nil {
				e.log.WithError(err).WithField("remote", addr.String()).Error("error sending packet")
				break loop
			}

		case r := <-lines:
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					e.log.Warn("connection closed (EOF)")
				} else {
					e.log.WithError(r.err).Error("failed to read from connection")
				}
				break loop
			}

			pkt, err := packet.Decode(r.line)
			if err != nil {
				e.log.WithError(err).Error("failed to parse packet")
				continue
			}

			if pkt.Type == packet.TypePair {
				pair := packet.NewPair(true)
				if err := e.writePacket(rw.Writer, pair); err != nil {
					e.log.WithError(err).Error("failed to acknowledge pairing request")
					break loop
				}
				e.log.Info("accepted pairing request")
				continue
			}

			dh.DispatchPacket(pkt)
		}

		if err := rw.Writer.Flush(); err != nil {
			e.log.WithError(err).Error("failed to flush stream")
			break loop
		}
	}

	time.Sleep(time.Second)
	e.ctx.Devices.RemoveDevice(remoteIdentity.DeviceID, connID)

	return nil
}

func (e *Engine) writePacket(w *bufio.Writer, pkt packet.Packet) error {
	b, err := pkt.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
