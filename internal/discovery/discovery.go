// Package discovery implements UDP broadcast presence announcements on
// port 1716: every 5 seconds, while no device is connected, this node
// broadcasts its identity packet so peers on the same network segment
// can find it and open a TCP connection.
package discovery

import (
	"context"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/kdeconnect-go/kdeconnect/internal/packet"
)

// Port is the well-known KDE Connect discovery port.
const Port = 1716

// Interval is how often an idle node re-broadcasts its identity.
const Interval = 5 * time.Second

// ActiveDeviceCounter reports how many devices are currently connected;
// the broadcaster stays silent while this is non-zero, matching the
// reference's "advertise our presence ... if we have no active
// devices".
type ActiveDeviceCounter interface {
	ActiveDeviceCount() int64
}

// Broadcaster periodically announces this node's identity on the LAN.
type Broadcaster struct {
	conn     *net.UDPConn
	dest     *net.UDPAddr
	devices  ActiveDeviceCounter
	identity func() packet.Packet
	log      *logrus.Entry
	// limiter guards against re-broadcasting faster than Interval even
	// if Run's ticker were ever driven by a misbehaving clock; it is
	// not load-bearing under the real ticker, which already paces to
	// Interval on its own.
	limiter *rate.Limiter
}

// listenConfig sets SO_BROADCAST and SO_REUSEADDR on the raw socket
// before bind, mirroring the reference's use of socket2 for the same
// two options.
func listenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); sockErr != nil {
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
}

// New binds the broadcast UDP socket. identity is called fresh on
// every tick so the packet's timestamp and advertised TCP port stay
// current.
func New(ctx context.Context, devices ActiveDeviceCounter, identity func() packet.Packet, log *logrus.Entry) (*Broadcaster, error) {
	lc := listenConfig()
	pc, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort("", strconv.Itoa(Port)))
	if err != nil {
		return nil, errors.Wrap(err, "bind udp broadcast socket")
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, errors.New("unexpected packet conn type")
	}

	dest := &net.UDPAddr{IP: net.IPv4bcast, Port: Port}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	limiter := rate.NewLimiter(rate.Every(Interval), 1)

	return &Broadcaster{conn: conn, dest: dest, devices: devices, identity: identity, log: log, limiter: limiter}, nil
}

// Run broadcasts the identity packet every Interval while no device is
// connected, until ctx is canceled.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.log.Info("discovery broadcaster started")
	defer b.conn.Close()

	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		if b.devices.ActiveDeviceCount() == 0 && b.limiter.Allow() {
			if err := b.broadcastOnce(); err != nil {
				b.log.WithError(err).Warn("failed to broadcast identity")
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Broadcaster) broadcastOnce() error {
	id := b.identity()
	id.ResetTS()

	buf, err := id.Encode()
	if err != nil {
		return errors.Wrap(err, "encode identity packet")
	}

	_, err = b.conn.WriteTo(buf, b.dest)
	return errors.Wrap(err, "write broadcast datagram")
}
