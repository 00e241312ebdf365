// Package devicemgr implements the device manager actor: a single
// goroutine owning the set of currently-connected devices, driven by a
// bounded message channel so that no lock is ever needed to touch the
// device map.
package devicemgr

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
)

// ConnID fences a reconnect race: RemoveDevice is a no-op unless the
// conn id it carries still matches the device's current connection.
type ConnID uint64

var nextConnID atomic.Uint64

// NewConnID allocates the next connection id. Safe for concurrent use.
func NewConnID() ConnID {
	return ConnID(nextConnID.Add(1))
}

// Kind discriminates the closed set of messages the actor understands.
// Go has no tagged union, so Message carries one field per kind instead
// of one variant per kind.
type Kind int

const (
	MsgAddDevice Kind = iota
	MsgRemoveDevice
	MsgSendPacket
	MsgEvent
	MsgUpdateTray
	MsgPacket
	MsgFetchPayload
)

// FetchResult is the reply to a MsgFetchPayload request.
type FetchResult struct {
	Data []byte
	Err  error
}

// Message is the actor's single inbox type. Only the fields relevant to
// Kind are populated by the sender; the actor never reads a field
// outside of the case that owns it.
type Message struct {
	Kind Kind

	DeviceID   string
	DeviceName string
	RemoteAddr net.Addr
	ConnID     ConnID
	Tx         chan<- packet.WithPayload
	ReplyAdd   chan<- DeviceHandle

	Packet packet.WithPayload

	Event eventbus.Event

	Port         uint16
	Size         uint64
	ReplyPayload chan<- FetchResult
}

// PluginRepo is the minimal surface the actor needs from a device's
// plugin repository. The concrete type lives in package plugin, which
// depends on devicemgr for DeviceHandle; devicemgr depends on nothing
// from plugin to avoid an import cycle, and relies on Go's structural
// interfaces instead.
type PluginRepo interface {
	HandlePacket(ctx context.Context, pkt packet.Packet)
	HandleEvent(ev eventbus.Event)
	TrayMenu() hostproxy.MenuBuilder
	Dispose()
}

// RepoFactory builds a device's plugin repository once its DeviceHandle
// exists, mirroring the reference's `PluginRepository::new(dh, ctx)`.
type RepoFactory func(DeviceHandle) PluginRepo

// Dialer opens a mutually-authenticated TLS connection to a remote
// device, used only to service MsgFetchPayload. Injected rather than
// imported directly so devicemgr does not need to know about appctx or
// crypto/tls configuration.
type Dialer func(ctx context.Context, addr net.Addr, port uint16) (net.Conn, error)

type device struct {
	name       string
	remoteAddr net.Addr
	connID     ConnID
	tx         chan<- packet.WithPayload
	repo       PluginRepo
}

// Handle is the small, by-value handle other goroutines hold to talk to
// the actor: a channel sender plus a shared read-only view of the
// active device count.
type Handle struct {
	sender      chan<- Message
	activeCount *atomic.Int64
}

// ActiveDeviceCount returns the current number of connected devices.
func (h Handle) ActiveDeviceCount() int64 {
	return h.activeCount.Load()
}

// Send delivers a message to the actor, blocking if its inbox is full.
func (h Handle) Send(msg Message) {
	h.sender <- msg
}

// AddDevice registers (or re-registers) a connected device and returns
// the connection id assigned plus a DeviceHandle bound to it.
func (h Handle) AddDevice(id, name string, addr net.Addr, tx chan<- packet.WithPayload) (ConnID, DeviceHandle) {
	connID := NewConnID()
	reply := make(chan DeviceHandle, 1)
	h.Send(Message{
		Kind:       MsgAddDevice,
		DeviceID:   id,
		DeviceName: name,
		RemoteAddr: addr,
		ConnID:     connID,
		Tx:         tx,
		ReplyAdd:   reply,
	})
	return connID, <-reply
}

// RemoveDevice unregisters a device, but only if connID still matches
// its current connection (stale reconnect races are ignored).
func (h Handle) RemoveDevice(id string, connID ConnID) {
	h.Send(Message{Kind: MsgRemoveDevice, DeviceID: id, ConnID: connID})
}

// BroadcastEvent fans a system event out to every connected device's
// plugin repository.
func (h Handle) BroadcastEvent(ev eventbus.Event) {
	h.Send(Message{Kind: MsgEvent, Event: ev})
}

// UpdateTray requests the actor recompute and push the aggregated tray
// menu through the host proxy.
func (h Handle) UpdateTray() {
	h.Send(Message{Kind: MsgUpdateTray})
}

func (h Handle) sendPacket(deviceID string, pkt packet.WithPayload) {
	h.Send(Message{Kind: MsgSendPacket, DeviceID: deviceID, Packet: pkt})
}

func (h Handle) broadcastPacket(pkt packet.WithPayload) {
	h.Send(Message{Kind: MsgSendPacket, Packet: pkt})
}

func (h Handle) dispatchPacket(deviceID string, pkt packet.Packet) {
	h.Send(Message{Kind: MsgPacket, DeviceID: deviceID, Packet: packet.FromPacket(pkt)})
}

func (h Handle) fetchPayload(ctx context.Context, deviceID string, port uint16, size uint64) ([]byte, error) {
	reply := make(chan FetchResult, 1)
	h.Send(Message{Kind: MsgFetchPayload, DeviceID: deviceID, Port: port, Size: size, ReplyPayload: reply})
	select {
	case r := <-reply:
		return r.Data, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Inbox is the actor's buffered message channel capacity, matching the
// reference's mpsc::channel(100).
const Inbox = 100

// Actor owns the device map. Run must be called from a single,
// dedicated goroutine; every other goroutine talks to it only through
// its Handle.
type Actor struct {
	receiver    chan Message
	devices     map[string]*device
	activeCount *atomic.Int64
	handle      Handle
	repoFactory RepoFactory
	dial        Dialer
	proxy       hostproxy.Proxy
	log         *logrus.Entry
}

// New builds the actor and its handle. Call Run in its own goroutine to
// start processing.
func New(repoFactory RepoFactory, dial Dialer, proxy hostproxy.Proxy, log *logrus.Entry) (*Actor, Handle) {
	var count atomic.Int64
	ch := make(chan Message, Inbox)
	handle := Handle{sender: ch, activeCount: &count}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	a := &Actor{
		receiver:    ch,
		devices:     make(map[string]*device),
		activeCount: &count,
		handle:      handle,
		repoFactory: repoFactory,
		dial:        dial,
		proxy:       proxy,
		log:         log,
	}
	return a, handle
}

// Handle returns the actor's handle, for components constructed before
// the actor's goroutine is started.
func (a *Actor) Handle() Handle {
	return a.handle
}

// Run processes messages until ctx is canceled or the inbox is closed.
func (a *Actor) Run(ctx context.Context) {
	for {
		select {
		case msg, ok := <-a.receiver:
			if !ok {
				return
			}
			a.handleMessage(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Actor) handleMessage(ctx context.Context, msg Message) {
	trayUpdated := false

	switch msg.Kind {
	case MsgAddDevice:
		dh := DeviceHandle{deviceID: msg.DeviceID, deviceName: msg.DeviceName, manager: a.handle}
		a.log.WithField("device", msg.DeviceID).Info("adding device")

		if d, ok := a.devices[msg.DeviceID]; ok {
			d.remoteAddr = msg.RemoteAddr
			d.connID = msg.ConnID
			d.tx = msg.Tx
		} else {
			a.devices[msg.DeviceID] = &device{
				name:       msg.DeviceName,
				remoteAddr: msg.RemoteAddr,
				connID:     msg.ConnID,
				tx:         msg.Tx,
				repo:       a.repoFactory(dh),
			}
		}

		if msg.ReplyAdd != nil {
			msg.ReplyAdd <- dh
		}
		a.updateActiveCount()
		trayUpdated = true

	case MsgRemoveDevice:
		if d, ok := a.devices[msg.DeviceID]; ok && d.connID == msg.ConnID {
			a.log.WithField("device", msg.DeviceID).Info("removed device")
			d.repo.Dispose()
			delete(a.devices, msg.DeviceID)
			a.updateActiveCount()
		}
		trayUpdated = true

	case MsgSendPacket:
		if msg.DeviceID != "" {
			if d, ok := a.devices[msg.DeviceID]; ok {
				a.deliver(ctx, d, msg.Packet)
			}
		} else {
			for _, d := range a.devices {
				a.deliver(ctx, d, msg.Packet)
			}
		}

	case MsgEvent:
		for _, d := range a.devices {
			repo := d.repo
			ev := msg.Event
			go repo.HandleEvent(ev)
		}

	case MsgPacket:
		d, ok := a.devices[msg.DeviceID]
		if !ok {
			a.log.WithField("device", msg.DeviceID).Warn("packet from unknown device")
			return
		}
		repo := d.repo
		pkt := msg.Packet.Packet
		go repo.HandlePacket(ctx, pkt)

	case MsgFetchPayload:
		a.handleFetchPayload(ctx, msg)

	case MsgUpdateTray:
		trayUpdated = true
	}

	if trayUpdated {
		a.updateTray()
	}
}

// deliver hands pkt to d's outbox, blocking until the connection's write
// loop drains it (or reconnection replaces the channel and this send is
// abandoned via shutdown). A full outbox is meant to exert backpressure
// on a stalled peer, not to shed packets, so this never selects on
// default; it's run in its own goroutine so a stalled device can't stall
// the actor itself or delivery to any other device.
func (a *Actor) deliver(ctx context.Context, d *device, pkt packet.WithPayload) {
	tx := d.tx
	go func() {
		select {
		case tx <- pkt:
		case <-ctx.Done():
		}
	}()
}

func (a *Actor) handleFetchPayload(ctx context.Context, msg Message) {
	d, ok := a.devices[msg.DeviceID]
	if !ok {
		msg.ReplyPayload <- FetchResult{Err: errors.Errorf("device %s not found", msg.DeviceID)}
		return
	}
	addr := d.remoteAddr
	dial := a.dial

	go func() {
		conn, err := dial(ctx, addr, msg.Port)
		if err != nil {
			msg.ReplyPayload <- FetchResult{Err: errors.Wrap(err, "connect to payload server")}
			return
		}
		defer conn.Close()

		buf := make([]byte, 0, msg.Size)
		rbuf := make([]byte, 32*1024)
		for uint64(len(buf)) < msg.Size {
			n, err := conn.Read(rbuf)
			if n > 0 {
				buf = append(buf, rbuf[:n]...)
			}
			if err != nil {
				break
			}
		}

		if uint64(len(buf)) != msg.Size {
			msg.ReplyPayload <- FetchResult{Err: errors.Errorf("payload size mismatch: %d (fetched) != %d (requested)", len(buf), msg.Size)}
			return
		}
		msg.ReplyPayload <- FetchResult{Data: buf}
	}()
}

func (a *Actor) updateActiveCount() {
	a.activeCount.Store(int64(len(a.devices)))
}

func (a *Actor) updateTray() {
	menu := hostproxy.Menu{DeviceSubmenus: make(map[string]hostproxy.MenuBuilder)}
	for _, d := range a.devices {
		menu.DeviceSubmenus[d.name] = d.repo.TrayMenu()
	}
	a.proxy.SetTrayMenu(menu)
	if len(a.devices) > 0 {
		a.proxy.SetTrayIcon(hostproxy.IconPresent)
	} else {
		a.proxy.SetTrayIcon(hostproxy.IconAbsent)
	}
}
