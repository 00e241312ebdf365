// Package clipboard implements the kdeconnect.clipboard capability:
// push this machine's clipboard text to the remote on change, and
// apply clipboard text pushed from the remote.
package clipboard

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
	"github.com/kdeconnect-go/kdeconnect/internal/plugin"
)

const (
	packetType        = "kdeconnect.clipboard"
	packetTypeConnect = "kdeconnect.clipboard.connect"
)

type wireBody struct {
	Content string `json:"content"`
}

// Access abstracts the host clipboard so tests don't depend on a real
// desktop session. Read returns the current text and whether one is
// available; Write replaces the clipboard's text contents.
type Access interface {
	Read() (string, bool)
	Write(string) error
}

// NoAccess is used on hosts with no reachable clipboard backend.
type NoAccess struct{}

func (NoAccess) Read() (string, bool) { return "", false }
func (NoAccess) Write(string) error   { return nil }

type Plugin struct {
	dev    devicemgr.DeviceHandle
	log    *logrus.Entry
	access Access

	mu   sync.Mutex
	last string
}

// New builds the per-device clipboard plugin instance. access is nil-safe.
func New(dev devicemgr.DeviceHandle, log *logrus.Entry, access Access) plugin.Plugin {
	if access == nil {
		access = NoAccess{}
	}
	return &Plugin{dev: dev, log: log, access: access}
}

func (p *Plugin) Start(context.Context) error { return nil }

func (p *Plugin) Handle(_ context.Context, pkt packet.Packet) error {
	switch pkt.Type {
	case packetType:
		var b wireBody
		if err := pkt.Into(&b); err != nil {
			return err
		}
		p.mu.Lock()
		p.last = b.Content
		p.mu.Unlock()
		return p.access.Write(b.Content)
	case packetTypeConnect:
		// Sent once on pairing to seed the remote's clipboard state;
		// nothing to do on the receiving end.
	}
	return nil
}

func (p *Plugin) HandleEvent(ev eventbus.Event) {
	if ev.Kind != eventbus.ClipboardUpdated {
		return
	}
	text, ok := p.access.Read()
	if !ok {
		return
	}
	p.mu.Lock()
	unchanged := text == p.last
	p.last = text
	p.mu.Unlock()
	if unchanged {
		return
	}
	p.dev.SendPacket(packet.FromPacket(packet.MustNew(packetType, wireBody{Content: text})))
}

func (p *Plugin) TrayMenu(*hostproxy.MenuBuilder) {}

func (p *Plugin) Dispose() {}

// Descriptor is this plugin's registration entry. It builds each
// instance with nil access, so NoAccess is used and the host clipboard
// is never read or written.
var Descriptor = plugin.Descriptor{
	Name:                 "clipboard",
	IncomingCapabilities: []string{packetType, packetTypeConnect},
	OutgoingCapabilities: []string{packetType, packetTypeConnect},
	New: func(dh devicemgr.DeviceHandle, log *logrus.Entry) plugin.Plugin {
		return New(dh, log, nil)
	},
}
