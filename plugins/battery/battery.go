// Package battery implements the kdeconnect.battery capability: report
// this machine's AC/battery state on request and cache the remote
// device's last-reported level for display in its tray submenu.
package battery

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
	"github.com/kdeconnect-go/kdeconnect/internal/plugin"
)

const (
	packetType        = "kdeconnect.battery"
	packetTypeRequest = "kdeconnect.battery.request"
)

type report struct {
	CurrentCharge  int  `json:"currentCharge"`
	IsCharging     bool `json:"isCharging"`
	ThresholdEvent int  `json:"thresholdEvent"`
}

// Reader abstracts the host's power-status query so tests don't depend
// on a real battery being present; production wiring supplies a
// platform-specific implementation.
type Reader func() (report, bool)

type Plugin struct {
	dev    devicemgr.DeviceHandle
	log    *logrus.Entry
	read   Reader
	mu     sync.Mutex
	remote *report
}

// New builds the per-device battery plugin instance. read supplies
// this machine's own power status; nil falls back to reporting "no
// battery present" (NoBattery, below).
func New(dev devicemgr.DeviceHandle, log *logrus.Entry, read Reader) plugin.Plugin {
	if read == nil {
		read = NoBattery
	}
	return &Plugin{dev: dev, log: log, read: read}
}

// NoBattery is the Reader used on hosts with no battery, matching the
// reference's decision to send nothing when ACLineStatus is unknown.
func NoBattery() (report, bool) { return report{}, false }

func (p *Plugin) Start(context.Context) error { return nil }

func (p *Plugin) Handle(_ context.Context, pkt packet.Packet) error {
	switch pkt.Type {
	case packetType:
		var r report
		if err := pkt.Into(&r); err != nil {
			return err
		}
		p.mu.Lock()
		p.remote = &r
		p.mu.Unlock()
		p.dev.UpdateTray()
	case packetTypeRequest:
		p.sendStatus()
	}
	return nil
}

func (p *Plugin) sendStatus() {
	r, ok := p.read()
	if !ok {
		return
	}
	p.dev.SendPacket(packet.FromPacket(packet.MustNew(packetType, r)))
}

func (p *Plugin) HandleEvent(eventbus.Event) {}

func (p *Plugin) TrayMenu(b *hostproxy.MenuBuilder) {
	p.mu.Lock()
	r := p.remote
	p.mu.Unlock()

	if r == nil {
		return
	}
	state := "discharging"
	if r.IsCharging {
		state = "charging"
	}
	b.AddDisabled(fmt.Sprintf("Battery: %d%% (%s)", r.CurrentCharge, state))
}

func (p *Plugin) Dispose() {}

// Descriptor is this plugin's registration entry. It builds each
// instance with a nil Reader, so NoBattery is used and this machine's
// own status is never sent.
var Descriptor = plugin.Descriptor{
	Name:                 "battery",
	IncomingCapabilities: []string{packetType, packetTypeRequest},
	OutgoingCapabilities: []string{packetType, packetTypeRequest},
	New: func(dh devicemgr.DeviceHandle, log *logrus.Entry) plugin.Plugin {
		return New(dh, log, nil)
	},
}
