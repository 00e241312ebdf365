// Package ping implements the kdeconnect.ping capability: log an
// incoming ping (no desktop notification is shown), and send one out
// when the user clicks the device's tray "Ping" entry.
package ping

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
	"github.com/kdeconnect-go/kdeconnect/internal/plugin"
)

const packetType = "kdeconnect.ping"

type body struct {
	Message string `json:"message,omitempty"`
}

type Plugin struct {
	dev    devicemgr.DeviceHandle
	log    *logrus.Entry
	menuID string
}

// New builds the per-device ping plugin instance.
func New(dev devicemgr.DeviceHandle, log *logrus.Entry) plugin.Plugin {
	return &Plugin{dev: dev, log: log, menuID: fmt.Sprintf("%s:ping", dev.DeviceID())}
}

func (p *Plugin) Start(context.Context) error { return nil }

func (p *Plugin) Handle(_ context.Context, pkt packet.Packet) error {
	var b body
	if err := pkt.Into(&b); err != nil {
		return err
	}
	p.log.WithField("message", b.Message).WithField("from", p.dev.DeviceName()).Info("ping received")
	return nil
}

func (p *Plugin) HandleEvent(ev eventbus.Event) {
	if ev.Kind == eventbus.TrayMenuClicked && ev.MenuID == p.menuID {
		p.dev.SendPacket(packet.FromPacket(packet.MustNew(packetType, body{})))
	}
}

func (p *Plugin) TrayMenu(b *hostproxy.MenuBuilder) {
	b.Add("Ping", p.menuID)
}

func (p *Plugin) Dispose() {}

// Descriptor is this plugin's registration entry.
var Descriptor = plugin.Descriptor{
	Name:                 "ping",
	IncomingCapabilities: []string{packetType},
	OutgoingCapabilities: []string{packetType},
	New:                  func(dh devicemgr.DeviceHandle, log *logrus.Entry) plugin.Plugin { return New(dh, log) },
}
