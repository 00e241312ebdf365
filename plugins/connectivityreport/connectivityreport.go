// Package connectivityreport implements the
// kdeconnect.connectivity_report capability: log the remote's cellular
// signal strengths and surface the strongest one in its tray submenu.
package connectivityreport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
	"github.com/kdeconnect-go/kdeconnect/internal/plugin"
)

const (
	packetType        = "kdeconnect.connectivity_report"
	packetTypeRequest = "kdeconnect.connectivity_report.request"
)

type signalStrength struct {
	NetworkType    string `json:"networkType"`
	SignalStrength uint8  `json:"signalStrength"`
}

type wireBody struct {
	SignalStrengths map[string]signalStrength `json:"signalStrengths"`
}

type Plugin struct {
	dev devicemgr.DeviceHandle
	log *logrus.Entry

	mu        sync.Mutex
	strongest *signalStrength
}

func New(dev devicemgr.DeviceHandle, log *logrus.Entry) plugin.Plugin {
	return &Plugin{dev: dev, log: log}
}

func (p *Plugin) Start(context.Context) error { return nil }

func (p *Plugin) Handle(_ context.Context, pkt packet.Packet) error {
	switch pkt.Type {
	case packetType:
		var b wireBody
		if err := pkt.Into(&b); err != nil {
			return err
		}
		p.log.WithField("report", b.SignalStrengths).Info("connectivity report")
		p.storeStrongest(b.SignalStrengths)
		p.dev.UpdateTray()
	case packetTypeRequest:
		// This plugin never reports this machine's own connectivity.
	}
	return nil
}

func (p *Plugin) storeStrongest(strengths map[string]signalStrength) {
	if len(strengths) == 0 {
		return
	}
	keys := make([]string, 0, len(strengths))
	for k := range strengths {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := strengths[keys[0]]
	for _, k := range keys[1:] {
		if strengths[k].SignalStrength > best.SignalStrength {
			best = strengths[k]
		}
	}
	p.mu.Lock()
	p.strongest = &best
	p.mu.Unlock()
}

func (p *Plugin) HandleEvent(eventbus.Event) {}

func (p *Plugin) TrayMenu(b *hostproxy.MenuBuilder) {
	p.mu.Lock()
	s := p.strongest
	p.mu.Unlock()
	if s == nil {
		return
	}
	b.AddDisabled(fmt.Sprintf("Signal: %s %d%%", s.NetworkType, s.SignalStrength))
}

func (p *Plugin) Dispose() {}

// Descriptor is this plugin's registration entry.
var Descriptor = plugin.Descriptor{
	Name:                 "connectivity_report",
	IncomingCapabilities: []string{packetType, packetTypeRequest},
	OutgoingCapabilities: []string{packetTypeRequest},
	New:                  func(dh devicemgr.DeviceHandle, log *logrus.Entry) plugin.Plugin { return New(dh, log) },
}
