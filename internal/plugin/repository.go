package plugin

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
)

type registered struct {
	name string
	caps map[string]struct{}
	p    Plugin
}

// Repository is the per-device set of live plugin instances. It is
// built once, at device-record creation, and scanned linearly on every
// dispatch. Registration order is preserved and determines both
// first-match-wins packet routing and tray menu ordering.
type Repository struct {
	dev     devicemgr.DeviceHandle
	plugins []registered
	log     *logrus.Entry
}

// NewRepository builds a Repository by instantiating one Plugin per
// descriptor for dev, in the given order, and then starting them one
// after another on a single background goroutine (start failures are
// logged, never fatal).
func NewRepository(ctx context.Context, dev devicemgr.DeviceHandle, descs []Descriptor, log *logrus.Entry) *Repository {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Repository{dev: dev, log: log}

	for _, d := range descs {
		caps := make(map[string]struct{}, len(d.IncomingCapabilities))
		for _, c := range d.IncomingCapabilities {
			caps[c] = struct{}{}
		}
		p := d.New(dev, log.WithField("plugin", d.Name))
		r.plugins = append(r.plugins, registered{name: d.Name, caps: caps, p: p})
	}

	plugins := make([]Plugin, len(r.plugins))
	for i, reg := range r.plugins {
		plugins[i] = reg.p
	}
	names := make([]string, len(r.plugins))
	for i, reg := range r.plugins {
		names[i] = reg.name
	}
	go func() {
		for i, p := range plugins {
			if err := p.Start(ctx); err != nil {
				log.WithError(err).WithField("plugin", names[i]).Error("failed to start plugin")
			}
		}
	}()

	return r
}

// HandlePacket routes pkt to the first registered plugin whose incoming
// capabilities contain pkt.Type. Unrouted packet types are logged and
// dropped; this mirrors the reference's own behavior at the connection
// layer, which logs `handle_packet` errors without closing the
// connection.
func (r *Repository) HandlePacket(ctx context.Context, pkt packet.Packet) {
	r.log.WithField("type", pkt.Type).Debug("incoming packet")

	for _, reg := range r.plugins {
		if _, ok := reg.caps[pkt.Type]; !ok {
			continue
		}
		if err := reg.p.Handle(ctx, pkt); err != nil {
			r.log.WithError(err).WithField("plugin", reg.name).Error("plugin failed to handle packet")
		}
		return
	}

	r.log.WithField("type", pkt.Type).Warn("no plugin registered for packet type")
}

// HandleEvent fans a platform event out to every registered plugin, each
// on its own goroutine so one plugin blocking on HandleEvent (e.g.
// waiting on a notification-dismissal channel) never delays delivery to
// the others. Nothing waits for completion; a panicking plugin is
// recovered and logged rather than taking down the process.
func (r *Repository) HandleEvent(ev eventbus.Event) {
	for _, reg := range r.plugins {
		reg := reg
		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.log.WithField("plugin", reg.name).Errorf("panic in HandleEvent: %v", rec)
				}
			}()
			reg.p.HandleEvent(ev)
		}()
	}
}

// TrayMenu builds this device's tray submenu by asking every plugin, in
// registration order, to append its entries after a disabled header
// line identifying the device.
func (r *Repository) TrayMenu() hostproxy.MenuBuilder {
	var b hostproxy.MenuBuilder
	b.AddDisabled("Device ID:  " + r.dev.DeviceID())
	for _, reg := range r.plugins {
		reg.p.TrayMenu(&b)
	}
	return b
}

// Hotkeys collects the global hotkeys every registered plugin that
// implements HotkeyProvider wants the host to register, in
// registration order. No built-in plugin implements it yet; this
// exists so a future one can without changing the Plugin contract.
func (r *Repository) Hotkeys() []hostproxy.Hotkey {
	var keys []hostproxy.Hotkey
	for _, reg := range r.plugins {
		if hp, ok := reg.p.(HotkeyProvider); ok {
			keys = append(keys, hp.Hotkeys()...)
		}
	}
	return keys
}

// Dispose releases every plugin's per-device resources.
func (r *Repository) Dispose() {
	for _, reg := range r.plugins {
		reg.p.Dispose()
	}
}
