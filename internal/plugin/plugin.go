// Package plugin defines the contract every capability plugin
// implements and the per-device repository that dispatches packets and
// events to them.
package plugin

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
)

// Plugin is the contract every capability implements. A plugin is
// constructed fresh per device by a Factory and lives for the
// lifetime of that device's connection.
type Plugin interface {
	// Start runs any setup that needs the device handle (e.g.
	// announcing current state). Called once, on a background goroutine
	// started when the repository is built; it is not synchronized with
	// Handle, which may run before Start returns.
	Start(ctx context.Context) error
	// Handle processes one packet whose type this plugin claims via
	// IncomingCapabilities. Errors are logged by the repository, not
	// propagated to the transport.
	Handle(ctx context.Context, pkt packet.Packet) error
	// HandleEvent reacts to a platform event (clipboard, power, media,
	// hotkey, tray click). Plugins that don't care about events ignore
	// the call.
	HandleEvent(ev eventbus.Event)
	// TrayMenu appends this plugin's entries to the device's tray
	// submenu, in registration order.
	TrayMenu(b *hostproxy.MenuBuilder)
	// Dispose releases any resources held for the device (timers,
	// background goroutines). Called once, when the device disconnects.
	Dispose()
}

// HotkeyProvider is implemented by plugins that want the host to
// register one or more global hotkeys on their behalf. Not part of the
// Plugin interface proper since most plugins don't need one; the
// repository checks for it with a type assertion when building the set
// of hotkeys to hand to the host.
type HotkeyProvider interface {
	Hotkeys() []hostproxy.Hotkey
}

// Descriptor pairs a plugin's advertised capabilities with a factory
// that builds one instance bound to a specific device.
type Descriptor struct {
	Name                 string
	IncomingCapabilities []string
	OutgoingCapabilities []string
	New                  Factory
}

// Factory builds a Plugin instance bound to one device connection.
type Factory func(dh devicemgr.DeviceHandle, log *logrus.Entry) Plugin

// AllCapabilities returns the union of every registered descriptor's
// incoming and outgoing capabilities, used to build the identity
// packet this node advertises.
func AllCapabilities(descs []Descriptor) (incoming, outgoing []string) {
	for _, d := range descs {
		incoming = append(incoming, d.IncomingCapabilities...)
		outgoing = append(outgoing, d.OutgoingCapabilities...)
	}
	return incoming, outgoing
}
