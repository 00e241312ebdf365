package devicemgr

import (
	"context"

	"github.com/kdeconnect-go/kdeconnect/internal/packet"
)

// DeviceHandle is the capability a connection goroutine and its
// plugins hold to talk about one specific device: send it a packet,
// dispatch one it just received, or fetch an out-of-band payload.
// Copied by value; cheap, since it only carries two strings and a
// Handle.
type DeviceHandle struct {
	deviceID   string
	deviceName string
	manager    Handle
}

func (dh DeviceHandle) DeviceID() string   { return dh.deviceID }
func (dh DeviceHandle) DeviceName() string { return dh.deviceName }

// SendPacket queues a packet for delivery to this device.
func (dh DeviceHandle) SendPacket(pkt packet.WithPayload) {
	dh.manager.sendPacket(dh.deviceID, pkt)
}

// Broadcast queues a packet for delivery to every connected device.
func (dh DeviceHandle) Broadcast(pkt packet.WithPayload) {
	dh.manager.broadcastPacket(pkt)
}

// DispatchPacket hands a packet just read off this device's connection
// to its plugin repository for capability-based routing.
func (dh DeviceHandle) DispatchPacket(pkt packet.Packet) {
	dh.manager.dispatchPacket(dh.deviceID, pkt)
}

// UpdateTray asks the actor to recompute and push the aggregated tray
// menu, used by plugins whose state changed in a way that should be
// reflected in the device's tray submenu.
func (dh DeviceHandle) UpdateTray() {
	dh.manager.UpdateTray()
}

// FetchPayload opens the out-of-band TLS connection this device
// advertised and reads exactly size bytes from it.
func (dh DeviceHandle) FetchPayload(ctx context.Context, port uint16, size uint64) ([]byte, error) {
	return dh.manager.fetchPayload(ctx, dh.deviceID, port, size)
}
