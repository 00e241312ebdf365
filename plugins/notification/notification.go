// Package notification implements the kdeconnect.notification
// capability: mirror the remote device's notifications on this
// machine's desktop, forwarding a cached icon when one is advertised,
// and tell the remote when the user dismisses the local toast.
package notification

import (
	"context"
	"crypto/md5"
	"encoding/hex"

	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/cache"
	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
	"github.com/kdeconnect-go/kdeconnect/internal/plugin"
)

const packetTypeRequest = "kdeconnect.notification.request"

type wireBody struct {
	ID          string `json:"id"`
	IsCancel    bool   `json:"isCancel"`
	IsClearable bool   `json:"isClearable"`
	AppName     string `json:"appName"`
	Time        string `json:"time"`
	PayloadHash string `json:"payloadHash,omitempty"`
	Ticker      string `json:"ticker,omitempty"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text,omitempty"`
}

func hash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

type Plugin struct {
	dev       devicemgr.DeviceHandle
	log       *logrus.Entry
	proxy     hostproxy.Proxy
	cache     *cache.Store
	groupHash string
}

// New builds the per-device notification-receive plugin instance.
// cache may be nil, in which case incoming icons are never shown.
func New(dev devicemgr.DeviceHandle, log *logrus.Entry, proxy hostproxy.Proxy, store *cache.Store) plugin.Plugin {
	if proxy == nil {
		proxy = hostproxy.Noop{}
	}
	return &Plugin{
		dev:       dev,
		log:       log,
		proxy:     proxy,
		cache:     store,
		groupHash: hash("receive_notifications:" + dev.DeviceID()),
	}
}

func (p *Plugin) Start(ctx context.Context) error {
	p.dev.SendPacket(packet.FromPacket(packet.MustNew(packetTypeRequest, map[string]bool{"request": true})))
	return nil
}

func (p *Plugin) Handle(ctx context.Context, pkt packet.Packet) error {
	var b wireBody
	if err := pkt.Into(&b); err != nil {
		return err
	}
	if b.IsCancel {
		p.proxy.DismissNotification(p.groupHash, hash(b.ID))
		return nil
	}
	return p.show(ctx, pkt, b)
}

func (p *Plugin) show(ctx context.Context, pkt packet.Packet, b wireBody) error {
	if b.Title == "" || b.Text == "" {
		return nil
	}

	iconPath := p.resolveIcon(ctx, pkt, b)

	dismissed := p.proxy.ShowNotification(hostproxy.Notification{
		Tag:         hash(b.ID),
		Group:       p.groupHash,
		Title:       b.Title,
		Text:        b.Text,
		Attribution: p.dev.DeviceName(),
		IconPath:    iconPath,
	})
	if dismissed != nil {
		go p.watchDismissal(b.ID, dismissed)
	}
	return nil
}

// resolveIcon fetches and caches the notification's icon if the packet
// advertises one, returning a local path or "" if unavailable.
func (p *Plugin) resolveIcon(ctx context.Context, pkt packet.Packet, b wireBody) string {
	if b.PayloadHash == "" || p.cache == nil {
		return ""
	}
	name := b.PayloadHash + ".png"

	if path, ok, err := p.cache.GetPath(name); err == nil && ok {
		return path
	}
	if pkt.PayloadSize == nil || pkt.PayloadTransferInfo == nil {
		return ""
	}
	data, err := p.dev.FetchPayload(ctx, pkt.PayloadTransferInfo.Port, uint64(*pkt.PayloadSize))
	if err != nil {
		p.log.WithError(err).Warn("fetch notification icon")
		return ""
	}
	if err := p.cache.Put(name, data); err != nil {
		p.log.WithError(err).Warn("cache notification icon")
		return ""
	}
	path, _, _ := p.cache.GetPath(name)
	return path
}

func (p *Plugin) watchDismissal(id string, dismissed <-chan struct{}) {
	<-dismissed
	p.dev.SendPacket(packet.FromPacket(packet.MustNew(packetTypeRequest, map[string]string{"cancel": id})))
}

func (p *Plugin) HandleEvent(eventbus.Event) {}

func (p *Plugin) TrayMenu(*hostproxy.MenuBuilder) {}

func (p *Plugin) Dispose() {}

// NewDescriptor builds this plugin's registration entry. cmd/kdeconnectd
// passes the shared notification proxy and payload cache, which the
// descriptor's factory closure captures, since neither is reachable from
// the factory's fixed (DeviceHandle, *logrus.Entry) signature alone.
func NewDescriptor(proxy hostproxy.Proxy, store *cache.Store) plugin.Descriptor {
	return plugin.Descriptor{
		Name:                 "notification",
		IncomingCapabilities: []string{"kdeconnect.notification"},
		OutgoingCapabilities: []string{packetTypeRequest, "kdeconnect.notification.reply"},
		New: func(dh devicemgr.DeviceHandle, log *logrus.Entry) plugin.Plugin {
			return New(dh, log, proxy, store)
		},
	}
}
