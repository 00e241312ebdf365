// Package share implements the kdeconnect.share.request capability:
// write shared text to the clipboard and open shared URLs with the
// host's default handler.
package share

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
	"github.com/kdeconnect-go/kdeconnect/internal/plugin"
)

const (
	packetTypeRequest       = "kdeconnect.share.request"
	packetTypeRequestUpdate = "kdeconnect.share.request.update"
)

type textBody struct {
	Text string `json:"text"`
}

type urlBody struct {
	URL string `json:"url"`
}

// ClipboardWriter abstracts replacing the host clipboard's text, shared
// with the clipboard plugin's Access interface in spirit but kept
// separate to avoid a cross-plugin dependency.
type ClipboardWriter func(text string) error

// URLOpener abstracts handing a URL to the host's default handler.
type URLOpener func(url string) error

type Plugin struct {
	dev       devicemgr.DeviceHandle
	log       *logrus.Entry
	writeClip ClipboardWriter
	openURL   URLOpener
}

// New builds the per-device share plugin instance. Either dependency
// may be nil, in which case that half of the capability becomes a
// logged no-op.
func New(dev devicemgr.DeviceHandle, log *logrus.Entry, writeClip ClipboardWriter, openURL URLOpener) plugin.Plugin {
	return &Plugin{dev: dev, log: log, writeClip: writeClip, openURL: openURL}
}

func (p *Plugin) Start(context.Context) error { return nil }

func (p *Plugin) Handle(_ context.Context, pkt packet.Packet) error {
	switch pkt.Type {
	case packetTypeRequest:
		return p.handleRequest(pkt)
	case packetTypeRequestUpdate:
		// Progress update for an in-flight multi-file share; this plugin
		// only implements the single text/url case from the reference.
	}
	return nil
}

// handleRequest decodes the untagged {text} | {url} body by probing for
// the field that's present, matching the reference's untagged enum.
func (p *Plugin) handleRequest(pkt packet.Packet) error {
	var probe map[string]json.RawMessage
	if err := pkt.Into(&probe); err != nil {
		return err
	}

	if _, ok := probe["text"]; ok {
		var b textBody
		if err := pkt.Into(&b); err != nil {
			return err
		}
		p.log.WithField("text", b.Text).Info("received shared text")
		if p.writeClip != nil {
			return p.writeClip(b.Text)
		}
		return nil
	}

	if _, ok := probe["url"]; ok {
		var b urlBody
		if err := pkt.Into(&b); err != nil {
			return err
		}
		p.log.WithField("url", b.URL).Info("received shared url")
		if p.openURL != nil {
			return p.openURL(b.URL)
		}
		return nil
	}

	return nil
}

func (p *Plugin) HandleEvent(eventbus.Event) {}

func (p *Plugin) TrayMenu(*hostproxy.MenuBuilder) {}

func (p *Plugin) Dispose() {}

// NewDescriptor builds this plugin's registration entry around
// writeClip and openURL; either may be nil, as New describes.
func NewDescriptor(writeClip ClipboardWriter, openURL URLOpener) plugin.Descriptor {
	return plugin.Descriptor{
		Name:                 "share",
		IncomingCapabilities: []string{packetTypeRequest, packetTypeRequestUpdate},
		OutgoingCapabilities: []string{packetTypeRequest, packetTypeRequestUpdate},
		New: func(dh devicemgr.DeviceHandle, log *logrus.Entry) plugin.Plugin {
			return New(dh, log, writeClip, openURL)
		},
	}
}
