// Package volume implements the kdeconnect.systemvolume capability:
// advertise the host's audio sinks and apply remote volume/mute
// requests, pushing an update whenever the host reports a change.
package volume

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
	"github.com/kdeconnect-go/kdeconnect/internal/plugin"
)

const (
	packetType        = "kdeconnect.systemvolume"
	packetTypeRequest = "kdeconnect.systemvolume.request"
)

// Sink describes one host audio output.
type Sink struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Muted       bool   `json:"muted"`
	Volume      uint8  `json:"volume"`
	MaxVolume   uint8  `json:"maxVolume"`
	Enabled     bool   `json:"enabled"`
}

type sinkListBody struct {
	SinkList []Sink `json:"sinkList"`
}

type volumeUpdateBody struct {
	Name   string `json:"name"`
	Volume uint8  `json:"volume"`
	Muted  bool   `json:"muted"`
}

type requestBody struct {
	RequestSinks *bool  `json:"requestSinks,omitempty"`
	Name         string `json:"name,omitempty"`
	Volume       *uint8 `json:"volume,omitempty"`
	Muted        *bool  `json:"muted,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

// Mixer abstracts the host's audio backend so tests don't depend on a
// real sound system. Notify delivers asynchronous host-side changes
// (sink list or volume changes); the returned function unsubscribes.
type Mixer interface {
	Sinks() ([]Sink, error)
	SetVolume(name string, volume uint8) error
	SetMuted(name string, muted bool) error
	Notify(onSinkListChanged func(), onVolumeChanged func(name string, volume uint8, muted bool)) (stop func())
}

// NoMixer reports no sinks and ignores every mutation; the default on
// hosts without a wired platform backend.
type NoMixer struct{}

func (NoMixer) Sinks() ([]Sink, error)        { return nil, nil }
func (NoMixer) SetVolume(string, uint8) error { return nil }
func (NoMixer) SetMuted(string, bool) error   { return nil }
func (NoMixer) Notify(func(), func(string, uint8, bool)) func() {
	return func() {}
}

type Plugin struct {
	dev   devicemgr.DeviceHandle
	log   *logrus.Entry
	mixer Mixer
	stop  func()
}

// New builds the per-device system-volume plugin instance. mixer
// defaults to NoMixer if nil.
func New(dev devicemgr.DeviceHandle, log *logrus.Entry, mixer Mixer) plugin.Plugin {
	if mixer == nil {
		mixer = NoMixer{}
	}
	return &Plugin{dev: dev, log: log, mixer: mixer}
}

func (p *Plugin) Start(context.Context) error {
	p.stop = p.mixer.Notify(
		func() {
			if err := p.sendSinkList(); err != nil {
				p.log.WithError(err).Warn("send sink list")
			}
		},
		func(name string, volume uint8, muted bool) {
			p.dev.SendPacket(packet.FromPacket(packet.MustNew(packetType, volumeUpdateBody{
				Name: name, Volume: volume, Muted: muted,
			})))
		},
	)
	return nil
}

func (p *Plugin) sendSinkList() error {
	sinks, err := p.mixer.Sinks()
	if err != nil {
		return err
	}
	p.dev.SendPacket(packet.FromPacket(packet.MustNew(packetType, sinkListBody{SinkList: sinks})))
	return nil
}

func (p *Plugin) Handle(_ context.Context, pkt packet.Packet) error {
	if pkt.Type != packetTypeRequest {
		return nil
	}
	var b requestBody
	if err := pkt.Into(&b); err != nil {
		return err
	}

	if b.RequestSinks != nil && *b.RequestSinks {
		return p.sendSinkList()
	}
	if b.Name == "" {
		return nil
	}
	if b.Volume != nil {
		if err := p.mixer.SetVolume(b.Name, *b.Volume); err != nil {
			p.log.WithError(err).WithField("sink", b.Name).Warn("set volume")
		}
	}
	if b.Muted != nil {
		if err := p.mixer.SetMuted(b.Name, *b.Muted); err != nil {
			p.log.WithError(err).WithField("sink", b.Name).Warn("set muted")
		}
	}
	return nil
}

func (p *Plugin) HandleEvent(eventbus.Event) {}

func (p *Plugin) TrayMenu(*hostproxy.MenuBuilder) {}

func (p *Plugin) Dispose() {
	if p.stop != nil {
		p.stop()
	}
}

// NewDescriptor builds this plugin's registration entry around mixer;
// a nil mixer becomes NoMixer.
func NewDescriptor(mixer Mixer) plugin.Descriptor {
	return plugin.Descriptor{
		Name:                 "volume",
		IncomingCapabilities: []string{packetTypeRequest},
		OutgoingCapabilities: []string{packetType},
		New: func(dh devicemgr.DeviceHandle, log *logrus.Entry) plugin.Plugin {
			return New(dh, log, mixer)
		},
	}
}
