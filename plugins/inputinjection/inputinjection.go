// Package inputinjection implements the kdeconnect.mousepad.request
// capability: translate remote mouse/keyboard events into host input
// injection calls.
package inputinjection

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
	"github.com/kdeconnect-go/kdeconnect/internal/plugin"
)

const packetTypeRequest = "kdeconnect.mousepad.request"

type wireBody struct {
	SingleClick bool     `json:"singleclick,omitempty"`
	DoubleClick bool     `json:"doubleclick,omitempty"`
	MiddleClick bool     `json:"middleclick,omitempty"`
	RightClick  bool     `json:"rightclick,omitempty"`
	SingleHold  bool     `json:"singlehold,omitempty"`
	Scroll      bool     `json:"scroll,omitempty"`
	Alt         bool     `json:"alt,omitempty"`
	Ctrl        bool     `json:"ctrl,omitempty"`
	Shift       bool     `json:"shift,omitempty"`
	Super       bool     `json:"super,omitempty"`
	DX          *float64 `json:"dx,omitempty"`
	DY          *float64 `json:"dy,omitempty"`
	SpecialKey  *uint32  `json:"specialKey,omitempty"`
	Key         string   `json:"key,omitempty"`
}

// Injector abstracts sending synthetic input events to the host OS.
// Production wiring supplies a platform-specific implementation; tests
// use a recording fake.
type Injector interface {
	MoveMouse(dx, dy float64)
	Scroll(dx, dy float64)
	Click(button Button)
	DoubleClick()
	TypeText(s string)
	KeyPress(special uint32, modifiers Modifiers)
}

// Button identifies which mouse button a click event applies to.
type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonMiddle
)

// Modifiers carries the modifier keys held during a key press.
type Modifiers struct {
	Alt, Ctrl, Shift, Super bool
}

// NoopInjector discards every injection call; the default on hosts
// without a wired platform backend.
type NoopInjector struct{}

func (NoopInjector) MoveMouse(float64, float64) {}
func (NoopInjector) Scroll(float64, float64)    {}
func (NoopInjector) Click(Button)               {}
func (NoopInjector) DoubleClick()               {}
func (NoopInjector) TypeText(string)            {}
func (NoopInjector) KeyPress(uint32, Modifiers) {}

type Plugin struct {
	dev devicemgr.DeviceHandle
	log *logrus.Entry
	inj Injector
}

// New builds the per-device input-injection plugin instance. inj
// defaults to NoopInjector if nil.
func New(dev devicemgr.DeviceHandle, log *logrus.Entry, inj Injector) plugin.Plugin {
	if inj == nil {
		inj = NoopInjector{}
	}
	return &Plugin{dev: dev, log: log, inj: inj}
}

func (p *Plugin) Start(context.Context) error { return nil }

func (p *Plugin) Handle(_ context.Context, pkt packet.Packet) error {
	if pkt.Type != packetTypeRequest {
		return nil
	}
	var b wireBody
	if err := pkt.Into(&b); err != nil {
		return err
	}

	// Smooth-move fast path: a bare relative move with no other fields,
	// matching the reference's dedicated branch for MOUSEEVENTF_MOVE.
	if b.DX != nil && b.DY != nil && !b.Scroll && !hasClickOrKey(b) {
		p.inj.MoveMouse(*b.DX, *b.DY)
		return nil
	}

	if b.DX != nil && b.DY != nil && b.Scroll {
		p.inj.Scroll(*b.DX, *b.DY)
		return nil
	}

	p.log.WithField("request", b).Debug("mousepad request")

	switch {
	case b.SingleClick:
		p.inj.Click(ButtonLeft)
	case b.RightClick:
		p.inj.Click(ButtonRight)
	case b.MiddleClick:
		p.inj.Click(ButtonMiddle)
	}
	if b.DoubleClick {
		p.inj.DoubleClick()
	}
	if b.Key != "" {
		p.inj.TypeText(b.Key)
	}
	if b.SpecialKey != nil {
		p.inj.KeyPress(*b.SpecialKey, Modifiers{Alt: b.Alt, Ctrl: b.Ctrl, Shift: b.Shift, Super: b.Super})
	}
	return nil
}

func hasClickOrKey(b wireBody) bool {
	return b.SingleClick || b.DoubleClick || b.MiddleClick || b.RightClick ||
		b.SingleHold || b.Key != "" || b.SpecialKey != nil
}

func (p *Plugin) HandleEvent(eventbus.Event) {}

func (p *Plugin) TrayMenu(*hostproxy.MenuBuilder) {}

func (p *Plugin) Dispose() {}

// NewDescriptor builds this plugin's registration entry around inj; a
// nil inj becomes NoopInjector.
func NewDescriptor(inj Injector) plugin.Descriptor {
	return plugin.Descriptor{
		Name:                 "inputinjection",
		IncomingCapabilities: []string{packetTypeRequest},
		OutgoingCapabilities: []string{},
		New: func(dh devicemgr.DeviceHandle, log *logrus.Entry) plugin.Plugin {
			return New(dh, log, inj)
		},
	}
}
