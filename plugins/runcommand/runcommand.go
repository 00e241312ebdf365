// Package runcommand implements the kdeconnect.runcommand capability:
// advertise a configured set of named shell commands and execute one
// when the remote requests it. The reference implementation left
// execution as a TODO and always reports two hardcoded commands; this
// plugin executes a caller-supplied command table instead.
package runcommand

import (
	"context"
	"encoding/json"
	"os/exec"

	"github.com/sirupsen/logrus"

	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
	"github.com/kdeconnect-go/kdeconnect/internal/plugin"
)

const (
	packetType        = "kdeconnect.runcommand"
	packetTypeRequest = "kdeconnect.runcommand.request"
)

// Command is one entry in the advertised command list.
type Command struct {
	Name    string `json:"name"`
	Command string `json:"command"`
}

// requestBody mirrors the reference's untagged enum: exactly one of the
// three fields is present on any given request.
type requestBody struct {
	RequestCommandList bool   `json:"requestCommandList,omitempty"`
	Setup              bool   `json:"setup,omitempty"`
	Key                string `json:"key,omitempty"`
}

type listBody struct {
	CommandList string `json:"commandList"`
}

// Runner abstracts command execution so tests never actually spawn a
// process. Production wiring uses Exec.
type Runner func(command string) error

// Exec runs command through the platform shell, discarding output.
func Exec(command string) error {
	return exec.Command("sh", "-c", command).Run()
}

type Plugin struct {
	dev      devicemgr.DeviceHandle
	log      *logrus.Entry
	commands map[string]Command
	run      Runner
}

// New builds the per-device run-command plugin instance. commands may
// be nil (advertises an empty list); run defaults to Exec.
func New(dev devicemgr.DeviceHandle, log *logrus.Entry, commands map[string]Command, run Runner) plugin.Plugin {
	if run == nil {
		run = Exec
	}
	return &Plugin{dev: dev, log: log, commands: commands, run: run}
}

func (p *Plugin) Start(context.Context) error { return nil }

func (p *Plugin) Handle(_ context.Context, pkt packet.Packet) error {
	if pkt.Type != packetTypeRequest {
		return nil
	}
	var b requestBody
	if err := pkt.Into(&b); err != nil {
		return err
	}
	switch {
	case b.RequestCommandList, b.Setup:
		return p.sendCommandList()
	case b.Key != "":
		return p.runCommand(b.Key)
	}
	return nil
}

func (p *Plugin) sendCommandList() error {
	commands := p.commands
	if commands == nil {
		commands = map[string]Command{}
	}
	raw, err := json.Marshal(commands)
	if err != nil {
		return err
	}
	p.dev.SendPacket(packet.FromPacket(packet.MustNew(packetType, listBody{CommandList: string(raw)})))
	return nil
}

func (p *Plugin) runCommand(key string) error {
	cmd, ok := p.commands[key]
	if !ok {
		p.log.WithField("key", key).Warn("run command: unknown key")
		return nil
	}
	p.log.WithField("key", key).Info("running command")
	if err := p.run(cmd.Command); err != nil {
		p.log.WithError(err).WithField("key", key).Warn("run command failed")
	}
	return nil
}

func (p *Plugin) HandleEvent(eventbus.Event) {}

func (p *Plugin) TrayMenu(*hostproxy.MenuBuilder) {}

func (p *Plugin) Dispose() {}

// NewDescriptor builds this plugin's registration entry using the given
// command table, executed with the real shell.
func NewDescriptor(commands map[string]Command) plugin.Descriptor {
	return plugin.Descriptor{
		Name:                 "runcommand",
		IncomingCapabilities: []string{packetType, packetTypeRequest},
		OutgoingCapabilities: []string{packetType, packetTypeRequest},
		New: func(dh devicemgr.DeviceHandle, log *logrus.Entry) plugin.Plugin {
			return New(dh, log, commands, nil)
		},
	}
}
