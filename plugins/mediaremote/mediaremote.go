// Package mediaremote implements the remote side of the kdeconnect.mpris
// capability: track the remote's active media players and their
// metadata, expose transport controls in the tray, and request an
// initial refresh on start.
package mediaremote

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
	packetType        = "kdeconnect.mpris"
	packetTypeRequest = "kdeconnect.mpris.request"
)

type playbackInfo struct {
	CanGoNext     bool `json:"canGoNext"`
	CanGoPrevious bool `json:"canGoPrevious"`
	CanPause      bool `json:"canPause"`
	CanPlay       bool `json:"canPlay"`
	IsPlaying     bool `json:"isPlaying"`
}

type mediaMetadata struct {
	Title      string `json:"title"`
	Album      string `json:"album"`
	Artist     string `json:"artist"`
	Player     string `json:"player"`
	NowPlaying string `json:"nowPlaying"`
}

type metadata struct {
	mediaMetadata
	playbackInfo
}

// incomingBody covers the reference's untagged enum: a player list
// update, an album-art transfer notice, or a metadata update. Only the
// fields relevant to whichever shape arrived are populated.
type incomingBody struct {
	PlayerList              []string `json:"playerList"`
	SupportAlbumArtPayload  *bool    `json:"supportAlbumArtPayload,omitempty"`
	TransferringAlbumArt    *bool    `json:"transferringAlbumArt,omitempty"`
	mediaMetadata
	playbackInfo
}

type requestBody struct {
	Player            string         `json:"player,omitempty"`
	RequestPlayerList *bool          `json:"requestPlayerList,omitempty"`
	RequestNowPlaying *bool          `json:"requestNowPlaying,omitempty"`
	Commands          map[string]any `json:"action,omitempty"`
}

type player struct {
	metadata *metadata
}

type Plugin struct {
	dev devicemgr.DeviceHandle
	log *logrus.Entry

	mu      sync.Mutex
	players map[string]*player
}

func New(dev devicemgr.DeviceHandle, log *logrus.Entry) plugin.Plugin {
	return &Plugin{dev: dev, log: log, players: map[string]*player{}}
}

func (p *Plugin) Start(context.Context) error {
	p.dev.SendPacket(packet.FromPacket(packet.MustNew(packetTypeRequest, requestBody{RequestNowPlaying: boolPtr(true)})))
	return nil
}

func boolPtr(b bool) *bool { return &b }

func (p *Plugin) Handle(_ context.Context, pkt packet.Packet) error {
	if pkt.Type != packetType {
		return nil
	}
	var b incomingBody
	if err := pkt.Into(&b); err != nil {
		return err
	}

	switch {
	case b.PlayerList != nil:
		p.setPlayerList(b.PlayerList)
		p.dev.UpdateTray()
	case b.mediaMetadata.Player != "":
		p.setMetadata(metadata{mediaMetadata: b.mediaMetadata, playbackInfo: b.playbackInfo})
		p.dev.UpdateTray()
	case b.TransferringAlbumArt != nil:
		// Album art payload transfer is not surfaced in the tray.
	}
	return nil
}

func (p *Plugin) setPlayerList(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[string]*player, len(ids))
	for _, id := range ids {
		if existing, ok := p.players[id]; ok {
			next[id] = existing
		} else {
			next[id] = &player{}
		}
	}
	p.players = next
}

func (p *Plugin) setMetadata(m metadata) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pl, ok := p.players[m.Player]; ok {
		pl.metadata = &m
	}
}

func (p *Plugin) HandleEvent(ev eventbus.Event) {
	if ev.Kind != eventbus.TrayMenuClicked {
		return
	}
	p.mu.Lock()
	ids := make([]string, 0, len(p.players))
	for id := range p.players {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		switch ev.MenuID {
		case menuID(p.dev.DeviceID(), id, "play"):
			p.sendAction(id, "PlayPause")
		case menuID(p.dev.DeviceID(), id, "previous"):
			p.sendAction(id, "Previous")
		case menuID(p.dev.DeviceID(), id, "next"):
			p.sendAction(id, "Next")
		}
	}
}

func (p *Plugin) sendAction(playerID, action string) {
	p.dev.SendPacket(packet.FromPacket(packet.MustNew(packetTypeRequest, requestBody{
		Player:   playerID,
		Commands: map[string]any{"action": action},
	})))
}

func menuID(deviceID, playerID, suffix string) string {
	return fmt.Sprintf("%s:mpris_remote:%s:%s", deviceID, playerID, suffix)
}

func (p *Plugin) TrayMenu(b *hostproxy.MenuBuilder) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.players))
	for id := range p.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		pl := p.players[id]
		if pl.metadata == nil {
			b.AddDisabled(fmt.Sprintf("%s - Unknown", id))
			continue
		}
		state := "Paused"
		if pl.metadata.IsPlaying {
			state = "Playing"
		}
		b.Add(fmt.Sprintf("%s - %s", id, state), menuID(p.dev.DeviceID(), id, "play"))
		if pl.metadata.NowPlaying != "" {
			b.AddDisabled(pl.metadata.NowPlaying)
		}
		if pl.metadata.CanGoPrevious {
			b.Add("Previous", menuID(p.dev.DeviceID(), id, "previous"))
		}
		if pl.metadata.CanGoNext {
			b.Add("Next", menuID(p.dev.DeviceID(), id, "next"))
		}
	}
}

func (p *Plugin) Dispose() {}

// Descriptor is this plugin's registration entry.
var Descriptor = plugin.Descriptor{
	Name:                 "mediaremote",
	IncomingCapabilities: []string{packetType},
	OutgoingCapabilities: []string{packetTypeRequest},
	New:                  func(dh devicemgr.DeviceHandle, log *logrus.Entry) plugin.Plugin { return New(dh, log) },
}
