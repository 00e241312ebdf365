// Command kdeconnectd is the desktop companion daemon: it advertises
// this machine on the LAN, accepts connections from paired phones, and
// dispatches packets to the built-in capability plugins.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kdeconnect-go/kdeconnect/internal/appctx"
	"github.com/kdeconnect-go/kdeconnect/internal/cache"
	"github.com/kdeconnect-go/kdeconnect/internal/config"
	"github.com/kdeconnect-go/kdeconnect/internal/devicemgr"
	"github.com/kdeconnect-go/kdeconnect/internal/discovery"
	"github.com/kdeconnect-go/kdeconnect/internal/eventbus"
	"github.com/kdeconnect-go/kdeconnect/internal/hostproxy"
	"github.com/kdeconnect-go/kdeconnect/internal/identity"
	"github.com/kdeconnect-go/kdeconnect/internal/packet"
	"github.com/kdeconnect-go/kdeconnect/internal/plugin"
	"github.com/kdeconnect-go/kdeconnect/internal/transport"

	"github.com/kdeconnect-go/kdeconnect/plugins/battery"
	"github.com/kdeconnect-go/kdeconnect/plugins/clipboard"
	"github.com/kdeconnect-go/kdeconnect/plugins/connectivityreport"
	"github.com/kdeconnect-go/kdeconnect/plugins/inputinjection"
	"github.com/kdeconnect-go/kdeconnect/plugins/mediaremote"
	"github.com/kdeconnect-go/kdeconnect/plugins/notification"
	"github.com/kdeconnect-go/kdeconnect/plugins/ping"
	"github.com/kdeconnect-go/kdeconnect/plugins/runcommand"
	"github.com/kdeconnect-go/kdeconnect/plugins/share"
	"github.com/kdeconnect-go/kdeconnect/plugins/volume"
)

func main() {
	configPath := flag.String("config", "./config.json", "path to the persisted device identity")
	deviceName := flag.String("name", defaultDeviceName(), "device name advertised to peers")
	cacheDir := flag.String("cache-dir", "", "directory for the payload cache (default: OS temp dir)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	log := newLogger(*verbose)

	if err := run(*configPath, *deviceName, *cacheDir, log); err != nil {
		log.WithError(err).Fatal("kdeconnectd exited with error")
	}
}

func defaultDeviceName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "kdeconnect-go"
}

func newLogger(verbose bool) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(l)
}

func run(configPath, deviceName, cacheDir string, log *logrus.Entry) error {
	cfg, err := config.InitOrLoad(configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	factories, err := identity.NewFactories(cfg.TLSCert, cfg.TLSKey)
	if err != nil {
		return errors.Wrap(err, "build tls factories")
	}

	store, err := openCache(cacheDir)
	if err != nil {
		return errors.Wrap(err, "open payload cache")
	}

	proxy := hostproxy.Noop{}
	bus := eventbus.New()

	descriptors := buildDescriptors(store, proxy)
	inCaps, outCaps := plugin.AllCapabilities(descriptors)

	ln, tcpPort, err := transport.Listen()
	if err != nil {
		return errors.Wrap(err, "open tcp listener")
	}
	defer ln.Close()
	log.WithField("port", tcpPort).Info("tcp listener bound")

	appCtx := appctx.New(cfg, devicemgr.Handle{}, proxy)
	appCtx.SetTLSFactories(factories)

	repoFactory := func(dh devicemgr.DeviceHandle) devicemgr.PluginRepo {
		return plugin.NewRepository(context.Background(), dh, descriptors, log)
	}
	actor, handle := devicemgr.New(repoFactory, appCtx.PayloadDialer(), proxy, log.WithField("component", "devicemgr"))
	appCtx.Devices = handle

	port := uint16(tcpPort)
	identityPacket := func() packet.Packet {
		return packet.NewIdentity(cfg.UUID, deviceName, &port, inCaps, outCaps)
	}

	broadcaster, err := discovery.New(context.Background(), handle, identityPacket, log.WithField("component", "discovery"))
	if err != nil {
		return errors.Wrap(err, "open discovery socket")
	}

	engine := transport.New(appCtx, log.WithField("component", "transport"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		actor.Run(gctx)
		return gctx.Err()
	})
	g.Go(func() error {
		return broadcaster.Run(gctx)
	})
	g.Go(func() error {
		return engine.Serve(gctx, ln)
	})
	g.Go(func() error {
		consumeEvents(gctx, bus, handle)
		return gctx.Err()
	})

	log.WithFields(logrus.Fields{
		"device":   cfg.UUID,
		"name":     deviceName,
		"tcp_port": tcpPort,
	}).Info("kdeconnectd started")

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	log.Info("kdeconnectd shutting down")
	return nil
}

// consumeEvents is the event bus's single consumer, forwarding every
// platform hook event into the device manager for fan-out to connected
// devices' plugins.
func consumeEvents(ctx context.Context, bus *eventbus.Bus, devices devicemgr.Handle) {
	for {
		select {
		case ev := <-bus.Events():
			devices.BroadcastEvent(ev)
		case <-ctx.Done():
			return
		}
	}
}

func openCache(dir string) (*cache.Store, error) {
	if dir != "" {
		return cache.New(dir)
	}
	return cache.NewInTempDir("kdeconnect-go")
}

// buildDescriptors assembles the full set of built-in capability
// plugins. Plugins that need a host-specific backend are wired with a
// Noop/No-op default, ready to be swapped for a real implementation
// (clipboard access, audio mixer, input injector, ...) without
// touching this list's shape.
func buildDescriptors(store *cache.Store, proxy hostproxy.Proxy) []plugin.Descriptor {
	commands := map[string]runcommand.Command{
		"lock-screen": {Name: "Lock screen", Command: "loginctl lock-session"},
		"suspend":     {Name: "Suspend", Command: "systemctl suspend"},
	}

	return []plugin.Descriptor{
		ping.Descriptor,
		battery.Descriptor,
		clipboard.Descriptor,
		connectivityreport.Descriptor,
		mediaremote.Descriptor,
		notification.NewDescriptor(proxy, store),
		runcommand.NewDescriptor(commands),
		share.NewDescriptor(nil, nil),
		inputinjection.NewDescriptor(nil),
		volume.NewDescriptor(nil),
	}
}
