// Package hostproxy is the narrow interface between the core and the
// out-of-scope OS event loop / tray. The host accepts exactly two
// commands: replace the tray menu, replace the tray icon.
package hostproxy

// MenuItem is one entry in an aggregated tray submenu.
type MenuItem struct {
	Label    string
	ID       string
	Enabled  bool
	Disabled bool
}

// MenuBuilder accumulates menu items for a single device's submenu. A
// plugin's TrayMenu method appends to it; the plugin repository
// concatenates the per-plugin contributions in registration order.
type MenuBuilder struct {
	Items []MenuItem
}

// Add appends an enabled, clickable item.
func (b *MenuBuilder) Add(label, id string) {
	b.Items = append(b.Items, MenuItem{Label: label, ID: id, Enabled: true})
}

// AddDisabled appends a non-clickable informational item.
func (b *MenuBuilder) AddDisabled(label string) {
	b.Items = append(b.Items, MenuItem{Label: label, Enabled: false})
}

// IconVariant selects between the two tray icon states the reference
// swaps between: a device present vs. no device connected.
type IconVariant int

const (
	IconAbsent IconVariant = iota
	IconPresent
)

// Menu is the aggregated, per-device tray submenu passed to
// SetTrayMenu.
type Menu struct {
	// DeviceSubmenus maps a device's display name to its built menu.
	DeviceSubmenus map[string]MenuBuilder
}

// Hotkey describes a global keyboard shortcut a plugin wants the host
// to register on its behalf. Firing it delivers a TrayMenuClicked-style
// event through the event bus, keyed by ID rather than a menu item.
type Hotkey struct {
	ID    string
	Label string
	Combo string // e.g. "Ctrl+Shift+V"
}

// Notification is a toast the core asks the host to display on behalf
// of a remote notification.
type Notification struct {
	// Tag and Group together identify this toast for later dismissal
	// and for de-duplication within one device's notification group.
	Tag         string
	Group       string
	Title       string
	Text        string
	Attribution string
	// IconPath is a local filesystem path to a cached icon image, empty
	// if none is available.
	IconPath string
}

// Proxy is the command surface this core uses to drive the host event
// loop. Implementations live entirely outside this module's scope (the
// OS tray / window message loop is an external collaborator).
type Proxy interface {
	SetTrayMenu(menu Menu)
	SetTrayIcon(variant IconVariant)
	// ShowNotification displays n, returning a channel the host closes
	// (or sends on) when the user dismisses it; implementations that
	// can't report dismissal may return nil.
	ShowNotification(n Notification) <-chan struct{}
	// DismissNotification removes a previously shown toast identified
	// by its group and tag.
	DismissNotification(group, tag string)
}

// Noop is a Proxy that discards every command; useful for tests and for
// headless operation.
type Noop struct{}

func (Noop) SetTrayMenu(Menu)        {}
func (Noop) SetTrayIcon(IconVariant) {}

func (Noop) ShowNotification(Notification) <-chan struct{} { return nil }
func (Noop) DismissNotification(string, string)             {}
