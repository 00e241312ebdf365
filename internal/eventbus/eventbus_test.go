package eventbus

import "testing"

func TestSendThenReceive(t *testing.T) {
	b := New()
	b.Send(Event{Kind: ClipboardUpdated})

	got := <-b.Events()
	if got.Kind != ClipboardUpdated {
		t.Fatalf("kind = %v, want ClipboardUpdated", got.Kind)
	}
}

func TestTrySendDropsWhenFull(t *testing.T) {
	b := New()
	for i := 0; i < Capacity; i++ {
		if !b.TrySend(Event{Kind: HotkeyPressed}) {
			t.Fatalf("TrySend unexpectedly dropped at fill %d", i)
		}
	}
	if b.TrySend(Event{Kind: HotkeyPressed}) {
		t.Fatalf("TrySend should have dropped once the bus is full")
	}
}

func TestTrayMenuClickedCarriesMenuID(t *testing.T) {
	b := New()
	b.Send(Event{Kind: TrayMenuClicked, MenuID: "device-1:ping"})

	got := <-b.Events()
	if got.MenuID != "device-1:ping" {
		t.Fatalf("MenuID = %q, want %q", got.MenuID, "device-1:ping")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		ClipboardUpdated:    "ClipboardUpdated",
		PowerStatusUpdated:  "PowerStatusUpdated",
		MediaSessionsChanged: "MediaSessionsChanged",
		HotkeyPressed:       "HotkeyPressed",
		TrayMenuClicked:     "TrayMenuClicked",
		Kind(99):            "Unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", k, got, want)
		}
	}
}

func TestCloseClosesChannel(t *testing.T) {
	b := New()
	b.Close()

	_, ok := <-b.Events()
	if ok {
		t.Fatalf("expected channel to be closed")
	}
}
