package config

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	c, err := Init()
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.json")
	if err := c.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.UUID != c.UUID {
		t.Fatalf("uuid mismatch: %s != %s", loaded.UUID, c.UUID)
	}
	if !bytes.Equal(loaded.TLSKey, c.TLSKey) {
		t.Fatalf("tls key mismatch")
	}
	if !bytes.Equal(loaded.TLSCert, c.TLSCert) {
		t.Fatalf("tls cert mismatch")
	}
}

func TestInitOrLoadCreatesOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	first, err := InitOrLoad(path)
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	second, err := InitOrLoad(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if first.UUID != second.UUID {
		t.Fatalf("InitOrLoad did not persist across calls: %s != %s", first.UUID, second.UUID)
	}
}
