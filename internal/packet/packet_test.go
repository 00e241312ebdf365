package packet

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := MustNew("kdeconnect.ping", struct {
		Message string `json:"message"`
	}{Message: "hi"})

	encoded, err := p.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if encoded[len(encoded)-1] != '\n' {
		t.Fatalf("expected trailing newline")
	}

	got, err := Decode(encoded[:len(encoded)-1])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Type != p.Type || got.ID != p.ID {
		t.Fatalf("round-trip mismatch: got %+v want %+v", got, p)
	}
	if !bytes.Equal(got.Body, p.Body) {
		t.Fatalf("body mismatch: got %s want %s", got.Body, p.Body)
	}
}

func TestUnknownBodyFieldsRoundTrip(t *testing.T) {
	raw := []byte(`{"type":"kdeconnect.battery","body":{"currentCharge":50,"isCharging":true,"futureField":"xyz"},"id":123}`)

	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(p.Body) != `{"currentCharge":50,"isCharging":true,"futureField":"xyz"}` {
		t.Fatalf("unknown fields were not preserved verbatim: %s", p.Body)
	}

	reEncoded, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	roundTripped, err := Decode(reEncoded)
	if err != nil {
		t.Fatalf("decode round-tripped: %v", err)
	}
	if string(roundTripped.Body) != string(p.Body) {
		t.Fatalf("body changed across a second round-trip: %s != %s", roundTripped.Body, p.Body)
	}
}

func TestReadLineStripsDelimiter(t *testing.T) {
	buf := bufio.NewReader(bytes.NewReader([]byte("{\"type\":\"kdeconnect.identity\"}\n")))
	line, err := ReadLine(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(line) != `{"type":"kdeconnect.identity"}` {
		t.Fatalf("unexpected line: %s", line)
	}
}

func TestSetPayloadAndResetTS(t *testing.T) {
	p := MustNew("kdeconnect.share.request", struct{}{})
	before := p.ID

	p.SetPayload(1234, 1765)
	if p.PayloadSize == nil || *p.PayloadSize != 1234 {
		t.Fatalf("payload size not stamped")
	}
	if p.PayloadTransferInfo == nil || p.PayloadTransferInfo.Port != 1765 {
		t.Fatalf("payload transfer info not stamped")
	}

	p.ResetTS()
	if p.ID < before {
		t.Fatalf("reset ts went backwards")
	}
}

func TestNewIdentityCapabilities(t *testing.T) {
	port := uint16(1716)
	p := NewIdentity("uuid-1", "desktop-a", &port, []string{"kdeconnect.ping"}, []string{"kdeconnect.ping"})

	var id Identity
	if err := p.Into(&id); err != nil {
		t.Fatalf("into: %v", err)
	}
	if id.ProtocolVersion != ProtocolVersion {
		t.Fatalf("protocol version = %d, want %d", id.ProtocolVersion, ProtocolVersion)
	}
	if id.DeviceType != "desktop" {
		t.Fatalf("device type = %s", id.DeviceType)
	}
}
