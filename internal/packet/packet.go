// Package packet implements the newline-delimited JSON wire format used
// by every KDE Connect connection: one JSON object per line, with an
// optional out-of-band binary payload described by payloadSize and
// payloadTransferInfo.
package packet

import (
	"bufio"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// TypeIdentity is the type of the plaintext packet exchanged as the
// first line of every TCP session and the payload of the UDP broadcast.
const TypeIdentity = "kdeconnect.identity"

// TypePair is auto-acknowledged by the connection loop, never seen by a plugin.
const TypePair = "kdeconnect.pair"

// PayloadTransferInfo locates the ephemeral TLS server that will serve a
// packet's out-of-band payload.
type PayloadTransferInfo struct {
	Port uint16 `json:"port"`
}

// Packet is the wire representation of a single KDE Connect message.
// Body is kept as raw JSON so that unknown fields round-trip unchanged;
// only the plugin that claims the capability decodes it into a concrete
// Go type.
type Packet struct {
	Type                string               `json:"type"`
	Body                json.RawMessage      `json:"body"`
	ID                  uint64               `json:"id"`
	PayloadSize         *uint64              `json:"payloadSize,omitempty"`
	PayloadTransferInfo *PayloadTransferInfo `json:"payloadTransferInfo,omitempty"`
}

// New builds a packet of the given type with body marshaled from v, and
// stamps the id with the current millisecond wall clock.
func New(typ string, v any) (Packet, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Packet{}, errors.Wrap(err, "marshal packet body")
	}
	return Packet{
		Type: typ,
		Body: raw,
		ID:   nowMS(),
	}, nil
}

// MustNew is like New but panics on marshal failure; only safe for
// bodies whose type is known to be marshalable (e.g. the built-in
// structs below), matching the reference's expect()-on-serialize.
func MustNew(typ string, v any) Packet {
	p, err := New(typ, v)
	if err != nil {
		panic(err)
	}
	return p
}

// Into decodes Body into v.
func (p Packet) Into(v any) error {
	return errors.Wrap(json.Unmarshal(p.Body, v), "decode packet body")
}

// SetPayload stamps payload metadata into the packet. Pure mutator, no
// side effects.
func (p *Packet) SetPayload(size uint64, port uint16) {
	p.PayloadSize = &size
	p.PayloadTransferInfo = &PayloadTransferInfo{Port: port}
}

// ResetTS assigns a fresh millisecond timestamp.
func (p *Packet) ResetTS() {
	p.ID = nowMS()
}

func nowMS() uint64 {
	return uint64(time.Now().UnixMilli())
}

// Encode serializes the packet as a single line terminated by 0x0A.
func (p Packet) Encode() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "marshal packet")
	}
	return append(b, '\n'), nil
}

// Decode parses a single line (without the trailing 0x0A) as a packet.
func Decode(line []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(line, &p); err != nil {
		return Packet{}, errors.Wrap(err, "unmarshal packet")
	}
	return p, nil
}

// ReadLine reads bytes up to and including the first 0x0A from r,
// strips the delimiter, and returns the remainder. The connection loop
// uses it for every steady-state packet read from the TLS stream; the
// plaintext identity line is read byte by byte instead (transport's
// readPlainLine), so no TLS handshake bytes land in a bufio buffer.
func ReadLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	return line, nil
}

// WithPayload pairs a packet with an optional out-of-band byte buffer.
// The buffer is shared between the sender and any in-flight payload
// server; Go's garbage collector keeps it alive as long as either side
// holds a reference, mirroring the reference's Arc<Vec<u8>>.
type WithPayload struct {
	Packet  Packet
	Payload *[]byte
}

// FromPacket wraps a bare packet with no payload.
func FromPacket(p Packet) WithPayload {
	return WithPayload{Packet: p}
}

// NewWithPayload pairs a packet with a payload buffer.
func NewWithPayload(p Packet, payload []byte) WithPayload {
	return WithPayload{Packet: p, Payload: &payload}
}
