package packet

// Identity is the body of the kdeconnect.identity packet: the plaintext
// first line of every TCP session, and the payload of the UDP broadcast.
type Identity struct {
	DeviceID             string   `json:"deviceId"`
	DeviceName           string   `json:"deviceName"`
	ProtocolVersion      uint8    `json:"protocolVersion"`
	DeviceType           string   `json:"deviceType"`
	IncomingCapabilities []string `json:"incomingCapabilities"`
	OutgoingCapabilities []string `json:"outgoingCapabilities"`
	TCPPort              *uint16  `json:"tcpPort,omitempty"`
}

// ProtocolVersion is the value advertised in every identity packet.
const ProtocolVersion = 7

// NewIdentity builds the kdeconnect.identity packet this node advertises.
func NewIdentity(deviceID, deviceName string, tcpPort *uint16, inCaps, outCaps []string) Packet {
	return MustNew(TypeIdentity, Identity{
		DeviceID:             deviceID,
		DeviceName:           deviceName,
		ProtocolVersion:      ProtocolVersion,
		DeviceType:           "desktop",
		IncomingCapabilities: inCaps,
		OutgoingCapabilities: outCaps,
		TCPPort:              tcpPort,
	})
}

// Pair is the body of the kdeconnect.pair packet.
type Pair struct {
	Pair bool `json:"pair"`
}

// NewPair builds a kdeconnect.pair packet.
func NewPair(pair bool) Packet {
	return MustNew(TypePair, Pair{Pair: pair})
}
