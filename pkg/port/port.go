// Package port defines the capability set an embedding application
// supplies to the XCP core: a monotonic clock and a packet transport.
package port

// Packet is the wire unit exchanged with the target. It carries no
// hidden length prefix; callers read Len bytes from Data.
type Packet struct {
	Data [MaxPacketSize]byte
	Len  uint8
}

// MaxPacketSize is the compile-time ceiling on an XCP packet, per the
// XCP 1.0 CTO/DTO byte-count fields (one byte, so at most 255).
const MaxPacketSize = 255

// Port is the narrow capability set the XCP core calls into. The core
// never touches a transport directly; it only ever sees a Port.
type Port interface {
	// NowMs returns a monotonic millisecond timestamp. Callers must do
	// wraparound-safe subtraction: uint32(now-start) > timeout.
	NowMs() uint32

	// TransmitPacket sends one packet to the target. It may block.
	TransmitPacket(pkt Packet) error

	// ReceivePacket is a non-blocking poll for one packet from the
	// target. It returns ok=false when nothing is currently available.
	ReceivePacket() (pkt Packet, ok bool)

	// SeedToKey transforms a seed challenge into an unlock key for the
	// PGM resource. A Port without seed/key support returns an error
	// (or a nil key), which the loader reports as a locked resource.
	SeedToKey(seed []byte) (key []byte, err error)
}
