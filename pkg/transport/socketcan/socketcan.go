// Package socketcan implements a port.Port over Linux SocketCAN, the
// reference transport named in spec.md §6: one XCP packet maps to one
// classic CAN frame, master->target on TxID and target->master on RxID.
// Adapted from pkg/can/socketcan/socketcan.go and root socketcan.go,
// which wrap the same github.com/brutella/can.Bus.
package socketcan

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	brutella "github.com/brutella/can"
	"github.com/samsamfire/xcpflash/pkg/port"
)

// DefaultTxID and DefaultRxID match spec.md §6's reference transport.
const (
	DefaultTxID uint32 = 0x667
	DefaultRxID uint32 = 0x7E1
)

// Port bridges port.Port to a brutella/can.Bus. Exactly one classic CAN
// frame is sent or received per XCP packet; packets longer than 8 bytes
// are rejected, since classic CAN frames cannot carry them.
type Port struct {
	logger *slog.Logger
	bus    *brutella.Bus
	txID   uint32
	rxID   uint32

	mu    sync.Mutex
	inbox chan port.Packet
}

var _ port.Port = (*Port)(nil)
var _ brutella.Handler = (*Port)(nil)

// New opens the named SocketCAN interface (e.g. "can0") and starts
// publishing/receiving in the background.
func New(iface string, txID, rxID uint32) (*Port, error) {
	bus, err := brutella.NewBusForInterfaceWithName(iface)
	if err != nil {
		return nil, err
	}
	p := &Port{
		logger: slog.Default().With("service", "[SOCKETCAN]"),
		bus:    bus,
		txID:   txID,
		rxID:   rxID,
		inbox:  make(chan port.Packet, 16),
	}
	bus.Subscribe(p)
	go bus.ConnectAndPublish()
	return p, nil
}

// Handle implements brutella/can.Handler; it is invoked from the bus's
// own reception goroutine for every frame on the interface.
func (p *Port) Handle(frame brutella.Frame) {
	if frame.ID != p.rxID {
		return
	}
	var pkt port.Packet
	pkt.Len = frame.Length
	if int(pkt.Len) > len(frame.Data) {
		pkt.Len = uint8(len(frame.Data))
	}
	copy(pkt.Data[:pkt.Len], frame.Data[:pkt.Len])
	select {
	case p.inbox <- pkt:
	default:
		p.logger.Warn("dropped XCP frame, inbox full")
	}
}

// NowMs returns a monotonic millisecond timestamp for the loader's
// deadline arithmetic (spec.md §4.2).
func (p *Port) NowMs() uint32 { return uint32(time.Now().UnixMilli()) }

// TransmitPacket sends one classic CAN frame. Packet sizes follow the
// max_cto/max_prog_cto the target advertises (8 on a classic CAN
// target); the loader clamps them only to port.MaxPacketSize, so a
// packet longer than 8 bytes is rejected here with an error.
func (p *Port) TransmitPacket(pkt port.Packet) error {
	if pkt.Len > 8 {
		return errors.New("socketcan: packet exceeds classic CAN frame capacity")
	}
	var data [8]byte
	copy(data[:], pkt.Data[:pkt.Len])
	frame := brutella.Frame{ID: p.txID, Length: pkt.Len, Flags: 0, Res0: 0, Res1: 0, Data: data}
	return p.bus.Publish(frame)
}

func (p *Port) ReceivePacket() (port.Packet, bool) {
	select {
	case pkt := <-p.inbox:
		return pkt, true
	default:
		return port.Packet{}, false
	}
}

// SeedToKey is left to the embedding application: the key-derivation
// algorithm is target-specific and out of scope for the transport.
func (p *Port) SeedToKey(seed []byte) ([]byte, error) {
	return nil, errors.New("socketcan: seed/key not implemented, supply a custom port.Port")
}

// Close tears down the underlying bus connection.
func (p *Port) Close() error {
	return p.bus.Disconnect()
}
