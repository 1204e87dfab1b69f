// Package virtual implements a TCP-loopback port.Port, used by tests and
// local development without real CAN hardware. Adapted from
// pkg/can/virtual/virtual.go: same length-prefixed framing and
// goroutine-plus-stop-channel reception loop, carrying an xcp packet
// instead of a CANopen frame.
package virtual

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/samsamfire/xcpflash/pkg/port"
)

// Port is a port.Port over a plain TCP connection. Two Ports dialed at
// each other (or connected via net.Pipe through NewPair, for tests) form
// a loopback transport with no real bus underneath.
type Port struct {
	logger *slog.Logger
	mu     sync.Mutex
	conn   net.Conn

	rx        chan port.Packet
	stopChan  chan struct{}
	wg        sync.WaitGroup
	isRunning bool
}

var _ port.Port = (*Port)(nil)

// Dial connects to a TCP address and starts the background reception
// loop immediately.
func Dial(addr string) (*Port, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return newPort(conn), nil
}

// NewPair returns two connected Ports back to back, for use in tests
// that need a working transport without a network listener.
func NewPair() (*Port, *Port) {
	a, b := net.Pipe()
	return newPort(a), newPort(b)
}

func newPort(conn net.Conn) *Port {
	p := &Port{
		logger:   slog.Default().With("service", "[VIRTUAL]"),
		conn:     conn,
		rx:       make(chan port.Packet, 16),
		stopChan: make(chan struct{}),
	}
	p.wg.Add(1)
	p.isRunning = true
	go p.handleReception()
	return p
}

// Close stops the reception loop and closes the underlying connection.
func (p *Port) Close() error {
	p.mu.Lock()
	running := p.isRunning
	p.mu.Unlock()
	if running {
		close(p.stopChan)
		p.wg.Wait()
	}
	return p.conn.Close()
}

func serializePacket(pkt port.Packet) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(pkt.Len)
	buf.Write(pkt.Data[:pkt.Len])
	framed := make([]byte, 4)
	binary.BigEndian.PutUint32(framed, uint32(buf.Len()))
	return append(framed, buf.Bytes()...)
}

func deserializePacket(body []byte) (port.Packet, error) {
	if len(body) < 1 {
		return port.Packet{}, errors.New("virtual: empty frame")
	}
	n := body[0]
	if int(n) > len(body)-1 || int(n) > port.MaxPacketSize {
		return port.Packet{}, errors.New("virtual: corrupt frame length")
	}
	var pkt port.Packet
	pkt.Len = n
	copy(pkt.Data[:n], body[1:1+n])
	return pkt, nil
}

// NowMs returns the local wall clock in milliseconds, the clock source
// the loader's deadline arithmetic is built on (spec.md §4.2).
func (p *Port) NowMs() uint32 { return uint32(time.Now().UnixMilli()) }

// TransmitPacket writes one length-prefixed frame.
func (p *Port) TransmitPacket(pkt port.Packet) error {
	_ = p.conn.SetWriteDeadline(time.Now().Add(50 * time.Millisecond))
	_, err := p.conn.Write(serializePacket(pkt))
	return err
}

// ReceivePacket returns the oldest buffered packet, or ok=false if none
// is currently available.
func (p *Port) ReceivePacket() (port.Packet, bool) {
	select {
	case pkt := <-p.rx:
		return pkt, true
	default:
		return port.Packet{}, false
	}
}

// SeedToKey is unimplemented for the virtual transport: no physical
// target to negotiate a key with. A loopback counterparty that wants to
// exercise the seed/key path should implement its own Port.
func (p *Port) SeedToKey(seed []byte) ([]byte, error) {
	return nil, errors.New("virtual: seed/key not supported")
}

func (p *Port) recvFrame() ([]byte, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	header := make([]byte, 4)
	if _, err := readFull(p.conn, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header)
	body := make([]byte, length)
	_ = p.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := readFull(p.conn, body); err != nil {
		return nil, err
	}
	return body, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *Port) handleReception() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		default:
		}
		body, err := p.recvFrame()
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			continue
		}
		if err != nil {
			p.logger.Debug("virtual port reception loop stopped", "err", err)
			return
		}
		pkt, err := deserializePacket(body)
		if err != nil {
			p.logger.Warn("dropped malformed frame", "err", err)
			continue
		}
		select {
		case p.rx <- pkt:
		case <-p.stopChan:
			return
		}
	}
}
