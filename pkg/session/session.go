// Package session implements the Session Facade: a small registry that
// binds a protocol identifier to a concrete Protocol implementation, so
// the orchestrator can invoke stable method names without knowing which
// protocol engine is behind them. Modeled on pkg/can's
// RegisterInterface/NewBus registry.
package session

import (
	"errors"
	"fmt"

	"github.com/samsamfire/xcpflash/pkg/port"
)

// ErrUnsupported is returned by New for an unregistered protocol id.
var ErrUnsupported = errors.New("session: unsupported protocol")

// Protocol is the dispatch table the orchestrator calls through:
// init, terminate, start, stop, clear_memory, write_data, read_data.
type Protocol interface {
	// Init binds the protocol engine to a port and settings. It does
	// not itself attempt to connect.
	Init(p port.Port, settings any) error

	// Terminate releases any resources acquired by Init and, if
	// currently connected, forces a disconnect first.
	Terminate() error

	// Start performs the connection handshake, including any internal
	// retries the protocol defines.
	Start() error

	// Stop terminates the programming session, if any, and returns the
	// protocol to its disconnected state. A call while already
	// disconnected is a no-op that returns nil.
	Stop() error

	ClearMemory(addr uint32, length uint32) error
	WriteData(addr uint32, data []byte) error
	ReadData(addr uint32, length uint32) ([]byte, error)
}

// Factory constructs a new, uninitialized Protocol instance.
type Factory func() Protocol

var registry = make(map[string]Factory)

// Register makes a protocol factory available under id. Called from an
// init() function by the package implementing the protocol, mirroring
// pkg/can.RegisterInterface.
func Register(id string, factory Factory) {
	registry[id] = factory
}

// New looks up and constructs the Protocol registered under id.
func New(id string) (Protocol, error) {
	factory, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, id)
	}
	return factory(), nil
}
