// Package xcpflash is a microcontroller-hosted firmware-update client
// library: it parses a Motorola S-record file into contiguous memory
// segments, drives an XCP 1.0 bootloader over an application-supplied
// transport, and reprograms the target. Library consolidates what the
// source kept as free-standing global pointers (readerPtr, protocolPtr,
// portInterface, srecHandle) into one value owned by the application,
// passed explicitly to every entry point instead of mutated through
// package state.
package xcpflash

import (
	"github.com/samsamfire/xcpflash/pkg/firmware"
	"github.com/samsamfire/xcpflash/pkg/port"
	"github.com/samsamfire/xcpflash/pkg/session"
	"github.com/samsamfire/xcpflash/pkg/srec"
	"github.com/samsamfire/xcpflash/pkg/update"
)

// Library is the application's single handle onto the firmware-update
// core. Zero value is usable; call PortInit before any Session* method
// and FirmwareInit before any Firmware* method.
type Library struct {
	hook FatalHook

	port     port.Port
	reader   firmware.Reader
	protocol session.Protocol
}

// NewLibrary constructs an empty Library. hook may be nil, in which case
// failures are surfaced only through ordinary error returns.
func NewLibrary(hook FatalHook) *Library {
	return &Library{hook: hook}
}

func (l *Library) fail(err error) error {
	if err != nil && l.hook != nil {
		l.hook(err)
	}
	return err
}

// PortInit records the application-supplied transport. The application
// retains ownership of any resources p references; Library never closes
// it.
func (l *Library) PortInit(p port.Port) error {
	if p == nil {
		return l.fail(ErrNotInitialized)
	}
	l.port = p
	return nil
}

// Port returns the transport bound by PortInit, or nil if none.
func (l *Library) Port() port.Port { return l.port }

// FirmwareInit binds a concrete firmware.Reader implementation. readerType
// "srec" (or "") selects the S-record reader, the only kind supported;
// any other value returns ErrNotInitialized.
func (l *Library) FirmwareInit(readerType string) error {
	switch readerType {
	case "", "srec":
		l.reader = srec.New()
		return nil
	default:
		return l.fail(ErrNotInitialized)
	}
}

// FirmwareTerminate releases the firmware reader, closing its file if
// one is open.
func (l *Library) FirmwareTerminate() error {
	if l.reader == nil {
		return nil
	}
	err := l.reader.Close()
	l.reader = nil
	return l.fail(err)
}

func (l *Library) FirmwareFileOpen(path string) error {
	if l.reader == nil {
		return l.fail(ErrNotInitialized)
	}
	return l.fail(l.reader.Open(path))
}

func (l *Library) FirmwareFileClose() error {
	if l.reader == nil {
		return l.fail(ErrNotInitialized)
	}
	return l.fail(l.reader.Close())
}

func (l *Library) FirmwareSegmentCount() (int, error) {
	if l.reader == nil {
		return 0, l.fail(ErrNotInitialized)
	}
	return l.reader.SegmentCount(), nil
}

func (l *Library) FirmwareSegmentInfo(idx int) (firmware.Segment, error) {
	if l.reader == nil {
		return firmware.Segment{}, l.fail(ErrNotInitialized)
	}
	seg, err := l.reader.SegmentInfo(idx)
	return seg, l.fail(err)
}

func (l *Library) FirmwareSegmentOpen(idx int) error {
	if l.reader == nil {
		return l.fail(ErrNotInitialized)
	}
	return l.fail(l.reader.OpenSegment(idx))
}

// FirmwareSegmentNextData returns the next chunk of the currently open
// segment. ok is false once the segment is exhausted.
func (l *Library) FirmwareSegmentNextData() (firmware.Chunk, bool, error) {
	if l.reader == nil {
		return firmware.Chunk{}, false, l.fail(ErrNotInitialized)
	}
	chunk, ok, err := l.reader.NextChunk()
	return chunk, ok, l.fail(err)
}

// SessionInit constructs and binds the protocol registered under
// protocolID (e.g. "XCP_V10") against the port bound by PortInit.
func (l *Library) SessionInit(protocolID string, settings any) error {
	if l.port == nil {
		return l.fail(ErrNotInitialized)
	}
	proto, err := session.New(protocolID)
	if err != nil {
		return l.fail(err)
	}
	if err := proto.Init(l.port, settings); err != nil {
		return l.fail(err)
	}
	l.protocol = proto
	return nil
}

func (l *Library) SessionTerminate() error {
	if l.protocol == nil {
		return nil
	}
	err := l.protocol.Terminate()
	l.protocol = nil
	return l.fail(err)
}

func (l *Library) SessionStart() error {
	if l.protocol == nil {
		return l.fail(ErrNotInitialized)
	}
	return l.fail(l.protocol.Start())
}

func (l *Library) SessionStop() error {
	if l.protocol == nil {
		return l.fail(ErrNotInitialized)
	}
	return l.fail(l.protocol.Stop())
}

func (l *Library) SessionClearMemory(addr, length uint32) error {
	if l.protocol == nil {
		return l.fail(ErrNotInitialized)
	}
	return l.fail(l.protocol.ClearMemory(addr, length))
}

func (l *Library) SessionWriteData(addr uint32, data []byte) error {
	if l.protocol == nil {
		return l.fail(ErrNotInitialized)
	}
	return l.fail(l.protocol.WriteData(addr, data))
}

func (l *Library) SessionReadData(addr uint32, length uint32) ([]byte, error) {
	if l.protocol == nil {
		return nil, l.fail(ErrNotInitialized)
	}
	data, err := l.protocol.ReadData(addr, length)
	return data, l.fail(err)
}

// UpdateFirmware runs the full orchestrator sequence against path using
// the protocol registered under protocolID, independent of any
// Firmware*/Session* calls already made on l: it owns its own reader and
// protocol instance for the duration of the call, matching
// pkg/update.Update's all-or-nothing contract.
func (l *Library) UpdateFirmware(path string, protocolID string, settings any) error {
	if l.port == nil {
		return l.fail(ErrNotInitialized)
	}
	err := update.Update(l.port, update.Options{
		FirmwarePath: path,
		ProtocolID:   protocolID,
		Settings:     settings,
		Reader:       srec.New(),
	})
	return l.fail(err)
}
