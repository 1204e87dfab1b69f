// Package xcp implements the XCP 1.0 master-side subset required to
// flash a target bootloader: CONNECT, GET_STATUS, PROGRAM_START,
// PROGRAM_CLEAR, PROGRAM, PROGRAM_RESET, and the blocking
// request/response exchange with class-specific timeouts.
package xcp

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/samsamfire/xcpflash/pkg/port"
	"github.com/samsamfire/xcpflash/pkg/session"
)

func init() {
	session.Register("XCP_V10", func() session.Protocol { return NewLoader(nil) })
}

// Loader is the concrete Session Protocol implementing XCP 1.0. A single
// command is ever in flight: no Loader method is reentrant, matching
// spec's single-threaded cooperative model. exchange never spawns a
// goroutine; it polls Port.ReceivePacket in the calling goroutine, the
// same cooperative-scheduling contract spec.md §5 places on the core.
type Loader struct {
	logger   *slog.Logger
	port     port.Port
	settings Settings
	session  Session

	programming bool
}

var _ session.Protocol = (*Loader)(nil)

// NewLoader returns an uninitialized Loader. Pass nil for logger to use
// slog.Default(), the convention the teacher uses throughout pkg/*.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger.With("service", "[XCP]")}
}

// Init binds the loader to a port and settings. settings must be an
// xcp.Settings value; the `any` parameter lets session.Protocol stay
// protocol-agnostic, the same escape hatch the teacher uses for
// CreateLocalNode's `odict any` parameter.
func (l *Loader) Init(p port.Port, settings any) error {
	s, ok := settings.(Settings)
	if !ok {
		return ErrInvalidSettings
	}
	l.port = p
	l.settings = s
	l.session.reset()
	l.programming = false
	return nil
}

// Terminate resets all session state. Safe to call whether or not a
// session is connected.
func (l *Loader) Terminate() error {
	l.session.reset()
	l.programming = false
	return nil
}

// pollInterval bounds how long exchange sleeps between unsuccessful
// ReceivePacket polls. spec.md §4.2 mandates no minimum polling
// interval; this one just keeps the loop from spinning the CPU while
// still yielding well inside any of the protocol's timeout classes.
const pollInterval = 200 * time.Microsecond

// exchange transmits one command packet, then polls the port's
// non-blocking receive until a response arrives or deadline elapses.
// Deadline arithmetic is unsigned-wraparound-safe per spec.md §4.2,
// computed from Port.NowMs rather than the host's wall clock, so a
// Port backed by a free-running hardware timer behaves identically.
func (l *Loader) exchange(data []byte, timeout time.Duration) (port.Packet, error) {
	if len(data) > MaxPacketSize {
		return port.Packet{}, ErrPacketTooLarge
	}
	var pkt port.Packet
	pkt.Len = uint8(len(data))
	copy(pkt.Data[:], data)
	if err := l.port.TransmitPacket(pkt); err != nil {
		return port.Packet{}, err
	}

	start := l.port.NowMs()
	timeoutMs := uint32(timeout.Milliseconds())
	for {
		if resp, ok := l.port.ReceivePacket(); ok {
			return resp, nil
		}
		if l.port.NowMs()-start > timeoutMs {
			return port.Packet{}, ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

// errorCode extracts the target's ErrorCode from a PID 0xFE error
// response. ok is false for any other response, including a malformed
// one that is simply the wrong length or PID.
func errorCode(resp port.Packet) (code ErrorCode, ok bool) {
	if resp.Len >= 2 && resp.Data[0] == pidError {
		return ErrorCode(resp.Data[1]), true
	}
	return 0, false
}

// responseError reports why resp failed the positive-response check: an
// 0xFE error response is decoded into its ErrorCode and wrapped into
// err; anything else (wrong length, wrong PID, no data) falls back to
// err alone.
func responseError(resp port.Packet, err error) error {
	if code, ok := errorCode(resp); ok {
		return fmt.Errorf("%w: %v", err, code)
	}
	return err
}

// Start performs the full handshake: CONNECT (up to 5 attempts), the
// resource-protection check (with optional seed/key unlock), and
// PROGRAM_START. On return the loader is in the Programming state.
func (l *Loader) Start() error {
	if err := l.connect(); err != nil {
		return err
	}
	if err := l.resolveResourceProtection(); err != nil {
		l.session.reset()
		return err
	}
	if err := l.programStart(); err != nil {
		l.session.reset()
		return err
	}
	l.programming = true
	return nil
}

func (l *Loader) connect() error {
	for attempt := 0; attempt < connectAttempts; attempt++ {
		resp, err := l.exchange([]byte{cmdConnect, l.settings.ConnectMode}, l.settings.T6)
		if err != nil {
			l.logger.Debug("CONNECT attempt failed", "attempt", attempt, "err", err)
			continue
		}
		if resp.Len != 8 || resp.Data[0] != pidPositive {
			if code, ok := errorCode(resp); ok {
				l.logger.Warn("CONNECT rejected, retrying", "code", code)
			} else {
				l.logger.Warn("CONNECT response malformed, retrying", "len", resp.Len)
			}
			continue
		}
		littleEndian := resp.Data[2]&0x01 == 0
		maxCto := resp.Data[3]
		var maxDto uint16
		if littleEndian {
			maxDto = binary.LittleEndian.Uint16(resp.Data[4:6])
		} else {
			maxDto = binary.BigEndian.Uint16(resp.Data[4:6])
		}
		if maxCto < 8 || maxDto < 8 {
			l.logger.Warn("CONNECT advertised undersized packet limits, retrying")
			continue
		}
		if maxCto > MaxPacketSize {
			maxCto = MaxPacketSize
		}
		if maxDto > MaxPacketSize {
			maxDto = MaxPacketSize
		}
		l.session.SlaveLittleEndian = littleEndian
		l.session.MaxCto = maxCto
		l.session.MaxDto = uint8(maxDto)
		l.session.Connected = true
		return nil
	}
	return ErrConnectFailed
}

func (l *Loader) getStatus() (protectedResources byte, err error) {
	resp, err := l.exchange([]byte{cmdGetStatus}, l.settings.T1)
	if err != nil {
		return 0, err
	}
	if resp.Len != 6 || resp.Data[0] != pidPositive {
		return 0, responseError(resp, ErrProtocolViolation)
	}
	return resp.Data[2], nil
}

func (l *Loader) resolveResourceProtection() error {
	start := l.port.NowMs()
	timeoutMs := uint32(l.settings.T7.Milliseconds())
	for {
		protected, err := l.getStatus()
		if err != nil {
			return err
		}
		if protected&resourcePGM == 0 {
			return nil
		}
		if !l.settings.SeedKeyEnabled {
			return ErrResourceLocked
		}
		if l.port.NowMs()-start > timeoutMs {
			return ErrResourceLocked
		}
		if err := l.unlockPGM(); err != nil {
			return err
		}
	}
}

// unlockPGM issues GET_SEED then UNLOCK for the programming resource.
// The opcodes are standard XCP 1.0; only the key-derivation function was
// left unspecified by spec.md, supplied by the embedding application via
// Port.SeedToKey.
func (l *Loader) unlockPGM() error {
	resp, err := l.exchange([]byte{cmdGetSeed, 0x00, resourcePGM}, l.settings.T1)
	if err != nil {
		return err
	}
	if resp.Data[0] != pidPositive || resp.Len < 2 {
		return responseError(resp, ErrProtocolViolation)
	}
	seedLen := int(resp.Data[1])
	if 2+seedLen > int(resp.Len) {
		return ErrProtocolViolation
	}
	seed := append([]byte(nil), resp.Data[2:2+seedLen]...)

	key, err := l.port.SeedToKey(seed)
	if err != nil || key == nil {
		return ErrResourceLocked
	}

	buf := make([]byte, 2+len(key))
	buf[0] = cmdUnlock
	buf[1] = byte(len(key))
	copy(buf[2:], key)
	resp, err = l.exchange(buf, l.settings.T1)
	if err != nil {
		return err
	}
	if resp.Data[0] != pidPositive {
		return responseError(resp, ErrResourceLocked)
	}
	return nil
}

func (l *Loader) programStart() error {
	resp, err := l.exchange([]byte{cmdProgramStart}, l.settings.T3)
	if err != nil {
		return err
	}
	if resp.Len != 7 || resp.Data[0] != pidPositive {
		return responseError(resp, ErrProtocolViolation)
	}
	maxProgCto := resp.Data[3]
	if maxProgCto > MaxPacketSize {
		maxProgCto = MaxPacketSize
	}
	l.session.MaxProgCto = maxProgCto
	return nil
}

func (l *Loader) setMta(addr uint32) error {
	data := make([]byte, 8)
	data[0] = cmdSetMta
	if l.session.SlaveLittleEndian {
		binary.LittleEndian.PutUint32(data[4:8], addr)
	} else {
		binary.BigEndian.PutUint32(data[4:8], addr)
	}
	resp, err := l.exchange(data, l.settings.T1)
	if err != nil {
		return err
	}
	if resp.Len != 1 || resp.Data[0] != pidPositive {
		return responseError(resp, ErrProtocolViolation)
	}
	return nil
}

// ClearMemory erases length bytes at addr, per spec.md's
// SET_MTA-before-write requirement.
func (l *Loader) ClearMemory(addr uint32, length uint32) error {
	if !l.programming {
		return ErrNotConnected
	}
	if err := l.setMta(addr); err != nil {
		return err
	}
	data := make([]byte, 8)
	data[0] = cmdProgramClear
	if l.session.SlaveLittleEndian {
		binary.LittleEndian.PutUint32(data[4:8], length)
	} else {
		binary.BigEndian.PutUint32(data[4:8], length)
	}
	resp, err := l.exchange(data, l.settings.T4)
	if err != nil {
		return err
	}
	if resp.Len != 1 || resp.Data[0] != pidPositive {
		return responseError(resp, ErrProtocolViolation)
	}
	return nil
}

// WriteData streams data to addr, splitting it into PROGRAM chunks of at
// most max_prog_cto-2 bytes each, ascending address order, each
// acknowledged before the next is sent. Every chunk, the last one
// included, is sent as PROGRAM with an explicit length byte;
// PROGRAM_MAX is not used.
func (l *Loader) WriteData(addr uint32, data []byte) error {
	if !l.programming {
		return ErrNotConnected
	}
	if err := l.setMta(addr); err != nil {
		return err
	}
	payload := int(l.session.MaxProgCto) - 2
	if payload <= 0 {
		return ErrPacketTooLarge
	}
	for len(data) > 0 {
		n := payload
		if n > len(data) {
			n = len(data)
		}
		chunk := data[:n]
		data = data[n:]

		buf := make([]byte, 2+n)
		buf[0] = cmdProgram
		buf[1] = byte(n)
		copy(buf[2:], chunk)

		resp, err := l.exchange(buf, l.settings.T5)
		if err != nil {
			return err
		}
		if resp.Len != 1 || resp.Data[0] != pidPositive {
			return responseError(resp, ErrProtocolViolation)
		}
	}
	return nil
}

// ReadData implements UPLOAD/SHORT_UPLOAD. Not used by the update
// orchestrator; provided because the Session Facade and Public API both
// name session_read_data, per spec.md's Open Question marking it
// optional. A span that fits in one response uses SHORT_UPLOAD, which
// carries its own address and needs no prior SET_MTA; a longer span
// falls back to SET_MTA followed by repeated UPLOAD.
func (l *Loader) ReadData(addr uint32, length uint32) ([]byte, error) {
	if !l.session.Connected {
		return nil, ErrNotConnected
	}
	if length == 0 {
		return nil, nil
	}
	maxPerResp := uint32(l.session.MaxDto) - 1
	if maxPerResp == 0 {
		return nil, ErrPacketTooLarge
	}

	if length <= maxPerResp {
		buf := make([]byte, 8)
		buf[0] = cmdShortUpload
		buf[1] = byte(length)
		if l.session.SlaveLittleEndian {
			binary.LittleEndian.PutUint32(buf[4:8], addr)
		} else {
			binary.BigEndian.PutUint32(buf[4:8], addr)
		}
		resp, err := l.exchange(buf, l.settings.T1)
		if err != nil {
			return nil, err
		}
		if resp.Data[0] != pidPositive {
			return nil, responseError(resp, ErrProtocolViolation)
		}
		return append([]byte(nil), resp.Data[1:1+length]...), nil
	}

	if err := l.setMta(addr); err != nil {
		return nil, err
	}
	out := make([]byte, 0, length)
	for uint32(len(out)) < length {
		remaining := length - uint32(len(out))
		n := remaining
		if n > maxPerResp {
			n = maxPerResp
		}
		resp, err := l.exchange([]byte{cmdUpload, byte(n)}, l.settings.T1)
		if err != nil {
			return nil, err
		}
		if resp.Data[0] != pidPositive {
			return nil, responseError(resp, ErrProtocolViolation)
		}
		out = append(out, resp.Data[1:1+n]...)
	}
	return out, nil
}

// Stop terminates the programming session and returns the loader to
// Disconnected. It is a no-op on an already-disconnected session and
// never itself fails: PROGRAM_RESET's response is optional because the
// target may already have jumped to the freshly flashed image.
func (l *Loader) Stop() error {
	if !l.session.Connected {
		return nil
	}
	if l.programming {
		_, _ = l.exchange([]byte{cmdProgram, 0x00}, l.settings.T5)
	}
	_, _ = l.exchange([]byte{cmdProgramReset}, l.settings.T5)
	l.programming = false
	l.session.reset()
	return nil
}
