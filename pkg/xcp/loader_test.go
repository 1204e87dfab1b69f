package xcp

import (
	"testing"
	"time"

	"github.com/samsamfire/xcpflash/pkg/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort is a deterministic, scripted port.Port used to drive the
// loader's state machine without a real transport.
type fakePort struct {
	t         *testing.T
	responder func(cmd port.Packet) (port.Packet, bool)
	inbox     chan port.Packet
	seedToKey func(seed []byte) ([]byte, error)
}

func newFakePort(t *testing.T, responder func(cmd port.Packet) (port.Packet, bool)) *fakePort {
	return &fakePort{t: t, responder: responder, inbox: make(chan port.Packet, 4)}
}

func (p *fakePort) NowMs() uint32 { return uint32(time.Now().UnixMilli()) }

func (p *fakePort) TransmitPacket(pkt port.Packet) error {
	resp, ok := p.responder(pkt)
	if ok {
		p.inbox <- resp
	}
	return nil
}

func (p *fakePort) ReceivePacket() (port.Packet, bool) {
	select {
	case pkt := <-p.inbox:
		return pkt, true
	default:
		return port.Packet{}, false
	}
}

func (p *fakePort) SeedToKey(seed []byte) ([]byte, error) {
	if p.seedToKey != nil {
		return p.seedToKey(seed)
	}
	return nil, ErrResourceLocked
}

func pkt(data ...byte) port.Packet {
	var p port.Packet
	p.Len = uint8(len(data))
	copy(p.Data[:], data)
	return p
}

func fastSettings() Settings {
	s := DefaultSettings()
	s.T1 = 30 * time.Millisecond
	s.T3 = 30 * time.Millisecond
	s.T4 = 30 * time.Millisecond
	s.T5 = 30 * time.Millisecond
	s.T6 = 30 * time.Millisecond
	s.T7 = 60 * time.Millisecond
	return s
}

func connectOK(cmd port.Packet) (port.Packet, bool) {
	switch cmd.Data[0] {
	case cmdConnect:
		return pkt(pidPositive, 0x00, 0x01, 0xFF, 0xFF, 0x00, 0x00, 0x00), true
	case cmdGetStatus:
		return pkt(pidPositive, 0x00, 0x00, 0x00, 0x00, 0x00), true
	case cmdProgramStart:
		return pkt(pidPositive, 0x00, 0x00, 0xF8, 0x00, 0x00, 0x00), true
	case cmdSetMta:
		return pkt(pidPositive), true
	case cmdProgramClear:
		return pkt(pidPositive), true
	case cmdProgram:
		return pkt(pidPositive), true
	case cmdProgramReset:
		return port.Packet{}, false
	}
	return port.Packet{}, false
}

func TestStartHandshakeSucceeds(t *testing.T) {
	p := newFakePort(t, connectOK)
	l := NewLoader(nil)
	require.NoError(t, l.Init(p, fastSettings()))
	defer l.Terminate()

	require.NoError(t, l.Start())
	assert.True(t, l.session.Connected)
	assert.True(t, l.programming)
	assert.Equal(t, uint8(0xF8), l.session.MaxProgCto)
}

func TestConnectRetriesOnNoResponse(t *testing.T) {
	attempts := 0
	p := newFakePort(t, func(cmd port.Packet) (port.Packet, bool) {
		if cmd.Data[0] != cmdConnect {
			return connectOK(cmd)
		}
		attempts++
		if attempts < 3 {
			return port.Packet{}, false // silently dropped, forces timeout+retry
		}
		return connectOK(cmd)
	})
	l := NewLoader(nil)
	require.NoError(t, l.Init(p, fastSettings()))
	defer l.Terminate()

	require.NoError(t, l.Start())
	assert.Equal(t, 3, attempts)
}

func TestConnectFailsAfterFiveAttempts(t *testing.T) {
	p := newFakePort(t, func(cmd port.Packet) (port.Packet, bool) {
		return port.Packet{}, false
	})
	l := NewLoader(nil)
	require.NoError(t, l.Init(p, fastSettings()))
	defer l.Terminate()

	err := l.Start()
	assert.ErrorIs(t, err, ErrConnectFailed)
}

func TestGetStatusErrorResponseDecodesErrorCode(t *testing.T) {
	p := newFakePort(t, func(cmd port.Packet) (port.Packet, bool) {
		if cmd.Data[0] == cmdGetStatus {
			return pkt(pidError, byte(ErrCmdBusy)), true
		}
		return connectOK(cmd)
	})
	l := NewLoader(nil)
	require.NoError(t, l.Init(p, fastSettings()))
	defer l.Terminate()

	err := l.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Contains(t, err.Error(), ErrCmdBusy.Error())
}

func TestResourceLockedWithoutSeedKey(t *testing.T) {
	p := newFakePort(t, func(cmd port.Packet) (port.Packet, bool) {
		if cmd.Data[0] == cmdGetStatus {
			return pkt(pidPositive, 0x00, resourcePGM, 0x00, 0x00, 0x00), true
		}
		return connectOK(cmd)
	})
	l := NewLoader(nil)
	s := fastSettings()
	s.SeedKeyEnabled = false
	require.NoError(t, l.Init(p, s))
	defer l.Terminate()

	err := l.Start()
	assert.ErrorIs(t, err, ErrResourceLocked)
	assert.False(t, l.programming)
}

func TestSeedKeyUnlockClearsProtection(t *testing.T) {
	unlocked := false
	p := newFakePort(t, func(cmd port.Packet) (port.Packet, bool) {
		switch cmd.Data[0] {
		case cmdGetStatus:
			if unlocked {
				return pkt(pidPositive, 0x00, 0x00, 0x00, 0x00, 0x00), true
			}
			return pkt(pidPositive, 0x00, resourcePGM, 0x00, 0x00, 0x00), true
		case cmdGetSeed:
			return pkt(pidPositive, 0x02, 0xAB, 0xCD), true
		case cmdUnlock:
			unlocked = true
			return pkt(pidPositive), true
		}
		return connectOK(cmd)
	})
	p.seedToKey = func(seed []byte) ([]byte, error) {
		assert.Equal(t, []byte{0xAB, 0xCD}, seed)
		return []byte{0x01, 0x02}, nil
	}
	l := NewLoader(nil)
	s := fastSettings()
	s.SeedKeyEnabled = true
	require.NoError(t, l.Init(p, s))
	defer l.Terminate()

	require.NoError(t, l.Start())
	assert.True(t, l.programming)
}

func TestWriteDataChunksAtMaxProgCtoMinusTwo(t *testing.T) {
	var chunkSizes []int
	p := newFakePort(t, func(cmd port.Packet) (port.Packet, bool) {
		if cmd.Data[0] == cmdProgram {
			chunkSizes = append(chunkSizes, int(cmd.Data[1]))
			return pkt(pidPositive), true
		}
		return connectOK(cmd)
	})
	l := NewLoader(nil)
	require.NoError(t, l.Init(p, fastSettings()))
	defer l.Terminate()
	require.NoError(t, l.Start())

	data := make([]byte, 300) // max_prog_cto=0xF8=248 -> payload=246: one full chunk, then the 54-byte rest
	require.NoError(t, l.WriteData(0x1000, data))
	assert.Equal(t, []int{246, 54}, chunkSizes)
}

func TestClearMemoryRequiresProgrammingState(t *testing.T) {
	l := NewLoader(nil)
	p := newFakePort(t, connectOK)
	require.NoError(t, l.Init(p, fastSettings()))
	defer l.Terminate()

	err := l.ClearMemory(0, 16)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestStopWithoutResponseToProgramResetSucceeds(t *testing.T) {
	p := newFakePort(t, connectOK) // connectOK drops PROGRAM_RESET responses
	l := NewLoader(nil)
	require.NoError(t, l.Init(p, fastSettings()))
	defer l.Terminate()
	require.NoError(t, l.Start())

	err := l.Stop()
	assert.NoError(t, err)
	assert.False(t, l.session.Connected)
}

func TestStopOnDisconnectedSessionIsNoop(t *testing.T) {
	p := newFakePort(t, connectOK)
	l := NewLoader(nil)
	require.NoError(t, l.Init(p, fastSettings()))
	defer l.Terminate()

	assert.NoError(t, l.Stop())
}
