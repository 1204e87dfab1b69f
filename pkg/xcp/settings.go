package xcp

import "time"

// Settings is the configuration recognized by the XCP protocol engine.
// Timeouts are time.Duration, the idiom the teacher uses for
// lss.DefaultTimeout, rather than the raw millisecond integers of
// spec.md §3 (same values, Go-native type).
type Settings struct {
	T1 time.Duration // command-response timeout
	T3 time.Duration // program-start timeout
	T4 time.Duration // erase timeout
	T5 time.Duration // program / reset timeout
	T6 time.Duration // connect-response timeout
	T7 time.Duration // busy-wait timeout

	// ConnectMode is placed in the CONNECT command; used as a node id
	// on multi-drop transports.
	ConnectMode byte

	// SeedKeyEnabled gates the seed/key unlock sequence. The opcodes
	// are standard XCP 1.0 (GET_SEED/UNLOCK); only the key-derivation
	// function itself was left TBD by spec.md, so this defaults to
	// false. When set, Port.SeedToKey must return a key; an error or a
	// nil key makes Start fail with ErrResourceLocked.
	SeedKeyEnabled bool
}

// DefaultSettings returns conservative timeouts suitable for a CAN
// transport at typical bitrates.
func DefaultSettings() Settings {
	return Settings{
		T1: 1000 * time.Millisecond,
		T3: 2000 * time.Millisecond,
		T4: 5000 * time.Millisecond,
		T5: 2000 * time.Millisecond,
		T6: 1000 * time.Millisecond,
		T7: 2000 * time.Millisecond,
	}
}

// connectAttempts is the number of CONNECT attempts per spec.md §4.2.
const connectAttempts = 5

// Session is the process-wide state of the protocol engine, reset on
// disconnect.
type Session struct {
	Connected         bool
	SlaveLittleEndian bool
	MaxCto            uint8
	MaxProgCto        uint8
	MaxDto            uint8
}

func (s *Session) reset() {
	*s = Session{}
}
