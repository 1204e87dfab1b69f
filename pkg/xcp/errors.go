package xcp

import "errors"

var (
	ErrConnectFailed     = errors.New("xcp: connect failed")
	ErrTimeout           = errors.New("xcp: command timed out")
	ErrProtocolViolation = errors.New("xcp: protocol violation")
	ErrResourceLocked    = errors.New("xcp: resource locked")
	ErrPacketTooLarge    = errors.New("xcp: packet exceeds negotiated size")
	ErrEndOfSession      = errors.New("xcp: session already terminated")
	ErrNotConnected      = errors.New("xcp: not connected")
	ErrInvalidSettings   = errors.New("xcp: settings value of wrong type")
)

// ErrorCode is the error byte of an error response (PID 0xFE) returned
// by the target, modeled on the named-integer-with-Error() idiom the teacher
// uses for CANopenError.
type ErrorCode byte

const (
	ErrCmdSynch        ErrorCode = 0x00
	ErrCmdBusy         ErrorCode = 0x10
	ErrDaqActive       ErrorCode = 0x11
	ErrPgmActive       ErrorCode = 0x12
	ErrCmdUnknown      ErrorCode = 0x20
	ErrCmdSyntax       ErrorCode = 0x21
	ErrOutOfRange      ErrorCode = 0x22
	ErrWriteProtected  ErrorCode = 0x23
	ErrAccessDenied    ErrorCode = 0x24
	ErrAccessLocked    ErrorCode = 0x25
	ErrPageNotValid    ErrorCode = 0x26
	ErrModeNotValid    ErrorCode = 0x27
	ErrSegmentNotValid ErrorCode = 0x28
	ErrSequence        ErrorCode = 0x29
	ErrDaqConfig       ErrorCode = 0x2A
	ErrMemoryOverflow  ErrorCode = 0x30
	ErrGeneric         ErrorCode = 0x31
	ErrVerify          ErrorCode = 0x32
)

var errorCodeText = map[ErrorCode]string{
	ErrCmdSynch:        "command processor synchronization",
	ErrCmdBusy:         "command was not executed",
	ErrDaqActive:       "command rejected because DAQ is running",
	ErrPgmActive:       "command rejected because PGM is running",
	ErrCmdUnknown:      "unknown command or not implemented",
	ErrCmdSyntax:       "command syntax invalid",
	ErrOutOfRange:      "command parameter out of range",
	ErrWriteProtected:  "access denied, write protected",
	ErrAccessDenied:    "access denied, insufficient access rights",
	ErrAccessLocked:    "access locked",
	ErrPageNotValid:    "selected page not valid",
	ErrModeNotValid:    "selected mode not valid",
	ErrSegmentNotValid: "selected segment not valid",
	ErrSequence:        "sequence error",
	ErrDaqConfig:       "DAQ configuration not valid",
	ErrMemoryOverflow:  "memory overflow",
	ErrGeneric:         "generic error",
	ErrVerify:          "access denied, internal verification failed",
}

func (e ErrorCode) Error() string {
	if s, ok := errorCodeText[e]; ok {
		return s
	}
	return "unknown XCP error code"
}
