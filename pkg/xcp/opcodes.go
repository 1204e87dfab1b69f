package xcp

// Command opcodes used by this loader (exact byte values per XCP 1.0).
const (
	cmdConnect      byte = 0xFF
	cmdGetStatus    byte = 0xFD
	cmdSetMta       byte = 0xF6
	cmdUnlock       byte = 0xF7
	cmdGetSeed      byte = 0xF8
	cmdShortUpload  byte = 0xF4
	cmdUpload       byte = 0xF5
	cmdProgramStart byte = 0xD2
	cmdProgramClear byte = 0xD1
	cmdProgram      byte = 0xD0
	cmdProgramReset byte = 0xCF
)

// Response PIDs.
const (
	pidPositive byte = 0xFF
	pidError    byte = 0xFE
)

// MaxPacketSize is the compile-time packet ceiling (matches
// port.MaxPacketSize; restated here so the loader's size checks read
// standalone).
const MaxPacketSize = 255

// resourcePGM is the programming-resource protection bit in the
// GET_STATUS response's current resource-protection byte.
const resourcePGM byte = 0x10
