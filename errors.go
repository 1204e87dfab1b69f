package xcpflash

import "errors"

// ErrNotInitialized is returned by Library methods called before the
// matching *Init call (PortInit, FirmwareInit, SessionInit), and by
// PortInit and FirmwareInit themselves for a nil port or an unknown
// reader type. FirmwareTerminate and SessionTerminate return nil when
// nothing was initialized.
var ErrNotInitialized = errors.New("xcpflash: component not initialized")

// FatalHook is an optional callback invoked whenever a Library method is
// about to return an error. It is the re-expression of the source's
// assertion-hook-plus-halt pattern: the core never halts itself, it only
// gives the application a place to observe the failure before the
// ordinary error return reaches it.
type FatalHook func(err error)
