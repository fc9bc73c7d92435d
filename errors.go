package audiowire

import "errors"

// ErrInvalidConfig indicates a sender or receiver configuration that
// cannot describe a working session.
var ErrInvalidConfig = errors.New("invalid session configuration")

// ErrProtocolMismatch indicates a port protocol that does not match the
// session's FEC configuration.
var ErrProtocolMismatch = errors.New("port protocol does not match session configuration")

// ErrNotConnected indicates an operation that requires a fully
// connected or bound session.
var ErrNotConnected = errors.New("session is not fully connected")

// ErrContextBusy indicates a context close attempt while sessions
// remain open.
var ErrContextBusy = errors.New("context has open sessions")

// ErrClosed indicates an operation on a closed context or session.
var ErrClosed = errors.New("object is closed")
