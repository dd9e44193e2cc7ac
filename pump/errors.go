package pump

import (
	"fmt"
)

// ErrProtocolViolation means a collaborator was driven (or behaved) out of
// the order the buffer-exchange contract allows.
type ErrProtocolViolation struct {
	Stage  string
	Reason string
	Err    error
}

func (e ErrProtocolViolation) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol violation at stage '%s': %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("protocol violation at stage '%s': %s: %v", e.Stage, e.Reason, e.Err)
}

func (e ErrProtocolViolation) Unwrap() error {
	return e.Err
}

// ErrIO is a failure to read the input.
type ErrIO struct {
	Op  string
	Err error
}

func (e ErrIO) Error() string {
	return fmt.Sprintf("I/O error on '%s': %v", e.Op, e.Err)
}

func (e ErrIO) Unwrap() error {
	return e.Err
}

// ErrDevice is an error returned by a codec device or by the muxer itself.
type ErrDevice struct {
	Stage string
	Op    string
	Err   error
}

func (e ErrDevice) Error() string {
	return fmt.Sprintf("stage '%s' failed to %s: %v", e.Stage, e.Op, e.Err)
}

func (e ErrDevice) Unwrap() error {
	return e.Err
}
