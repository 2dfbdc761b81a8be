package transfer

import (
	"errors"
	"fmt"

	"github.com/vitaminmoo/blexfer/internal/protocol"
)

// Start errors. These never retry.
var (
	ErrEmptyPayload      = protocol.ErrEmptyPayload
	ErrInvalidPacketSize = protocol.ErrInvalidPacketSize
	ErrInvalidOptions    = errors.New("invalid transfer options")
	ErrBusy              = errors.New("a transfer is already active on this link")
)

// ErrCancelled is returned by Wait after Cancel.
var ErrCancelled = errors.New("transfer cancelled")

// Per-attempt failures wrapped by TransferError.
var (
	ErrTimeout     = errors.New("timed out waiting for ack")
	ErrWrongNotify = errors.New("notification rejected by verifier")
)

// Cause classifies a retryable failure.
type Cause int

const (
	// CauseWriteFailed is a write rejected by the link or completed with an error.
	CauseWriteFailed Cause = iota + 1
	// CauseTimeout is a write completion or notification that did not arrive in time.
	CauseTimeout
	// CauseWrongNotify is a notification the verifier rejected.
	CauseWrongNotify
)

func (c Cause) String() string {
	switch c {
	case CauseWriteFailed:
		return "write failed"
	case CauseTimeout:
		return "timeout"
	case CauseWrongNotify:
		return "wrong notify data"
	default:
		return fmt.Sprintf("Cause(%d)", int(c))
	}
}

// TransferError is the terminal error of a session that ran out of tries.
type TransferError struct {
	Cause Cause
	Index int
	Total int
	Tries int
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("packet %d/%d failed after %d tries (%s): %v", e.Index+1, e.Total, e.Tries, e.Cause, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
