package inter

import (
	"errors"
	"fmt"
)

// Error kinds shared by every engine of the node. Callers match them with
// errors.Is; the transport layer maps them to JSON-RPC error codes.
var (
	// ErrNotFound reports an unknown or no longer retained block, transaction or account.
	ErrNotFound = errors.New("not found")
	// ErrInvalidReorgSpec reports a reorg request rejected before any mutation.
	ErrInvalidReorgSpec = errors.New("invalid reorg spec")
	// ErrDecode reports a wire value that matches none of the accepted shapes.
	ErrDecode = errors.New("decode error")
	// ErrExecution reports an execution failure that is not a revert.
	ErrExecution = errors.New("execution error")
)

// JSON-RPC error codes reported for each error kind.
const (
	CodeNotFound      = -32001
	CodeInvalidParams = -32602
	CodeExecution     = -32000
)

// Error is an error kind plus a human readable detail.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// ErrorCode implements the rpc.Error interface of the go-ethereum rpc server.
func (e *Error) ErrorCode() int {
	switch e.Kind {
	case ErrNotFound:
		return CodeNotFound
	case ErrInvalidReorgSpec, ErrDecode:
		return CodeInvalidParams
	default:
		return CodeExecution
	}
}

func newError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns an ErrNotFound error with the formatted detail.
func NotFound(format string, args ...interface{}) *Error {
	return newError(ErrNotFound, format, args...)
}

// InvalidReorgSpec returns an ErrInvalidReorgSpec error with the formatted detail.
func InvalidReorgSpec(format string, args ...interface{}) *Error {
	return newError(ErrInvalidReorgSpec, format, args...)
}

// DecodeError returns an ErrDecode error with the formatted detail.
func DecodeError(format string, args ...interface{}) *Error {
	return newError(ErrDecode, format, args...)
}

// ExecutionError returns an ErrExecution error with the formatted detail.
func ExecutionError(format string, args ...interface{}) *Error {
	return newError(ErrExecution, format, args...)
}

// AsError finds the typed error in err's chain. Errors of unknown kind are
// reported as execution errors, so the result always carries an RPC code.
func AsError(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: ErrExecution, Msg: err.Error()}
}
