package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/roc/lib/command"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// PingResponse is the liveness message answered by a user session.
const PingResponse = "Server Running!"

// IStore is the client facing interface of the per-user key-value store.
// Every operation except Hi is scoped to a user id obtained from Hi.
// Keys of different users never interfere.
type IStore interface {
	// Hi registers a client. If userID is known it is returned unchanged, otherwise
	// (including an empty userID) a fresh id is minted and returned.
	Hi(userID string) (assigned string, err error)
	// Ping checks that the user's session is alive.
	Ping(userID string) (response string, err error)
	// Set inserts or overwrites the value for the user's key.
	Set(userID, key string, value uint64) (err error)
	// Get returns the value for the user's key. The boolean return value indicates whether a value for the key was found.
	Get(userID, key string) (value uint64, loaded bool, err error)
	// Delete removes the user's key. Deleting an absent key succeeds.
	Delete(userID, key string) (err error)
	// Update behaves exactly like Set.
	Update(userID, key string, value uint64) (err error)
	// Range returns the user's entries with start <= key <= end in ascending key order.
	Range(userID, start, end string) (entries []command.Entry, err error)
	// List returns all entries of the user in ascending key order.
	List(userID string) (entries []command.Entry, err error)
	// Exit notifies the server that the client is leaving. The user id stays valid.
	Exit(userID string) (err error)
}

// ErrClosed is returned when a command is sent to an actor that has stopped.
var ErrClosed = errors.New("store closed")

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	err  error   // optional cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the cause of the error, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// NewError creates a new store Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new store Error with the given code that wraps err.
func WrapError(code RetCode, msg string, err error) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf("%s: %v", msg, err),
		err:  err,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCIOError                         // 2: The write-ahead log or a snapshot could not be written.
	RetCInvalidOperation                // 3: Invalid operation.
	RetCUnavailable                     // 4: The server is shutting down or overloaded.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCIOError:
		return "IOError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCUnavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Dispatcher
// --------------------------------------------------------------------------

// Dispatcher delivers a command to the actor responsible for it. Delivery only enqueues,
// the answer arrives on the command's reply channel.
type Dispatcher interface {
	Route(ctx context.Context, cmd command.Command) error
}
