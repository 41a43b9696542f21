package command

import (
	"errors"
	"fmt"
)

// ErrUnknownType is returned when a command or record type cannot be interpreted.
var ErrUnknownType = errors.New("unknown command type")

// Type identifies the kind of Command.
type Type uint8

const (
	TypeHi Type = iota + 1
	TypePing
	TypeSet
	TypeGet
	TypeDel
	TypeUpdate
	TypeRange
	TypeList
	TypeExit
	TypePersist
	TypeClearLog
)

func (t Type) String() string {
	switch t {
	case TypeHi:
		return "Hi"
	case TypePing:
		return "Ping"
	case TypeSet:
		return "Set"
	case TypeGet:
		return "Get"
	case TypeDel:
		return "Del"
	case TypeUpdate:
		return "Update"
	case TypeRange:
		return "Range"
	case TypeList:
		return "List"
	case TypeExit:
		return "Exit"
	case TypePersist:
		return "Persist"
	case TypeClearLog:
		return "ClearLog"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// Entry is a single (user, key, value) triple as returned by Range and List.
type Entry struct {
	UserID string
	Key    string
	Value  uint64
}

// Lookup is the result of a Get. Found is false if the key is absent.
type Lookup struct {
	Value uint64
	Found bool
}

// --------------------------------------------------------------------------
// Command variants
// --------------------------------------------------------------------------

// Command is a message handled by one of the server actors. The set of variants is closed.
type Command interface {
	// Type returns the kind of the command.
	Type() Type
	// Fail answers the command with an error.
	Fail(err error)
	isCommand()
}

// UserCommand is a Command addressed to a single user's session.
type UserCommand interface {
	Command
	User() string
}

// Hi registers a user. If UserID is empty or unknown a fresh id is minted.
type Hi struct {
	UserID string
	Reply  Reply[string]
}

// Ping is answered by the user's session with a liveness message.
type Ping struct {
	UserID string
	Reply  Reply[string]
}

// Set stores value under (UserID, Key), overwriting any existing value.
type Set struct {
	UserID string
	Key    string
	Value  uint64
	Reply  Reply[Ack]
}

// Get looks up (UserID, Key).
type Get struct {
	UserID string
	Key    string
	Reply  Reply[Lookup]
}

// Del removes (UserID, Key). Deleting an absent key succeeds.
type Del struct {
	UserID string
	Key    string
	Reply  Reply[Ack]
}

// Update behaves exactly like Set.
type Update struct {
	UserID string
	Key    string
	Value  uint64
	Reply  Reply[Ack]
}

// Range returns the user's entries with Start <= key <= End in ascending key order.
type Range struct {
	UserID string
	Start  string
	End    string
	Reply  Reply[[]Entry]
}

// List returns all entries of the user in ascending key order.
type List struct {
	UserID string
	Reply  Reply[[]Entry]
}

// Exit is acknowledged by the user's session, the session stays registered.
type Exit struct {
	UserID string
	Reply  Reply[Ack]
}

// Persist asks the engine to write a full snapshot.
type Persist struct {
	Reply Reply[Ack]
}

// ClearLog asks the engine to snapshot its state and truncate the write-ahead log.
type ClearLog struct {
	Reply Reply[Ack]
}

func (Hi) Type() Type       { return TypeHi }
func (Ping) Type() Type     { return TypePing }
func (Set) Type() Type      { return TypeSet }
func (Get) Type() Type      { return TypeGet }
func (Del) Type() Type      { return TypeDel }
func (Update) Type() Type   { return TypeUpdate }
func (Range) Type() Type    { return TypeRange }
func (List) Type() Type     { return TypeList }
func (Exit) Type() Type     { return TypeExit }
func (Persist) Type() Type  { return TypePersist }
func (ClearLog) Type() Type { return TypeClearLog }

func (c Hi) Fail(err error)       { c.Reply.Send("", err) }
func (c Ping) Fail(err error)     { c.Reply.Send("", err) }
func (c Set) Fail(err error)      { c.Reply.Send(Ack{}, err) }
func (c Get) Fail(err error)      { c.Reply.Send(Lookup{}, err) }
func (c Del) Fail(err error)      { c.Reply.Send(Ack{}, err) }
func (c Update) Fail(err error)   { c.Reply.Send(Ack{}, err) }
func (c Range) Fail(err error)    { c.Reply.Send(nil, err) }
func (c List) Fail(err error)     { c.Reply.Send(nil, err) }
func (c Exit) Fail(err error)     { c.Reply.Send(Ack{}, err) }
func (c Persist) Fail(err error)  { c.Reply.Send(Ack{}, err) }
func (c ClearLog) Fail(err error) { c.Reply.Send(Ack{}, err) }

func (c Ping) User() string   { return c.UserID }
func (c Set) User() string    { return c.UserID }
func (c Get) User() string    { return c.UserID }
func (c Del) User() string    { return c.UserID }
func (c Update) User() string { return c.UserID }
func (c Range) User() string  { return c.UserID }
func (c List) User() string   { return c.UserID }
func (c Exit) User() string   { return c.UserID }

func (Hi) isCommand()       {}
func (Ping) isCommand()     {}
func (Set) isCommand()      {}
func (Get) isCommand()      {}
func (Del) isCommand()      {}
func (Update) isCommand()   {}
func (Range) isCommand()    {}
func (List) isCommand()     {}
func (Exit) isCommand()     {}
func (Persist) isCommand()  {}
func (ClearLog) isCommand() {}

// IsStorage reports whether the command is handled by the storage engine.
// Ping and Exit are answered by the session and must never reach the engine.
func IsStorage(cmd Command) bool {
	switch cmd.Type() {
	case TypePing, TypeExit:
		return false
	default:
		return true
	}
}
