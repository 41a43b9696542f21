package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/roc/lib/command"
)

// --------------------------------------------------------------------------
// Request
// --------------------------------------------------------------------------

// CommandName is the value of the `command` discriminator on the wire.
type CommandName string

const (
	CmdHi     CommandName = "HI"
	CmdPing   CommandName = "PING"
	CmdSet    CommandName = "SET"
	CmdGet    CommandName = "GET"
	CmdDel    CommandName = "DEL"
	CmdUpdate CommandName = "UPDATE"
	CmdRange  CommandName = "RANGE"
	CmdList   CommandName = "LIST"
	CmdExit   CommandName = "EXIT"
)

// ErrInvalidRequest prefixes every decoding or validation failure of a request.
var ErrInvalidRequest = errors.New("invalid request")

// Request is a single client request, encoded as one JSON object per line.
// Which fields are used depends on the command. Pointer fields distinguish
// missing fields from zero values.
type Request struct {
	Command CommandName `json:"command"`
	UserID  *string     `json:"user_id,omitempty"` // all but HI (optional there)
	Key     *string     `json:"key,omitempty"`     // SET, GET, DEL, UPDATE
	Value   *uint64     `json:"value,omitempty"`   // SET, UPDATE
	Start   *string     `json:"start,omitempty"`   // RANGE
	End     *string     `json:"end,omitempty"`     // RANGE
}

// NewHiRequest creates a HI request, an empty userID asks the server for a new one
func NewHiRequest(userID string) *Request {
	req := &Request{Command: CmdHi}
	if userID != "" {
		req.UserID = &userID
	}
	return req
}

// NewPingRequest creates a PING request
func NewPingRequest(userID string) *Request {
	return &Request{Command: CmdPing, UserID: &userID}
}

// NewSetRequest creates a SET request
func NewSetRequest(userID, key string, value uint64) *Request {
	return &Request{Command: CmdSet, UserID: &userID, Key: &key, Value: &value}
}

// NewGetRequest creates a GET request
func NewGetRequest(userID, key string) *Request {
	return &Request{Command: CmdGet, UserID: &userID, Key: &key}
}

// NewDelRequest creates a DEL request
func NewDelRequest(userID, key string) *Request {
	return &Request{Command: CmdDel, UserID: &userID, Key: &key}
}

// NewUpdateRequest creates an UPDATE request
func NewUpdateRequest(userID, key string, value uint64) *Request {
	return &Request{Command: CmdUpdate, UserID: &userID, Key: &key, Value: &value}
}

// NewRangeRequest creates a RANGE request over the inclusive interval [start, end]
func NewRangeRequest(userID, start, end string) *Request {
	return &Request{Command: CmdRange, UserID: &userID, Start: &start, End: &end}
}

// NewListRequest creates a LIST request
func NewListRequest(userID string) *Request {
	return &Request{Command: CmdList, UserID: &userID}
}

// NewExitRequest creates an EXIT request
func NewExitRequest(userID string) *Request {
	return &Request{Command: CmdExit, UserID: &userID}
}

// UserIDOrEmpty returns the user id or "" if absent
func (r *Request) UserIDOrEmpty() string {
	if r.UserID == nil {
		return ""
	}
	return *r.UserID
}

// Validate checks that every field the command needs is present.
func (r *Request) Validate() error {
	need := func(present bool, field string) error {
		if !present {
			return fmt.Errorf("%w: %s requires field %q", ErrInvalidRequest, r.Command, field)
		}
		return nil
	}

	switch r.Command {
	case CmdHi:
		return nil
	case CmdPing, CmdList, CmdExit:
		return need(r.UserID != nil, "user_id")
	case CmdGet, CmdDel:
		return errors.Join(need(r.UserID != nil, "user_id"), need(r.Key != nil, "key"))
	case CmdSet, CmdUpdate:
		return errors.Join(need(r.UserID != nil, "user_id"), need(r.Key != nil, "key"), need(r.Value != nil, "value"))
	case CmdRange:
		return errors.Join(need(r.UserID != nil, "user_id"), need(r.Start != nil, "start"), need(r.End != nil, "end"))
	case "":
		return fmt.Errorf("%w: missing field \"command\"", ErrInvalidRequest)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidRequest, r.Command)
	}
}

// EncodeRequest encodes a request as a single JSON line (without the newline)
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes and validates a request line.
func DecodeRequest(data []byte) (*Request, error) {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimSpace(data)))
	dec.DisallowUnknownFields()

	var req Request
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after request object", ErrInvalidRequest)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// --------------------------------------------------------------------------
// Response
// --------------------------------------------------------------------------

// Response is the reply to a single request. Exactly one of the fields is set:
//
//	HI             {"user_id": "..."}
//	PING           {"response": "..."}
//	SET/DEL/...    {"Ok": null}
//	GET            {"Ok": 5} or {"Ok": null}
//	LIST/RANGE     {"Ok": [[["user","key"],5], ...]}
//	any failure    {"Err": "..."}
type Response struct {
	UserID   *string         `json:"user_id,omitempty"`
	Response *string         `json:"response,omitempty"`
	Ok       json.RawMessage `json:"Ok,omitempty"`
	Err      *string         `json:"Err,omitempty"`
}

// WireEntry is a LIST/RANGE element, encoded as [[user_id, key], value].
type WireEntry struct {
	UserID string
	Key    string
	Value  uint64
}

func (e WireEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{[2]string{e.UserID, e.Key}, e.Value})
}

func (e *WireEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("entry must have 2 elements, got %d", len(raw))
	}
	var id [2]string
	if err := json.Unmarshal(raw[0], &id); err != nil {
		return fmt.Errorf("entry id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Value); err != nil {
		return fmt.Errorf("entry value: %w", err)
	}
	e.UserID, e.Key = id[0], id[1]
	return nil
}

var okNull = json.RawMessage("null")

// NewErrorResponse creates a response carrying only an error message
func NewErrorResponse(msg string) *Response {
	return &Response{Err: &msg}
}

func errResponse(err error) *Response {
	return NewErrorResponse(err.Error())
}

// NewHiResponse creates a HI response
func NewHiResponse(userID string, err error) *Response {
	if err != nil {
		return errResponse(err)
	}
	return &Response{UserID: &userID}
}

// NewPingResponse creates a PING response
func NewPingResponse(resp string, err error) *Response {
	if err != nil {
		return errResponse(err)
	}
	return &Response{Response: &resp}
}

// NewAckResponse creates the response of SET, DEL, UPDATE and EXIT
func NewAckResponse(err error) *Response {
	if err != nil {
		return errResponse(err)
	}
	return &Response{Ok: okNull}
}

// NewGetResponse creates a GET response
func NewGetResponse(value uint64, found bool, err error) *Response {
	if err != nil {
		return errResponse(err)
	}
	if !found {
		return &Response{Ok: okNull}
	}
	return &Response{Ok: json.RawMessage(fmt.Sprintf("%d", value))}
}

// NewEntriesResponse creates a LIST or RANGE response
func NewEntriesResponse(entries []command.Entry, err error) *Response {
	if err != nil {
		return errResponse(err)
	}
	wire := make([]WireEntry, len(entries))
	for i, e := range entries {
		wire[i] = WireEntry{UserID: e.UserID, Key: e.Key, Value: e.Value}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return errResponse(err)
	}
	return &Response{Ok: data}
}

// AsError returns the error carried by the response, if any
func (r *Response) AsError() error {
	if r.Err != nil {
		return errors.New(*r.Err)
	}
	return nil
}

// OkValue interprets Ok as the result of GET.
func (r *Response) OkValue() (value uint64, found bool, err error) {
	if err := r.AsError(); err != nil {
		return 0, false, err
	}
	if len(r.Ok) == 0 {
		return 0, false, fmt.Errorf("response has no Ok field")
	}
	if bytes.Equal(r.Ok, okNull) {
		return 0, false, nil
	}
	if err := json.Unmarshal(r.Ok, &value); err != nil {
		return 0, false, fmt.Errorf("invalid GET result: %w", err)
	}
	return value, true, nil
}

// OkEntries interprets Ok as the result of LIST or RANGE.
func (r *Response) OkEntries() ([]command.Entry, error) {
	if err := r.AsError(); err != nil {
		return nil, err
	}
	if len(r.Ok) == 0 {
		return nil, fmt.Errorf("response has no Ok field")
	}
	var wire []WireEntry
	if err := json.Unmarshal(r.Ok, &wire); err != nil {
		return nil, fmt.Errorf("invalid entry list: %w", err)
	}
	entries := make([]command.Entry, len(wire))
	for i, e := range wire {
		entries[i] = command.Entry{UserID: e.UserID, Key: e.Key, Value: e.Value}
	}
	return entries, nil
}

// OkAck checks that the response is a plain acknowledgement.
func (r *Response) OkAck() error {
	if err := r.AsError(); err != nil {
		return err
	}
	if len(r.Ok) == 0 {
		return fmt.Errorf("response has no Ok field")
	}
	return nil
}

// EncodeResponse encodes a response as a single JSON line (without the newline)
func EncodeResponse(resp *Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// only reachable with a corrupt Ok payload
		data, _ = json.Marshal(NewErrorResponse(fmt.Sprintf("failed to encode response: %v", err)))
	}
	return data
}

// DecodeResponse decodes a response line.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(data), &resp); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return &resp, nil
}
