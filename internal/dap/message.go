package dap

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-dap"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Protocol message kinds.
const (
	KindRequest  = "request"
	KindResponse = "response"
	KindEvent    = "event"
)

// Message is one raw DAP protocol message as it appears on the wire, without
// the Content-Length header. Messages are relayed as bytes so that requests
// and events this module does not know about pass through unchanged.
type Message []byte

// Kind returns "request", "response" or "event".
func (m Message) Kind() string { return gjson.GetBytes(m, "type").String() }

// Seq returns the sequence number.
func (m Message) Seq() int { return int(gjson.GetBytes(m, "seq").Int()) }

// Command returns the command of a request or response.
func (m Message) Command() string { return gjson.GetBytes(m, "command").String() }

// Event returns the event name of an event.
func (m Message) Event() string { return gjson.GetBytes(m, "event").String() }

// RequestSeq returns the request_seq of a response.
func (m Message) RequestSeq() int { return int(gjson.GetBytes(m, "request_seq").Int()) }

// Success reports the success flag of a response.
func (m Message) Success() bool { return gjson.GetBytes(m, "success").Bool() }

// ErrorMessage returns the message of a failed response.
func (m Message) ErrorMessage() string { return gjson.GetBytes(m, "message").String() }

// Arguments returns the raw arguments of a request, or nil.
func (m Message) Arguments() json.RawMessage { return raw(m, "arguments") }

// Body returns the raw body of a response or event, or nil.
func (m Message) Body() json.RawMessage { return raw(m, "body") }

// Get returns the value at a gjson path.
func (m Message) Get(path string) gjson.Result { return gjson.GetBytes(m, path) }

// IsRequest reports whether m is a request for command.
func (m Message) IsRequest(command string) bool {
	return m.Kind() == KindRequest && m.Command() == command
}

// Valid reports whether m is a JSON object with a known message kind.
func (m Message) Valid() bool {
	if !gjson.ValidBytes(m) {
		return false
	}
	switch m.Kind() {
	case KindRequest, KindResponse, KindEvent:
		return true
	}
	return false
}

// WithSeq returns a copy of m with its seq replaced.
func (m Message) WithSeq(seq int) (Message, error) {
	out, err := sjson.SetBytes(append(Message(nil), m...), "seq", seq)
	if err != nil {
		return nil, fmt.Errorf("failed to set seq: %w", err)
	}
	return out, nil
}

// Decode parses m into a typed go-dap message.
func (m Message) Decode() (dap.Message, error) {
	return dap.DecodeProtocolMessage(m)
}

// String returns the message as text, for logging.
func (m Message) String() string { return string(m) }

func raw(m Message, path string) json.RawMessage {
	r := gjson.GetBytes(m, path)
	if !r.Exists() {
		return nil
	}
	return json.RawMessage(r.Raw)
}

// FromDAP encodes a typed go-dap message.
func FromDAP(msg dap.Message) (Message, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode DAP message: %w", err)
	}
	return b, nil
}

type request struct {
	dap.Request
	Arguments interface{} `json:"arguments,omitempty"`
}

type response struct {
	dap.Response
	Body interface{} `json:"body,omitempty"`
}

type eventMessage struct {
	dap.Event
	Body interface{} `json:"body,omitempty"`
}

// NewRequest builds a request message.
func NewRequest(seq int, command string, args interface{}) (Message, error) {
	return encode(request{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: KindRequest},
			Command:         command,
		},
		Arguments: args,
	})
}

// NewResponse builds the response to req. A failed response carries message.
func NewResponse(req Message, seq int, success bool, message string, body interface{}) (Message, error) {
	r := response{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: KindResponse},
			RequestSeq:      req.Seq(),
			Success:         success,
			Command:         req.Command(),
		},
		Body: body,
	}
	if !success {
		r.Message = message
	}
	return encode(r)
}

// NewEvent builds an event message.
func NewEvent(seq int, name string, body interface{}) (Message, error) {
	return encode(eventMessage{
		Event: dap.Event{
			ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: KindEvent},
			Event:           name,
		},
		Body: body,
	})
}

func encode(v interface{}) (Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode DAP message: %w", err)
	}
	return b, nil
}
