// Package protocol defines the gateway's wire vocabulary: JSON frames with
// a required "type" field and an optional correlation "id". Inbound frames
// decode in two steps (envelope first, then per-method fields); outbound
// frames are flat maps so broadcast event data passes through unreshaped.
package protocol

import "encoding/json"

// MsgInvalidJSON is the error message for an unparseable frame.
const MsgInvalidJSON = "Invalid JSON"

// UnknownMethod formats the error message for an unrecognised frame type.
func UnknownMethod(method string) string {
	return "Unknown method: " + method
}

// Frame is one outbound JSON object. The "type" key is always present.
type Frame map[string]interface{}

// New creates a frame of the given type.
func New(frameType string) Frame {
	return Frame{"type": frameType}
}

// Set adds a field and returns the frame for chaining.
func (f Frame) Set(key string, value interface{}) Frame {
	f[key] = value
	return f
}

// WithID echoes a correlation id. Empty ids are left off the frame.
func (f Frame) WithID(id string) Frame {
	if id != "" {
		f["id"] = id
	}
	return f
}

// Type returns the frame's type string.
func (f Frame) Type() string {
	t, _ := f["type"].(string)
	return t
}

// Encode marshals the frame for the wire.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Hello is the first frame every connection receives.
func Hello(sessionID string) Frame {
	return Frame{"type": EventHello, "sessionId": sessionID}
}

// OK acknowledges a request that produces no payload.
func OK(id, method string) Frame {
	return Frame{"type": EventOK, "method": method}.WithID(id)
}

// Error builds an error reply. The id is echoed only when present.
func Error(id, message string) Frame {
	return Frame{"type": EventError, "message": message}.WithID(id)
}

// Inbound is a parsed client frame. Type and ID come from the envelope;
// Bind decodes the method's own fields from the original bytes.
type Inbound struct {
	Type string
	ID   string

	raw []byte
}

type envelope struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ParseInbound decodes the envelope of one client frame.
func ParseInbound(data []byte) (*Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &Inbound{Type: env.Type, ID: env.ID, raw: data}, nil
}

// Bind decodes the frame's fields into a method params struct.
func (in *Inbound) Bind(v interface{}) error {
	return json.Unmarshal(in.raw, v)
}
