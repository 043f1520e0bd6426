// Package realtime implements the client side of the destination-based
// messaging protocol used by the chat service: JSON frames over a
// websocket, routed by destination path.
package realtime

import "encoding/json"

// Frame types exchanged with the chat service.
const (
	FrameConnect     = "CONNECT"
	FrameConnected   = "CONNECTED"
	FrameSubscribe   = "SUBSCRIBE"
	FrameUnsubscribe = "UNSUBSCRIBE"
	FrameSend        = "SEND"
	FrameMessage     = "MESSAGE"
	FrameError       = "ERROR"
)

// Frame is one protocol unit on the wire. Body is raw JSON so the
// transport never needs to know the shape of application payloads.
type Frame struct {
	Type        string          `json:"type"`
	ID          string          `json:"id,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`

	// Message carries the error text on ERROR frames.
	Message string `json:"message,omitempty"`
}

// Encode serializes the frame for the wire.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame parses a frame received from the wire.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
