// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

// Message is one frame queued for every connected client.
type Message struct {
	Data []byte
}

// NewMessage creates a message from pre-encoded JSON bytes
func NewMessage(data []byte) Message {
	return Message{Data: data}
}
