package push

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrNotConnected = errors.New("push: not connected")

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// Event is one inbound message. Transport changes are delivered as synthetic
// "connect" and "disconnect" events.
type Event struct {
	Name string
	Data json.RawMessage
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return errors.New("push: empty event payload")
	}
	return json.Unmarshal(e.Data, v)
}

type EventCallback func(ev Event)

// Channel is the push transport the sync client depends on.
type Channel interface {
	Connect(ctx context.Context) error
	Emit(ctx context.Context, event string, data any) error
	OnEvent(cb EventCallback) int
	RemoveEventCallback(id int)
	Close(ctx context.Context) error
}
