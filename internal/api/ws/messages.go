package ws

import (
	"time"

	"github.com/GriffinCanCode/proxyview/internal/navigation"
	"github.com/bytedance/sonic"
)

// Inbound message types
const (
	TypeNavigate     = "navigate"
	TypeBack         = "back"
	TypeForward      = "forward"
	TypeReload       = "reload"
	TypeOpenExternal = "open_external"
	TypePing         = "ping"
)

// Outbound message types
const (
	TypeHello = "hello"
	TypeState = "state"
	TypePong  = "pong"
	TypeError = "error"
)

// Command is a message from the shell
type Command struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// Frame is a message to the shell
type Frame struct {
	Type      string               `json:"type"`
	State     *navigation.Snapshot `json:"state,omitempty"`
	ClientID  string               `json:"client_id,omitempty"`
	Message   string               `json:"message,omitempty"`
	Timestamp int64                `json:"timestamp"`
}

// inboundLabel bounds metric label values to the known command types
func inboundLabel(t string) string {
	switch t {
	case TypeNavigate, TypeBack, TypeForward, TypeReload, TypeOpenExternal, TypePing:
		return t
	}
	return "unknown"
}

func stateFrame(snap navigation.Snapshot) Frame {
	return Frame{Type: TypeState, State: &snap, Timestamp: time.Now().Unix()}
}

func errorFrame(msg string) Frame {
	return Frame{Type: TypeError, Message: msg, Timestamp: time.Now().Unix()}
}

func encode(f Frame) ([]byte, error) {
	return sonic.Marshal(f)
}

func decode(data []byte) (Command, error) {
	var cmd Command
	err := sonic.Unmarshal(data, &cmd)
	return cmd, err
}
