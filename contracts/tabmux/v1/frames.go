// Package v1 defines the tab multiplexer control protocol.
//
// Frames travel between an attached tab (port) and the multiplexer that owns
// at most one upstream WebSocket per tenant. The protocol is shared with the
// browser shared-worker implementation and is wire-stable.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound frame types (port -> mux).
const (
	// TypeConnect registers the port under a tenant and opens the upstream
	// socket if none is live.
	TypeConnect = "CONNECT"
	// TypeSend forwards a message verbatim over the tenant's open socket.
	TypeSend = "SEND"
	// TypeDisconnect detaches the port; the last detach closes the socket.
	TypeDisconnect = "DISCONNECT"
)

// Outbound frame types (mux -> every attached port).
const (
	TypeConnected    = "CONNECTED"
	TypeDisconnected = "DISCONNECTED"
	TypeError        = "ERROR"
	TypeMessage      = "MESSAGE"
)

// Frame is the canonical control frame between a port and the multiplexer.
type Frame struct {
	Type       string          `json:"type"`
	SchemaName string          `json:"schema_name,omitempty"`
	WSBaseURL  string          `json:"wsBaseUrl,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Validate performs structural validation for an inbound frame.
func (f Frame) Validate() error {
	switch f.Type {
	case TypeConnect:
		if strings.TrimSpace(f.SchemaName) == "" {
			return errors.New("missing field: schema_name")
		}
		if strings.TrimSpace(f.WSBaseURL) == "" {
			return errors.New("missing field: wsBaseUrl")
		}
		return nil
	case TypeSend:
		if strings.TrimSpace(f.SchemaName) == "" {
			return errors.New("missing field: schema_name")
		}
		if len(f.Message) == 0 {
			return errors.New("missing field: message")
		}
		return nil
	case TypeDisconnect:
		if strings.TrimSpace(f.SchemaName) == "" {
			return errors.New("missing field: schema_name")
		}
		return nil
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", f.Type)
	}
}

// SocketURL builds the upstream socket URL for a tenant:
// {wsBaseUrl}/ws/website/{schema_name}/.
func SocketURL(wsBaseURL, schemaName string) string {
	return strings.TrimRight(strings.TrimSpace(wsBaseURL), "/") + "/ws/website/" + strings.TrimSpace(schemaName) + "/"
}
