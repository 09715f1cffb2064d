package v1

import (
	"encoding/json"
	"testing"
)

func TestFrameValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		frame   Frame
		wantErr bool
	}{
		{"connect ok", Frame{Type: TypeConnect, SchemaName: "acme", WSBaseURL: "wss://api.example.com"}, false},
		{"connect missing schema", Frame{Type: TypeConnect, WSBaseURL: "wss://api.example.com"}, true},
		{"connect missing base url", Frame{Type: TypeConnect, SchemaName: "acme"}, true},
		{"connect blank schema", Frame{Type: TypeConnect, SchemaName: "  ", WSBaseURL: "wss://api.example.com"}, true},
		{"send ok", Frame{Type: TypeSend, SchemaName: "acme", Message: json.RawMessage(`{"text":"hi"}`)}, false},
		{"send missing message", Frame{Type: TypeSend, SchemaName: "acme"}, true},
		{"send missing schema", Frame{Type: TypeSend, Message: json.RawMessage(`"hi"`)}, true},
		{"disconnect ok", Frame{Type: TypeDisconnect, SchemaName: "acme"}, false},
		{"disconnect missing schema", Frame{Type: TypeDisconnect}, true},
		{"empty type", Frame{}, true},
		{"unknown type", Frame{Type: "PING", SchemaName: "acme"}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.frame.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestSocketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		baseURL string
		schema  string
		want    string
	}{
		{"plain", "wss://api.example.com", "acme", "wss://api.example.com/ws/website/acme/"},
		{"trailing slash", "wss://api.example.com/", "acme", "wss://api.example.com/ws/website/acme/"},
		{"padded inputs", "  wss://api.example.com  ", " acme ", "wss://api.example.com/ws/website/acme/"},
		{"with port", "ws://localhost:8080", "dev_site", "ws://localhost:8080/ws/website/dev_site/"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SocketURL(tt.baseURL, tt.schema); got != tt.want {
				t.Fatalf("SocketURL(%q, %q) = %q, want %q", tt.baseURL, tt.schema, got, tt.want)
			}
		})
	}
}
