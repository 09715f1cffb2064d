package v1

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestWebhookEnvelopeValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     WebhookEnvelope
		wantErr bool
	}{
		{
			"valid with sender",
			WebhookEnvelope{Type: WebhookTypeNewMessage, Data: WebhookData{PageID: "p1", SenderID: "u1"}},
			false,
		},
		{
			"valid with conversation only",
			WebhookEnvelope{Type: WebhookTypeNewMessage, Data: WebhookData{PageID: "p1", ConversationID: "t_1"}},
			false,
		},
		{"missing type", WebhookEnvelope{Data: WebhookData{PageID: "p1", SenderID: "u1"}}, true},
		{"unsupported type", WebhookEnvelope{Type: "page_update", Data: WebhookData{PageID: "p1", SenderID: "u1"}}, true},
		{"missing page id", WebhookEnvelope{Type: WebhookTypeNewMessage, Data: WebhookData{SenderID: "u1"}}, true},
		{"blank page id", WebhookEnvelope{Type: WebhookTypeNewMessage, Data: WebhookData{PageID: " ", SenderID: "u1"}}, true},
		{"no sender or conversation", WebhookEnvelope{Type: WebhookTypeNewMessage, Data: WebhookData{PageID: "p1"}}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.env.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeMessageBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		message  string
		snippet  string
		want     MessageContent
		wantErr  bool
		shapeErr bool
	}{
		{
			name:    "string shape",
			message: `"hello there"`,
			want:    MessageContent{Text: "hello there"},
		},
		{
			name:    "object with message field",
			message: `{"id": "mid.1", "message": "obj text"}`,
			want:    MessageContent{ID: "mid.1", Text: "obj text"},
		},
		{
			name:    "object message beats text",
			message: `{"message": "primary", "text": "secondary"}`,
			want:    MessageContent{Text: "primary"},
		},
		{
			name:    "object falls back to text",
			message: `{"text": "secondary"}`,
			want:    MessageContent{Text: "secondary"},
		},
		{
			name:    "object falls back to snippet",
			message: `{"id": "mid.2"}`,
			snippet: "from snippet",
			want:    MessageContent{ID: "mid.2", Text: "from snippet"},
		},
		{
			name:    "null with snippet",
			message: `null`,
			snippet: "snippet only",
			want:    MessageContent{Text: "snippet only"},
		},
		{
			name:    "padded string shape",
			message: `  "padded"  `,
			want:    MessageContent{Text: "padded"},
		},
		{name: "null without snippet", message: `null`, wantErr: true, shapeErr: true},
		{name: "absent without snippet", message: ``, wantErr: true, shapeErr: true},
		{name: "number", message: `42`, wantErr: true, shapeErr: true},
		{name: "array", message: `["x"]`, wantErr: true, shapeErr: true},
		{name: "truncated object", message: `{"message": `, wantErr: true},
		{name: "truncated string", message: `"unterminated`, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := WebhookData{Message: json.RawMessage(tt.message), Snippet: tt.snippet}
			got, err := d.DecodeMessageBody()

			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeMessageBody() = %+v, want error", got)
				}
				if tt.shapeErr && !errors.Is(err, ErrMessageShape) {
					t.Fatalf("error = %v, want ErrMessageShape", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeMessageBody() error = %v", err)
			}
			if got.ID != tt.want.ID || got.Text != tt.want.Text {
				t.Fatalf("DecodeMessageBody() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeMessageBodyAttachments(t *testing.T) {
	t.Parallel()

	d := WebhookData{Message: json.RawMessage(`{"message": "pic", "attachments": [{"type": "image"}, {"type": "file"}]}`)}
	got, err := d.DecodeMessageBody()
	if err != nil {
		t.Fatalf("DecodeMessageBody() error = %v", err)
	}
	if len(got.Attachments) != 2 {
		t.Fatalf("attachments = %d, want 2", len(got.Attachments))
	}
}
