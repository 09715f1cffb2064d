// Package v1 defines the Nepdora inbox relay wire contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between the server, the tab multiplexer, and browser clients
// to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SSE event names (wire-stable). Payloads are JSON-encoded in the data: field.
const (
	// EventConnected is sent once when a stream session opens. It carries the
	// resolved canonical subscription key so clients can confirm what they are
	// actually subscribed to.
	EventConnected = "connected"

	// EventExistingMessage replays one backlog message after connect.
	EventExistingMessage = "existing_message"
	// EventNoExistingMessages marks an explicitly empty backlog.
	EventNoExistingMessages = "no_existing_messages"

	// EventNewMessage forwards a live inbound message matching the session key.
	EventNewMessage = "new_message"
	// EventMessageUpdate forwards an in-place overwrite of a known message id.
	EventMessageUpdate = "message_update"

	// EventConversationUpdate forwards conversation-level summary changes
	// (snippet, last-updated time) independent of the raw message event.
	EventConversationUpdate = "conversation_update"

	// EventHeartbeat is emitted on a fixed interval to defeat idle-connection
	// timeouts in intermediary proxies.
	EventHeartbeat = "heartbeat"
)

// Sender describes the message author as reported by the upstream provider.
type Sender struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ProfilePic string `json:"profile_pic,omitempty"`
}

// Message is the wire form of one stored inbound message.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	Message        string            `json:"message"`
	From           Sender            `json:"from"`
	CreatedTime    string            `json:"created_time"`
	PageID         string            `json:"pageId"`
	SenderID       string            `json:"senderId"`
	Attachments    []json.RawMessage `json:"attachments,omitempty"`
}

// ConnectedPayload confirms the resolved subscription key(s) for a session.
type ConnectedPayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	PageID         string `json:"pageId"`
	SenderID       string `json:"senderId,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// NoExistingMessagesPayload marks a confirmed-empty backlog.
type NoExistingMessagesPayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	PageID         string `json:"pageId,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// ConversationUpdatePayload carries a conversation-level summary change.
type ConversationUpdatePayload struct {
	ConversationID string `json:"conversationId"`
	PageID         string `json:"pageId"`
	Snippet        string `json:"snippet"`
	UpdatedTime    string `json:"updated_time"`
	SenderID       string `json:"senderId,omitempty"`
	SenderName     string `json:"senderName,omitempty"`
}

// HeartbeatPayload carries the heartbeat timestamp.
type HeartbeatPayload struct {
	Timestamp string `json:"timestamp"`
}

// ---- Inbound webhook ----

// WebhookTypeNewMessage is the only webhook envelope type the relay ingests.
const WebhookTypeNewMessage = "new_message"

// WebhookEnvelope is the inbound webhook wrapper.
type WebhookEnvelope struct {
	Type string      `json:"type"`
	Data WebhookData `json:"data"`
}

// WebhookData is the provider-shaped message notification.
//
// Message is polymorphic on the wire: either a plain string or a structured
// object (see MessageBody). DecodeMessageBody resolves it exactly once at the
// boundary; handlers must not shape-sniff it again downstream.
type WebhookData struct {
	ConversationID string          `json:"conversation_id"`
	PageID         string          `json:"page_id"`
	SenderID       string          `json:"sender_id"`
	SenderName     string          `json:"sender_name"`
	Message        json.RawMessage `json:"message"`
	Snippet        string          `json:"snippet,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"`
}

// MessageBody is the structured variant of WebhookData.Message.
type MessageBody struct {
	ID          string            `json:"id,omitempty"`
	Message     string            `json:"message,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []json.RawMessage `json:"attachments,omitempty"`
}

// MessageContent is the decoded, canonical form of the polymorphic message field.
type MessageContent struct {
	ID          string
	Text        string
	Attachments []json.RawMessage
}

// ErrMessageShape is returned when the message field matches neither the string
// nor the object shape.
var ErrMessageShape = errors.New("message is neither a string nor an object")

// Validate performs strict structural validation for a webhook envelope.
func (e WebhookEnvelope) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}
	if e.Type != WebhookTypeNewMessage {
		return fmt.Errorf("unsupported type: %q", e.Type)
	}
	if strings.TrimSpace(e.Data.PageID) == "" {
		return errors.New("missing field: data.page_id")
	}
	if strings.TrimSpace(e.Data.SenderID) == "" && strings.TrimSpace(e.Data.ConversationID) == "" {
		return errors.New("missing field: data.sender_id or data.conversation_id")
	}
	return nil
}

// DecodeMessageBody resolves the polymorphic message field into MessageContent.
//
// Text precedence for the object shape: message -> text -> the envelope-level
// snippet. A string shape uses the string verbatim. Anything else (numbers,
// arrays, null with no snippet) is ErrMessageShape; callers reject with 400
// rather than silently defaulting to empty text.
func (d WebhookData) DecodeMessageBody() (MessageContent, error) {
	raw := bytesTrim(d.Message)

	if len(raw) == 0 || string(raw) == "null" {
		if strings.TrimSpace(d.Snippet) != "" {
			return MessageContent{Text: d.Snippet}, nil
		}
		return MessageContent{}, ErrMessageShape
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return MessageContent{}, fmt.Errorf("decode message string: %w", err)
		}
		return MessageContent{Text: s}, nil

	case '{':
		var body MessageBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return MessageContent{}, fmt.Errorf("decode message object: %w", err)
		}
		text := body.Message
		if text == "" {
			text = body.Text
		}
		if text == "" {
			text = d.Snippet
		}
		return MessageContent{ID: body.ID, Text: text, Attachments: body.Attachments}, nil

	default:
		return MessageContent{}, ErrMessageShape
	}
}

func bytesTrim(b []byte) []byte {
	return []byte(strings.TrimSpace(string(b)))
}
