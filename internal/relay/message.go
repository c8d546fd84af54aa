package relay

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// MillisTime is a UTC timestamp carried on the wire as integer milliseconds
// since the Unix epoch.
type MillisTime time.Time

func (t MillisTime) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, time.Time(t).UnixMilli(), 10), nil
}

func (t *MillisTime) UnmarshalJSON(data []byte) error {
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	*t = MillisTime(time.UnixMilli(ms).UTC())
	return nil
}

func (t MillisTime) Time() time.Time { return time.Time(t) }

// ChatMessage is one message in flight. It is immutable once decoded and is
// shared by pointer between every fan-out target.
type ChatMessage struct {
	Recipient string     `json:"recipient" validate:"required"`
	Sender    string     `json:"sender"    validate:"required"`
	Text      string     `json:"text"`
	Time      MillisTime `json:"time"`
}

var validate = validator.New()

// DecodeChatMessage parses an inbound frame payload. A frame that does not
// parse, or that is missing recipient or sender, is malformed.
func DecodeChatMessage(data []byte) (*ChatMessage, error) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := validate.Struct(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EventType tags the outbound envelope.
type EventType string

const (
	EventChatMessage        EventType = "ChatMessage"
	EventAddUser            EventType = "AddUser"
	EventRemoveUser         EventType = "RemoveUser"
	EventSynchronizeMessage EventType = "SynchronizeMessage"
)

// OutboundEvent is the envelope written to a session's transport. Message is
// set for ChatMessage/SynchronizeMessage, Name for AddUser/RemoveUser.
type OutboundEvent struct {
	Type    EventType    `json:"type"`
	Message *ChatMessage `json:"message,omitempty"`
	Name    string       `json:"name,omitempty"`
}

func deliveredEvent(msg *ChatMessage) OutboundEvent {
	return OutboundEvent{Type: EventChatMessage, Message: msg}
}

func syncEchoEvent(msg *ChatMessage) OutboundEvent {
	return OutboundEvent{Type: EventSynchronizeMessage, Message: msg}
}

func contactAddedEvent(name string) OutboundEvent {
	return OutboundEvent{Type: EventAddUser, Name: name}
}

func contactRemovedEvent(name string) OutboundEvent {
	return OutboundEvent{Type: EventRemoveUser, Name: name}
}
