// Package wire holds the JSON envelope exchanged with the meeting backend.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/meetlink/internal/domain"
)

var (
	ErrEmptyType   = errors.New("message type is empty")
	ErrMissingData = errors.New("message data is missing")
	ErrMissingUser = errors.New("message user_id is missing")
)

type MessageType string

const (
	TypePing           MessageType = "ping"
	TypePong           MessageType = "pong"
	TypeMeetingJoin    MessageType = "meeting_join"
	TypeMeetingLeave   MessageType = "meeting_leave"
	TypePresenceUpdate MessageType = "presence_update"
	TypeMeetingSignal  MessageType = "meeting_signal"
)

// Presence reports whether t announces the local user's membership.
func (t MessageType) Presence() bool {
	return t == TypeMeetingJoin || t == TypeMeetingLeave
}

// Message is the envelope of every frame: {"type": ..., "data": {...}}.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

var emptyObject = json.RawMessage(`{}`)

// NewMessage marshals data into a message of type t. A nil data becomes {}.
func NewMessage(t MessageType, data any) (Message, error) {
	if t == "" {
		return Message{}, ErrEmptyType
	}
	if data == nil {
		return Message{Type: t, Data: emptyObject}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s data: %w", t, err)
	}
	return Message{Type: t, Data: raw}, nil
}

func Ping() Message { return Message{Type: TypePing, Data: emptyObject} }

func Join(id domain.UserID) Message {
	m, _ := NewMessage(TypeMeetingJoin, UserPayload{UserID: id})
	return m
}

func Leave(id domain.UserID) Message {
	m, _ := NewMessage(TypeMeetingLeave, UserPayload{UserID: id})
	return m
}

func (m Message) Encode() ([]byte, error) {
	if m.Type == "" {
		return nil, ErrEmptyType
	}
	if len(m.Data) == 0 {
		m.Data = emptyObject
	}
	return json.Marshal(m)
}

// Decode parses a frame into its envelope. The data object is left raw.
func Decode(frame []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	if m.Type == "" {
		return Message{}, ErrEmptyType
	}
	return m, nil
}

func (m Message) decodeData(v any) error {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return ErrMissingData
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", m.Type, err)
	}
	return nil
}

type UserPayload struct {
	UserID domain.UserID `json:"user_id"`
}

// User decodes the data of meeting_join / meeting_leave.
func (m Message) User() (domain.UserID, error) {
	var p UserPayload
	if err := m.decodeData(&p); err != nil {
		return "", err
	}
	if p.UserID == "" {
		return "", ErrMissingUser
	}
	return p.UserID, nil
}

type PresencePayload struct {
	OnlineUsers []domain.Participant `json:"online_users"`
}

// Presence decodes the data of presence_update. Entries without user_id are skipped.
func (m Message) Presence() ([]domain.Participant, error) {
	var p PresencePayload
	if err := m.decodeData(&p); err != nil {
		return nil, err
	}
	out := make([]domain.Participant, 0, len(p.OnlineUsers))
	for _, u := range p.OnlineUsers {
		if u.UserID == "" {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}
