package types

import "encoding/json"

type MessageType string

const (
	MessageUser   MessageType = "user"
	MessageAgent  MessageType = "agent"
	MessageSystem MessageType = "system"
	MessageTool   MessageType = "tool"
)

// Message is one turn in a live conversation. CreatedAt is unix seconds to
// match the wire format of the intra-session log.
type Message struct {
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	CreatedAt float64     `json:"created_at,omitempty"`
}

func (m Message) Encode() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func DecodeMessage(raw string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Message{}, err
	}
	return m, nil
}
