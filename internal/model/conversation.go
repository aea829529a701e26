package model

import "time"

// Role identifies who authored a message in a thread.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn entry in a thread's conversation.
type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Exchange pairs a user message with the assistant reply that followed it.
// Prompts render history as exchanges.
type Exchange struct {
	User      string
	Assistant string
}

// Exchanges folds messages into user/assistant pairs, in order.
// A trailing user message without a reply is returned with an empty Assistant.
func Exchanges(messages []Message) []Exchange {
	var out []Exchange
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			out = append(out, Exchange{User: m.Text})
		case RoleAssistant:
			if len(out) == 0 || out[len(out)-1].Assistant != "" {
				out = append(out, Exchange{Assistant: m.Text})
				continue
			}
			out[len(out)-1].Assistant = m.Text
		}
	}
	return out
}
