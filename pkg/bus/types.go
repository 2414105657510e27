package bus

import "time"

// InboundEvent is one platform callback reduced to what routing needs.
// It is immutable once built and lives for one dispatch cycle.
type InboundEvent struct {
	UpdateID int `json:"update_id"`
	// Kind is the platform update type, e.g. "message" or "callback_query".
	Kind string `json:"kind"`
	// Discriminator selects the handler: "/cmd" for commands, the trimmed
	// text for plain messages, empty when nothing is routable.
	Discriminator string    `json:"discriminator"`
	Args          string    `json:"args,omitempty"`
	Text          string    `json:"text,omitempty"`
	ChatID        int64     `json:"chat_id"`
	SenderID      int64     `json:"sender_id"`
	Username      string    `json:"username,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

func (e InboundEvent) IsCommand() bool {
	return len(e.Discriminator) > 1 && e.Discriminator[0] == '/'
}
