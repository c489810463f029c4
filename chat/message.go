// Package chat holds the normalized message model and the pure transforms
// from raw wire data: record deduplication and channel membership mapping.
package chat

import "time"

// Kind discriminates the message variants.
type Kind int

const (
	// KindSend is a regular channel broadcast.
	KindSend Kind = iota
	// KindJoin marks a user joining a channel.
	KindJoin
	// KindLeave marks a user leaving a channel.
	KindLeave
	// KindTell is a direct, single-recipient message.
	KindTell
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSend:
		return "send"
	case KindJoin:
		return "join"
	case KindLeave:
		return "leave"
	case KindTell:
		return "tell"
	default:
		return "unknown"
	}
}

// Message is the canonical, deduplicated form of a chat record.
//
// Channel kinds (Send/Join/Leave) carry Channel and Recipients, the set of
// tracked users whose inbox contained a copy of this message. Tells carry
// the single Recipient instead; Recipients is nil for them.
type Message struct {
	ID        string
	Kind      Kind
	Sender    string
	Channel   string
	Recipient string
	Body      string
	Time      int64 // epoch seconds

	Recipients map[string]struct{}
}

// Timestamp returns the message time as a time.Time.
func (m *Message) Timestamp() time.Time {
	return time.Unix(m.Time, 0)
}

// SeenBy reports whether the given tracked user observed this message.
func (m *Message) SeenBy(user string) bool {
	if m.Kind == KindTell {
		return m.Recipient == user
	}
	_, ok := m.Recipients[user]
	return ok
}
