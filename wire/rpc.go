// Package wire contains the request and response shapes of the Chatter
// JSON-over-HTTPS API. Each RPC method gets its own typed pair; the raw
// record decode happens here, once, at the transport boundary.
package wire

// Envelope is the common part of every Chatter response. A response whose
// Success flag is false (or absent) is an application-level rejection and
// Error carries the server-supplied message.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TokenRequest exchanges a short-lived pass for a chat token.
type TokenRequest struct {
	Pass string `json:"pass"`
}

// TokenResponse is the get_token response.
type TokenResponse struct {
	Envelope
	ChatToken string `json:"chat_token"`
}

// CreateChatRequest posts a new message. Exactly one of Tell and Channel is
// set: Tell for a direct message, Channel for a broadcast.
type CreateChatRequest struct {
	ChatToken string `json:"chat_token"`
	Username  string `json:"username"`
	Tell      string `json:"tell,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Msg       string `json:"msg"`
}

// CreateChatResponse is the create_chat response; it carries only the
// success flag.
type CreateChatResponse struct {
	Envelope
}

// ChatsRequest fetches records for a set of usernames. After and Before are
// epoch-second bounds; zero means unset.
type ChatsRequest struct {
	ChatToken string   `json:"chat_token"`
	Usernames []string `json:"usernames"`
	After     int64    `json:"after,omitempty"`
	Before    int64    `json:"before,omitempty"`
}

// ChatsResponse groups raw records by the tracked user that received them.
type ChatsResponse struct {
	Envelope
	Chats map[string][]RawRecord `json:"chats"`
}

// AccountDataRequest fetches the account's user and channel layout.
type AccountDataRequest struct {
	ChatToken string `json:"chat_token"`
}

// AccountDataResponse maps each account user to its channels, and each
// channel to the users present in it.
type AccountDataResponse struct {
	Envelope
	Users map[string]map[string][]string `json:"users"`
}
