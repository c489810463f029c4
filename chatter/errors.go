package chatter

import "fmt"

// AuthError is returned when the server answers 401: the chat token is
// expired or invalid. It is never retried; callers typically stop polling
// and re-authenticate.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "chatter: auth: " + e.Message
}

// RemoteError is an application-level rejection: the response arrived intact
// but the server declined the request. Message is the server-supplied text.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("chatter: %s: %s", e.Method, e.Message)
}

// ProtocolError indicates a transport-level mismatch: an unexpected content
// type, an unsupported charset, or a body that is not the documented JSON
// envelope. Usually a sign of a server/client version skew.
type ProtocolError struct {
	Method  string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("chatter: %s: protocol: %s", e.Method, e.Message)
}
