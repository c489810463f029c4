package wire

import "time"

// RawRecord is a single chat record as delivered by the chats endpoint.
//
// Records come in two shapes: direct tells carry ToUser, channel records
// carry Channel plus optional join/leave markers. The same channel record is
// delivered once per tracked user that observed it, identical except for
// which inbox it arrived through.
type RawRecord struct {
	ID       string `json:"id"`
	Time     int64  `json:"t"` // epoch seconds
	FromUser string `json:"from_user"`
	ToUser   string `json:"to_user,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Msg      string `json:"msg"`
	IsJoin   bool   `json:"is_join,omitempty"`
	IsLeave  bool   `json:"is_leave,omitempty"`
}

// IsTell reports whether the record is a direct message rather than a
// channel record.
func (r *RawRecord) IsTell() bool {
	return r.ToUser != ""
}

// Timestamp returns the record time as a time.Time.
func (r *RawRecord) Timestamp() time.Time {
	return time.Unix(r.Time, 0)
}
