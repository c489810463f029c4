package chat

import (
	"sort"

	"github.com/chattertools/chattergo/wire"
)

// Normalize folds a raw per-user record batch into one deduplicated,
// time-ordered message sequence.
//
// A channel record appears once per tracked user that observed it; copies
// sharing an id are merged into a single Message whose Recipients set
// accumulates the observing users. Tells are final on first sight. The
// result is sorted ascending by timestamp; the relative order of equal
// timestamps is not part of the contract.
func Normalize(byUser map[string][]wire.RawRecord) []Message {
	if len(byUser) == 0 {
		return nil
	}

	seen := make(map[string]*Message)
	var order []*Message

	for user, records := range byUser {
		for i := range records {
			rec := &records[i]

			if rec.IsTell() {
				// Tells are never duplicated across inboxes.
				if _, ok := seen[rec.ID]; ok {
					continue
				}
				m := &Message{
					ID:        rec.ID,
					Kind:      KindTell,
					Sender:    rec.FromUser,
					Recipient: rec.ToUser,
					Body:      rec.Msg,
					Time:      rec.Time,
				}
				seen[rec.ID] = m
				order = append(order, m)
				continue
			}

			if m, ok := seen[rec.ID]; ok {
				// An id first seen as a tell stays a tell; a channel copy
				// reusing it has nothing to merge into.
				if m.Kind != KindTell {
					m.Recipients[user] = struct{}{}
				}
				continue
			}
			m := &Message{
				ID:         rec.ID,
				Kind:       classify(rec),
				Sender:     rec.FromUser,
				Channel:    rec.Channel,
				Body:       rec.Msg,
				Time:       rec.Time,
				Recipients: map[string]struct{}{user: {}},
			}
			seen[rec.ID] = m
			order = append(order, m)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Time < order[j].Time
	})

	out := make([]Message, len(order))
	for i, m := range order {
		out[i] = *m
	}
	return out
}

func classify(rec *wire.RawRecord) Kind {
	switch {
	case rec.IsJoin:
		return KindJoin
	case rec.IsLeave:
		return KindLeave
	default:
		return KindSend
	}
}
