package chat

// Membership is the bidirectional channel membership lookup built from the
// account_data structure.
type Membership struct {
	// UsersToChannels maps each tracked user to the channels it is in.
	UsersToChannels map[string]map[string]struct{}
	// ChannelsToUsers maps each channel to the users present in it. Nil
	// unless the channel index was requested.
	ChannelsToUsers map[string]map[string]struct{}
}

// Channels returns the channel names the given user belongs to.
func (m *Membership) Channels(user string) []string {
	set := m.UsersToChannels[user]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for ch := range set {
		out = append(out, ch)
	}
	return out
}

// Users returns the users recorded for the given channel. Empty unless the
// membership was built with the channel index.
func (m *Membership) Users(channel string) []string {
	set := m.ChannelsToUsers[channel]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	return out
}

// MapChannels builds a Membership from the raw user→channel→users structure.
//
// The user→channels direction is always populated. When includeChannelIndex
// is set, each channel's user list is taken from the first user record that
// mentions the channel; later records for the same channel are ignored, not
// merged. When two users' records disagree, which one wins follows input
// iteration order. That mirrors the server's account_data semantics; a
// union would be the obvious alternative if those ever diverge for real
// accounts.
func MapChannels(raw map[string]map[string][]string, includeChannelIndex bool) Membership {
	m := Membership{
		UsersToChannels: make(map[string]map[string]struct{}, len(raw)),
	}
	if includeChannelIndex {
		m.ChannelsToUsers = make(map[string]map[string]struct{})
	}

	for user, channels := range raw {
		chans := make(map[string]struct{}, len(channels))
		for ch, users := range channels {
			chans[ch] = struct{}{}
			if !includeChannelIndex {
				continue
			}
			if _, ok := m.ChannelsToUsers[ch]; ok {
				continue
			}
			set := make(map[string]struct{}, len(users))
			for _, u := range users {
				set[u] = struct{}{}
			}
			m.ChannelsToUsers[ch] = set
		}
		m.UsersToChannels[user] = chans
	}
	return m
}
