package main

import (
	"fmt"
	"time"
)

// Channel holds everything to do with a channel.
type Channel struct {
	// Canonicalized name.
	Name string

	// Members in the channel, user ID to membership. If we have zero
	// members, we should not exist.
	Members map[uint64]*ChannelMember

	// Current topic. May be blank.
	Topic string

	// Who set the topic (nick) and when.
	TopicSetter string
	TopicTime   time.Time

	Modes ChannelModes

	// Canonicalized nicks with a pending invite. JOIN consumes them.
	Invites map[string]struct{}

	// Ban masks (nick!user@host with * and ? wildcards).
	Bans []string
}

// ChannelMember is one user's membership in a channel, with its
// per-channel status.
type ChannelMember struct {
	User *User

	// Channel operator (@).
	Operator bool

	// Voiced (+). Relevant when the channel is moderated.
	Voice bool
}

// ChannelModes holds the channel's mode flags and their parameters.
type ChannelModes struct {
	InviteOnly  bool // +i
	TopicLocked bool // +t
	NoExternal  bool // +n
	Secret      bool // +s
	Moderated   bool // +m

	// Key is the channel password. Set means +k.
	Key string

	// UserLimit caps membership. > 0 means +l.
	UserLimit int
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:    name,
		Members: make(map[uint64]*ChannelMember),
		Invites: make(map[string]struct{}),
	}
}

func (ch *Channel) isEmpty() bool {
	return len(ch.Members) == 0
}

// member looks up a user's membership. The second return tells whether
// they are on the channel.
func (ch *Channel) member(u *User) (*ChannelMember, bool) {
	m, exists := ch.Members[u.ID]
	return m, exists
}

func (ch *Channel) addMember(u *User, operator bool) {
	ch.Members[u.ID] = &ChannelMember{User: u, Operator: operator}
	u.Channels[ch.Name] = ch
}

func (ch *Channel) removeMember(u *User) {
	delete(ch.Members, u.ID)
	delete(u.Channels, ch.Name)
}

// hasOperator tells whether the user holds channel operator status.
func (ch *Channel) hasOperator(u *User) bool {
	m, exists := ch.Members[u.ID]
	return exists && m.Operator
}

// canSpeak tells whether the user may send to the channel: moderated
// channels need voice or operator.
func (ch *Channel) canSpeak(u *User) bool {
	m, exists := ch.Members[u.ID]
	if !exists {
		return false
	}
	if !ch.Modes.Moderated {
		return true
	}
	return m.Operator || m.Voice
}

// isBanned tells whether any ban mask matches the user's nick!user@host.
func (ch *Channel) isBanned(u *User) bool {
	uhost := u.nickUhost()
	for _, mask := range ch.Bans {
		if matchMask(mask, uhost) {
			return true
		}
	}
	return false
}

func (ch *Channel) hasBan(mask string) bool {
	for _, b := range ch.Bans {
		if canonicalizeNick(b) == canonicalizeNick(mask) {
			return true
		}
	}
	return false
}

func (ch *Channel) removeBan(mask string) bool {
	for i, b := range ch.Bans {
		if canonicalizeNick(b) == canonicalizeNick(mask) {
			ch.Bans = append(ch.Bans[:i], ch.Bans[i+1:]...)
			return true
		}
	}
	return false
}

func (ch *Channel) isInvited(nick string) bool {
	_, exists := ch.Invites[canonicalizeNick(nick)]
	return exists
}

// visibleTo tells whether the user may learn of the channel's existence
// in NAMES/LIST/WHOIS: secret channels are hidden from non-members.
func (ch *Channel) visibleTo(u *User) bool {
	if !ch.Modes.Secret {
		return true
	}
	_, onChannel := ch.member(u)
	return onChannel
}

// statusFlag is the channel status shown in NAMES replies: = for a
// public channel, @ for a secret one.
func (ch *Channel) statusFlag() string {
	if ch.Modes.Secret {
		return "@"
	}
	return "="
}

// nickPrefix is the member's status prefix in NAMES/WHO replies.
func (m *ChannelMember) nickPrefix() string {
	if m.Operator {
		return "@"
	}
	if m.Voice {
		return "+"
	}
	return ""
}

// modeStrings builds the channel's current mode string and its visible
// parameters, e.g. "+ntk" ["secret"]. Key and limit arguments are shown
// only to members.
func (ch *Channel) modeStrings(showArgs bool) (string, []string) {
	modes := "+"
	var args []string

	if ch.Modes.InviteOnly {
		modes += "i"
	}
	if ch.Modes.Moderated {
		modes += "m"
	}
	if ch.Modes.NoExternal {
		modes += "n"
	}
	if ch.Modes.Secret {
		modes += "s"
	}
	if ch.Modes.TopicLocked {
		modes += "t"
	}
	if len(ch.Modes.Key) > 0 {
		modes += "k"
		if showArgs {
			args = append(args, ch.Modes.Key)
		}
	}
	if ch.Modes.UserLimit > 0 {
		modes += "l"
		if showArgs {
			args = append(args, fmt.Sprintf("%d", ch.Modes.UserLimit))
		}
	}

	return modes, args
}

// broadcast sends a message from the given user to every member of the
// channel. If skipFrom is set the sender does not receive it (PRIVMSG
// semantics); otherwise it does (JOIN/PART/KICK/TOPIC semantics).
func (ch *Channel) broadcast(from *User, command string, params []string,
	skipFrom bool) {
	for _, m := range ch.Members {
		if skipFrom && m.User.ID == from.ID {
			continue
		}
		from.messageUser(m.User, command, params)
	}
}
