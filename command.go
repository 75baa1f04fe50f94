package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// outcome is what a command handler tells the dispatch loop to do with
// the connection afterwards.
type outcome int

const (
	// outcomeContinue means keep the connection. Any error was already
	// reported to the client as a numeric.
	outcomeContinue outcome = iota

	// outcomeDisconnect means close the connection after this message
	// (QUIT, bad PASS).
	outcomeDisconnect
)

// commandHandler handles one IRC command. Handlers validate arity first,
// then semantics, and convert every protocol violation into a numeric
// reply. They never take the server down.
type commandHandler func(s *Server, u *User, m Message) outcome

// commandTable builds the dispatch table. A command name maps to exactly
// one handler; lookup is by uppercased name.
func commandTable() map[string]commandHandler {
	return map[string]commandHandler{
		"PASS":     passCommand,
		"NICK":     nickCommand,
		"USER":     userCommand,
		"QUIT":     quitCommand,
		"CAP":      capCommand,
		"PRIVMSG":  privmsgCommand,
		"NOTICE":   privmsgCommand,
		"AWAY":     awayCommand,
		"WHO":      whoCommand,
		"WHOIS":    whoisCommand,
		"WHOWAS":   whowasCommand,
		"MODE":     modeCommand,
		"TOPIC":    topicCommand,
		"JOIN":     joinCommand,
		"PART":     partCommand,
		"INVITE":   inviteCommand,
		"KICK":     kickCommand,
		"NAMES":    namesCommand,
		"LIST":     listCommand,
		"WALLOPS":  wallopsCommand,
		"PING":     pingCommand,
		"PONG":     pongCommand,
		"ISON":     isonCommand,
		"USERHOST": userhostCommand,
		"VERSION":  versionCommand,
		"INFO":     infoCommand,
		"ADMIN":    adminCommand,
		"TIME":     timeCommand,
		"MOTD":     motdCommand,
		"LUSERS":   lusersCommand,
		"OPER":     operCommand,
	}
}

// isPreRegCommand tells whether a command is part of the registration
// handshake and so permitted before registration completes.
func isPreRegCommand(command string) bool {
	switch command {
	case "PASS", "NICK", "USER", "QUIT", "CAP":
		return true
	}
	return false
}

// Non-RFC command that appears to be widely supported. Just ignore it.
func capCommand(s *Server, u *User, m Message) outcome {
	return outcomeContinue
}

func passCommand(s *Server, u *User, m Message) outcome {
	if u.Registered {
		// 462 ERR_ALREADYREGISTRED
		u.messageFromServer("462",
			[]string{"Unauthorized command (already registered)"})
		return outcomeContinue
	}

	args := m.args()
	if len(args) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"PASS", "Not enough parameters"})
		return outcomeContinue
	}

	if args[0] != s.Config.Password {
		// Wrong password is session fatal.
		// 464 ERR_PASSWDMISMATCH
		u.messageFromServer("464", []string{"Password incorrect"})
		u.QuitMessage = "Bad password"
		return outcomeDisconnect
	}

	u.PassOK = true

	return outcomeContinue
}

// The NICK command happens both at connection registration time and
// after. There are different rules.
func nickCommand(s *Server, u *User, m Message) outcome {
	args := m.args()

	// We should have one parameter: The nick they want.
	if len(args) == 0 {
		// 431 ERR_NONICKNAMEGIVEN
		u.messageFromServer("431", []string{"No nickname given"})
		return outcomeContinue
	}
	nick := args[0]

	if len(nick) > s.Config.MaxNickLength {
		nick = nick[0:s.Config.MaxNickLength]
	}

	if !isValidNick(s.Config.MaxNickLength, nick) {
		// 432 ERR_ERRONEUSNICKNAME
		u.messageFromServer("432", []string{nick, "Erroneous nickname"})
		return outcomeContinue
	}

	nickCanon := canonicalizeNick(nick)

	// Nick must be caselessly unique. Changing only the case of your own
	// nick is fine.
	if holder, exists := s.Nicks[nickCanon]; exists && holder.ID != u.ID {
		// 433 ERR_NICKNAMEINUSE
		u.messageFromServer("433", []string{nick, "Nickname is already in use"})
		return outcomeContinue
	}

	// Flag the nick as taken by this client. Free the old one.
	oldDisplayNick := u.DisplayNick
	if len(oldDisplayNick) > 0 {
		delete(s.Nicks, canonicalizeNick(oldDisplayNick))
	}
	s.Nicks[nickCanon] = u

	if u.Registered {
		// We need to inform other clients about the nick change. Any that
		// are in the same channel as this client, each only once. The
		// message comes from the OLD nick.
		informedUsers := map[uint64]struct{}{}
		for _, ch := range u.Channels {
			for memberID, member := range ch.Members {
				if _, informed := informedUsers[memberID]; informed {
					continue
				}

				u.messageUser(member.User, "NICK", []string{nick})
				informedUsers[memberID] = struct{}{}
			}
		}

		// Reply to the client. We did above if it was on any channel.
		if _, informed := informedUsers[u.ID]; !informed {
			u.messageUser(u, "NICK", []string{nick})
		}

		u.DisplayNick = nick
		return outcomeContinue
	}

	// We don't reply during registration (we don't have enough info, no
	// uhost anyway).
	u.DisplayNick = nick

	if len(u.Username) > 0 {
		return completeRegistration(s, u)
	}

	return outcomeContinue
}

// The USER command only occurs during connection registration.
func userCommand(s *Server, u *User, m Message) outcome {
	if u.Registered {
		// 462 ERR_ALREADYREGISTRED
		u.messageFromServer("462",
			[]string{"Unauthorized command (already registered)"})
		return outcomeContinue
	}

	// 4 parameters: <user> <mode> <unused> <realname>
	args := m.args()
	if len(args) < 4 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"USER", "Not enough parameters"})
		return outcomeContinue
	}

	user := args[0]

	if len(user) > s.Config.MaxNickLength {
		user = user[0:s.Config.MaxNickLength]
	}

	if !isValidUser(s.Config.MaxNickLength, user) {
		// There isn't an appropriate response in the RFC. ircd-ratbox
		// sends an ERROR message. Do that.
		u.messageFromServer("ERROR", []string{"Invalid username"})
		return outcomeContinue
	}

	// We could do something with the user mode parameter here.

	if !isValidRealName(args[3]) {
		u.messageFromServer("ERROR", []string{"Invalid realname"})
		return outcomeContinue
	}

	u.Username = user
	u.RealName = args[3]

	if len(u.DisplayNick) > 0 {
		return completeRegistration(s, u)
	}

	return outcomeContinue
}

// completeRegistration promotes a connection that has sent both NICK and
// USER. The server password is checked here: a client that never sent a
// valid PASS gets cut off.
func completeRegistration(s *Server, u *User) outcome {
	if !u.PassOK {
		// 464 ERR_PASSWDMISMATCH
		u.messageFromServer("464", []string{"Password incorrect"})
		u.QuitMessage = "Bad password"
		return outcomeDisconnect
	}

	u.Registered = true
	metricUsers.Inc()

	// RFC 2813 specifies messages to send upon registration.

	// 001 RPL_WELCOME
	u.messageFromServer("001", []string{
		fmt.Sprintf("Welcome to the Internet Relay Network %s", u.nickUhost()),
	})

	// 002 RPL_YOURHOST
	u.messageFromServer("002", []string{
		fmt.Sprintf("Your host is %s, running version %s",
			s.Config.ServerName, s.Config.Version),
	})

	// 003 RPL_CREATED
	u.messageFromServer("003", []string{
		fmt.Sprintf("This server was created %s", s.Config.CreatedDate),
	})

	// 004 RPL_MYINFO
	// <servername> <version> <available user modes> <available channel modes>
	u.maybeQueueMessage(Message{
		Prefix:  s.Config.ServerName,
		Command: "004",
		Params: []string{
			u.DisplayNick,
			s.Config.ServerName,
			s.Config.Version,
			"o",
			"bkloimnstv",
		},
	})

	// 005 RPL_ISUPPORT
	u.messageFromServer("005", []string{
		"CASEMAPPING=rfc1459",
		"CHANTYPES=#&",
		"CHANMODES=b,k,l,imnst",
		"PREFIX=(ov)@+",
		fmt.Sprintf("NICKLEN=%d", s.Config.MaxNickLength),
		"are supported by this server",
	})

	sendLusers(s, u)
	sendMOTD(s, u)

	return outcomeContinue
}

func quitCommand(s *Server, u *User, m Message) outcome {
	args := m.args()
	if len(args) > 0 {
		u.QuitMessage = args[0]
	} else {
		u.QuitMessage = "Client Quit"
	}

	return outcomeDisconnect
}

// Per RFC 2812, PRIVMSG and NOTICE are essentially the same, so both use
// this handler. NOTICE never generates automatic error replies.
func privmsgCommand(s *Server, u *User, m Message) outcome {
	notice := m.Command == "NOTICE"

	args := m.args()
	if len(args) == 0 {
		if !notice {
			// 411 ERR_NORECIPIENT
			u.messageFromServer("411",
				[]string{fmt.Sprintf("No recipient given (%s)", m.Command)})
		}
		return outcomeContinue
	}

	if len(args) == 1 {
		if !notice {
			// 412 ERR_NOTEXTTOSEND
			u.messageFromServer("412", []string{"No text to send"})
		}
		return outcomeContinue
	}

	target := args[0]
	msg := args[1]

	// One target per message. No comma separated lists.
	if strings.Contains(target, ",") {
		if !notice {
			// 407 ERR_TOOMANYTARGETS
			u.messageFromServer("407",
				[]string{target, "Too many targets"})
		}
		return outcomeContinue
	}

	if target[0] == '#' || target[0] == '&' {
		channelName := canonicalizeChannel(target)

		ch, exists := s.Channels[channelName]
		if !exists {
			if !notice {
				// 401 ERR_NOSUCHNICK
				u.messageFromServer("401",
					[]string{target, "No such nick/channel"})
			}
			return outcomeContinue
		}

		_, onChannel := ch.member(u)

		// +n means only members may send. +m additionally needs voice or
		// operator.
		if ch.Modes.NoExternal && !onChannel {
			if !notice {
				// 404 ERR_CANNOTSENDTOCHAN
				u.messageFromServer("404",
					[]string{ch.Name, "Cannot send to channel"})
			}
			return outcomeContinue
		}

		if ch.Modes.Moderated && !ch.canSpeak(u) {
			if !notice {
				// 404 ERR_CANNOTSENDTOCHAN
				u.messageFromServer("404",
					[]string{ch.Name, "Cannot send to channel"})
			}
			return outcomeContinue
		}

		u.LastMessageTime = time.Now()

		// Send to all members of the channel except the sender.
		ch.broadcast(u, m.Command, []string{ch.Name, msg}, true)

		return outcomeContinue
	}

	// We're messaging a nick directly.

	targetUser, exists := s.getUserByNick(target)
	if !exists || !targetUser.Registered {
		if !notice {
			// 401 ERR_NOSUCHNICK
			u.messageFromServer("401", []string{target, "No such nick/channel"})
		}
		return outcomeContinue
	}

	u.LastMessageTime = time.Now()

	if targetUser.isAway() && !notice {
		// 301 RPL_AWAY
		u.messageFromServer("301",
			[]string{targetUser.DisplayNick, targetUser.AwayMessage})
	}

	u.messageUser(targetUser, m.Command,
		[]string{targetUser.DisplayNick, msg})

	return outcomeContinue
}

func awayCommand(s *Server, u *User, m Message) outcome {
	args := m.args()

	if len(args) > 0 && len(args[0]) > 0 {
		u.AwayMessage = args[0]
		// 306 RPL_NOWAWAY
		u.messageFromServer("306",
			[]string{"You have been marked as being away"})
		return outcomeContinue
	}

	u.AwayMessage = ""
	// 305 RPL_UNAWAY
	u.messageFromServer("305",
		[]string{"You are no longer marked as being away"})
	return outcomeContinue
}

// Contrary to RFC 2812, I support only 'WHO #channel'.
func whoCommand(s *Server, u *User, m Message) outcome {
	args := m.args()
	if len(args) < 1 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"WHO", "Not enough parameters"})
		return outcomeContinue
	}

	ch, exists := s.Channels[canonicalizeChannel(args[0])]
	if !exists {
		// 403 ERR_NOSUCHCHANNEL
		u.messageFromServer("403", []string{args[0], "No such channel"})
		return outcomeContinue
	}

	// Only works if they are on the channel.
	if _, onChannel := ch.member(u); !onChannel {
		// 442 ERR_NOTONCHANNEL
		u.messageFromServer("442",
			[]string{ch.Name, "You're not on that channel"})
		return outcomeContinue
	}

	for _, member := range ch.Members {
		// 352 RPL_WHOREPLY
		// "<channel> <user> <host> <server> <nick>
		// ( "H" / "G" ) ["*"] [ ( "@" / "+" ) ] :<hopcount> <real name>"
		// H means here, G means gone (away).
		flags := "H"
		if member.User.isAway() {
			flags = "G"
		}
		if member.User.Operator {
			flags += "*"
		}
		flags += member.nickPrefix()

		u.messageFromServer("352", []string{
			ch.Name,
			member.User.Username,
			member.User.Hostname,
			s.Config.ServerName,
			member.User.DisplayNick,
			flags,
			"0 " + member.User.RealName,
		})
	}

	// 315 RPL_ENDOFWHO
	u.messageFromServer("315", []string{ch.Name, "End of WHO list"})

	return outcomeContinue
}

// Difference from RFC: I support only a single nickname (no mask), and
// no server target.
func whoisCommand(s *Server, u *User, m Message) outcome {
	args := m.args()
	if len(args) == 0 {
		// 431 ERR_NONICKNAMEGIVEN
		u.messageFromServer("431", []string{"No nickname given"})
		return outcomeContinue
	}

	nick := args[0]

	targetUser, exists := s.getUserByNick(nick)
	if !exists || !targetUser.Registered {
		// 401 ERR_NOSUCHNICK
		u.messageFromServer("401", []string{nick, "No such nick/channel"})
		return outcomeContinue
	}

	// 311 RPL_WHOISUSER
	u.messageFromServer("311", []string{
		targetUser.DisplayNick,
		targetUser.Username,
		targetUser.Hostname,
		"*",
		targetUser.RealName,
	})

	// 319 RPL_WHOISCHANNELS
	// Don't reveal secret channels we don't share.
	var channelNames []string
	for _, ch := range targetUser.Channels {
		if ch.Modes.Secret {
			if _, onChannel := ch.member(u); !onChannel {
				continue
			}
		}
		member := ch.Members[targetUser.ID]
		channelNames = append(channelNames, member.nickPrefix()+ch.Name)
	}
	if len(channelNames) > 0 {
		u.messageFromServer("319", []string{
			targetUser.DisplayNick,
			strings.Join(channelNames, " "),
		})
	}

	// 312 RPL_WHOISSERVER
	u.messageFromServer("312", []string{
		targetUser.DisplayNick,
		s.Config.ServerName,
		s.Config.ServerInfo,
	})

	// 301 RPL_AWAY
	if targetUser.isAway() {
		u.messageFromServer("301", []string{
			targetUser.DisplayNick,
			targetUser.AwayMessage,
		})
	}

	// 313 RPL_WHOISOPERATOR
	if targetUser.Operator {
		u.messageFromServer("313", []string{
			targetUser.DisplayNick,
			"is an IRC operator",
		})
	}

	// 317 RPL_WHOISIDLE
	idleSeconds := int(time.Since(targetUser.LastMessageTime).Seconds())
	u.messageFromServer("317", []string{
		targetUser.DisplayNick,
		fmt.Sprintf("%d", idleSeconds),
		"seconds idle",
	})

	// 318 RPL_ENDOFWHOIS
	u.messageFromServer("318", []string{
		targetUser.DisplayNick,
		"End of WHOIS list",
	})

	return outcomeContinue
}

func whowasCommand(s *Server, u *User, m Message) outcome {
	args := m.args()
	if len(args) == 0 {
		// 431 ERR_NONICKNAMEGIVEN
		u.messageFromServer("431", []string{"No nickname given"})
		return outcomeContinue
	}

	nick := args[0]

	entries := s.Whowas[canonicalizeNick(nick)]
	if len(entries) == 0 {
		// 406 ERR_WASNOSUCHNICK
		u.messageFromServer("406", []string{nick, "There was no such nickname"})
	}

	for _, entry := range entries {
		// 314 RPL_WHOWASUSER
		u.messageFromServer("314", []string{
			entry.DisplayNick,
			entry.Username,
			entry.Hostname,
			"*",
			entry.RealName,
		})
	}

	// 369 RPL_ENDOFWHOWAS
	u.messageFromServer("369", []string{nick, "End of WHOWAS"})

	return outcomeContinue
}

// MODE applies either to nicknames or to channels.
func modeCommand(s *Server, u *User, m Message) outcome {
	args := m.args()
	if len(args) < 1 || len(args[0]) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"MODE", "Not enough parameters"})
		return outcomeContinue
	}

	target := args[0]

	if target[0] == '#' || target[0] == '&' {
		ch, exists := s.Channels[canonicalizeChannel(target)]
		if !exists {
			// 403 ERR_NOSUCHCHANNEL
			u.messageFromServer("403", []string{target, "No such channel"})
			return outcomeContinue
		}
		channelModeCommand(s, u, ch, args[1:])
		return outcomeContinue
	}

	targetUser, exists := s.getUserByNick(target)
	if !exists {
		// 401 ERR_NOSUCHNICK
		u.messageFromServer("401", []string{target, "No such nick/channel"})
		return outcomeContinue
	}

	userModeCommand(s, u, targetUser, args[1:])
	return outcomeContinue
}

func userModeCommand(s *Server, u *User, targetUser *User, args []string) {
	// They can only change (or view) their own mode.
	if targetUser.ID != u.ID {
		// 502 ERR_USERSDONTMATCH
		u.messageFromServer("502",
			[]string{"Cannot change mode for other users"})
		return
	}

	// No modes given means we should send back their current mode.
	if len(args) == 0 {
		modes := "+"
		if u.Operator {
			modes += "o"
		}
		// 221 RPL_UMODEIS
		u.messageFromServer("221", []string{modes})
		return
	}

	action := byte(0)
	for i := 0; i < len(args[0]); i++ {
		char := args[0][i]

		if char == '+' || char == '-' {
			action = char
			continue
		}

		if action == 0 {
			// Malformed. No +/-.
			// 501 ERR_UMODEUNKNOWNFLAG
			u.messageFromServer("501", []string{"Unknown MODE flag"})
			continue
		}

		// Some modes we ignore silently to avoid clients getting unknown
		// mode messages.
		if char == 'i' || char == 'w' || char == 's' {
			continue
		}

		if char != 'o' {
			// 501 ERR_UMODEUNKNOWNFLAG
			u.messageFromServer("501", []string{"Unknown MODE flag"})
			continue
		}

		// Ignore it if they try to +o (operator) themselves. RFC says to
		// do so. This is -o.
		if action == '+' || !u.Operator {
			continue
		}

		u.Operator = false
		u.messageUser(u, "MODE", []string{u.DisplayNick, "-o"})
	}
}

// modeChange accumulates the effective channel mode changes so the
// broadcast carries only what actually changed.
type modeChange struct {
	modes  string
	params []string
	action byte
}

func (mc *modeChange) add(action, char byte, param string) {
	if mc.action != action {
		mc.modes += string(action)
		mc.action = action
	}
	mc.modes += string(char)
	if len(param) > 0 {
		mc.params = append(mc.params, param)
	}
}

func channelModeCommand(s *Server, u *User, ch *Channel, args []string) {
	// No modes? Send back the channel's modes. Key and limit parameters
	// show only for members.
	if len(args) == 0 {
		_, onChannel := ch.member(u)
		modes, modeParams := ch.modeStrings(onChannel)

		// 324 RPL_CHANNELMODEIS
		params := append([]string{ch.Name, modes}, modeParams...)
		u.maybeQueueMessage(Message{
			Prefix:  s.Config.ServerName,
			Command: "324",
			Params:  append([]string{u.DisplayNick}, params...),
		})
		return
	}

	modes := args[0]
	modeArgs := args[1:]

	// Mode queries that list things don't need privileges.
	if modes == "b" || modes == "+b" {
		for _, mask := range ch.Bans {
			// 367 RPL_BANLIST
			u.messageFromServer("367", []string{ch.Name, mask})
		}
		// 368 RPL_ENDOFBANLIST
		u.messageFromServer("368", []string{ch.Name, "End of channel ban list"})
		return
	}

	if modes == "I" || modes == "+I" {
		for nick := range ch.Invites {
			// 346 RPL_INVITELIST
			u.messageFromServer("346", []string{ch.Name, nick})
		}
		// 347 RPL_ENDOFINVITELIST
		u.messageFromServer("347",
			[]string{ch.Name, "End of channel invite list"})
		return
	}

	if modes == "e" || modes == "+e" {
		// We keep no exception list.
		// 349 RPL_ENDOFEXCEPTLIST
		u.messageFromServer("349",
			[]string{ch.Name, "End of channel exception list"})
		return
	}

	// Changing modes needs membership and channel operator status.
	if _, onChannel := ch.member(u); !onChannel {
		// 442 ERR_NOTONCHANNEL
		u.messageFromServer("442",
			[]string{ch.Name, "You're not on that channel"})
		return
	}

	if !ch.hasOperator(u) {
		// 482 ERR_CHANOPRIVSNEEDED
		u.messageFromServer("482",
			[]string{ch.Name, "You're not channel operator"})
		return
	}

	change := &modeChange{}
	action := byte(0)
	argIndex := 0

	nextArg := func() (string, bool) {
		if argIndex >= len(modeArgs) {
			return "", false
		}
		arg := modeArgs[argIndex]
		argIndex++
		return arg, true
	}

	for i := 0; i < len(modes); i++ {
		char := modes[i]

		if char == '+' || char == '-' {
			action = char
			continue
		}

		if action == 0 {
			// 472 ERR_UNKNOWNMODE
			u.messageFromServer("472",
				[]string{string(char), "is unknown mode char to me"})
			continue
		}

		adding := action == '+'

		switch char {
		case 'i':
			if ch.Modes.InviteOnly != adding {
				ch.Modes.InviteOnly = adding
				change.add(action, char, "")
			}

		case 't':
			if ch.Modes.TopicLocked != adding {
				ch.Modes.TopicLocked = adding
				change.add(action, char, "")
			}

		case 'n':
			if ch.Modes.NoExternal != adding {
				ch.Modes.NoExternal = adding
				change.add(action, char, "")
			}

		case 's':
			if ch.Modes.Secret != adding {
				ch.Modes.Secret = adding
				change.add(action, char, "")
			}

		case 'm':
			if ch.Modes.Moderated != adding {
				ch.Modes.Moderated = adding
				change.add(action, char, "")
			}

		case 'k':
			if adding {
				key, ok := nextArg()
				if !ok {
					// 461 ERR_NEEDMOREPARAMS
					u.messageFromServer("461",
						[]string{"MODE", "Not enough parameters"})
					continue
				}
				if len(ch.Modes.Key) > 0 {
					// 467 ERR_KEYSET
					u.messageFromServer("467",
						[]string{ch.Name, "Channel key already set"})
					continue
				}
				ch.Modes.Key = key
				change.add(action, char, key)
			} else {
				if len(ch.Modes.Key) == 0 {
					continue
				}
				// An argument is customary on -k but not required.
				_, _ = nextArg()
				ch.Modes.Key = ""
				change.add(action, char, "")
			}

		case 'l':
			if adding {
				arg, ok := nextArg()
				if !ok {
					// 461 ERR_NEEDMOREPARAMS
					u.messageFromServer("461",
						[]string{"MODE", "Not enough parameters"})
					continue
				}
				limit, err := strconv.Atoi(arg)
				if err != nil || limit < 1 {
					continue
				}
				ch.Modes.UserLimit = limit
				change.add(action, char, arg)
			} else {
				if ch.Modes.UserLimit == 0 {
					continue
				}
				ch.Modes.UserLimit = 0
				change.add(action, char, "")
			}

		case 'o', 'v':
			nick, ok := nextArg()
			if !ok {
				// 461 ERR_NEEDMOREPARAMS
				u.messageFromServer("461",
					[]string{"MODE", "Not enough parameters"})
				continue
			}

			targetUser, exists := s.getUserByNick(nick)
			if !exists {
				// 401 ERR_NOSUCHNICK
				u.messageFromServer("401",
					[]string{nick, "No such nick/channel"})
				continue
			}

			member, onChannel := ch.member(targetUser)
			if !onChannel {
				// 441 ERR_USERNOTINCHANNEL
				u.messageFromServer("441", []string{
					targetUser.DisplayNick, ch.Name,
					"They aren't on that channel"})
				continue
			}

			if char == 'o' {
				if member.Operator == adding {
					continue
				}
				member.Operator = adding
			} else {
				if member.Voice == adding {
					continue
				}
				member.Voice = adding
			}
			change.add(action, char, targetUser.DisplayNick)

		case 'b':
			mask, ok := nextArg()
			if !ok {
				// Listing handled above; a bare b mid-string lists too.
				for _, m := range ch.Bans {
					u.messageFromServer("367", []string{ch.Name, m})
				}
				u.messageFromServer("368",
					[]string{ch.Name, "End of channel ban list"})
				continue
			}

			mask = completeBanMask(mask)
			if adding {
				if ch.hasBan(mask) {
					continue
				}
				ch.Bans = append(ch.Bans, mask)
				change.add(action, char, mask)
			} else {
				if !ch.removeBan(mask) {
					continue
				}
				change.add(action, char, mask)
			}

		default:
			// 472 ERR_UNKNOWNMODE
			u.messageFromServer("472",
				[]string{string(char), "is unknown mode char to me"})
		}
	}

	if len(change.modes) == 0 {
		return
	}

	// Broadcast the effective change set to every member, from the user.
	params := append([]string{ch.Name, change.modes}, change.params...)
	for _, member := range ch.Members {
		member.User.maybeQueueMessage(Message{
			Prefix:  u.nickUhost(),
			Command: "MODE",
			Params:  params,
		})
	}
}

// completeBanMask fills a bare nick out to nick!*@* so stored masks are
// always in nick!user@host form.
func completeBanMask(mask string) string {
	if strings.ContainsAny(mask, "!@") {
		if !strings.Contains(mask, "!") {
			// user@host form.
			return "*!" + mask
		}
		if !strings.Contains(mask, "@") {
			return mask + "@*"
		}
		return mask
	}
	return mask + "!*@*"
}

func topicCommand(s *Server, u *User, m Message) outcome {
	args := m.args()
	if len(args) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"TOPIC", "Not enough parameters"})
		return outcomeContinue
	}

	ch, exists := s.Channels[canonicalizeChannel(args[0])]
	if !exists {
		// 403 ERR_NOSUCHCHANNEL
		u.messageFromServer("403", []string{args[0], "No such channel"})
		return outcomeContinue
	}

	if _, onChannel := ch.member(u); !onChannel {
		// 442 ERR_NOTONCHANNEL
		u.messageFromServer("442",
			[]string{ch.Name, "You're not on that channel"})
		return outcomeContinue
	}

	// If there is no new topic, then just send back the current one.
	if len(args) < 2 {
		if len(ch.Topic) == 0 {
			// 331 RPL_NOTOPIC
			u.messageFromServer("331", []string{ch.Name, "No topic is set"})
			return outcomeContinue
		}

		// 332 RPL_TOPIC
		u.messageFromServer("332", []string{ch.Name, ch.Topic})
		return outcomeContinue
	}

	// Set (or clear) the topic.

	if ch.Modes.TopicLocked && !ch.hasOperator(u) {
		// 482 ERR_CHANOPRIVSNEEDED
		u.messageFromServer("482",
			[]string{ch.Name, "You're not channel operator"})
		return outcomeContinue
	}

	topic := args[1]
	if len(topic) > maxTopicLength {
		topic = topic[:maxTopicLength]
	}

	ch.Topic = topic
	ch.TopicSetter = u.DisplayNick
	ch.TopicTime = time.Now()

	// Tell all members of the channel, including the client.
	ch.broadcast(u, "TOPIC", []string{ch.Name, ch.Topic}, false)

	return outcomeContinue
}

// The most channels a client may be in at once.
const maxChannelsPerUser = 10

func joinCommand(s *Server, u *User, m Message) outcome {
	// Parameters: ( <channel> *( "," <channel> ) [ <key> *( "," <key> ) ] )
	//             / "0"
	args := m.args()

	if len(args) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"JOIN", "Not enough parameters"})
		return outcomeContinue
	}

	// JOIN 0 is a special case. Client leaves all channels.
	if args[0] == "0" {
		for _, ch := range u.Channels {
			partChannel(s, u, ch.Name, "")
		}
		return outcomeContinue
	}

	// NOTE: I choose to not support comma separated channels. RFC 2812
	//   allows multiple channels in a single command.

	channelName := canonicalizeChannel(args[0])
	if !isValidChannel(channelName) {
		// 476 ERR_BADCHANMASK
		u.messageFromServer("476", []string{args[0], "Bad Channel Mask"})
		return outcomeContinue
	}

	key := ""
	if len(args) > 1 {
		key = args[1]
	}

	ch, exists := s.Channels[channelName]

	// Is the client in the channel already? Nothing to do.
	if exists {
		if _, onChannel := ch.member(u); onChannel {
			return outcomeContinue
		}
	}

	if len(u.Channels) >= maxChannelsPerUser {
		// 405 ERR_TOOMANYCHANNELS
		u.messageFromServer("405",
			[]string{channelName, "You have joined too many channels"})
		return outcomeContinue
	}

	if exists {
		if ch.Modes.InviteOnly && !ch.isInvited(u.DisplayNick) {
			// 473 ERR_INVITEONLYCHAN
			u.messageFromServer("473",
				[]string{ch.Name, "Cannot join channel (+i)"})
			return outcomeContinue
		}

		if ch.isBanned(u) {
			// 474 ERR_BANNEDFROMCHAN
			u.messageFromServer("474",
				[]string{ch.Name, "Cannot join channel (+b)"})
			return outcomeContinue
		}

		if len(ch.Modes.Key) > 0 && key != ch.Modes.Key {
			// 475 ERR_BADCHANNELKEY
			u.messageFromServer("475",
				[]string{ch.Name, "Cannot join channel (+k)"})
			return outcomeContinue
		}

		if ch.Modes.UserLimit > 0 && len(ch.Members) >= ch.Modes.UserLimit {
			// 471 ERR_CHANNELISFULL
			u.messageFromServer("471",
				[]string{ch.Name, "Cannot join channel (+l)"})
			return outcomeContinue
		}
	} else {
		ch = newChannel(channelName)
		s.Channels[channelName] = ch
		metricChannels.Inc()
	}

	// The first joiner becomes channel operator. A pending invite is
	// consumed by the join.
	ch.addMember(u, len(ch.Members) == 0)
	delete(ch.Invites, canonicalizeNick(u.DisplayNick))

	// Tell everyone about the join, including the client.
	ch.broadcast(u, "JOIN", []string{ch.Name}, false)

	// Send the topic and the names list.
	if len(ch.Topic) > 0 {
		// 332 RPL_TOPIC
		u.messageFromServer("332", []string{ch.Name, ch.Topic})
	} else {
		// 331 RPL_NOTOPIC
		u.messageFromServer("331", []string{ch.Name, "No topic is set"})
	}

	sendNames(s, u, ch)

	return outcomeContinue
}

// sendNames sends the RPL_NAMREPLY/RPL_ENDOFNAMES pair for one channel.
func sendNames(s *Server, u *User, ch *Channel) {
	var names []string
	for _, member := range ch.Members {
		names = append(names, member.nickPrefix()+member.User.DisplayNick)
	}

	// 353 RPL_NAMREPLY
	u.messageFromServer("353", []string{
		ch.statusFlag(), ch.Name, strings.Join(names, " "),
	})

	// 366 RPL_ENDOFNAMES
	u.messageFromServer("366", []string{ch.Name, "End of /NAMES list"})
}

func partCommand(s *Server, u *User, m Message) outcome {
	// Parameters: <channel> *( "," <channel> ) [ <Part Message> ]
	args := m.args()

	if len(args) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"PART", "Not enough parameters"})
		return outcomeContinue
	}

	partMessage := ""
	if len(args) >= 2 {
		partMessage = args[1]
	}

	partChannel(s, u, args[0], partMessage)

	return outcomeContinue
}

// partChannel tries to remove the user from the channel. We send a reply
// to the user and inform the other members.
//
// NOTE: Difference from RFC 2812: I only accept one channel at a time.
func partChannel(s *Server, u *User, channelName, message string) {
	channelName = canonicalizeChannel(channelName)

	ch, exists := s.Channels[channelName]
	if !exists {
		// 403 ERR_NOSUCHCHANNEL
		u.messageFromServer("403", []string{channelName, "No such channel"})
		return
	}

	if _, onChannel := ch.member(u); !onChannel {
		// 442 ERR_NOTONCHANNEL
		u.messageFromServer("442",
			[]string{ch.Name, "You're not on that channel"})
		return
	}

	// Tell everyone (including the client) about the part.
	params := []string{ch.Name}
	if len(message) > 0 {
		params = append(params, message)
	}
	ch.broadcast(u, "PART", params, false)

	ch.removeMember(u)

	// If they are the last member, then drop the channel completely.
	if ch.isEmpty() {
		delete(s.Channels, ch.Name)
		metricChannels.Dec()
	}
}

func inviteCommand(s *Server, u *User, m Message) outcome {
	// Parameters: <nickname> <channel>
	args := m.args()
	if len(args) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"INVITE", "Not enough parameters"})
		return outcomeContinue
	}

	nick := args[0]

	targetUser, exists := s.getUserByNick(nick)
	if !exists || !targetUser.Registered {
		// 401 ERR_NOSUCHNICK
		u.messageFromServer("401", []string{nick, "No such nick/channel"})
		return outcomeContinue
	}

	ch, exists := s.Channels[canonicalizeChannel(args[1])]
	if !exists {
		// 403 ERR_NOSUCHCHANNEL
		u.messageFromServer("403", []string{args[1], "No such channel"})
		return outcomeContinue
	}

	if _, onChannel := ch.member(u); !onChannel {
		// 442 ERR_NOTONCHANNEL
		u.messageFromServer("442",
			[]string{ch.Name, "You're not on that channel"})
		return outcomeContinue
	}

	if _, onChannel := ch.member(targetUser); onChannel {
		// 443 ERR_USERONCHANNEL
		u.messageFromServer("443",
			[]string{targetUser.DisplayNick, ch.Name, "is already on channel"})
		return outcomeContinue
	}

	// Inviting into an invite-only channel needs channel operator.
	if ch.Modes.InviteOnly && !ch.hasOperator(u) {
		// 482 ERR_CHANOPRIVSNEEDED
		u.messageFromServer("482",
			[]string{ch.Name, "You're not channel operator"})
		return outcomeContinue
	}

	ch.Invites[canonicalizeNick(targetUser.DisplayNick)] = struct{}{}

	// 341 RPL_INVITING
	u.messageFromServer("341", []string{targetUser.DisplayNick, ch.Name})

	if targetUser.isAway() {
		// 301 RPL_AWAY
		u.messageFromServer("301",
			[]string{targetUser.DisplayNick, targetUser.AwayMessage})
	}

	u.messageUser(targetUser, "INVITE",
		[]string{targetUser.DisplayNick, ch.Name})

	return outcomeContinue
}

func kickCommand(s *Server, u *User, m Message) outcome {
	// Parameters: <channel> <user> [<comment>]
	args := m.args()
	if len(args) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"KICK", "Not enough parameters"})
		return outcomeContinue
	}

	ch, exists := s.Channels[canonicalizeChannel(args[0])]
	if !exists {
		// 403 ERR_NOSUCHCHANNEL
		u.messageFromServer("403", []string{args[0], "No such channel"})
		return outcomeContinue
	}

	if _, onChannel := ch.member(u); !onChannel {
		// 442 ERR_NOTONCHANNEL
		u.messageFromServer("442",
			[]string{ch.Name, "You're not on that channel"})
		return outcomeContinue
	}

	if !ch.hasOperator(u) {
		// 482 ERR_CHANOPRIVSNEEDED
		u.messageFromServer("482",
			[]string{ch.Name, "You're not channel operator"})
		return outcomeContinue
	}

	targetUser, exists := s.getUserByNick(args[1])
	if !exists {
		// 401 ERR_NOSUCHNICK
		u.messageFromServer("401", []string{args[1], "No such nick/channel"})
		return outcomeContinue
	}

	if _, onChannel := ch.member(targetUser); !onChannel {
		// 441 ERR_USERNOTINCHANNEL
		u.messageFromServer("441", []string{
			targetUser.DisplayNick, ch.Name, "They aren't on that channel"})
		return outcomeContinue
	}

	reason := u.DisplayNick
	if len(args) >= 3 {
		reason = args[2]
	}

	// Tell everyone, including the target, then remove it.
	ch.broadcast(u, "KICK", []string{ch.Name, targetUser.DisplayNick, reason},
		false)

	ch.removeMember(targetUser)
	if ch.isEmpty() {
		delete(s.Channels, ch.Name)
		metricChannels.Dec()
	}

	return outcomeContinue
}

func namesCommand(s *Server, u *User, m Message) outcome {
	args := m.args()

	if len(args) > 0 {
		// NOTE: Single channel only; no comma separated list.
		ch, exists := s.Channels[canonicalizeChannel(args[0])]
		if exists && ch.visibleTo(u) {
			sendNames(s, u, ch)
			return outcomeContinue
		}

		// 366 RPL_ENDOFNAMES
		u.messageFromServer("366", []string{args[0], "End of /NAMES list"})
		return outcomeContinue
	}

	for _, ch := range s.Channels {
		if !ch.visibleTo(u) {
			continue
		}
		sendNames(s, u, ch)
	}

	return outcomeContinue
}

func listCommand(s *Server, u *User, m Message) outcome {
	// 321 RPL_LISTSTART
	u.messageFromServer("321", []string{"Channel", "Users Name"})

	for _, ch := range s.Channels {
		// Secret channels are hidden from non-members.
		if !ch.visibleTo(u) {
			continue
		}

		// 322 RPL_LIST
		u.messageFromServer("322", []string{
			ch.Name,
			fmt.Sprintf("%d", len(ch.Members)),
			ch.Topic,
		})
	}

	// 323 RPL_LISTEND
	u.messageFromServer("323", []string{"End of /LIST"})

	return outcomeContinue
}

func wallopsCommand(s *Server, u *User, m Message) outcome {
	args := m.args()
	if len(args) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"WALLOPS", "Not enough parameters"})
		return outcomeContinue
	}

	if !u.Operator {
		// 481 ERR_NOPRIVILEGES
		u.messageFromServer("481",
			[]string{"Permission Denied- You're not an IRC operator"})
		return outcomeContinue
	}

	for _, user := range s.Users {
		if !user.Operator {
			continue
		}
		u.messageUser(user, "WALLOPS", []string{args[0]})
	}

	return outcomeContinue
}

func pingCommand(s *Server, u *User, m Message) outcome {
	// Parameters: <server> (I choose to not support forwarding)
	args := m.args()
	if len(args) == 0 {
		// 409 ERR_NOORIGIN
		u.messageFromServer("409", []string{"No origin specified"})
		return outcomeContinue
	}

	server := args[0]

	if server != s.Config.ServerName {
		// 402 ERR_NOSUCHSERVER
		u.messageFromServer("402", []string{server, "No such server"})
		return outcomeContinue
	}

	u.messageFromServer("PONG", []string{server})

	return outcomeContinue
}

// Not doing anything with this. Activity time was already refreshed.
func pongCommand(s *Server, u *User, m Message) outcome {
	return outcomeContinue
}

func isonCommand(s *Server, u *User, m Message) outcome {
	args := m.args()
	if len(args) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"ISON", "Not enough parameters"})
		return outcomeContinue
	}

	// Nicks may arrive as separate parameters or space separated in the
	// trailing.
	var present []string
	for _, arg := range args {
		for _, nick := range strings.Fields(arg) {
			if user, exists := s.getUserByNick(nick); exists &&
				user.Registered {
				present = append(present, user.DisplayNick)
			}
		}
	}

	// 303 RPL_ISON
	u.messageFromServer("303", []string{strings.Join(present, " ")})

	return outcomeContinue
}

func userhostCommand(s *Server, u *User, m Message) outcome {
	args := m.args()
	if len(args) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461",
			[]string{"USERHOST", "Not enough parameters"})
		return outcomeContinue
	}

	// Up to 5 nicknames.
	if len(args) > 5 {
		args = args[:5]
	}

	var replies []string
	for _, nick := range args {
		user, exists := s.getUserByNick(nick)
		if !exists || !user.Registered {
			continue
		}

		reply := user.DisplayNick
		if user.Operator {
			reply += "*"
		}
		reply += "="
		if user.isAway() {
			reply += "-"
		} else {
			reply += "+"
		}
		reply += user.Username + "@" + user.Hostname

		replies = append(replies, reply)
	}

	// 302 RPL_USERHOST
	u.messageFromServer("302", []string{strings.Join(replies, " ")})

	return outcomeContinue
}

func versionCommand(s *Server, u *User, m Message) outcome {
	// 351 RPL_VERSION
	u.messageFromServer("351", []string{
		s.Config.Version,
		s.Config.ServerName,
		s.Config.ServerInfo,
	})

	return outcomeContinue
}

func infoCommand(s *Server, u *User, m Message) outcome {
	// 371 RPL_INFO
	u.messageFromServer("371", []string{
		fmt.Sprintf("%s (%s)", s.Config.ServerInfo, s.Config.Version),
	})
	u.messageFromServer("371", []string{
		fmt.Sprintf("This server was created %s", s.Config.CreatedDate),
	})

	// 374 RPL_ENDOFINFO
	u.messageFromServer("374", []string{"End of INFO list"})

	return outcomeContinue
}

func adminCommand(s *Server, u *User, m Message) outcome {
	// 256 RPL_ADMINME
	u.messageFromServer("256", []string{
		s.Config.ServerName, "Administrative info",
	})

	// 257 RPL_ADMINLOC1
	u.messageFromServer("257", []string{s.Config.ServerInfo})

	// 258 RPL_ADMINLOC2
	u.messageFromServer("258", []string{s.Config.ServerInfo})

	// 259 RPL_ADMINEMAIL
	u.messageFromServer("259", []string{"admin@" + s.Config.ServerName})

	return outcomeContinue
}

func timeCommand(s *Server, u *User, m Message) outcome {
	// 391 RPL_TIME
	u.messageFromServer("391", []string{
		s.Config.ServerName,
		time.Now().Format("Mon Jan 2 15:04:05 2006"),
	})

	return outcomeContinue
}

func motdCommand(s *Server, u *User, m Message) outcome {
	sendMOTD(s, u)
	return outcomeContinue
}

func sendMOTD(s *Server, u *User) {
	if len(s.MOTD) == 0 {
		// 422 ERR_NOMOTD
		u.messageFromServer("422", []string{"MOTD File is missing"})
		return
	}

	// 375 RPL_MOTDSTART
	u.messageFromServer("375", []string{
		fmt.Sprintf("- %s Message of the day - ", s.Config.ServerName),
	})

	for _, line := range s.MOTD {
		// 372 RPL_MOTD
		u.messageFromServer("372", []string{fmt.Sprintf("- %s", line)})
	}

	// 376 RPL_ENDOFMOTD
	u.messageFromServer("376", []string{"End of /MOTD command"})
}

func lusersCommand(s *Server, u *User, m Message) outcome {
	sendLusers(s, u)
	return outcomeContinue
}

func sendLusers(s *Server, u *User) {
	registered := 0
	operCount := 0
	for _, user := range s.Users {
		if user.Registered {
			registered++
		}
		if user.Operator {
			operCount++
		}
	}

	// 251 RPL_LUSERCLIENT
	u.messageFromServer("251", []string{
		fmt.Sprintf("There are %d users and %d services on %d servers.",
			registered, 0, 1),
	})

	if operCount > 0 {
		// 252 RPL_LUSEROP
		u.messageFromServer("252", []string{
			fmt.Sprintf("%d", operCount),
			"operator(s) online",
		})
	}

	// 253 RPL_LUSERUNKNOWN
	numUnknown := len(s.Users) - registered
	if numUnknown > 0 {
		u.messageFromServer("253", []string{
			fmt.Sprintf("%d", numUnknown),
			"unknown connection(s)",
		})
	}

	// 254 RPL_LUSERCHANNELS
	if len(s.Channels) > 0 {
		u.messageFromServer("254", []string{
			fmt.Sprintf("%d", len(s.Channels)),
			"channels formed",
		})
	}

	// 255 RPL_LUSERME
	u.messageFromServer("255", []string{
		fmt.Sprintf("I have %d clients and %d servers", registered, 0),
	})
}

func operCommand(s *Server, u *User, m Message) outcome {
	// Parameters: <name> <password>
	args := m.args()
	if len(args) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"OPER", "Not enough parameters"})
		return outcomeContinue
	}

	if u.Operator {
		// 381 RPL_YOUREOPER
		u.messageFromServer("381", []string{"You are already an IRC operator"})
		return outcomeContinue
	}

	pass, exists := s.Config.Opers[args[0]]
	if !exists || pass != args[1] {
		// 464 ERR_PASSWDMISMATCH
		u.messageFromServer("464", []string{"Password incorrect"})
		return outcomeContinue
	}

	u.Operator = true

	// From themselves to themselves.
	u.messageUser(u, "MODE", []string{u.DisplayNick, "+o"})

	// 381 RPL_YOUREOPER
	u.messageFromServer("381", []string{"You are now an IRC operator"})

	return outcomeContinue
}
