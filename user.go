package main

import (
	"fmt"
	"log"
	"net"
	"time"
)

// User holds state about a single client connection, from accept until
// the connection is reaped. A user is unregistered until it completes
// the PASS/NICK/USER handshake.
type User struct {
	// Conn is the TCP connection to the client.
	Conn Conn

	// WriteChan is the channel to send to to write to the client. The
	// writer goroutine drains it.
	WriteChan chan Message

	// A unique id. Internal to this server only. Plays the role the
	// socket fd does in the protocol model: channels refer to members
	// by it.
	ID uint64

	Server *Server

	ConnectionStartTime time.Time

	// The last time we heard anything from the client.
	LastActivityTime time.Time

	// The last time we sent the client a PING.
	LastPingTime time.Time

	// The last time the client sent a PRIVMSG/NOTICE. We use this to
	// decide idle time for WHOIS.
	LastMessageTime time.Time

	// Set after we send a PING and until we hear from the client again.
	Pinging bool

	// Track if we overflow our send queue. If we do, we'll kill the
	// client.
	SendQueueExceeded bool

	// Whether the client supplied the correct server password.
	PassOK bool

	// Whether it completed connection registration.
	Registered bool

	// Nick they have set. Blank until NICK. Not canonicalized.
	DisplayNick string

	// Identity from USER.
	Username string
	RealName string

	// Their hostname. We show the IP.
	Hostname string

	// IRC operator (+o via OPER).
	Operator bool

	// Away message. Being non-blank means the user is away.
	AwayMessage string

	// Message to broadcast when the connection dies. Set by QUIT or
	// synthesized on forced disconnects.
	QuitMessage string

	// Channel name (canonicalized) to Channel.
	Channels map[string]*Channel
}

// NewUser creates a User for a fresh connection.
func NewUser(s *Server, id uint64, conn net.Conn) *User {
	now := time.Now()

	c := NewConn(conn, s.Config.PingTime+2*s.Config.DeadTime)

	return &User{
		Conn: c,

		// Buffered channel. We don't want to block sending to the client
		// from the server goroutine. The client may be stuck.
		WriteChan: make(chan Message, 512),

		ID:                  id,
		Server:              s,
		ConnectionStartTime: now,
		LastActivityTime:    now,
		LastPingTime:        now,
		LastMessageTime:     now,
		Hostname:            c.IP.String(),
		Channels:            make(map[string]*Channel),
	}
}

func (u *User) String() string {
	return fmt.Sprintf("%d %s", u.ID, u.Conn.RemoteAddr())
}

func (u *User) nickUhost() string {
	return fmt.Sprintf("%s!%s@%s", u.DisplayNick, u.Username, u.Hostname)
}

func (u *User) isAway() bool {
	return len(u.AwayMessage) > 0
}

func (u *User) onChannel(ch *Channel) bool {
	_, exists := u.Channels[ch.Name]
	return exists
}

// readLoop endlessly reads from the client's TCP connection. It parses
// each IRC protocol message and passes it to the server through the
// server's channel.
func (u *User) readLoop() {
	defer u.Server.WG.Done()

	for {
		if u.Server.isShuttingDown() {
			break
		}

		buf, err := u.Conn.Read()
		if err != nil {
			u.Server.newEvent(Event{Type: DeadClientEvent, User: u, Err: err})
			break
		}

		m, err := parseMessage(buf)
		if err != nil {
			if err == errEmptyMessage {
				continue
			}
			log.Printf("Client %s: Invalid message: %s", u, err)
			continue
		}

		u.Server.newEvent(Event{
			Type:    MessageFromClientEvent,
			User:    u,
			Message: m,
		})
	}

	log.Printf("Client %s: Reader shutting down.", u)
}

// writeLoop endlessly reads from the client's channel, encodes each
// message, and writes it to the client's TCP connection.
//
// When the channel is closed, or if we have a write error, close the TCP
// connection. I have this here so that we try to deliver messages to the
// client before closing its socket and giving up.
func (u *User) writeLoop() {
	defer u.Server.WG.Done()

Loop:
	for {
		select {
		case message, ok := <-u.WriteChan:
			if !ok {
				break Loop
			}

			err := u.Conn.WriteMessage(message)
			if err != nil {
				log.Printf("Client %s: %s", u, err)
				u.Server.newEvent(Event{Type: DeadClientEvent, User: u, Err: err})
				break Loop
			}
		case <-u.Server.ShutdownChan:
			break Loop
		}
	}

	err := u.Conn.Close()
	if err != nil {
		log.Printf("Client %s: Problem closing connection: %s", u, err)
	}

	log.Printf("Client %s: Writer shutting down.", u)
}

// Send a message to the client. We send it to its write channel, which
// in turn leads to writing it to its TCP socket.
//
// This function won't block. If the client's queue is full, we flag it
// as having a full send queue and it gets reaped on the next liveness
// pass. Not blocking is important because the server goroutine sends the
// client messages this way, and if we blocked on a problem client,
// everything would grind to a halt.
func (u *User) maybeQueueMessage(m Message) {
	if u.SendQueueExceeded {
		return
	}

	select {
	case u.WriteChan <- m:
	default:
		u.SendQueueExceeded = true
	}
}

// newMessage builds a protocol message. The last parameter is sent as
// the trailing, so it may contain spaces; the rest must not.
func newMessage(prefix, command string, params []string) Message {
	m := Message{
		Prefix:  prefix,
		Command: command,
	}

	if len(params) > 0 {
		m.Params = params[:len(params)-1]
		m.Trailing = params[len(params)-1]
		m.HasTrailing = true
	}

	return m
}

// Send an IRC message to a client. Appears to be from the server.
//
// Note: Only the server goroutine should call this (due to channel use).
func (u *User) messageFromServer(command string, params []string) {
	// For numeric messages, we need to prepend the nick.
	// Use * for the nick in cases where the client doesn't have one yet.
	// This is what ircd-ratbox does. Maybe not RFC...
	if isNumericCommand(command) {
		nick := "*"
		if len(u.DisplayNick) > 0 {
			nick = u.DisplayNick
		}
		newParams := []string{nick}
		newParams = append(newParams, params...)
		params = newParams
	}

	u.maybeQueueMessage(newMessage(u.Server.Config.ServerName, command,
		params))
}

// Send an IRC message to a client from another client. The server is the
// one sending it, but it appears from the user through use of the
// prefix.
//
// Note: Only the server goroutine should call this (due to channel use).
func (u *User) messageUser(to *User, command string, params []string) {
	to.maybeQueueMessage(newMessage(u.nickUhost(), command, params))
}
