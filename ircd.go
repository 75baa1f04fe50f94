/*
 * IRC daemon.
 *
 * A leaf server implementing enough of RFC 1459/2812 to host multi-user
 * conferencing: shared server password, nick/user registration, channels
 * with modes, topics, bans and invites, and liveness pinging.
 */

package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Server holds the state for a server. I put everything global to a
// server in an instance of struct rather than have global variables.
type Server struct {
	Config *Config

	// All connected clients, registered or not. ID to User.
	Users map[uint64]*User

	// Canonicalized nickname to User. Tracks every connection that has
	// set a nick, so nicks are reserved during registration too.
	Nicks map[string]*User

	// Channel name (canonicalized) to Channel.
	Channels map[string]*Channel

	// History of departed users for WHOWAS. Canonicalized nick to
	// entries, newest first.
	Whowas map[string][]WhowasEntry

	// MOTD lines, read once at startup.
	MOTD []string

	StartTime time.Time

	// Command name (uppercased) to handler.
	commands map[string]commandHandler

	Listener net.Listener

	// The server goroutine hears everything through this channel.
	EventChan chan Event

	// Closing this tells everyone to shut down.
	ShutdownChan chan struct{}

	WG sync.WaitGroup

	nextClientID uint64
}

// WhowasEntry records the identity a user had when it disconnected.
type WhowasEntry struct {
	DisplayNick string
	Username    string
	Hostname    string
	RealName    string
	Time        time.Time
}

// We keep at most this many WHOWAS entries per nick.
const whowasHistorySize = 32

// EventType is a kind of Event.
type EventType int

const (
	// NewClientEvent means a client connected.
	NewClientEvent EventType = iota

	// DeadClientEvent means a client's connection died (read or write
	// failure, or the peer closed).
	DeadClientEvent

	// MessageFromClientEvent means a client sent a message.
	MessageFromClientEvent

	// WakeupEvent is a periodic wakeup to do things like ping clients.
	WakeupEvent
)

// Event holds a message for the server goroutine.
type Event struct {
	Type    EventType
	User    *User
	Message Message
	Err     error
}

func main() {
	log.SetFlags(0)

	args := getArgs()
	if args == nil {
		os.Exit(1)
	}

	server, err := newServer(args)
	if err != nil {
		log.Fatal(err)
	}

	if err := server.start(); err != nil {
		log.Fatal(err)
	}

	log.Printf("Server shutdown cleanly.")
}

func newServer(args *Args) (*Server, error) {
	s := &Server{
		Config:       defaultConfig(),
		Users:        map[uint64]*User{},
		Nicks:        map[string]*User{},
		Channels:     map[string]*Channel{},
		Whowas:       map[string][]WhowasEntry{},
		EventChan:    make(chan Event, 100),
		ShutdownChan: make(chan struct{}),
		StartTime:    time.Now(),
	}

	if len(args.ConfigFile) > 0 {
		if err := s.checkAndParseConfig(args.ConfigFile); err != nil {
			return nil, errors.Wrap(err, "configuration problem")
		}
	}

	// The positional arguments override the config.
	s.Config.ListenPort = args.Port
	s.Config.Password = args.Password

	s.loadMOTD()

	s.commands = commandTable()

	return s, nil
}

// start starts up the server.
//
// We open the TCP port and then serve until shutdown.
func (s *Server) start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%s", s.Config.ListenHost,
		s.Config.ListenPort))
	if err != nil {
		return errors.Wrap(err, "unable to listen")
	}
	s.Listener = ln

	return s.serve()
}

// serve runs the server on the already bound listener: it starts the
// accept and alarm goroutines and then acts based on events from the
// server channel. We don't return until shutdown completes.
func (s *Server) serve() error {
	if len(s.Config.MetricsListen) > 0 {
		s.serveMetrics(s.Config.MetricsListen)
	}

	s.WG.Add(1)
	go s.acceptLoop()

	s.WG.Add(1)
	go s.alarm()

	log.Printf("ircat started (%s on %s)", s.Config.ServerName,
		s.Listener.Addr())

	s.run()

	s.WG.Wait()

	return nil
}

// run is the server goroutine: the one and only place the user table,
// nick table, and channel table get touched. Everything funnels through
// the event channel, which preserves per-connection arrival order and
// makes every broadcast visible before the sender's next message gets
// dispatched.
func (s *Server) run() {
	for {
		select {
		case <-s.ShutdownChan:
			s.teardown()
			return

		case evt := <-s.EventChan:
			switch evt.Type {
			case NewClientEvent:
				log.Printf("New client connection: %s", evt.User)
				s.Users[evt.User.ID] = evt.User
				metricConnectionsAccepted.Inc()

			case DeadClientEvent:
				// It's possible we already cleaned it up.
				if _, exists := s.Users[evt.User.ID]; exists {
					s.quitUser(evt.User, errorToQuitMessage(evt.Err))
				}

			case MessageFromClientEvent:
				// Possibly from a client that disconnected.
				if _, exists := s.Users[evt.User.ID]; exists {
					s.handleMessage(evt.User, evt.Message)
				}

			case WakeupEvent:
				s.checkAndPingClients()
			}
		}
	}
}

// newEvent tells the server goroutine there is something to do.
func (s *Server) newEvent(evt Event) {
	select {
	case s.EventChan <- evt:
	case <-s.ShutdownChan:
	}
}

func (s *Server) isShuttingDown() bool {
	select {
	case <-s.ShutdownChan:
		return true
	default:
		return false
	}
}

// shutdown starts server shutdown.
func (s *Server) shutdown() {
	select {
	case <-s.ShutdownChan:
		return
	default:
	}
	close(s.ShutdownChan)
	_ = s.Listener.Close()
}

// teardown closes all client connections and frees server state, in a
// deterministic order.
func (s *Server) teardown() {
	for _, u := range s.Users {
		s.quitUser(u, "Server shutting down")
	}
}

// acceptLoop accepts TCP connections and tells the main server loop
// through a channel. It sets up separate goroutines for reading from and
// writing to the client.
func (s *Server) acceptLoop() {
	defer s.WG.Done()

	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if s.isShuttingDown() {
				break
			}
			log.Printf("Failed to accept connection: %s", err)
			continue
		}

		u := NewUser(s, s.getClientID(), conn)

		// Tell the server about the client before its reader can deliver
		// anything, so events arrive in order.
		s.newEvent(Event{Type: NewClientEvent, User: u})

		s.WG.Add(1)
		go u.readLoop()
		s.WG.Add(1)
		go u.writeLoop()
	}

	log.Printf("Accept goroutine shutting down.")
}

func (s *Server) getClientID() uint64 {
	id := s.nextClientID

	// Handle rollover of uint64. Unlikely to happen (outside abuse) but.
	if id+1 == 0 {
		log.Fatalf("Unique ids rolled over!")
	}
	s.nextClientID++

	return id
}

// alarm sends a message to the server goroutine to wake it up
// periodically so we can do things like ping clients.
func (s *Server) alarm() {
	defer s.WG.Done()

	for {
		select {
		case <-time.After(s.Config.WakeupTime):
		case <-s.ShutdownChan:
			log.Printf("Alarm shutting down.")
			return
		}

		s.newEvent(Event{Type: WakeupEvent})
	}
}

// checkAndPingClients looks at each connected client.
//
// Registered clients idle past the ping time get a PING once. A pinged
// client that stays silent past the dead time gets disconnected, as does
// an unregistered client that never finishes the handshake.
func (s *Server) checkAndPingClients() {
	now := time.Now()

	for _, u := range s.Users {
		if u.SendQueueExceeded {
			s.quitUser(u, "SendQ exceeded")
			continue
		}

		timeIdle := now.Sub(u.LastActivityTime)

		if !u.Registered {
			if timeIdle > s.Config.DeadTime {
				s.quitUser(u, "Registration timeout")
			}
			continue
		}

		if u.Pinging {
			if now.Sub(u.LastPingTime) > s.Config.DeadTime {
				s.quitUser(u, "Ping timeout")
			}
			continue
		}

		if timeIdle > s.Config.PingTime {
			u.maybeQueueMessage(newMessage(s.Config.ServerName, "PING",
				[]string{s.Config.ServerName}))
			u.LastPingTime = now
			u.Pinging = true
		}
	}
}

// handleMessage takes action based on a client's IRC message.
func (s *Server) handleMessage(u *User, m Message) {
	// Record that the client said something to us just now. Any traffic
	// answers an outstanding PING.
	u.LastActivityTime = time.Now()
	u.Pinging = false

	metricMessagesDispatched.Inc()

	// Clients SHOULD NOT (section 2.3) send a prefix. I'm going to
	// disallow it completely for all commands.
	if m.Prefix != "" {
		u.messageFromServer("ERROR", []string{"Do not send a prefix"})
		return
	}

	handler, exists := s.commands[m.Command]
	if !exists {
		// 421 ERR_UNKNOWNCOMMAND
		u.messageFromServer("421", []string{m.Command, "Unknown command"})
		return
	}

	// All commands beyond the registration handshake require a
	// registered user.
	if !u.Registered && !isPreRegCommand(m.Command) {
		// 451 ERR_NOTREGISTERED
		u.messageFromServer("451", []string{"You have not registered"})
		return
	}

	if handler(s, u, m) == outcomeDisconnect {
		msg := u.QuitMessage
		if len(msg) == 0 {
			msg = "Client Quit"
		}
		s.quitUser(u, msg)
	}
}

// quitUser disconnects a user: its channels hear QUIT, its memberships
// are pruned (deleting channels that become empty), its identity is
// recorded for WHOWAS, and its connection resources are released. This
// is the only teardown path; read errors, write errors, QUIT, bad PASS
// and ping timeouts all come here.
func (s *Server) quitUser(u *User, msg string) {
	// May already be cleaning up.
	if _, exists := s.Users[u.ID]; !exists {
		return
	}

	if u.Registered {
		// Tell all clients that share a channel with this one. Each only
		// once.
		toldUsers := map[uint64]struct{}{}

		for _, ch := range u.Channels {
			for memberID := range ch.Members {
				if _, told := toldUsers[memberID]; told {
					continue
				}

				member := ch.Members[memberID].User
				if member.ID != u.ID {
					u.messageUser(member, "QUIT", []string{msg})
				}

				toldUsers[memberID] = struct{}{}
			}

			ch.removeMember(u)
			if ch.isEmpty() {
				delete(s.Channels, ch.Name)
				metricChannels.Dec()
			}
		}

		s.recordWhowas(u)
		metricUsers.Dec()
	}

	if len(u.DisplayNick) > 0 {
		delete(s.Nicks, canonicalizeNick(u.DisplayNick))
	}

	u.messageFromServer("ERROR", []string{msg})

	// Closing the write channel leads to the writer goroutine closing
	// the TCP connection once it has drained pending messages.
	close(u.WriteChan)

	delete(s.Users, u.ID)

	log.Printf("Client %s quit: %s", u, msg)
}

func (s *Server) recordWhowas(u *User) {
	nickCanon := canonicalizeNick(u.DisplayNick)

	entries := append([]WhowasEntry{{
		DisplayNick: u.DisplayNick,
		Username:    u.Username,
		Hostname:    u.Hostname,
		RealName:    u.RealName,
		Time:        time.Now(),
	}}, s.Whowas[nickCanon]...)

	if len(entries) > whowasHistorySize {
		entries = entries[:whowasHistorySize]
	}

	s.Whowas[nickCanon] = entries
}

// getUserByNick looks a user up by nick. Lookups are caseless; the
// second return reports whether there was a match.
func (s *Server) getUserByNick(nick string) (*User, bool) {
	u, exists := s.Nicks[canonicalizeNick(nick)]
	return u, exists
}

// errorToQuitMessage turns a connection error into a quit message to
// show other users.
func errorToQuitMessage(err error) string {
	if err == nil {
		return "I/O error"
	}

	msg := err.Error()
	if len(msg) == 0 {
		return "I/O error"
	}

	// Trim the noisy "read tcp ip:port->ip:port:" prefix.
	if idx := strings.LastIndex(msg, ": "); idx != -1 {
		msg = msg[idx+2:]
	}

	if strings.Contains(msg, "i/o timeout") {
		return "Ping timeout"
	}
	if strings.Contains(msg, "connection reset") {
		return "Connection reset by peer"
	}
	if msg == "EOF" {
		return "Client closed connection"
	}

	return msg
}
