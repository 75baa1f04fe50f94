package main

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/horgh/irc"
	"github.com/stretchr/testify/require"
)

// End-to-end tests over real TCP. The client side speaks the protocol
// through the github.com/horgh/irc codec so the server's wire output is
// checked by an independent implementation.

func startTestServerTCP(t *testing.T) (*Server, string) {
	t.Helper()

	s, err := newServer(&Args{Port: "0", Password: "secret"})
	require.NoError(t, err, "create server")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "listen")
	s.Listener = ln

	go func() {
		_ = s.serve()
	}()

	t.Cleanup(s.shutdown)

	return s, ln.Addr().String()
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	rd   *bufio.Reader
}

func dialServer(t *testing.T, addr string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err, "dial server")

	c := &testClient{
		t:    t,
		conn: conn,
		rd:   bufio.NewReader(conn),
	}
	t.Cleanup(func() { _ = conn.Close() })

	return c
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err, "write %q", line)
}

// waitFor reads messages until one with the given command arrives.
func (c *testClient) waitFor(command string) irc.Message {
	c.t.Helper()

	err := c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(c.t, err, "set deadline")

	for {
		line, err := c.rd.ReadString('\n')
		require.NoError(c.t, err, "waiting for %s", command)

		m, err := irc.ParseMessage(line)
		if err != nil && err != irc.ErrTruncated {
			c.t.Fatalf("server sent unparseable line %q: %s", line, err)
		}

		if m.Command == command {
			return m
		}
	}
}

// waitClosed reads until the server closes the connection.
func (c *testClient) waitClosed() {
	c.t.Helper()

	err := c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(c.t, err, "set deadline")

	for {
		if _, err := c.rd.ReadString('\n'); err != nil {
			return
		}
	}
}

func registerClient(t *testing.T, addr, nick string) *testClient {
	t.Helper()

	c := dialServer(t, addr)
	c.send("PASS secret")
	c.send("NICK " + nick)
	c.send("USER " + nick + " 0 * :" + nick)

	welcome := c.waitFor("001")
	require.Equal(t, nick, welcome.Params[0], "welcome targets the nick")

	return c
}

func TestE2ERegistration(t *testing.T) {
	_, addr := startTestServerTCP(t)

	c := dialServer(t, addr)
	c.send("PASS secret")
	c.send("NICK alice")
	c.send("USER alice 0 * :Alice A")

	welcome := c.waitFor("001")
	require.Equal(t, "alice", welcome.Params[0])
	require.Contains(t, welcome.Params[1],
		"Welcome to the Internet Relay Network alice!alice@")

	c.waitFor("004")
	isupport := c.waitFor("005")
	require.Contains(t, isupport.Params, "CASEMAPPING=rfc1459")

	// MOTD block (no MOTD file here).
	c.waitFor("422")
}

func TestE2EBadPassword(t *testing.T) {
	_, addr := startTestServerTCP(t)

	c := dialServer(t, addr)
	c.send("PASS nope")

	m := c.waitFor("464")
	require.Contains(t, m.Params[len(m.Params)-1], "Password incorrect")

	c.waitFor("ERROR")
	c.waitClosed()
}

func TestE2EJoinAndMessage(t *testing.T) {
	_, addr := startTestServerTCP(t)

	alice := registerClient(t, addr, "alice")
	bob := registerClient(t, addr, "bob")

	alice.send("JOIN #chat")

	join := alice.waitFor("JOIN")
	require.True(t, strings.HasPrefix(join.Prefix, "alice!alice@"),
		"JOIN comes from the joiner, got %q", join.Prefix)
	require.Equal(t, "#chat", join.Params[0])

	names := alice.waitFor("353")
	require.Equal(t, []string{"alice", "=", "#chat", "@alice"}, names.Params)
	alice.waitFor("366")

	bob.send("JOIN #chat")
	bob.waitFor("366")

	// alice hears about bob's join.
	join = alice.waitFor("JOIN")
	require.True(t, strings.HasPrefix(join.Prefix, "bob!bob@"))

	alice.send("PRIVMSG #chat :hi")

	msg := bob.waitFor("PRIVMSG")
	require.True(t, strings.HasPrefix(msg.Prefix, "alice!alice@"))
	require.Equal(t, []string{"#chat", "hi"}, msg.Params)
}

func TestE2EInviteOnly(t *testing.T) {
	_, addr := startTestServerTCP(t)

	alice := registerClient(t, addr, "alice")
	bob := registerClient(t, addr, "bob")

	alice.send("JOIN #secret")
	alice.waitFor("366")
	alice.send("MODE #secret +i")
	alice.waitFor("MODE")

	bob.send("JOIN #secret")
	m := bob.waitFor("473")
	require.Equal(t,
		[]string{"bob", "#secret", "Cannot join channel (+i)"}, m.Params)

	alice.send("INVITE bob #secret")
	alice.waitFor("341")
	bob.waitFor("INVITE")

	bob.send("JOIN #secret")
	join := bob.waitFor("JOIN")
	require.Equal(t, "#secret", join.Params[0])
}

func TestE2EUnknownCommand(t *testing.T) {
	_, addr := startTestServerTCP(t)

	alice := registerClient(t, addr, "alice")

	alice.send("FROBNICATE")
	m := alice.waitFor("421")
	require.Equal(t, []string{"alice", "FROBNICATE", "Unknown command"},
		m.Params)
}

func TestE2EQuit(t *testing.T) {
	_, addr := startTestServerTCP(t)

	alice := registerClient(t, addr, "alice")
	bob := registerClient(t, addr, "bob")

	alice.send("JOIN #chat")
	alice.waitFor("366")
	bob.send("JOIN #chat")
	bob.waitFor("366")
	alice.waitFor("JOIN")

	alice.send("QUIT :bye")

	quit := bob.waitFor("QUIT")
	require.True(t, strings.HasPrefix(quit.Prefix, "alice!alice@"))
	require.Equal(t, []string{"bye"}, quit.Params)

	alice.waitFor("ERROR")
	alice.waitClosed()
}

func TestE2EPingTimeout(t *testing.T) {
	s, err := newServer(&Args{Port: "0", Password: "secret"})
	require.NoError(t, err, "create server")

	// Shrink the liveness windows so the test completes quickly.
	s.Config.WakeupTime = 25 * time.Millisecond
	s.Config.PingTime = 150 * time.Millisecond
	s.Config.DeadTime = 150 * time.Millisecond

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "listen")
	s.Listener = ln

	go func() {
		_ = s.serve()
	}()
	t.Cleanup(s.shutdown)

	c := dialServer(t, ln.Addr().String())
	c.send("PASS secret")
	c.send("NICK sleepy")
	c.send("USER sleepy 0 * :Sleepy")
	c.waitFor("001")

	// Stay silent: the server pings, gets no PONG, and cuts us off.
	ping := c.waitFor("PING")
	require.Equal(t, []string{s.Config.ServerName}, ping.Params)

	errLine := c.waitFor("ERROR")
	require.Contains(t, errLine.Params[len(errLine.Params)-1], "Ping timeout")

	c.waitClosed()
}
