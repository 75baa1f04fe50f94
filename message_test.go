package main

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		input   string
		output  Message
		success bool
	}{
		{
			"PING\r\n",
			Message{Command: "PING"},
			true,
		},
		{
			// Bare LF is tolerated.
			"NICK alice\n",
			Message{Command: "NICK", Params: []string{"alice"}},
			true,
		},
		{
			// Commands are uppercased for dispatch.
			"privmsg #chat :hi there\r\n",
			Message{
				Command:     "PRIVMSG",
				Params:      []string{"#chat"},
				Trailing:    "hi there",
				HasTrailing: true,
			},
			true,
		},
		{
			":irc.example.com 001 alice :Welcome\r\n",
			Message{
				Prefix:      "irc.example.com",
				Command:     "001",
				Params:      []string{"alice"},
				Trailing:    "Welcome",
				HasTrailing: true,
			},
			true,
		},
		{
			// Empty trailing is meaningful (e.g. TOPIC unset).
			"TOPIC #chat :\r\n",
			Message{
				Command:     "TOPIC",
				Params:      []string{"#chat"},
				HasTrailing: true,
			},
			true,
		},
		{
			"USER alice 0 * :Alice A\r\n",
			Message{
				Command:     "USER",
				Params:      []string{"alice", "0", "*"},
				Trailing:    "Alice A",
				HasTrailing: true,
			},
			true,
		},
		{
			// Multiple spaces between tokens.
			"JOIN   #chat\r\n",
			Message{Command: "JOIN", Params: []string{"#chat"}},
			true,
		},
		{
			// A trailing containing colons.
			"PRIVMSG #chat ::-) https://irc\r\n",
			Message{
				Command:     "PRIVMSG",
				Params:      []string{"#chat"},
				Trailing:    ":-) https://irc",
				HasTrailing: true,
			},
			true,
		},
		{
			// Blank line: dropped.
			"\r\n",
			Message{},
			false,
		},
		{
			// Only whitespace: dropped.
			"   \r\n",
			Message{},
			false,
		},
		{
			// Prefix only: dropped.
			":irc.example.com\r\n",
			Message{},
			false,
		},
		{
			// Invalid command character.
			"PRIV@MSG #chat hi\r\n",
			Message{},
			false,
		},
	}

	for _, test := range tests {
		m, err := parseMessage(test.input)
		if err != nil {
			if test.success {
				t.Errorf("parseMessage(%q) = error %s, wanted %v", test.input,
					err, test.output)
			}
			continue
		}

		if !test.success {
			t.Errorf("parseMessage(%q) = %v, wanted error", test.input, m)
			continue
		}

		if !reflect.DeepEqual(m, test.output) {
			t.Errorf("parseMessage(%q) = %v, wanted %v", test.input, m,
				test.output)
		}
	}
}

func TestParseMessageTruncates(t *testing.T) {
	// Arbitrarily long input must not crash, and must come out within
	// the protocol limit.
	line := "PRIVMSG #chat :" + strings.Repeat("x", 4096) + "\r\n"

	m, err := parseMessage(line)
	if err != nil {
		t.Fatalf("parseMessage(long line) = error %s", err)
	}

	if m.Command != "PRIVMSG" {
		t.Errorf("command = %s, wanted PRIVMSG", m.Command)
	}

	if len(m.Trailing) >= 4096 {
		t.Errorf("trailing was not truncated (%d bytes)", len(m.Trailing))
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		input   Message
		output  string
		success bool
	}{
		{
			Message{Command: "PING"},
			"PING\r\n",
			true,
		},
		{
			Message{
				Prefix:      "alice!alice@127.0.0.1",
				Command:     "PRIVMSG",
				Params:      []string{"#chat"},
				Trailing:    "hi",
				HasTrailing: true,
			},
			":alice!alice@127.0.0.1 PRIVMSG #chat :hi\r\n",
			true,
		},
		{
			Message{
				Prefix:      "IRCat",
				Command:     "332",
				Params:      []string{"alice", "#chat"},
				Trailing:    "the topic",
				HasTrailing: true,
			},
			":IRCat 332 alice #chat :the topic\r\n",
			true,
		},
		{
			// Empty trailing still gets its colon.
			Message{
				Command:     "TOPIC",
				Params:      []string{"#chat"},
				HasTrailing: true,
			},
			"TOPIC #chat :\r\n",
			true,
		},
		{
			// A middle parameter may not contain a space.
			Message{Command: "PRIVMSG", Params: []string{"#chat", "hi there"}},
			"",
			false,
		},
	}

	for _, test := range tests {
		out, err := test.input.Encode()
		if err != nil {
			if test.success {
				t.Errorf("Encode(%v) = error %s, wanted %q", test.input, err,
					test.output)
			}
			continue
		}

		if !test.success {
			t.Errorf("Encode(%v) = %q, wanted error", test.input, out)
			continue
		}

		if out != test.output {
			t.Errorf("Encode(%v) = %q, wanted %q", test.input, out,
				test.output)
		}
	}
}

func TestEncodeTruncates(t *testing.T) {
	m := Message{
		Prefix:      "alice!alice@127.0.0.1",
		Command:     "PRIVMSG",
		Params:      []string{"#chat"},
		Trailing:    strings.Repeat("x", 1024),
		HasTrailing: true,
	}

	out, err := m.Encode()
	if err != errTruncated {
		t.Fatalf("Encode(long message) error = %v, wanted errTruncated", err)
	}

	if len(out) != maxLineLength {
		t.Errorf("len(encoded) = %d, wanted %d", len(out), maxLineLength)
	}

	if !strings.HasSuffix(out, "\r\n") {
		t.Errorf("encoded line does not end with CRLF")
	}
}

// Round-trip: parsing a well formed encoded message yields the message
// back.
func TestEncodeParseRoundTrip(t *testing.T) {
	tests := []Message{
		{Command: "PING"},
		{Command: "NICK", Params: []string{"alice"}},
		{
			Command:     "PRIVMSG",
			Params:      []string{"#chat"},
			Trailing:    "hello world",
			HasTrailing: true,
		},
		{
			Prefix:      "IRCat",
			Command:     "001",
			Params:      []string{"alice"},
			Trailing:    "Welcome to the Internet Relay Network alice!alice@h",
			HasTrailing: true,
		},
		{
			Command:     "TOPIC",
			Params:      []string{"#chat"},
			HasTrailing: true,
		},
		{
			Prefix:  "alice!alice@127.0.0.1",
			Command: "MODE",
			Params:  []string{"#chat", "+kl", "secret", "10"},
		},
	}

	for _, m := range tests {
		encoded, err := m.Encode()
		if err != nil {
			t.Errorf("Encode(%v) = error %s", m, err)
			continue
		}

		parsed, err := parseMessage(encoded)
		if err != nil {
			t.Errorf("parseMessage(%q) = error %s", encoded, err)
			continue
		}

		if !reflect.DeepEqual(parsed, m) {
			t.Errorf("round trip of %v via %q = %v", m, encoded, parsed)
		}
	}
}

func TestMessageArgs(t *testing.T) {
	tests := []struct {
		input  string
		output []string
	}{
		{"PRIVMSG #chat :hi there\r\n", []string{"#chat", "hi there"}},
		{"PRIVMSG #chat hi\r\n", []string{"#chat", "hi"}},
		{"PING\r\n", nil},
		{"TOPIC #chat :\r\n", []string{"#chat", ""}},
	}

	for _, test := range tests {
		m, err := parseMessage(test.input)
		if err != nil {
			t.Errorf("parseMessage(%q) = error %s", test.input, err)
			continue
		}

		if !reflect.DeepEqual(m.args(), test.output) {
			t.Errorf("args(%q) = %q, wanted %q", test.input, m.args(),
				test.output)
		}
	}
}
