package main

import "testing"

func TestCanonicalizeNick(t *testing.T) {
	tests := []struct {
		input  string
		output string
	}{
		{"ABC", "abc"},
		{"abc", "abc"},
		{"Abc", "abc"},
		{"a12", "a12"},
		{"A12", "a12"},
		{"{}|^", "{}|^"},
		{"[]\\~", "{}|^"},
		{"-[\\]^_`{|}", "-{|}^_`{|}"},
		{"Nick[away]", "nick{away}"},
	}

	for _, test := range tests {
		out := canonicalizeNick(test.input)
		if out != test.output {
			t.Errorf("canonicalizeNick(%s) = %s, wanted %s", test.input, out,
				test.output)
		}
	}
}

func TestIsValidNick(t *testing.T) {
	tests := []struct {
		input  string
		output bool
	}{
		{"alice", true},
		{"Alice", true},
		{"a", true},
		{"a12", true},
		{"[soup]", true},
		{"`zap`", true},
		{"we-ird", true},
		{"", false},
		{"1abc", false},
		{"-abc", false},
		{"toolongnick", false},
		{"with space", false},
		{"at@sign", false},
	}

	for _, test := range tests {
		out := isValidNick(9, test.input)
		if out != test.output {
			t.Errorf("isValidNick(9, %s) = %v, wanted %v", test.input, out,
				test.output)
		}
	}
}

func TestIsValidChannel(t *testing.T) {
	tests := []struct {
		input  string
		output bool
	}{
		{"#chat", true},
		{"&local", true},
		{"#", true},
		{"#with-dash", true},
		{"", false},
		{"chat", false},
		{"#with space", false},
		{"#with,comma", false},
	}

	for _, test := range tests {
		out := isValidChannel(test.input)
		if out != test.output {
			t.Errorf("isValidChannel(%s) = %v, wanted %v", test.input, out,
				test.output)
		}
	}
}

func TestMatchMask(t *testing.T) {
	tests := []struct {
		mask   string
		input  string
		output bool
	}{
		{"alice!alice@127.0.0.1", "alice!alice@127.0.0.1", true},
		{"*", "alice!alice@127.0.0.1", true},
		{"alice!*@*", "alice!alice@127.0.0.1", true},
		{"alice!*@*", "bob!alice@127.0.0.1", false},
		{"*!*@127.0.0.1", "bob!bob@127.0.0.1", true},
		{"a?ice!*@*", "alice!alice@127.0.0.1", true},
		{"a?ice!*@*", "ace!alice@127.0.0.1", false},
		{"*lice*", "alice!alice@127.0.0.1", true},
		{"ALICE!*@*", "alice!alice@127.0.0.1", true},
		// RFC 1459 casemapping applies to masks.
		{"nick[a]!*@*", "nick{a}!u@h", true},
		{"", "", true},
		{"", "a", false},
		{"*!*@*", "", false},
	}

	for _, test := range tests {
		out := matchMask(test.mask, test.input)
		if out != test.output {
			t.Errorf("matchMask(%s, %s) = %v, wanted %v", test.mask,
				test.input, out, test.output)
		}
	}
}

func TestIsNumericCommand(t *testing.T) {
	tests := []struct {
		input  string
		output bool
	}{
		{"001", true},
		{"433", true},
		{"PRIVMSG", false},
		{"", false},
		{"4a3", false},
	}

	for _, test := range tests {
		out := isNumericCommand(test.input)
		if out != test.output {
			t.Errorf("isNumericCommand(%s) = %v, wanted %v", test.input, out,
				test.output)
		}
	}
}
