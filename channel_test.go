package main

import (
	"reflect"
	"testing"
)

func TestModeStrings(t *testing.T) {
	tests := []struct {
		modes      ChannelModes
		showArgs   bool
		wantModes  string
		wantParams []string
	}{
		{ChannelModes{}, true, "+", nil},
		{ChannelModes{NoExternal: true, TopicLocked: true}, true, "+nt", nil},
		{
			ChannelModes{InviteOnly: true, Secret: true},
			true,
			"+is",
			nil,
		},
		{
			ChannelModes{Key: "hunter2", UserLimit: 10},
			true,
			"+kl",
			[]string{"hunter2", "10"},
		},
		{
			// Non-members don't see the key or limit values.
			ChannelModes{Key: "hunter2", UserLimit: 10},
			false,
			"+kl",
			nil,
		},
	}

	for _, test := range tests {
		ch := newChannel("#test")
		ch.Modes = test.modes

		modes, params := ch.modeStrings(test.showArgs)
		if modes != test.wantModes {
			t.Errorf("modeStrings(%v) modes = %s, wanted %s", test.modes,
				modes, test.wantModes)
		}
		if !reflect.DeepEqual(params, test.wantParams) {
			t.Errorf("modeStrings(%v) params = %v, wanted %v", test.modes,
				params, test.wantParams)
		}
	}
}

func TestCompleteBanMask(t *testing.T) {
	tests := []struct {
		input  string
		output string
	}{
		{"bob", "bob!*@*"},
		{"bob!*@*", "bob!*@*"},
		{"*!*@10.0.0.1", "*!*@10.0.0.1"},
		{"bob@10.0.0.1", "*!bob@10.0.0.1"},
		{"bob!user", "bob!user@*"},
	}

	for _, test := range tests {
		out := completeBanMask(test.input)
		if out != test.output {
			t.Errorf("completeBanMask(%s) = %s, wanted %s", test.input, out,
				test.output)
		}
	}
}

func TestChannelBans(t *testing.T) {
	ch := newChannel("#test")
	u := &User{
		ID:          1,
		DisplayNick: "bob",
		Username:    "bob",
		Hostname:    "10.1.2.3",
		Channels:    map[string]*Channel{},
	}

	if ch.isBanned(u) {
		t.Error("banned with empty ban list")
	}

	ch.Bans = append(ch.Bans, "*!*@10.1.2.3")
	if !ch.isBanned(u) {
		t.Error("host ban did not match")
	}

	if !ch.removeBan("*!*@10.1.2.3") {
		t.Error("could not remove ban")
	}
	if ch.isBanned(u) {
		t.Error("still banned after removal")
	}

	// Caseless mask handling.
	ch.Bans = append(ch.Bans, "BOB!*@*")
	if !ch.hasBan("bob!*@*") {
		t.Error("hasBan is not caseless")
	}
	if !ch.isBanned(u) {
		t.Error("caseless ban did not match")
	}
}

func TestChannelMembership(t *testing.T) {
	ch := newChannel("#test")
	alice := &User{ID: 1, DisplayNick: "alice",
		Channels: map[string]*Channel{}}
	bob := &User{ID: 2, DisplayNick: "bob", Channels: map[string]*Channel{}}

	ch.addMember(alice, true)
	ch.addMember(bob, false)

	if !ch.hasOperator(alice) {
		t.Error("first member is not operator")
	}
	if ch.hasOperator(bob) {
		t.Error("second member is operator")
	}

	m, _ := ch.member(alice)
	if m.nickPrefix() != "@" {
		t.Errorf("operator prefix = %q, wanted @", m.nickPrefix())
	}

	m, _ = ch.member(bob)
	m.Voice = true
	if m.nickPrefix() != "+" {
		t.Errorf("voice prefix = %q, wanted +", m.nickPrefix())
	}

	// Moderated channel: voice or operator may speak.
	ch.Modes.Moderated = true
	if !ch.canSpeak(alice) || !ch.canSpeak(bob) {
		t.Error("operator/voiced cannot speak on moderated channel")
	}
	m.Voice = false
	if ch.canSpeak(bob) {
		t.Error("plain member can speak on moderated channel")
	}

	ch.removeMember(bob)
	if _, onChannel := ch.member(bob); onChannel {
		t.Error("membership survived removal")
	}
	if bob.onChannel(ch) {
		t.Error("user still tracks channel after removal")
	}

	if ch.isEmpty() {
		t.Error("channel reported empty with a member")
	}
	ch.removeMember(alice)
	if !ch.isEmpty() {
		t.Error("channel reported non-empty with no members")
	}
}

func TestChannelVisibility(t *testing.T) {
	ch := newChannel("#test")
	alice := &User{ID: 1, Channels: map[string]*Channel{}}
	bob := &User{ID: 2, Channels: map[string]*Channel{}}
	ch.addMember(alice, true)

	if !ch.visibleTo(bob) {
		t.Error("public channel hidden")
	}
	if ch.statusFlag() != "=" {
		t.Errorf("statusFlag = %q, wanted =", ch.statusFlag())
	}

	ch.Modes.Secret = true
	if ch.visibleTo(bob) {
		t.Error("secret channel visible to non-member")
	}
	if !ch.visibleTo(alice) {
		t.Error("secret channel hidden from member")
	}
	if ch.statusFlag() != "@" {
		t.Errorf("statusFlag = %q, wanted @", ch.statusFlag())
	}
}
