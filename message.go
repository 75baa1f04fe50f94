package main

import (
	"errors"
	"fmt"
	"strings"
)

// maxLineLength is the maximum protocol message line length. It includes
// CRLF. See RFC 1459/2812 section 2.3.
const maxLineLength = 512

// Both RFC 1459 and RFC 2812 limit us to 15 parameters.
const maxParams = 15

// errEmptyMessage means the line held no command at all (blank, only
// whitespace, or only a prefix). Such lines are dropped without a reply.
var errEmptyMessage = errors.New("empty message")

// errTruncated is returned by Encode if the message gets truncated due to
// encoding to more than maxLineLength bytes. The truncated message is
// still usable.
var errTruncated = errors.New("message truncated")

// Message holds a protocol message. See section 2.3.1 in RFC 1459/2812.
//
//	message  = [ ":" prefix SPACE ] command *( SPACE param )
//	           [ SPACE ":" trailing ] crlf
type Message struct {
	// Prefix may be blank. It's optional. Servers set it to their name,
	// user-originated broadcasts to nick!user@host.
	Prefix string

	// Command is the IRC command, uppercased. It may be a numeric.
	Command string

	// Params holds the middle parameters. None of them contains a space.
	Params []string

	// Trailing is the ":"-prefixed remainder, without the colon. It may
	// contain spaces. Blank unless HasTrailing.
	Trailing string

	// HasTrailing records that a trailing parameter is present. We need
	// it because an empty trailing is meaningful (e.g. TOPIC unset).
	HasTrailing bool
}

func (m Message) String() string {
	return fmt.Sprintf("Prefix [%s] Command [%s] Params%q Trailing [%s]",
		m.Prefix, m.Command, m.Params, m.Trailing)
}

// args returns the parameters as a single slice with the trailing (if
// any) as the last element. Clients may send the final parameter either
// way ("PRIVMSG #c hi" vs "PRIVMSG #c :hi"), so handlers index into
// this rather than caring which form arrived.
func (m Message) args() []string {
	if !m.HasTrailing {
		return m.Params
	}
	args := make([]string, 0, len(m.Params)+1)
	args = append(args, m.Params...)
	return append(args, m.Trailing)
}

// SourceNick retrieves the nickname portion of the prefix. It is valid
// for this to be blank as not all messages have prefixes.
func (m Message) SourceNick() string {
	idx := strings.Index(m.Prefix, "!")
	if idx == -1 {
		return ""
	}
	return m.Prefix[:idx]
}

// parseMessage parses one protocol line from a client. The line should
// include the trailing LF; a preceding CR is optional (we tolerate bare
// LF on input). Lines longer than maxLineLength are truncated rather
// than rejected.
//
// A line carrying no command at all yields errEmptyMessage; the caller
// drops it silently.
func parseMessage(line string) (Message, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	if len(line)+2 > maxLineLength {
		line = line[:maxLineLength-2]
	}

	m := Message{}
	pos := 0

	if pos < len(line) && line[pos] == ':' {
		prefix, newPos, err := parsePrefix(line)
		if err != nil {
			return Message{}, err
		}
		m.Prefix = prefix
		pos = newPos
	}

	pos = skipSpaces(line, pos)

	command, pos, err := parseCommand(line, pos)
	if err != nil {
		return Message{}, err
	}
	m.Command = command

	for pos < len(line) {
		pos = skipSpaces(line, pos)
		if pos == len(line) {
			break
		}

		// A parameter starting with : consumes the rest of the line.
		if line[pos] == ':' {
			m.Trailing = line[pos+1:]
			m.HasTrailing = true
			break
		}

		end := pos
		for end < len(line) && line[end] != ' ' {
			end++
		}
		if len(m.Params) == maxParams {
			return Message{}, fmt.Errorf("too many parameters")
		}
		m.Params = append(m.Params, line[pos:end])
		pos = end
	}

	return m, nil
}

// parsePrefix parses out the prefix portion. line begins with ':'.
// Returns the prefix (without the colon) and the position of the space
// after it.
func parsePrefix(line string) (string, int, error) {
	pos := 1
	for pos < len(line) && line[pos] != ' ' {
		if line[pos] == '\x00' {
			return "", -1, fmt.Errorf("invalid character in prefix")
		}
		pos++
	}

	if pos == len(line) {
		// Prefix only. No command follows.
		return "", -1, errEmptyMessage
	}

	if pos == 1 {
		return "", -1, fmt.Errorf("prefix is zero length")
	}

	return line[1:pos], pos, nil
}

// parseCommand parses the command portion.
//
//	command = 1*letter / 3digit
//
// Commands are matched case-insensitively for dispatch, so we uppercase
// here.
func parseCommand(line string, pos int) (string, int, error) {
	start := pos
	for pos < len(line) && line[pos] != ' ' {
		c := line[pos]
		isLetter := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
		isDigit := c >= '0' && c <= '9'
		if !isLetter && !isDigit {
			return "", -1, fmt.Errorf("unexpected character in command: %q", c)
		}
		pos++
	}

	if pos == start {
		return "", -1, errEmptyMessage
	}

	return strings.ToUpper(line[start:pos]), pos, nil
}

func skipSpaces(line string, pos int) int {
	for pos < len(line) && line[pos] == ' ' {
		pos++
	}
	return pos
}

// Encode encodes the Message into a raw protocol line with a trailing
// CRLF.
//
// If encoding would exceed maxLineLength bytes we truncate, return as
// much as fits, and report errTruncated. The truncated line is still
// usable.
//
// It does not enforce command specific semantics.
func (m Message) Encode() (string, error) {
	s := ""

	if len(m.Prefix) > 0 {
		s += ":" + m.Prefix + " "
	}

	s += m.Command

	if len(s)+2 > maxLineLength {
		return "", fmt.Errorf("message with only prefix/command is too long")
	}

	if len(m.Params) > maxParams {
		return "", fmt.Errorf("too many parameters")
	}

	for _, param := range m.Params {
		// A middle parameter must not contain a space or start with a
		// colon. Such content belongs in Trailing.
		if strings.ContainsAny(param, " \r\n\x00") || param == "" ||
			param[0] == ':' {
			return "", fmt.Errorf("invalid middle parameter: %q", param)
		}

		if len(s)+1+len(param)+2 > maxLineLength {
			return s + "\r\n", errTruncated
		}

		s += " " + param
	}

	if m.HasTrailing {
		trailing := m.Trailing
		if strings.ContainsAny(trailing, "\r\n\x00") {
			return "", fmt.Errorf("invalid trailing parameter: %q", trailing)
		}

		// Claim the separator, colon, and CRLF, then fit what we can.
		available := maxLineLength - (len(s) + 2 + 2)
		if available < 0 {
			return s + "\r\n", errTruncated
		}
		if len(trailing) > available {
			return s + " :" + trailing[:available] + "\r\n", errTruncated
		}

		s += " :" + trailing
	}

	return s + "\r\n", nil
}
