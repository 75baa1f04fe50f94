package main

// 50 from RFC
const maxChannelLength = 50

// Arbitrary. Something low enough we won't hit message limit.
const maxTopicLength = 300

// canonicalizeNick converts the given nick to its canonical representation
// (which must be unique).
//
// We use RFC 1459 casemapping: {, }, | and ^ are the lowercase of [, ], \
// and ~. We advertise this in the 005 reply.
//
// Note: We don't check validity or strip whitespace.
func canonicalizeNick(n string) string {
	b := make([]byte, len(n))
	for i := 0; i < len(n); i++ {
		b[i] = lowerByte(n[i])
	}
	return string(b)
}

// canonicalizeChannel converts the given channel to its canonical
// representation (which must be unique). Same casemapping as nicks.
//
// Note: We don't check validity or strip whitespace.
func canonicalizeChannel(c string) string {
	return canonicalizeNick(c)
}

func lowerByte(c byte) byte {
	switch {
	case c >= 'A' && c <= 'Z':
		return c + ('a' - 'A')
	case c == '[':
		return '{'
	case c == ']':
		return '}'
	case c == '\\':
		return '|'
	case c == '~':
		return '^'
	}
	return c
}

// isValidNick checks if a nickname is valid.
//
// RFC 2812: letter or special in first position, then letter, digit,
// special, or -.
func isValidNick(maxLen int, n string) bool {
	if len(n) == 0 || len(n) > maxLen {
		return false
	}

	for i := 0; i < len(n); i++ {
		c := n[i]

		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			continue
		}

		if isNickSpecial(c) {
			continue
		}

		// No digits or - in first position.
		if c >= '0' && c <= '9' || c == '-' {
			if i == 0 {
				return false
			}
			continue
		}

		return false
	}

	return true
}

// special = %x5B-60 / %x7B-7D, i.e. [ ] \ ^ _ ` { | }
func isNickSpecial(c byte) bool {
	return c >= '[' && c <= '`' || c >= '{' && c <= '}'
}

// isValidUser checks if a user (USER command) is valid
func isValidUser(maxLen int, u string) bool {
	if len(u) == 0 || len(u) > maxLen {
		return false
	}

	// Any octet except NUL, CR, LF, space, and @.
	for i := 0; i < len(u); i++ {
		c := u[i]
		if c == '\x00' || c == '\r' || c == '\n' || c == ' ' || c == '@' {
			return false
		}
	}

	return true
}

func isValidRealName(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\x00' || c == '\r' || c == '\n' {
			return false
		}
	}
	return true
}

// isValidChannel checks a channel name for validity.
//
// You should canonicalize it before using this function.
func isValidChannel(c string) bool {
	if len(c) == 0 || len(c) > maxChannelLength {
		return false
	}

	for i := 0; i < len(c); i++ {
		char := c[i]

		if i == 0 {
			if char == '#' || char == '&' {
				continue
			}
			return false
		}

		// No spaces, commas, or ^G (RFC 1459 section 1.3).
		if char == ' ' || char == ',' || char == '\x07' || char == '\x00' ||
			char == '\r' || char == '\n' {
			return false
		}
	}

	return true
}

// matchMask tells whether the string s matches the mask. The mask may
// contain * (matching any run, including an empty one) and ? (matching
// any single character). Matching is caseless under RFC 1459 casemapping.
func matchMask(mask, s string) bool {
	return matchMaskCanonical(canonicalizeNick(mask), canonicalizeNick(s))
}

func matchMaskCanonical(mask, s string) bool {
	// Iterative wildcard match, backtracking to the most recent *.
	mi, si := 0, 0
	star, starS := -1, 0

	for si < len(s) {
		if mi < len(mask) && (mask[mi] == '?' || mask[mi] == s[si]) {
			mi++
			si++
			continue
		}

		if mi < len(mask) && mask[mi] == '*' {
			star = mi
			starS = si
			mi++
			continue
		}

		if star != -1 {
			mi = star + 1
			starS++
			si = starS
			continue
		}

		return false
	}

	for mi < len(mask) && mask[mi] == '*' {
		mi++
	}

	return mi == len(mask)
}

func isNumericCommand(command string) bool {
	if len(command) == 0 {
		return false
	}
	for _, c := range command {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
