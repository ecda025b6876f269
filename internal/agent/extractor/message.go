package extractor

import (
	"regexp"
	"strconv"
	"strings"
)

var sizePattern = regexp.MustCompile(`(?i)(\d+)\s*gb`)

// Message is the tokenized view of one operator message that rules inspect.
// Tokens keep their original case; Lower is used for every comparison.
type Message struct {
	Raw    string
	Lower  string
	Tokens []string

	flavors []string
}

func newMessage(raw string, flavors []string) *Message {
	fields := strings.Fields(raw)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := cleanToken(f); t != "" {
			tokens = append(tokens, t)
		}
	}
	return &Message{
		Raw:     raw,
		Lower:   strings.ToLower(raw),
		Tokens:  tokens,
		flavors: flavors,
	}
}

// cleanToken strips quotes and trailing punctuation but keeps dots, which are
// part of flavor names like S.4.
func cleanToken(s string) string {
	return strings.Trim(s, "\"'`,;:!?()")
}

// Contains reports whether every word occurs in the lowercased text.
func (m *Message) Contains(words ...string) bool {
	for _, w := range words {
		if !strings.Contains(m.Lower, w) {
			return false
		}
	}
	return true
}

// ContainsAny reports whether at least one word occurs in the lowercased text.
func (m *Message) ContainsAny(words ...string) bool {
	for _, w := range words {
		if strings.Contains(m.Lower, w) {
			return true
		}
	}
	return false
}

// index returns the position of the first token equal to word, or -1.
func (m *Message) index(word string) int {
	for i, t := range m.Tokens {
		if strings.EqualFold(t, word) {
			return i
		}
	}
	return -1
}

// After returns the token that immediately follows the first occurrence of word.
func (m *Message) After(word string) (string, bool) {
	i := m.index(word)
	if i < 0 || i+1 >= len(m.Tokens) {
		return "", false
	}
	return m.Tokens[i+1], true
}

// AfterSequence returns the token following the consecutive words seq.
func (m *Message) AfterSequence(seq ...string) (string, bool) {
	for i := 0; i+len(seq) < len(m.Tokens); i++ {
		if m.sequenceAt(i, seq) {
			return m.Tokens[i+len(seq)], true
		}
	}
	return "", false
}

// HasSequence reports whether the consecutive words seq occur in the tokens.
func (m *Message) HasSequence(seq ...string) bool {
	for i := 0; i+len(seq) <= len(m.Tokens); i++ {
		if m.sequenceAt(i, seq) {
			return true
		}
	}
	return false
}

func (m *Message) sequenceAt(i int, seq []string) bool {
	for j, w := range seq {
		if !strings.EqualFold(m.Tokens[i+j], w) {
			return false
		}
	}
	return true
}

// MarkedName returns the token after the first marker word that is present.
func (m *Message) MarkedName(markers ...string) (string, bool) {
	for _, marker := range markers {
		if name, ok := m.After(marker); ok {
			return name, true
		}
	}
	return "", false
}

// Flavor returns the first token matching a known flavor, in its canonical form.
func (m *Message) Flavor() (string, bool) {
	for _, t := range m.Tokens {
		if f, ok := m.canonicalFlavor(t); ok {
			return f, true
		}
	}
	return "", false
}

// canonicalFlavor ignores a trailing full stop: flavor names carry an inner
// dot, never a final one, so "M.8." at the end of a sentence is M.8.
func (m *Message) canonicalFlavor(token string) (string, bool) {
	token = strings.TrimRight(token, ".")
	for _, f := range m.flavors {
		if strings.EqualFold(f, token) {
			return f, true
		}
	}
	return "", false
}

// MentionsSize reports whether the message names a size in GB at all.
func (m *Message) MentionsSize() bool {
	return sizePattern.MatchString(m.Raw)
}

// Size returns the first integer immediately followed by "gb". It reports
// false when there is none or the number does not fit in an int.
func (m *Message) Size() (int, bool) {
	match := sizePattern.FindStringSubmatch(m.Raw)
	if match == nil {
		return 0, false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
