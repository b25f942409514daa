// Package chatbox turns streaming translation text into the line-bounded payload
// shown in the avatar chatbox overlay.
package chatbox

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// MaxLength is the overlay limit, line breaks included.
const MaxLength = 144

const (
	Ellipsis    = "..."
	CJKEllipsis = "……"
)

// Bracketed spans are swapped for private use area markers while breaks are inserted.
const (
	placeholderOpen  = '\uE000'
	placeholderClose = '\uE001'
)

var bracketRe = regexp.MustCompile(`\[[^\]]*\]`)

// Message is a confirmed/unconfirmed split of one translation result.
type Message struct {
	Confirmed   string
	Delimiter   string
	Unconfirmed string
}

func (m Message) String() string {
	switch {
	case m.Confirmed == "":
		return m.Unconfirmed
	case m.Unconfirmed == "":
		return m.Confirmed
	default:
		return m.Confirmed + m.Delimiter + "\n" + m.Unconfirmed
	}
}

// Render formats text for the overlay and bounds it to maxLength runes.
func Render(text string, lineBreaks bool, maxLength int) string {
	return Truncate(Format(text, lineBreaks), maxLength)
}

// Format applies sentence line breaks and the confirmed/unconfirmed layout.
// With lineBreaks off the text is returned as is.
func Format(text string, lineBreaks bool) string {
	if !lineBreaks || text == "" {
		return text
	}
	text = normalizeNewlines(text)
	protected, segments := protectBrackets(text)

	var out string
	if msg, ok := Split(protected); ok {
		msg.Confirmed = strings.TrimRightFunc(InsertSentenceBreaks(msg.Confirmed), unicode.IsSpace)
		out = msg.String()
	} else {
		out = InsertSentenceBreaks(protected)
	}
	return restoreBrackets(out, segments)
}

// Split cuts text at the last valid "..." (or, failing that, the last "……").
// A delimiter is valid only when both sides hold non-blank text. The unconfirmed
// side is collapsed to a single line.
func Split(text string) (Message, bool) {
	if text == "" {
		return Message{}, false
	}
	text = normalizeNewlines(text)
	for _, delim := range []string{Ellipsis, CJKEllipsis} {
		idx := strings.LastIndex(text, delim)
		if idx == -1 {
			continue
		}
		left, right := text[:idx], text[idx+len(delim):]
		if strings.TrimSpace(left) == "" || strings.TrimSpace(right) == "" {
			continue
		}
		return Message{
			Confirmed:   strings.TrimRightFunc(left, unicode.IsSpace),
			Delimiter:   delim,
			Unconfirmed: collapseSpace(right),
		}, true
	}
	return Message{}, false
}

// InsertSentenceBreaks puts a line break after sentence-ending punctuation and
// swallows the whitespace that followed it. A bare '.' only counts when it is not
// part of a run of dots and is followed by whitespace, end of text or a closing
// quote or bracket, so decimals and domain names survive.
func InsertSentenceBreaks(text string) string {
	if text == "" {
		return text
	}
	text = normalizeNewlines(text)
	text = breakAfter(text, func(rs []rune, i int) bool {
		return strings.ContainsRune("。！？!?…", rs[i])
	})
	return breakAfter(text, func(rs []rune, i int) bool {
		if rs[i] != '.' {
			return false
		}
		if i > 0 && rs[i-1] == '.' {
			return false
		}
		if i+1 == len(rs) {
			return true
		}
		next := rs[i+1]
		return unicode.IsSpace(next) || strings.ContainsRune(closers, next)
	})
}

const closers = "\"')]}》」』”’"

func breakAfter(text string, isEnd func(rs []rune, i int) bool) string {
	rs := []rune(text)
	var b strings.Builder
	b.Grow(len(text) + 8)
	for i := 0; i < len(rs); i++ {
		b.WriteRune(rs[i])
		if !isEnd(rs, i) {
			continue
		}
		if i+1 < len(rs) && rs[i+1] == '\n' {
			continue
		}
		j := i + 1
		for j < len(rs) && unicode.IsSpace(rs[j]) {
			j++
		}
		b.WriteByte('\n')
		i = j - 1
	}
	return b.String()
}

func protectBrackets(text string) (string, []string) {
	var segments []string
	protected := bracketRe.ReplaceAllStringFunc(text, func(m string) string {
		segments = append(segments, collapseSpace(m))
		return placeholder(len(segments) - 1)
	})
	return protected, segments
}

func restoreBrackets(text string, segments []string) string {
	for i, seg := range segments {
		text = strings.ReplaceAll(text, placeholder(i), seg)
	}
	return text
}

func placeholder(i int) string {
	return string(placeholderOpen) + strconv.Itoa(i) + string(placeholderClose)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
