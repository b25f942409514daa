package chatbox

import (
	"strings"
	"unicode"
)

// sentenceEnders anchors Truncate cuts. Commas and enumeration marks count too.
const sentenceEnders = ".?!," +
	"。？！，" +
	"…‽" +
	"։؟;\u037e،" +
	"।॥።။།" +
	"、‚٫"

// Truncate bounds text to maxLength runes. It drops whole leading sentences so
// the newest words stay visible, and only cuts mid-sentence when no punctuation
// is left to anchor on. Truncate(Truncate(t)) == Truncate(t).
func Truncate(text string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	rs := []rune(text)
	for len(rs) > maxLength {
		cut := indexEnder(rs)
		if cut == -1 {
			return string(rs[len(rs)-maxLength:])
		}
		rs = trimLeftSpace(rs[cut+1:])
	}
	return string(rs)
}

func indexEnder(rs []rune) int {
	for i, r := range rs {
		if strings.ContainsRune(sentenceEnders, r) {
			return i
		}
	}
	return -1
}

func trimLeftSpace(rs []rune) []rune {
	i := 0
	for i < len(rs) && unicode.IsSpace(rs[i]) {
		i++
	}
	return rs[i:]
}
