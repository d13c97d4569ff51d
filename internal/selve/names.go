package selve

import (
	"strings"
	"unicode/utf8"
)

// RepairName undoes the double-encoding the gateway applies to display names
// entered through its web UI: UTF-8 text read back as Latin-1 and re-encoded,
// turning "Gästezimmer" into "GÃ¤stezimmer". Names can be mangled twice, so
// the reversal is applied until it reaches a fixed point. Plain ASCII and
// genuinely Latin-1 names pass through unchanged apart from trimming.
func RepairName(name string) string {
	s := strings.TrimSpace(name)
	for i := 0; i < 2; i++ {
		fixed, ok := undoLatin1Reencode(s)
		if !ok {
			break
		}
		s = fixed
	}
	return strings.TrimSpace(s)
}

// undoLatin1Reencode attempts one reversal step. It only succeeds when every
// rune fits in a single Latin-1 byte and the resulting byte string is itself
// valid multi-byte UTF-8, which is vanishingly unlikely for text that was not
// mangled in the first place.
func undoLatin1Reencode(s string) (string, bool) {
	if !utf8.ValidString(s) {
		return s, false
	}
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return s, false
		}
		b = append(b, byte(r))
	}
	if !utf8.Valid(b) {
		return s, false
	}
	if utf8.RuneCount(b) == len(b) {
		// Pure single-byte text; nothing was re-encoded.
		return s, false
	}
	return string(b), true
}
