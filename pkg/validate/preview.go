package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultPreviewLimit is the default body preview bound in runes.
const DefaultPreviewLimit = 500

// Preview returns body as text of at most limit runes. A longer body is cut
// and ends with a note of the full size, which counts toward limit. Bodies
// within the limit are returned unchanged.
func Preview(body []byte, limit int) string {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	s := string(body)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	suffix := fmt.Sprintf("…(%d bytes total)", len(body))
	keep := limit - utf8.RuneCountInString(suffix)
	if keep <= 0 {
		return cutRunes(s, limit)
	}
	return cutRunes(s, keep) + suffix
}

// cutRunes returns the first n runes of s.
func cutRunes(s string, n int) string {
	i := 0
	for j := range s {
		if i == n {
			return s[:j]
		}
		i++
	}
	return s
}
