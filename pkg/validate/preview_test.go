package validate

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestPreview_ShortBodyUnmodified(t *testing.T) {
	body := []byte("0123456789")
	assert.Equal(t, "0123456789", Preview(body, 500))
}

func TestPreview_TruncatesLongBody(t *testing.T) {
	body := []byte(strings.Repeat("a", 10000))
	got := Preview(body, 500)

	suffix := "…(10000 bytes total)"
	assert.Equal(t, 500, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, suffix), got[480:])
	assert.Equal(t, strings.Repeat("a", 500-utf8.RuneCountInString(suffix)), strings.TrimSuffix(got, suffix))
}

func TestPreview_NeverExceedsLimit(t *testing.T) {
	malformed := []byte(strings.Repeat("{", 10000))
	for _, limit := range []int{1, 5, 19, 20, 21, 100, 500} {
		got := Preview(malformed, limit)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), limit, "limit %d: %q", limit, got)
	}

	env := FromBytes(200, nil, malformed)
	_, err := env.Parse()
	vf := asFailure(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(vf.BodyPreview), DefaultPreviewLimit)
}

func TestPreview_LimitSmallerThanSuffix(t *testing.T) {
	assert.Equal(t, "aaaaa", Preview([]byte(strings.Repeat("a", 10000)), 5))
}

func TestPreview_CountsRunes(t *testing.T) {
	body := []byte(strings.Repeat("é", 40))
	got := Preview(body, 30)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 30, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "é…(80 bytes total)"), got)
}

func TestPreview_DefaultLimitAndInvalidUTF8(t *testing.T) {
	got := Preview([]byte(strings.Repeat("b", 600)), 0)
	assert.Equal(t, DefaultPreviewLimit, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "b…(600 bytes total)"))

	assert.True(t, utf8.ValidString(Preview([]byte{0xff, 'o', 'k'}, 10)))
}

func TestEnvelopePreviewLimit(t *testing.T) {
	env := FromBytes(500, nil, []byte(strings.Repeat("x", 100)), WithPreviewLimit(30))
	_, err := env.Parse()
	vf := asFailure(t, err)
	assert.Equal(t, strings.Repeat("x", 12)+"…(100 bytes total)", vf.BodyPreview)
}
