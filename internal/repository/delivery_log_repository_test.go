package repository

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateBody(t *testing.T) {
	assert.Equal(t, "ok", TruncateBody("ok"))
	assert.Equal(t, "nulls gone", TruncateBody("nulls\x00 gone\x00"))
	assert.Equal(t, "bad \uFFFD byte", TruncateBody("bad \xff byte"))

	long := strings.Repeat("é", MaxResponseBodyLength)
	cut := TruncateBody(long)
	assert.LessOrEqual(t, len(cut), MaxResponseBodyLength)
	assert.True(t, utf8.ValidString(cut))

	mixed := TruncateBody(strings.Repeat("\xfe\x00", MaxResponseBodyLength))
	assert.LessOrEqual(t, len(mixed), MaxResponseBodyLength)
	assert.True(t, utf8.ValidString(mixed))
	assert.NotContains(t, mixed, "\x00")
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "", CleanText(""))
	assert.Equal(t, "dial tcp: \uFFFD", CleanText("dial tcp: \x00\xc3"))
}
