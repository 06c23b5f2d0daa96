package main

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab…", truncate("abcdef", 3))

	// Names from spreadsheets carry multibyte runes; cutting must never
	// split one.
	got := truncate("Übung Müller GmbH Äöü", 10)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "Übung Mül…", got)

	exact := truncate("Äöüß", 4)
	assert.Equal(t, "Äöüß", exact)
}
