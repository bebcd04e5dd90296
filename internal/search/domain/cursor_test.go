package domain

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{Rank: 0.0607927, ID: "5b0c-17"}
	got, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestCursorIsURLSafe(t *testing.T) {
	enc := Cursor{Rank: 1, ID: "??>>"}.Encode()
	assert.NotContains(t, enc, "+")
	assert.NotContains(t, enc, "/")
	assert.NotContains(t, enc, "=")
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, in := range []string{
		"",
		"not base64!",
		base64.RawURLEncoding.EncodeToString([]byte(`{"r":"1; DROP TABLE decisions","id":"x"}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`{"r":0.5}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`{"r":-1,"id":"x"}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`[1,2]`)),
	} {
		_, err := DecodeCursor(in)
		assert.ErrorIs(t, err, ErrInvalidCursor, in)
	}
}

func TestDecodeCursorAcceptsPadding(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte(`{"r":0.25,"id":"a"}`))
	c, err := DecodeCursor(padded)
	require.NoError(t, err)
	assert.Equal(t, "a", c.ID)
}

func TestCursorAfter(t *testing.T) {
	c := Cursor{Rank: 0.5, ID: "m"}
	assert.True(t, c.After(0.4, "z"))
	assert.True(t, c.After(0.5, "a"))
	assert.False(t, c.After(0.5, "m"))
	assert.False(t, c.After(0.6, "a"))
}
