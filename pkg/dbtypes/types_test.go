package dbtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArrayScan(t *testing.T) {
	var a StringArray
	require.NoError(t, a.Scan([]byte(`["x","y"]`)))
	assert.Equal(t, StringArray{"x", "y"}, a)
	assert.True(t, a.Contains("y"))

	require.NoError(t, a.Scan(nil))
	assert.Empty(t, a)

	assert.Error(t, a.Scan(42))
}

func TestEmptyValues(t *testing.T) {
	v, err := StringArray(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	v, err = JSONMap(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}

func TestJSONMapScan(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan(`{"budget":"1200"}`))
	assert.Equal(t, "1200", m["budget"])
}
