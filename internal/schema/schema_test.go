package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchDDLIsIdempotent(t *testing.T) {
	for _, stmt := range searchDDL {
		assert.True(t, strings.Contains(stmt, "IF NOT EXISTS"), stmt)
	}
}
