package xid

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesPrefixAndUppercaseHex(t *testing.T) {
	id := New("ORD")
	require.Regexp(t, regexp.MustCompile(`^ORD-[0-9A-F]{12}$`), id)
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]struct{}, 500)
	for i := 0; i < 500; i++ {
		id := New("TX")
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}
