package xid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCarriesPrefixAndIsUnique(t *testing.T) {
	a := New("sync")
	b := New("sync")

	assert.True(t, strings.HasPrefix(a, "sync-"))
	assert.NotEqual(t, a, b)
}

func TestDerivedIsStable(t *testing.T) {
	assert.Equal(t, Derived("R-1", "line", "0"), Derived("R-1", "line", "0"))
	assert.NotEqual(t, Derived("R-1", "line", "0"), Derived("R-1", "line", "1"))
	assert.NotEqual(t, Derived("R-1", "line0"), Derived("R-1line", "0"))
}
