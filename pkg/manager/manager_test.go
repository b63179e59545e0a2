package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaimRejectsSecondConcurrentClaim(t *testing.T) {
	m := &Manager{running: make(map[string]bool)}

	assert.True(t, m.claim("int-1"))
	assert.False(t, m.claim("int-1"))
}

func TestClaimAllowsDifferentIntegrations(t *testing.T) {
	m := &Manager{running: make(map[string]bool)}

	assert.True(t, m.claim("int-1"))
	assert.True(t, m.claim("int-2"))
}

func TestReleaseAllowsReclaim(t *testing.T) {
	m := &Manager{running: make(map[string]bool)}

	a := assert.New(t)
	a.True(m.claim("int-1"))
	m.release("int-1")
	a.True(m.claim("int-1"))
}
