package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLiveness_DropsLateResults(t *testing.T) {
	guard := NewLiveness()

	applied := false
	assert.True(t, guard.Do(func() { applied = true }))
	assert.True(t, applied)

	guard.Close()

	late := false
	assert.False(t, guard.Do(func() { late = true }))
	assert.False(t, late)
}

func TestLiveness_CloseIdempotent(t *testing.T) {
	guard := NewLiveness()
	guard.Close()
	guard.Close()
	assert.False(t, guard.Alive())
}
