package utilities

import (
	"testing"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKSUIDIsParseable(t *testing.T) {
	id := NewKSUID()
	_, err := ksuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewKSUID())
}

func TestNewSnowflakeIDIsUniqueWithinProcess(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewSnowflakeID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}
