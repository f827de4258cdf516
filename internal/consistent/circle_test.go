package consistent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyRing(t *testing.T) {
	c := NewCircle()
	_, err := c.Get(1)
	assert.ErrorIs(t, err, ErrNoHosts)
}

func TestGetIsStable(t *testing.T) {
	c := NewCircle()
	for _, host := range []string{"a/7000", "b/7000", "c/7000"} {
		require.NoError(t, c.MarkHealthy(host))
	}
	first, err := c.Get(42)
	require.NoError(t, err)
	for range 10 {
		got, err := c.Get(42)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestOffsetsAreDistinct(t *testing.T) {
	c := NewCircle()
	for _, host := range []string{"a/7000", "b/7000", "c/7000"} {
		require.NoError(t, c.MarkHealthy(host))
	}
	seen := map[string]struct{}{}
	for offset := range uint(3) {
		host, err := c.GetWithOffset(7, offset)
		require.NoError(t, err)
		seen[host] = struct{}{}
	}
	assert.Len(t, seen, 3)
}

func TestMarkUnhealthyMovesOnlyItsKeys(t *testing.T) {
	c := NewCircle()
	for i := range 5 {
		require.NoError(t, c.MarkHealthy(fmt.Sprintf("n%d/7000", i)))
	}
	before := make(map[uint64]string, 1000)
	for key := range uint64(1000) {
		before[key], _ = c.Get(key)
	}

	require.NoError(t, c.MarkUnhealthy("n2/7000"))
	require.NoError(t, c.MarkUnhealthy("n2/7000"))
	assert.NotContains(t, c.Hosts(), "n2/7000")

	for key, host := range before {
		got, err := c.Get(key)
		require.NoError(t, err)
		if host != "n2/7000" {
			assert.Equal(t, host, got, "key %d moved", key)
		} else {
			assert.NotEqual(t, "n2/7000", got)
		}
	}
}
