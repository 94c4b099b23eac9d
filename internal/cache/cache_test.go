package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetMissThenAddThenHit(t *testing.T) {
	c := New[string, int](2, time.Minute)

	_, ok := c.Get("a")
	require.False(t, ok)

	c.Add("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := New[string, int](2, 10*time.Millisecond)
	c.Add("a", 1)

	require.Eventually(t, func() bool {
		_, ok := c.Get("a")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestNonPositiveSizeNormalizedToOne(t *testing.T) {
	c := New[string, int](0, time.Minute)
	c.Add("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}
