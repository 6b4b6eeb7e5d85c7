package sonic

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSelectEndpointNoServers(t *testing.T) {
	_, err := DefaultSelectEndpoint("messages", nil)
	assert.ErrorIs(t, err, ErrNoServers)
}

func TestDefaultSelectEndpointSingleServer(t *testing.T) {
	addr, err := DefaultSelectEndpoint("messages", []string{"a:1491"})
	require.NoError(t, err)
	assert.Equal(t, "a:1491", addr)
}

func TestDefaultSelectEndpointEmptyKey(t *testing.T) {
	addr, err := DefaultSelectEndpoint("", []string{"a:1491", "b:1491"})
	require.NoError(t, err)
	assert.Equal(t, "a:1491", addr)
}

func TestDefaultSelectEndpointDeterministic(t *testing.T) {
	servers := []string{"a:1491", "b:1491", "c:1491"}

	first, err := DefaultSelectEndpoint("messages/default", servers)
	require.NoError(t, err)

	for range 10 {
		addr, err := DefaultSelectEndpoint("messages/default", servers)
		require.NoError(t, err)
		assert.Equal(t, first, addr)
	}
}

func TestDefaultSelectEndpointDistribution(t *testing.T) {
	servers := []string{"a:1491", "b:1491", "c:1491"}

	hits := map[string]int{}
	for i := range 300 {
		addr, err := DefaultSelectEndpoint(fmt.Sprintf("collection-%d", i), servers)
		require.NoError(t, err)
		hits[addr]++
	}

	// Every endpoint gets a reasonable share.
	require.Len(t, hits, 3)
	for addr, n := range hits {
		assert.Greater(t, n, 50, "endpoint %s starved", addr)
	}
}

func TestDefaultSelectEndpointStableUnderGrowth(t *testing.T) {
	small := []string{"a:1491", "b:1491", "c:1491"}
	large := append(append([]string(nil), small...), "d:1491")

	moved := 0
	for i := range 200 {
		key := fmt.Sprintf("collection-%d", i)
		before, err := DefaultSelectEndpoint(key, small)
		require.NoError(t, err)
		after, err := DefaultSelectEndpoint(key, large)
		require.NoError(t, err)
		if before != after {
			moved++
		}
	}

	// Jump hash moves roughly 1/4 of the keys when going from 3 to 4
	// endpoints; anything past half means the mapping is unstable.
	assert.Less(t, moved, 100)
}

func TestStaticServersList(t *testing.T) {
	servers := NewStaticServers("a:1491", "b:1491")
	assert.Equal(t, []string{"a:1491", "b:1491"}, servers.List())

	assert.Empty(t, NewStaticServers().List())
}
