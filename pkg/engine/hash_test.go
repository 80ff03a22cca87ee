package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProbesDeterministicForSameSeeds(t *testing.T) {
	seeds := newProbeSeeds()
	key := []byte("deterministic-key")

	first := seeds.probes(key, 1024)
	second := seeds.probes(key, 1024)

	require.Equal(t, first, second)
}

func TestProbesWithinBounds(t *testing.T) {
	seeds := newProbeSeeds()
	const size = 97 // awkward, non-power-of-two size

	for i := 0; i < 500; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		probes := seeds.probes(key, size)
		for _, p := range probes {
			require.GreaterOrEqual(t, p, 0)
			require.Less(t, p, size)
		}
	}
}

func TestProbesVaryAcrossSeeds(t *testing.T) {
	seeds := newProbeSeeds()
	key := []byte("spread-me-around")

	probes := seeds.probes(key, 1<<20)

	distinct := map[int]bool{}
	for _, p := range probes {
		distinct[p] = true
	}
	require.Greater(t, len(distinct), 1, "a wide table should rarely collapse all probes to one index")
}

func TestDifferentSeedsGiveDifferentProbes(t *testing.T) {
	a := newProbeSeeds()
	b := newProbeSeeds()
	key := []byte("same-key-different-table")

	pa := a.probes(key, 1<<20)
	pb := b.probes(key, 1<<20)

	require.NotEqual(t, pa, pb, "independently seeded tables should not be pinned to identical slots")
}
