package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunks(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 2}, {2, 4}, {4, 6}, {6, 8}, {8, 10}}, Chunks(10, 5))
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 9}, {9, 10}}, Chunks(10, 3))
	assert.Equal(t, [][2]int{{0, 2}}, Chunks(2, 4))
	assert.Nil(t, Chunks(0, 4))
}

func TestChunksCoverEveryIndexOnce(t *testing.T) {
	for n := 1; n < 50; n++ {
		for w := 1; w < 9; w++ {
			seen := make([]int, n)
			for _, c := range Chunks(n, w) {
				for i := c[0]; i < c[1]; i++ {
					seen[i]++
				}
			}
			for i, s := range seen {
				require.Equal(t, 1, s, "n=%d w=%d i=%d", n, w, i)
			}
		}
	}
}

func TestMapPreservesOrder(t *testing.T) {
	in := make([]int, 1001)
	for i := range in {
		in[i] = i
	}
	out, err := Map(context.Background(), 4, in, func(v int) (int, error) {
		return v * v, nil
	})
	require.NoError(t, err)
	for i, v := range out {
		require.Equal(t, i*i, v)
	}
}

func TestMapStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	in := make([]int, 100)
	_, err := Map(context.Background(), 4, in, func(int) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestEach(t *testing.T) {
	var sum atomic.Int64
	require.NoError(t, Each(context.Background(), 3, 100, func(i int) error {
		sum.Add(int64(i))
		return nil
	}))
	assert.Equal(t, int64(4950), sum.Load())
}
