package dataset

import (
	"math/rand/v2"

	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
)

// MaxElement bounds generated elements.
const MaxElement = 1<<63 - 1

// Sets is a generated server/client pair with a planted intersection.
type Sets struct {
	Server       []uint64
	Client       []uint64
	Intersection []uint64
}

// Generate draws serverSize+clientSize-intersection distinct elements in
// [1, MaxElement) and splits them so that exactly the first intersection
// elements are shared. Both sets start with the shared elements.
func Generate(rng *rand.Rand, serverSize, clientSize, intersection int) (*Sets, error) {
	if serverSize < 0 || clientSize < 0 || intersection < 0 ||
		intersection > serverSize || intersection > clientSize {
		return nil, psierr.InputValidation("cannot plant %d shared elements in sets of %d and %d",
			intersection, serverSize, clientSize)
	}
	total := serverSize + clientSize - intersection
	seen := make(map[uint64]struct{}, total)
	pool := make([]uint64, 0, total)
	for len(pool) < total {
		v := rng.Uint64N(MaxElement-1) + 1
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		pool = append(pool, v)
	}

	s := &Sets{Intersection: pool[:intersection:intersection]}
	s.Server = append(s.Server, pool[:serverSize]...)
	s.Client = append(s.Client, pool[:intersection]...)
	s.Client = append(s.Client, pool[serverSize:]...)
	return s, nil
}
