package hashing

import (
	"math"
	"math/rand/v2"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
)

// Cuckoo is the client bucket table. Each slot holds at most one packed
// entry; each inserted item sits in exactly one of its candidate slots.
type Cuckoo struct {
	h        Hasher
	slots    []uint64
	occupied []bool
	// bound is the number of re-insertions allowed for one Insert.
	bound int
	rng   *rand.Rand
	count int
	// placements counts slot writes over the table's lifetime.
	placements int
}

// NewCuckoo returns an empty table. rng chooses hash indices; pass nil for
// a randomly seeded source.
func NewCuckoo(p config.Params, rng *rand.Rand) *Cuckoo {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	n := p.NumberOfBins()
	return &Cuckoo{
		h:        NewHasher(p),
		slots:    make([]uint64, n),
		occupied: make([]bool, n),
		bound:    int(8 * math.Log2(float64(n))),
		rng:      rng,
	}
}

// MaxAttempts is the number of placements Insert makes before giving up.
func (c *Cuckoo) MaxAttempts() int { return c.bound + 1 }

func (c *Cuckoo) Len() int { return c.count }

// Placements is the total number of slot writes made by Insert.
func (c *Cuckoo) Placements() int { return c.placements }

// otherIndex picks a hash index uniformly among those different from i.
func (c *Cuckoo) otherIndex(i int) int {
	k := c.h.Hashes()
	v := c.rng.IntN(k - 1)
	if v >= i {
		v++
	}
	return v
}

// Insert places item, evicting residents along the way. When the
// re-insertion budget runs out Insert returns a *psierr.TableOverflowError;
// the table is then missing one item and must be discarded.
func (c *Cuckoo) Insert(item uint64) error {
	idx := c.rng.IntN(c.h.Hashes())
	cur := item
	for attempt := 0; attempt <= c.bound; attempt++ {
		loc := c.h.Location(c.h.Seed(idx), cur)
		resident, taken := c.slots[loc], c.occupied[loc]
		c.slots[loc] = c.h.LeftAndIndex(cur, idx)
		c.occupied[loc] = true
		c.placements++
		if !taken {
			c.count++
			return nil
		}
		evicted := c.h.ExtractIndex(resident)
		cur = c.h.ReconstructItem(resident, loc, c.h.Seed(evicted))
		idx = c.otherIndex(evicted)
	}
	return &psierr.TableOverflowError{
		Structure: psierr.StructureCuckoo,
		Bin:       -1,
		Attempts:  c.MaxAttempts(),
	}
}

// Find returns the slot and hash index holding item.
func (c *Cuckoo) Find(item uint64) (slot, index int, ok bool) {
	for i := 0; i < c.h.Hashes(); i++ {
		loc := c.h.Location(c.h.Seed(i), item)
		if c.occupied[loc] && c.slots[loc] == c.h.LeftAndIndex(item, i) {
			return loc, i, true
		}
	}
	return 0, 0, false
}

// Entry returns the packed entry at slot.
func (c *Cuckoo) Entry(slot int) (uint64, bool) {
	return c.slots[slot], c.occupied[slot]
}

// Item recovers the item stored at slot.
func (c *Cuckoo) Item(slot int) (uint64, bool) {
	if !c.occupied[slot] {
		return 0, false
	}
	packed := c.slots[slot]
	return c.h.ReconstructItem(packed, slot, c.h.Seed(c.h.ExtractIndex(packed))), true
}

// Values returns one value per slot with empty slots set to dummy.
func (c *Cuckoo) Values(dummy uint64) []uint64 {
	out := make([]uint64, len(c.slots))
	for i := range out {
		if c.occupied[i] {
			out[i] = c.slots[i]
		} else {
			out[i] = dummy
		}
	}
	return out
}
