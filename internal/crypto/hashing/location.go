// Package hashing places PRF outputs into bucket tables: a Cuckoo table on
// the client, holding every item once, and a simple multi-hash table on the
// server, holding every item once per hash function.
//
// Entries are stored packed as item_left || hash_index, where item_left is
// the item without its low OutputBits bits. The low bits are recovered from
// the slot position, see ReconstructItem.
package hashing

import (
	"strconv"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/spaolacci/murmur3"
)

// Hasher evaluates the location function family for one parameter set.
type Hasher struct {
	outputBits  int
	logNoHashes int
	seeds       []uint32
}

func NewHasher(p config.Params) Hasher {
	return Hasher{
		outputBits:  p.OutputBits,
		logNoHashes: p.LogNoHashes(),
		seeds:       append([]uint32(nil), p.HashSeeds...),
	}
}

// Hashes is the number of hash functions in the family.
func (h Hasher) Hashes() int { return len(h.seeds) }

func (h Hasher) Seed(i int) uint32 { return h.seeds[i] }

func (h Hasher) hashLeft(seed uint32, left uint64) int {
	sum := murmur3.Sum32WithSeed([]byte(strconv.FormatUint(left, 10)), seed)
	return int(sum >> (32 - h.outputBits))
}

// Location maps item to a table slot: the hash of its high bits XORed with
// its low OutputBits bits.
func (h Hasher) Location(seed uint32, item uint64) int {
	left := item >> h.outputBits
	right := int(item & (1<<h.outputBits - 1))
	return h.hashLeft(seed, left) ^ right
}

// LeftAndIndex packs the high bits of item with hash index i.
func (h Hasher) LeftAndIndex(item uint64, i int) uint64 {
	return (item>>h.outputBits)<<h.logNoHashes + uint64(i)
}

// ExtractIndex returns the hash index stored in a packed entry.
func (h Hasher) ExtractIndex(packed uint64) int {
	return int(packed & (1<<h.logNoHashes - 1))
}

// ReconstructItem inverts Location: given a packed entry found at loc under
// seed, it returns the original item.
func (h Hasher) ReconstructItem(packed uint64, loc int, seed uint32) uint64 {
	left := packed >> h.logNoHashes
	right := uint64(h.hashLeft(seed, left) ^ loc)
	return left<<h.outputBits + right
}
