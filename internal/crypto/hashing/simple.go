package hashing

import (
	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
)

// SimpleHash is the server bucket table. Every item is stored once per hash
// function, in the bin that hash function selects.
type SimpleHash struct {
	h        Hasher
	bins     [][]uint64
	capacity int
}

func NewSimpleHash(p config.Params) *SimpleHash {
	bins := make([][]uint64, p.NumberOfBins())
	for i := range bins {
		bins[i] = make([]uint64, 0, p.BinCapacity)
	}
	return &SimpleHash{h: NewHasher(p), bins: bins, capacity: p.BinCapacity}
}

// Insert adds item under hash function i.
func (s *SimpleHash) Insert(item uint64, i int) error {
	loc := s.h.Location(s.h.Seed(i), item)
	if len(s.bins[loc]) >= s.capacity {
		return &psierr.TableOverflowError{Structure: psierr.StructureSimple, Bin: loc}
	}
	s.bins[loc] = append(s.bins[loc], s.h.LeftAndIndex(item, i))
	return nil
}

// InsertAll adds every item under every hash function.
func (s *SimpleHash) InsertAll(items []uint64) error {
	for _, item := range items {
		for i := 0; i < s.h.Hashes(); i++ {
			if err := s.Insert(item, i); err != nil {
				return err
			}
		}
	}
	return nil
}

// Bin returns the entries stored in bin b so far.
func (s *SimpleHash) Bin(b int) []uint64 { return s.bins[b] }

// Padded returns a copy of every bin filled up to capacity with dummy.
func (s *SimpleHash) Padded(dummy uint64) [][]uint64 {
	out := make([][]uint64, len(s.bins))
	for b, bin := range s.bins {
		row := make([]uint64, s.capacity)
		n := copy(row, bin)
		for i := n; i < s.capacity; i++ {
			row[i] = dummy
		}
		out[b] = row
	}
	return out
}

// Occupancy reports the fullest bin and the total number of entries.
func (s *SimpleHash) Occupancy() (fullest, total int) {
	for _, bin := range s.bins {
		fullest = max(fullest, len(bin))
		total += len(bin)
	}
	return fullest, total
}
