// Package dataset reads, writes and generates the integer sets the
// protocol intersects, and maps tabular records to set elements.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
)

// ReadSet reads newline-separated decimal integers. Blank lines are skipped.
func ReadSet(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open set: %w", err)
	}
	defer f.Close()
	return ParseSet(f)
}

func ParseSet(r io.Reader) ([]uint64, error) {
	var set []uint64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, psierr.InputValidation("line %d: %v", line, err)
		}
		set = append(set, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read set: %w", err)
	}
	return set, nil
}

// WriteSet writes one element per line.
func WriteSet(path string, set []uint64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create set: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, v := range set {
		w.WriteString(strconv.FormatUint(v, 10))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write set: %w", err)
	}
	return f.Close()
}

// Dedupe returns set without repeated elements, keeping first occurrences.
func Dedupe(set []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(set))
	out := make([]uint64, 0, len(set))
	for _, v := range set {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
