package dataset

import (
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/SanthoshCheemala/Crypto/hash"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
)

// Record maps column names to values.
type Record map[string]string

// ReadRecordsCSV reads a CSV file with a header row, keeping the named
// columns. Names match case-insensitively; an empty list keeps all.
func ReadRecordsCSV(r io.Reader, columns []string) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var keep []int
	if len(columns) == 0 {
		for i := range header {
			keep = append(keep, i)
		}
	}
	for _, col := range columns {
		found := false
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), col) {
				keep = append(keep, i)
				found = true
				break
			}
		}
		if !found {
			return nil, psierr.InputValidation("column %q not in csv header", col)
		}
	}

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rec := make(Record, len(keep))
		for _, i := range keep {
			rec[strings.TrimSpace(header[i])] = strings.TrimSpace(row[i])
		}
		records = append(records, rec)
	}
	return records, nil
}

// HashRecord maps a record to a set element: SHA-256 over the values
// concatenated in column-name order, top 63 bits of the first word. The
// zero element is not allowed, so a zero digest maps to 1.
func HashRecord(rec map[string]string) uint64 {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var merge strings.Builder
	for _, k := range keys {
		merge.WriteString(rec[k])
	}

	H := hash.NewSHA256State()
	H.Sha256([]byte(merge.String()))
	v := binary.BigEndian.Uint64(H.Sum()) >> 1
	if v == 0 {
		v = 1
	}
	return v
}

// HashRecords maps every record and reports the index of each element, so
// that matches can be traced back to their rows.
func HashRecords(recs []Record) ([]uint64, map[uint64]int) {
	set := make([]uint64, len(recs))
	index := make(map[uint64]int, len(recs))
	for i, rec := range recs {
		set[i] = HashRecord(rec)
		if _, ok := index[set[i]]; !ok {
			index[set[i]] = i
		}
	}
	return set, index
}
