package dataset

import (
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "set")
	set := []uint64{1, 42, MaxElement - 1}
	require.NoError(t, WriteSet(path, set))
	got, err := ReadSet(path)
	require.NoError(t, err)
	assert.Equal(t, set, got)
}

func TestParseSet(t *testing.T) {
	got, err := ParseSet(strings.NewReader("3\n\n 5 \n7"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 5, 7}, got)

	_, err = ParseSet(strings.NewReader("3\nx\n"))
	assert.ErrorIs(t, err, psierr.ErrInputValidation)
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []uint64{4, 1, 9}, Dedupe([]uint64{4, 1, 4, 9, 1}))
}

func TestGenerate(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	s, err := Generate(rng, 500, 120, 37)
	require.NoError(t, err)
	require.Len(t, s.Server, 500)
	require.Len(t, s.Client, 120)
	require.Len(t, s.Intersection, 37)

	server := make(map[uint64]bool)
	for _, v := range s.Server {
		assert.NotZero(t, v)
		server[v] = true
	}
	shared := 0
	for _, v := range s.Client {
		if server[v] {
			shared++
		}
	}
	assert.Equal(t, 37, shared)
	assert.Len(t, Dedupe(append(append([]uint64{}, s.Server...), s.Client...)), 500+120-37)

	_, err = Generate(rng, 10, 5, 6)
	assert.ErrorIs(t, err, psierr.ErrInputValidation)
}

func TestRecords(t *testing.T) {
	in := "Name, DOB ,Country\nada,1815,uk\nalan,1912,uk\n"
	recs, err := ReadRecordsCSV(strings.NewReader(in), []string{"name", "dob"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, Record{"Name": "ada", "DOB": "1815"}, recs[0])

	_, err = ReadRecordsCSV(strings.NewReader(in), []string{"email"})
	assert.ErrorIs(t, err, psierr.ErrInputValidation)

	all, err := ReadRecordsCSV(strings.NewReader(in), nil)
	require.NoError(t, err)
	assert.Len(t, all[1], 3)
}

func TestHashRecord(t *testing.T) {
	a := HashRecord(map[string]string{"name": "ada", "dob": "1815"})
	b := HashRecord(map[string]string{"dob": "1815", "name": "ada"})
	c := HashRecord(map[string]string{"name": "alan", "dob": "1912"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Less(t, a, uint64(MaxElement))
	assert.NotZero(t, a)

	set, index := HashRecords([]Record{{"n": "x"}, {"n": "y"}, {"n": "x"}})
	assert.Equal(t, set[0], set[2])
	assert.Equal(t, 0, index[set[0]])
	assert.Equal(t, 1, index[set[1]])
}
