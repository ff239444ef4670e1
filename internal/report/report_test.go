package report

import (
	"bytes"
	"testing"

	"github.com/SanthoshCheemala/PolyPSI/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	assert.Equal(t, "512B", Size(512).String())
	assert.Equal(t, "1.50kB", Size(1500).String())
	assert.Equal(t, "2.25MB", Size(2250000).String())
	assert.Equal(t, "3.00GB", Size(3e9).String())
}

func TestTiming(t *testing.T) {
	stats := transport.NewIOStats()
	tm := NewTiming(stats)

	stats.Sent.Add(100)
	s1 := tm.Sample("oprf")
	stats.Sent.Add(10)
	stats.Recvd.Add(2000)
	s2 := tm.Sample("query")

	assert.Equal(t, uint64(100), s1.Sent)
	assert.Equal(t, uint64(0), s1.Recvd)
	assert.Equal(t, uint64(10), s2.Sent)
	assert.Equal(t, uint64(2000), s2.Recvd)
	assert.Equal(t, s1.End, s2.Start)

	sent, recvd := tm.Transferred()
	assert.Equal(t, uint64(110), sent)
	assert.Equal(t, uint64(2000), recvd)
	assert.GreaterOrEqual(t, tm.Total(), s2.Duration())

	var buf bytes.Buffer
	tm.Print(&buf)
	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "oprf")
	assert.Contains(t, out, "Total")
	assert.Contains(t, out, "2.00kB")
}

func TestTimingWithoutConnection(t *testing.T) {
	tm := NewTiming(transport.IOStats{})
	s := tm.Sample("offline")
	assert.Zero(t, s.Sent)

	var buf bytes.Buffer
	NewTiming(transport.IOStats{}).Print(&buf)
	assert.Empty(t, buf.String())
}
