package config

import (
	"errors"
	"flag"
	"io"
	"testing"
	"time"

	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParamFlagsDefaults(t *testing.T) {
	fs := newFlagSet()
	f := BindParams(fs)
	require.NoError(t, fs.Parse(nil))

	p, err := f.Params()
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), p)
}

func TestParamFlagsRederiveSigma(t *testing.T) {
	fs := newFlagSet()
	f := BindParams(fs)
	require.NoError(t, fs.Parse([]string{"-output-bits", "14", "-poly-degree", "8192"}))

	p, err := f.Params()
	require.NoError(t, err)
	assert.Equal(t, 14, p.OutputBits)
	assert.Equal(t, 41, p.SigmaMax)
	assert.Equal(t, 2, p.NumberOfBatches())
}

func TestParamFlagsSeeds(t *testing.T) {
	fs := newFlagSet()
	f := BindParams(fs)
	require.NoError(t, fs.Parse([]string{"-hashes", "2", "-seeds", "7, 9"}))

	p, err := f.Params()
	require.NoError(t, err)
	assert.Equal(t, []uint32{7, 9}, p.HashSeeds)

	fs = newFlagSet()
	BindParams(fs)
	assert.Error(t, fs.Parse([]string{"-seeds", "1,x"}))
}

func TestParamFlagsInvalid(t *testing.T) {
	fs := newFlagSet()
	f := BindParams(fs)
	require.NoError(t, fs.Parse([]string{"-alpha", "5"}))

	_, err := f.Params()
	assert.True(t, errors.Is(err, psierr.ErrConfiguration))
}

func TestConfigFlagsOverride(t *testing.T) {
	t.Setenv("PSI_ADDRESS", "10.0.0.1:9000")
	t.Setenv("PSI_IO_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9000", cfg.Network.Address)
	assert.Equal(t, 30*time.Second, cfg.Network.IOTimeout)

	fs := newFlagSet()
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-addr", "localhost:1", "-workers", "3", "-scheme", "clear"}))
	assert.Equal(t, "localhost:1", cfg.Network.Address)
	assert.Equal(t, 30*time.Second, cfg.Network.IOTimeout)
	assert.Equal(t, 3, cfg.Workers())
	assert.Equal(t, "clear", cfg.PSI.Scheme)
}
