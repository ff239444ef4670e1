package wire

import (
	"testing"

	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/oprf"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShape() Shape {
	return Shape{
		Batches: 2,
		Rows:    1,
		Places:  3,
		Alpha:   2,
		Defined: func(row, place int) bool { return place < 2 },
	}
}

func validQuery() *QueryMessage {
	batch := [][][]byte{{[]byte{1}, []byte{2}, nil}}
	return &QueryMessage{
		Version: Version,
		Context: []byte("ctx"),
		Batches: [][][][]byte{batch, batch},
	}
}

func TestQueryRoundTrip(t *testing.T) {
	data, err := Marshal(validQuery())
	require.NoError(t, err)
	m, err := DecodeQuery(data, testShape())
	require.NoError(t, err)
	assert.Equal(t, []byte("ctx"), m.Context)
	assert.Nil(t, m.Batches[1][0][2])
}

func TestQueryShape(t *testing.T) {
	tests := map[string]func(m *QueryMessage){
		"version":       func(m *QueryMessage) { m.Version = 2 },
		"no context":    func(m *QueryMessage) { m.Context = nil },
		"batches":       func(m *QueryMessage) { m.Batches = m.Batches[:1] },
		"rows":          func(m *QueryMessage) { m.Batches[0] = nil },
		"places":        func(m *QueryMessage) { m.Batches[1] = [][][]byte{{[]byte{1}}} },
		"absent cell":   func(m *QueryMessage) { m.Batches[0] = [][][]byte{{nil, []byte{2}, nil}} },
		"unwanted cell": func(m *QueryMessage) { m.Batches[0] = [][][]byte{{[]byte{1}, []byte{2}, []byte{3}}} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			m := validQuery()
			mutate(m)
			assert.ErrorIs(t, m.Validate(testShape()), psierr.ErrInputValidation)
		})
	}
}

func TestAnswerShape(t *testing.T) {
	m := &AnswerMessage{Version: Version, Batches: [][][]byte{{{1}, {2}}, {{3}, {4}}}}
	data, err := Marshal(m)
	require.NoError(t, err)
	_, err = DecodeAnswer(data, testShape())
	require.NoError(t, err)

	m.Batches[1] = m.Batches[1][:1]
	assert.ErrorIs(t, m.Validate(testShape()), psierr.ErrDecryptionMismatch)

	_, err = DecodeAnswer([]byte{0xff}, testShape())
	assert.ErrorIs(t, err, psierr.ErrDecryptionMismatch)
}

func TestOPRFMessage(t *testing.T) {
	m := &OPRFMessage{Version: Version, Points: make([]oprf.BlindedPoint, 3)}
	m.Points[1].X[31] = 9
	data, err := Marshal(m)
	require.NoError(t, err)

	got, err := DecodeOPRF(data, 3)
	require.NoError(t, err)
	assert.Equal(t, m.Points, got.Points)

	_, err = DecodeOPRF(data, 4)
	assert.ErrorIs(t, err, psierr.ErrInputValidation)
}
