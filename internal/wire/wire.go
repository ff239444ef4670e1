// Package wire defines the messages exchanged in the two protocol round
// trips. Every message is a CBOR map carrying a version number.
package wire

import (
	"fmt"

	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/oprf"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/fxamacker/cbor/v2"
)

// Version is the message schema version.
const Version = 1

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 27,
		MaxMapPairs:      1 << 10,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// OPRFMessage carries blinded points, client to server and back.
type OPRFMessage struct {
	Version int                 `cbor:"1,keyasint"`
	Points  []oprf.BlindedPoint `cbor:"2,keyasint"`
}

// QueryMessage carries the client's encryption context and, per batch, a
// (base-1) × logB_ell matrix of encrypted windows. Cells without a power
// are nil.
type QueryMessage struct {
	Version int          `cbor:"1,keyasint"`
	Context []byte       `cbor:"2,keyasint"`
	Batches [][][][]byte `cbor:"3,keyasint"`
}

// AnswerMessage carries alpha ciphertexts per batch.
type AnswerMessage struct {
	Version int        `cbor:"1,keyasint"`
	Batches [][][]byte `cbor:"2,keyasint"`
}

// Shape is the layout both sides derive from the parameters.
type Shape struct {
	Batches int
	Rows    int
	Places  int
	Alpha   int
	// Defined reports whether a query cell carries a ciphertext.
	Defined func(row, place int) bool
}

func Marshal(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, nil
}

// DecodeOPRF decodes a point list and checks its length when want >= 0.
func DecodeOPRF(data []byte, want int) (*OPRFMessage, error) {
	var m OPRFMessage
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, psierr.InputValidation("decode oprf message: %v", err)
	}
	if m.Version != Version {
		return nil, psierr.InputValidation("oprf message version %d, want %d", m.Version, Version)
	}
	if want >= 0 && len(m.Points) != want {
		return nil, psierr.InputValidation("oprf message holds %d points, want %d", len(m.Points), want)
	}
	return &m, nil
}

// DecodeQuery decodes a query and validates it against shape.
func DecodeQuery(data []byte, shape Shape) (*QueryMessage, error) {
	var m QueryMessage
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, psierr.InputValidation("decode query: %v", err)
	}
	if err := m.Validate(shape); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *QueryMessage) Validate(shape Shape) error {
	if m.Version != Version {
		return psierr.InputValidation("query version %d, want %d", m.Version, Version)
	}
	if len(m.Context) == 0 {
		return psierr.InputValidation("query carries no encryption context")
	}
	if len(m.Batches) != shape.Batches {
		return psierr.InputValidation("query holds %d batches, want %d", len(m.Batches), shape.Batches)
	}
	for s, batch := range m.Batches {
		if len(batch) != shape.Rows {
			return psierr.InputValidation("batch %d has %d rows, want %d", s, len(batch), shape.Rows)
		}
		for i, row := range batch {
			if len(row) != shape.Places {
				return psierr.InputValidation("batch %d row %d has %d places, want %d", s, i, len(row), shape.Places)
			}
			for j, cell := range row {
				if shape.Defined(i, j) != (cell != nil) {
					return psierr.InputValidation("batch %d cell (%d, %d) presence mismatch", s, i, j)
				}
			}
		}
	}
	return nil
}

// DecodeAnswer decodes an answer and validates it against shape.
func DecodeAnswer(data []byte, shape Shape) (*AnswerMessage, error) {
	var m AnswerMessage
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, psierr.DecryptionMismatch("decode answer: %v", err)
	}
	if err := m.Validate(shape); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *AnswerMessage) Validate(shape Shape) error {
	if m.Version != Version {
		return psierr.DecryptionMismatch("answer version %d, want %d", m.Version, Version)
	}
	if len(m.Batches) != shape.Batches {
		return psierr.DecryptionMismatch("answer holds %d batches, want %d", len(m.Batches), shape.Batches)
	}
	for s, batch := range m.Batches {
		if len(batch) != shape.Alpha {
			return psierr.DecryptionMismatch("answer batch %d has %d ciphertexts, want %d", s, len(batch), shape.Alpha)
		}
		for j, ct := range batch {
			if len(ct) == 0 {
				return psierr.DecryptionMismatch("answer batch %d ciphertext %d is empty", s, j)
			}
		}
	}
	return nil
}
