package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"time"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/oprf"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/poly"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// Artifact names.
const (
	ServerTable   = "server_polynomials"
	ClientBlinded = "client_blinded"
)

var (
	// ErrNotFound is returned when no checkpoint of the requested kind exists.
	ErrNotFound = errors.New("artifact not found")
	// ErrCorrupt is returned when stored rows do not match their digest.
	ErrCorrupt = errors.New("artifact digest mismatch")
)

// Artifact describes one stored checkpoint.
type Artifact struct {
	Name        string
	Fingerprint string
	KeyID       string
	Digest      string
	Rows        int
	CreatedAt   time.Time
}

func (s *Store) Artifact(ctx context.Context, name string) (*Artifact, error) {
	a := &Artifact{Name: name}
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT fingerprint, key_id, digest, row_count, created_at FROM artifacts WHERE name = ?`),
		name).Scan(&a.Fingerprint, &a.KeyID, &a.Digest, &a.Rows, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return a, nil
}

// check rejects an artifact produced under other parameters or another key.
func (a *Artifact) check(p config.Params, keyID string) error {
	if a.Fingerprint != p.Fingerprint() {
		return psierr.Configuration("%s was built with parameters %s, current are %s", a.Name, a.Fingerprint, p.Fingerprint())
	}
	if a.KeyID != keyID {
		return psierr.Configuration("%s was built under key %s, current is %s", a.Name, a.KeyID, keyID)
	}
	return nil
}

func digestRow(h hash.Hash, idx int, fields ...[]byte) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(idx))
	h.Write(buf[:])
	for _, f := range fields {
		binary.BigEndian.PutUint64(buf[:], uint64(len(f)))
		h.Write(buf[:])
		h.Write(f)
	}
}

func (s *Store) putArtifact(ctx context.Context, tx *sql.Tx, name string, p config.Params, keyID, digest string, rows int) error {
	_, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO artifacts (name, fingerprint, key_id, digest, row_count, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			key_id = excluded.key_id,
			digest = excluded.digest,
			row_count = excluded.row_count,
			created_at = excluded.created_at`),
		name, p.Fingerprint(), keyID, digest, rows)
	if err != nil {
		return fmt.Errorf("record artifact %s: %w", name, err)
	}
	return nil
}

// SaveServerTable replaces the stored polynomial table.
func (s *Store) SaveServerTable(ctx context.Context, p config.Params, keyID string, t *poly.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM server_polynomials`); err != nil {
		return fmt.Errorf("clear polynomials: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO server_polynomials (bin, coeffs) VALUES (?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	h := blake3.New()
	for b := 0; b < t.Bins; b++ {
		blob, err := cbor.Marshal(t.Row(b))
		if err != nil {
			return fmt.Errorf("encode bin %d: %w", b, err)
		}
		if _, err := stmt.ExecContext(ctx, b, blob); err != nil {
			return fmt.Errorf("insert bin %d: %w", b, err)
		}
		digestRow(h, b, blob)
	}
	if err := s.putArtifact(ctx, tx, ServerTable, p, keyID, hex.EncodeToString(h.Sum(nil)), t.Bins); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadServerTable reads the polynomial table, verifying that it was built
// for p under the key identified by keyID and that its rows are intact.
func (s *Store) LoadServerTable(ctx context.Context, p config.Params, keyID string) (*poly.Table, error) {
	a, err := s.Artifact(ctx, ServerTable)
	if err != nil {
		return nil, err
	}
	if err := a.check(p, keyID); err != nil {
		return nil, err
	}

	t := &poly.Table{Bins: p.NumberOfBins(), Alpha: p.Alpha, Capacity: p.MinibinCapacity()}
	if a.Rows != t.Bins {
		return nil, fmt.Errorf("%w: %d rows recorded, want %d", ErrCorrupt, a.Rows, t.Bins)
	}
	t.Coeffs = make([]uint64, 0, t.Bins*t.RowLen())

	rows, err := s.db.QueryContext(ctx, `SELECT bin, coeffs FROM server_polynomials ORDER BY bin`)
	if err != nil {
		return nil, fmt.Errorf("query polynomials: %w", err)
	}
	defer rows.Close()

	h := blake3.New()
	next := 0
	for rows.Next() {
		var bin int
		var blob []byte
		if err := rows.Scan(&bin, &blob); err != nil {
			return nil, fmt.Errorf("scan polynomial: %w", err)
		}
		if bin != next {
			return nil, fmt.Errorf("%w: bin %d missing", ErrCorrupt, next)
		}
		var row []uint64
		if err := cbor.Unmarshal(blob, &row); err != nil || len(row) != t.RowLen() {
			return nil, fmt.Errorf("%w: bin %d malformed", ErrCorrupt, bin)
		}
		digestRow(h, bin, blob)
		t.Coeffs = append(t.Coeffs, row...)
		next++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read polynomials: %w", err)
	}
	if next != t.Bins || hex.EncodeToString(h.Sum(nil)) != a.Digest {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, ServerTable)
	}
	return t, nil
}

// SaveClientBlinded replaces the stored client set and its blinded points.
func (s *Store) SaveClientBlinded(ctx context.Context, p config.Params, keyID string, set []uint64, points []oprf.BlindedPoint) error {
	if len(set) != len(points) {
		return fmt.Errorf("%d elements but %d points", len(set), len(points))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM client_blinded`); err != nil {
		return fmt.Errorf("clear blinded set: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO client_blinded (idx, element, x, y) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	h := blake3.New()
	var elem [8]byte
	for i, x := range set {
		pt := points[i]
		if _, err := stmt.ExecContext(ctx, i, int64(x), pt.X[:], pt.Y[:]); err != nil {
			return fmt.Errorf("insert element %d: %w", i, err)
		}
		binary.BigEndian.PutUint64(elem[:], x)
		digestRow(h, i, elem[:], pt.X[:], pt.Y[:])
	}
	if err := s.putArtifact(ctx, tx, ClientBlinded, p, keyID, hex.EncodeToString(h.Sum(nil)), len(set)); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadClientBlinded reads the client set and its blinded points.
func (s *Store) LoadClientBlinded(ctx context.Context, p config.Params, keyID string) ([]uint64, []oprf.BlindedPoint, error) {
	a, err := s.Artifact(ctx, ClientBlinded)
	if err != nil {
		return nil, nil, err
	}
	if err := a.check(p, keyID); err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT idx, element, x, y FROM client_blinded ORDER BY idx`)
	if err != nil {
		return nil, nil, fmt.Errorf("query blinded set: %w", err)
	}
	defer rows.Close()

	set := make([]uint64, 0, a.Rows)
	points := make([]oprf.BlindedPoint, 0, a.Rows)
	h := blake3.New()
	var elem [8]byte
	for rows.Next() {
		var idx int
		var x int64
		var px, py []byte
		if err := rows.Scan(&idx, &x, &px, &py); err != nil {
			return nil, nil, fmt.Errorf("scan blinded element: %w", err)
		}
		if idx != len(set) || len(px) != 32 || len(py) != 32 {
			return nil, nil, fmt.Errorf("%w: row %d malformed", ErrCorrupt, idx)
		}
		var pt oprf.BlindedPoint
		copy(pt.X[:], px)
		copy(pt.Y[:], py)
		binary.BigEndian.PutUint64(elem[:], uint64(x))
		digestRow(h, idx, elem[:], px, py)
		set = append(set, uint64(x))
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read blinded set: %w", err)
	}
	if len(set) != a.Rows || hex.EncodeToString(h.Sum(nil)) != a.Digest {
		return nil, nil, fmt.Errorf("%w: %s", ErrCorrupt, ClientBlinded)
	}
	return set, points, nil
}
