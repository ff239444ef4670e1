package psi

import (
	"context"
	"fmt"
	"log"
	"slices"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/hashing"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/he"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/oprf"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/poly"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/window"
	"github.com/SanthoshCheemala/PolyPSI/internal/dataset"
	"github.com/SanthoshCheemala/PolyPSI/internal/jobs"
	"github.com/SanthoshCheemala/PolyPSI/internal/pool"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/SanthoshCheemala/PolyPSI/internal/report"
	"github.com/SanthoshCheemala/PolyPSI/internal/transport"
	"github.com/SanthoshCheemala/PolyPSI/internal/wire"
)

// Server holds the polynomial table of one server set. After Offline or
// LoadTable it can serve any number of clients, one connection each.
type Server struct {
	p     config.Params
	key   *oprf.Key
	opts  options
	table *poly.Table
}

func NewServer(p config.Params, key *oprf.Key, opts ...Option) (*Server, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if key == nil {
		return nil, psierr.Configuration("server key missing")
	}
	return &Server{p: p, key: key, opts: newOptions(opts)}, nil
}

// Offline builds the polynomial table of set and checkpoints it when a
// store is configured.
func (s *Server) Offline(ctx context.Context, set []uint64, run *jobs.Run) error {
	run = track(run, jobs.RoleServer)
	if err := run.Advance(jobs.StateOfflineServer, "building server tables"); err != nil {
		return err
	}
	if err := s.offline(ctx, set, run); err != nil {
		run.Fail(err)
		return err
	}
	return nil
}

func (s *Server) offline(ctx context.Context, set []uint64, run *jobs.Run) error {
	set = dataset.Dedupe(set)
	if s.opts.securityBits > 0 {
		if err := s.p.CheckServerLoad(len(set), s.opts.securityBits); err != nil {
			return err
		}
	}
	tm := report.NewTiming(transport.IOStats{})

	prf, err := s.key.EvaluateAll(ctx, s.opts.workers, oprf.NewTruncator(s.p), set)
	if err != nil {
		return err
	}
	tm.Sample("prf")

	sh := hashing.NewSimpleHash(s.p)
	if err := sh.InsertAll(prf); err != nil {
		return fmt.Errorf("simple hash: %w", err)
	}
	fullest, total := sh.Occupancy()
	tm.Sample("simple hash")

	table, err := poly.BuildTable(ctx, s.p, sh.Padded(s.p.DummyServer()), s.opts.workers)
	if err != nil {
		return err
	}
	tm.Sample("polynomials")

	if s.opts.store != nil {
		if err := s.opts.store.SaveServerTable(ctx, s.p, s.key.ID(), table); err != nil {
			return fmt.Errorf("checkpoint server table: %w", err)
		}
		tm.Sample("checkpoint")
	}
	s.table = table

	log.Printf("server offline: %d elements, %d entries, fullest bin %d/%d, %v",
		len(set), total, fullest, s.p.BinCapacity, tm.Total())
	run.Note("server tables ready", map[string]string{
		"elements":    fmt.Sprint(len(set)),
		"fullest_bin": fmt.Sprint(fullest),
	})
	return nil
}

// LoadTable restores the table checkpointed by an earlier Offline.
func (s *Server) LoadTable(ctx context.Context) error {
	if s.opts.store == nil {
		return psierr.Configuration("no store configured")
	}
	table, err := s.opts.store.LoadServerTable(ctx, s.p, s.key.ID())
	if err != nil {
		return fmt.Errorf("load server table: %w", err)
	}
	s.table = table
	return nil
}

func (s *Server) Table() *poly.Table { return s.table }

// Serve runs both round trips with one client.
func (s *Server) Serve(ctx context.Context, conn *transport.Conn, run *jobs.Run) error {
	run = track(run, jobs.RoleServer)
	if s.table == nil {
		err := psierr.Configuration("server tables not built")
		run.Fail(err)
		return err
	}
	defer closeOnDone(ctx, conn)()

	if err := s.serve(ctx, conn, run); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		run.Fail(err)
		return err
	}
	return nil
}

func (s *Server) serve(ctx context.Context, conn *transport.Conn, run *jobs.Run) error {
	tm := report.NewTiming(conn.Stats)

	if err := run.Advance(jobs.StateOnlineOPRF, "waiting for blinded points"); err != nil {
		return err
	}
	data, err := conn.Receive()
	if err != nil {
		return err
	}
	in, err := wire.DecodeOPRF(data, -1)
	if err != nil {
		return err
	}
	if len(in.Points) > s.p.NumberOfBins() {
		return psierr.InputValidation("%d client elements exceed %d table slots", len(in.Points), s.p.NumberOfBins())
	}
	points, err := s.key.ApplyAll(ctx, s.opts.workers, in.Points)
	if err != nil {
		return err
	}
	data, err = wire.Marshal(&wire.OPRFMessage{Version: wire.Version, Points: points})
	if err != nil {
		return err
	}
	if err := conn.Send(data); err != nil {
		return err
	}
	tm.Sample("oprf")

	if err := run.Advance(jobs.StateOnlineQuery, "waiting for query"); err != nil {
		return err
	}
	data, err = conn.Receive()
	if err != nil {
		return err
	}
	shape := queryShape(s.p)
	q, err := wire.DecodeQuery(data, shape)
	if err != nil {
		return err
	}
	pub, err := he.UnmarshalPublic(q.Context)
	if err != nil {
		return err
	}
	if !slices.Contains(s.opts.schemes, pub.Scheme()) {
		return psierr.InputValidation("encryption scheme %q not accepted", pub.Scheme())
	}
	if err := checkContext(s.p, pub); err != nil {
		return err
	}
	tm.Sample("query")

	if err := run.Advance(jobs.StateOnlineAnswer, "computing answer"); err != nil {
		return err
	}
	answer := &wire.AnswerMessage{Version: wire.Version, Batches: make([][][]byte, shape.Batches)}
	for b, cells := range q.Batches {
		query, err := decodeCells(pub, cells)
		if err != nil {
			return fmt.Errorf("batch %d: %w", b, err)
		}
		cts, err := s.Answer(ctx, pub, b, query)
		if err != nil {
			return fmt.Errorf("batch %d: %w", b, err)
		}
		answer.Batches[b] = make([][]byte, len(cts))
		for j, ct := range cts {
			if answer.Batches[b][j], err = pub.MarshalCiphertext(ct); err != nil {
				return err
			}
		}
	}
	tm.Sample("answer")
	data, err = wire.Marshal(answer)
	if err != nil {
		return err
	}
	if err := conn.Send(data); err != nil {
		return err
	}
	tm.Sample("send")

	log.Printf("served %d client elements in %v, sent %s, received %s",
		len(in.Points), tm.Total(), report.Size(conn.Stats.Sent.Load()), report.Size(conn.Stats.Recvd.Load()))
	return run.Advance(jobs.StateDone, "answer sent")
}

func decodeCells(pub he.PublicContext, cells [][][]byte) ([][]he.Ciphertext, error) {
	out := make([][]he.Ciphertext, len(cells))
	for i, row := range cells {
		out[i] = make([]he.Ciphertext, len(row))
		for j, cell := range row {
			if cell == nil {
				continue
			}
			ct, err := pub.UnmarshalCiphertext(cell)
			if err != nil {
				return nil, err
			}
			out[i][j] = ct
		}
	}
	return out, nil
}

// Answer evaluates every minibin polynomial of one batch at the encrypted
// query. query is the window matrix of the batch; the result holds Alpha
// ciphertexts, one per minibin, each zero in the slots that matched.
func (s *Server) Answer(ctx context.Context, pub he.PublicContext, batch int, query [][]he.Ciphertext) ([]he.Ciphertext, error) {
	if s.table == nil {
		return nil, psierr.Configuration("server tables not built")
	}
	if batch < 0 || batch >= s.p.NumberOfBatches() {
		return nil, psierr.InputValidation("batch %d out of range", batch)
	}
	w := window.New(s.p)
	powers, depth, err := window.AllPowers(w, query, pub.Mul)
	if err != nil {
		return nil, fmt.Errorf("rebuild powers: %w", err)
	}
	if depth > pub.Depth() {
		return nil, psierr.Configuration("power reconstruction needs depth %d, context has %d", depth, pub.Depth())
	}

	capacity := s.p.MinibinCapacity()
	width := s.p.PolyModulusDegree
	start := batch * width
	minibins := make([]int, s.p.Alpha)
	for j := range minibins {
		minibins[j] = j
	}
	return pool.Map(ctx, s.opts.workers, minibins, func(j int) (he.Ciphertext, error) {
		// The leading coefficient is 1.
		acc := powers[capacity-1]
		for k := 1; k < capacity; k++ {
			term, err := pub.MulPlain(powers[k-1], s.table.Column(j, k, start, width))
			if err != nil {
				return nil, err
			}
			if acc, err = pub.Add(acc, term); err != nil {
				return nil, err
			}
		}
		return pub.AddPlain(acc, s.table.Column(j, 0, start, width))
	})
}
