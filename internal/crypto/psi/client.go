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

// Result is what a client learns from a run.
type Result struct {
	// Intersection lists the shared elements in ascending order.
	Intersection []uint64
	Report       *report.Timing
}

// Client holds a blinded set. Each Run uses a fresh encryption key pair.
type Client struct {
	p      config.Params
	key    *oprf.Key
	scheme string
	opts   options

	set    []uint64
	points []oprf.BlindedPoint
}

func NewClient(p config.Params, key *oprf.Key, scheme string, opts ...Option) (*Client, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if key == nil {
		return nil, psierr.Configuration("client key missing")
	}
	if !slices.Contains(he.Schemes(), scheme) {
		return nil, psierr.Configuration("unknown encryption scheme %q", scheme)
	}
	return &Client{p: p, key: key, scheme: scheme, opts: newOptions(opts)}, nil
}

// Offline blinds set under the client key and checkpoints the points when
// a store is configured.
func (c *Client) Offline(ctx context.Context, set []uint64, run *jobs.Run) error {
	run = track(run, jobs.RoleClient)
	if err := run.Advance(jobs.StateOfflineClient, "blinding client set"); err != nil {
		return err
	}
	if err := c.offline(ctx, set); err != nil {
		run.Fail(err)
		return err
	}
	run.Note("client set blinded", map[string]string{"elements": fmt.Sprint(len(c.set))})
	return nil
}

func (c *Client) offline(ctx context.Context, set []uint64) error {
	set = dataset.Dedupe(set)
	if len(set) > c.p.NumberOfBins() {
		return psierr.InputValidation("%d elements exceed %d table slots", len(set), c.p.NumberOfBins())
	}
	points, err := c.key.BlindAll(ctx, c.opts.workers, set)
	if err != nil {
		return err
	}
	if c.opts.store != nil {
		if err := c.opts.store.SaveClientBlinded(ctx, c.p, c.key.ID(), set, points); err != nil {
			return fmt.Errorf("checkpoint blinded set: %w", err)
		}
	}
	c.set, c.points = set, points
	return nil
}

// LoadBlinded restores the set checkpointed by an earlier Offline.
func (c *Client) LoadBlinded(ctx context.Context) error {
	if c.opts.store == nil {
		return psierr.Configuration("no store configured")
	}
	set, points, err := c.opts.store.LoadClientBlinded(ctx, c.p, c.key.ID())
	if err != nil {
		return fmt.Errorf("load blinded set: %w", err)
	}
	c.set, c.points = set, points
	return nil
}

// Run performs both round trips and recovers the intersection.
func (c *Client) Run(ctx context.Context, conn *transport.Conn, run *jobs.Run) (*Result, error) {
	run = track(run, jobs.RoleClient)
	res, err := c.run(ctx, conn, run)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		run.Fail(err)
		return nil, err
	}
	return res, nil
}

func (c *Client) run(ctx context.Context, conn *transport.Conn, run *jobs.Run) (*Result, error) {
	if c.points == nil {
		return nil, psierr.Configuration("client set not blinded")
	}
	sk, err := he.New(c.scheme, c.p)
	if err != nil {
		return nil, err
	}
	if err := checkContext(c.p, sk); err != nil {
		return nil, err
	}
	pubBlob, err := sk.Public().MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode encryption context: %w", err)
	}
	oprfMsg, err := wire.Marshal(&wire.OPRFMessage{Version: wire.Version, Points: c.points})
	if err != nil {
		return nil, err
	}
	defer closeOnDone(ctx, conn)()
	tm := report.NewTiming(conn.Stats)

	if err := run.Advance(jobs.StateOnlineOPRF, "sending blinded points"); err != nil {
		return nil, err
	}
	if err := conn.Send(oprfMsg); err != nil {
		return nil, err
	}
	data, err := conn.Receive()
	if err != nil {
		return nil, err
	}
	back, err := wire.DecodeOPRF(data, len(c.points))
	if err != nil {
		return nil, err
	}
	prf, err := c.key.UnblindAll(ctx, c.opts.workers, oprf.NewTruncator(c.p), back.Points)
	if err != nil {
		return nil, err
	}
	tm.Sample("oprf")

	if err := run.Advance(jobs.StateOnlineQuery, "building query"); err != nil {
		return nil, err
	}
	cuckoo := hashing.NewCuckoo(c.p, c.opts.rng)
	index := make(map[uint64]int, len(prf))
	for i, v := range prf {
		if err := cuckoo.Insert(v); err != nil {
			return nil, fmt.Errorf("cuckoo hash: %w", err)
		}
		index[v] = i
	}
	query, err := c.query(ctx, sk, cuckoo.Values(c.p.DummyClient()))
	if err != nil {
		return nil, err
	}
	query.Context = pubBlob
	data, err = wire.Marshal(query)
	if err != nil {
		return nil, err
	}
	tm.Sample("encrypt")
	if err := conn.Send(data); err != nil {
		return nil, err
	}

	if err := run.Advance(jobs.StateOnlineAnswer, "waiting for answer"); err != nil {
		return nil, err
	}
	data, err = conn.Receive()
	if err != nil {
		return nil, err
	}
	tm.Sample("query")
	answer, err := wire.DecodeAnswer(data, queryShape(c.p))
	if err != nil {
		return nil, err
	}
	matched, err := c.matches(sk, answer)
	if err != nil {
		return nil, err
	}

	found := make(map[uint64]struct{})
	for _, slot := range matched {
		item, ok := cuckoo.Item(slot)
		if !ok {
			// Dummy slot.
			continue
		}
		i, ok := index[item]
		if !ok {
			continue
		}
		found[c.set[i]] = struct{}{}
	}
	res := &Result{Intersection: make([]uint64, 0, len(found)), Report: tm}
	for v := range found {
		res.Intersection = append(res.Intersection, v)
	}
	slices.Sort(res.Intersection)
	tm.Sample("recover")

	log.Printf("client run: %d elements, %d matched slots, %d in intersection, %v",
		len(c.set), len(matched), len(res.Intersection), tm.Total())
	run.SetMetric("intersection", fmt.Sprint(len(res.Intersection)))
	if err := run.Advance(jobs.StateDone, "intersection recovered"); err != nil {
		return nil, err
	}
	return res, nil
}

// query windows every table slot and encrypts, per batch, one vector per
// defined window cell.
func (c *Client) query(ctx context.Context, sk he.SecretContext, values []uint64) (*wire.QueryMessage, error) {
	f := poly.NewField(c.p.PlainModulus)
	w := window.New(c.p)
	windows, err := pool.Map(ctx, c.opts.workers, values, func(y uint64) ([][]uint64, error) {
		return w.Window(f, y), nil
	})
	if err != nil {
		return nil, err
	}

	type cell struct{ batch, i, j int }
	var cells []cell
	for s := 0; s < c.p.NumberOfBatches(); s++ {
		for i := 0; i < w.Base-1; i++ {
			for j := 0; j < w.Places; j++ {
				if w.Defined(i, j) {
					cells = append(cells, cell{s, i, j})
				}
			}
		}
	}
	width := c.p.PolyModulusDegree
	blobs, err := pool.Map(ctx, c.opts.workers, cells, func(x cell) ([]byte, error) {
		vec := make([]uint64, width)
		for k := range vec {
			vec[k] = windows[x.batch*width+k][x.i][x.j]
		}
		ct, err := sk.Encrypt(vec)
		if err != nil {
			return nil, err
		}
		return sk.MarshalCiphertext(ct)
	})
	if err != nil {
		return nil, fmt.Errorf("encrypt query: %w", err)
	}

	q := &wire.QueryMessage{Version: wire.Version, Batches: make([][][][]byte, c.p.NumberOfBatches())}
	for s := range q.Batches {
		q.Batches[s] = make([][][]byte, w.Base-1)
		for i := range q.Batches[s] {
			q.Batches[s][i] = make([][]byte, w.Places)
		}
	}
	for n, x := range cells {
		q.Batches[x.batch][x.i][x.j] = blobs[n]
	}
	return q, nil
}

// matches decrypts the answer and returns the table slots at which any
// minibin polynomial vanished.
func (c *Client) matches(sk he.SecretContext, answer *wire.AnswerMessage) ([]int, error) {
	width := c.p.PolyModulusDegree
	hit := make([]bool, c.p.NumberOfBins())
	for s, batch := range answer.Batches {
		for j, blob := range batch {
			ct, err := sk.UnmarshalCiphertext(blob)
			if err != nil {
				return nil, psierr.DecryptionMismatch("batch %d minibin %d: %v", s, j, err)
			}
			vals, err := sk.Decrypt(ct)
			if err != nil {
				return nil, psierr.DecryptionMismatch("batch %d minibin %d: %v", s, j, err)
			}
			if len(vals) != width {
				return nil, psierr.DecryptionMismatch("batch %d minibin %d decrypts to %d slots", s, j, len(vals))
			}
			for i, v := range vals {
				if v == 0 {
					hit[s*width+i] = true
				}
			}
		}
	}
	var slots []int
	for slot, ok := range hit {
		if ok {
			slots = append(slots, slot)
		}
	}
	return slots, nil
}
