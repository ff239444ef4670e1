// Package report renders timing and communication figures of a run.
package report

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/SanthoshCheemala/PolyPSI/internal/transport"
	"github.com/markkurossi/tabulate"
)

// Size formats a byte count with decimal units.
type Size uint64

func (s Size) String() string {
	switch {
	case s > 1000*1000*1000:
		return fmt.Sprintf("%.2fGB", float64(s)/1e9)
	case s > 1000*1000:
		return fmt.Sprintf("%.2fMB", float64(s)/1e6)
	case s > 1000:
		return fmt.Sprintf("%.2fkB", float64(s)/1e3)
	default:
		return fmt.Sprintf("%dB", s)
	}
}

// Sample is one timed phase. Sent and Recvd are the bytes the phase moved.
type Sample struct {
	Label string
	Start time.Time
	End   time.Time
	Sent  uint64
	Recvd uint64
}

func (s *Sample) Duration() time.Duration { return s.End.Sub(s.Start) }

// Timing collects consecutive phase samples. Each sample starts where the
// previous one ended.
type Timing struct {
	mu      sync.Mutex
	Start   time.Time
	Samples []*Sample
	stats   transport.IOStats
	sent    uint64
	recvd   uint64
}

// NewTiming starts a timing. stats may be zero when no connection is
// involved.
func NewTiming(stats transport.IOStats) *Timing {
	t := &Timing{Start: time.Now(), stats: stats}
	t.sent, t.recvd = t.counters()
	return t
}

func (t *Timing) counters() (sent, recvd uint64) {
	if t.stats.Sent == nil {
		return 0, 0
	}
	return t.stats.Sent.Load(), t.stats.Recvd.Load()
}

// Sample closes a phase named label.
func (t *Timing) Sample(label string) *Sample {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := t.Start
	if len(t.Samples) > 0 {
		start = t.Samples[len(t.Samples)-1].End
	}
	sent, recvd := t.counters()
	s := &Sample{
		Label: label,
		Start: start,
		End:   time.Now(),
		Sent:  sent - t.sent,
		Recvd: recvd - t.recvd,
	}
	t.sent, t.recvd = sent, recvd
	t.Samples = append(t.Samples, s)
	return s
}

// Total is the time from start to the end of the last sample.
func (t *Timing) Total() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Samples) == 0 {
		return 0
	}
	return t.Samples[len(t.Samples)-1].End.Sub(t.Start)
}

// Transferred sums the bytes moved across all samples.
func (t *Timing) Transferred() (sent, recvd uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.Samples {
		sent += s.Sent
		recvd += s.Recvd
	}
	return sent, recvd
}

// Print writes the report table to w.
func (t *Timing) Print(w io.Writer) {
	t.mu.Lock()
	samples := append([]*Sample(nil), t.Samples...)
	t.mu.Unlock()
	if len(samples) == 0 {
		return
	}

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Phase").SetAlign(tabulate.ML)
	tab.Header("Time").SetAlign(tabulate.MR)
	tab.Header("%").SetAlign(tabulate.MR)
	tab.Header("Sent").SetAlign(tabulate.MR)
	tab.Header("Rcvd").SetAlign(tabulate.MR)

	total := samples[len(samples)-1].End.Sub(t.Start)
	var sent, recvd uint64
	for _, s := range samples {
		row := tab.Row()
		row.Column(s.Label)
		row.Column(s.Duration().String())
		pct := 0.0
		if total > 0 {
			pct = float64(s.Duration()) / float64(total) * 100
		}
		row.Column(fmt.Sprintf("%.2f%%", pct))
		row.Column(Size(s.Sent).String())
		row.Column(Size(s.Recvd).String())
		sent += s.Sent
		recvd += s.Recvd
	}
	row := tab.Row()
	row.Column("Total").SetFormat(tabulate.FmtBold)
	row.Column(total.String()).SetFormat(tabulate.FmtBold)
	row.Column("").SetFormat(tabulate.FmtBold)
	row.Column(Size(sent).String()).SetFormat(tabulate.FmtBold)
	row.Column(Size(recvd).String()).SetFormat(tabulate.FmtBold)

	tab.Print(w)
}
