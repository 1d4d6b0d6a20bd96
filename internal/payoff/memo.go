package payoff

import (
	"hash/fnv"
	"math"
	"slices"
	"strconv"
	"sync"

	"options-dashboard/internal/models"
)

// Memo caches the last Compute result keyed by basket contents, so a
// dashboard can ask for the payoff on every render.
type Memo struct {
	engine *Engine

	mu     sync.Mutex
	key    uint64
	valid  bool
	result Result
	hits   int
}

// NewMemo wraps an engine.
func NewMemo(engine *Engine) *Memo {
	return &Memo{engine: engine}
}

// Compute returns the cached result when positions match the previous call.
// Callers get their own copy and may modify it freely.
func (m *Memo) Compute(positions []models.Position) Result {
	key := Fingerprint(positions)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid && m.key == key {
		m.hits++
		return m.result.clone()
	}
	m.result = m.engine.Compute(positions)
	m.key = key
	m.valid = true
	return m.result.clone()
}

func (r Result) clone() Result {
	r.Legs = slices.Clone(r.Legs)
	r.Curve = slices.Clone(r.Curve)
	r.Metrics.BreakEvens = slices.Clone(r.Metrics.BreakEvens)
	r.Skipped = slices.Clone(r.Skipped)
	return r
}

// Hits returns how many calls were served from cache.
func (m *Memo) Hits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits
}

// Fingerprint hashes the fields of a basket that affect the payoff.
func Fingerprint(positions []models.Position) uint64 {
	h := fnv.New64a()
	var buf []byte
	for _, p := range positions {
		buf = buf[:0]
		buf = append(buf, p.TradingSymbol...)
		buf = append(buf, 0)
		buf = strconv.AppendInt(buf, int64(p.Quantity), 10)
		buf = append(buf, 0)
		buf = strconv.AppendUint(buf, math.Float64bits(p.AveragePrice), 16)
		buf = append(buf, 0)
		buf = strconv.AppendUint(buf, math.Float64bits(p.CurrentPrice), 16)
		buf = append(buf, '\n')
		_, _ = h.Write(buf)
	}
	return h.Sum64()
}
