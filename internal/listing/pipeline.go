package listing

import (
	"sync"
	"time"

	"github.com/jensholdgaard/auction-live/internal/auction"
)

// Input is everything one pipeline run depends on. Version identifies the
// collection; it changes whenever the collection is replaced or patched.
type Input struct {
	Auctions []auction.Auction
	Version  uint64
	Tick     uint64
	Now      time.Time
	Tab      Tab
	Criteria Criteria
	Resolve  ResolveFunc
}

// Output is the filtered, ordered and projected listing.
type Output struct {
	Records []DisplayRecord
	Matched int
}

type memoKey struct {
	version uint64
	tick    uint64
	tab     Tab
	crit    string
}

// Pipeline memoizes filter, sort and projection on the collection version,
// the criteria and the clock tick. Results for older versions or ticks are
// discarded as soon as a newer one is seen.
type Pipeline struct {
	mu      sync.Mutex
	version uint64
	tick    uint64
	memo    map[memoKey]Output
	runs    int
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{memo: make(map[memoKey]Output)}
}

// Run returns the listing for in, computing it at most once per key.
func (p *Pipeline) Run(in Input) Output {
	key := memoKey{version: in.Version, tick: in.Tick, tab: in.Tab, crit: in.Criteria.Key()}

	p.mu.Lock()
	defer p.mu.Unlock()

	if in.Version != p.version || in.Tick != p.tick {
		clear(p.memo)
		p.version, p.tick = in.Version, in.Tick
	}
	if out, ok := p.memo[key]; ok {
		return out
	}

	unique, _ := auction.Dedupe(in.Auctions)
	matched := Filter(unique, in.Tab, in.Criteria, in.Resolve, in.Now)
	ordered := Sort(matched, in.Resolve)

	records := make([]DisplayRecord, len(ordered))
	for i := range ordered {
		records[i] = Project(&ordered[i], in.Resolve(&ordered[i]))
	}
	out := Output{Records: records, Matched: len(records)}
	p.memo[key] = out
	p.runs++
	return out
}

// Runs reports how many times the pipeline actually computed a result.
func (p *Pipeline) Runs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}
