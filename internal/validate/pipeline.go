package validate

import (
	"sync"

	"iddesk.org/internal/obs"
)

// Pipeline re-runs a schema against draft snapshots and keeps only the
// newest result. Every run is tagged with a monotonically increasing
// generation at issue time; a completion whose generation is no longer the
// latest is discarded on arrival, so an earlier-issued run that happens to
// resolve later can never overwrite a newer result. There is no hard
// cancellation of in-flight runs.
type Pipeline struct {
	schema *Schema

	mu     sync.Mutex
	gen    uint64
	latest Result
	// onValid is the save-enable signal; invoked in lock-step with every
	// applied result.
	onValid func(bool)
}

// NewPipeline builds a Pipeline over one schema. onValid may be nil.
func NewPipeline(schema *Schema, onValid func(bool)) *Pipeline {
	if onValid == nil {
		onValid = func(bool) {}
	}
	return &Pipeline{schema: schema, onValid: onValid}
}

// Run issues an asynchronous validation of the draft snapshot and returns
// its generation. The caller must pass a snapshot it will not mutate.
func (p *Pipeline) Run(draft any) uint64 {
	gen := p.begin()
	go func() {
		res := p.schema.Evaluate(draft)
		p.finish(gen, res)
	}()
	return gen
}

// RunWait validates synchronously through the same generation mechanism
// and returns the computed result, whether or not it was applied.
func (p *Pipeline) RunWait(draft any) Result {
	gen := p.begin()
	res := p.schema.Evaluate(draft)
	p.finish(gen, res)
	return res
}

// Latest returns the most recently applied result. Before any run
// completes it reports invalid with no field errors.
func (p *Pipeline) Latest() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// begin allocates the next generation.
func (p *Pipeline) begin() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	return p.gen
}

// finish applies a completed run if and only if its generation is still
// the newest issued. Reports whether the result was applied.
func (p *Pipeline) finish(gen uint64, res Result) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		obs.ValidationRun("stale")
		return false
	}
	p.latest = res
	obs.ValidationRun("applied")
	p.onValid(res.Valid)
	return true
}
