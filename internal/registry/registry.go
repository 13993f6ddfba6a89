package registry

import (
	"sort"
	"sync"
	"time"

	"call-insights-go/internal/types"
)

// Registry is the process-lifetime, in-memory store of every call record
// seen from one provider. Records are never deleted; restarts reset it.
type Registry struct {
	provider types.Provider

	mu      sync.Mutex
	records map[string]types.CallRecord
	subs    map[int]func([]types.CallRecord)
	nextSub int
}

// Filter narrows a Query. All fields are optional and conjunctive.
type Filter struct {
	AgentPhone string
	Direction  types.Direction
	StartDate  *time.Time // inclusive, compared against StartTime
	EndDate    *time.Time // inclusive
	Limit      int        // applied after filtering and sorting
}

func New(provider types.Provider) *Registry {
	return &Registry{
		provider: provider,
		records:  make(map[string]types.CallRecord),
		subs:     make(map[int]func([]types.CallRecord)),
	}
}

func (g *Registry) Provider() types.Provider { return g.provider }

// Store upserts by id. An existing record is merged: fields present on the
// incoming record overwrite, absent fields are preserved. Subscribers are
// notified synchronously once the merge has fully committed, so they never
// observe a partially-merged record.
func (g *Registry) Store(rec types.CallRecord) types.CallRecord {
	rec.EnsureKeywords()

	g.mu.Lock()
	if existing, ok := g.records[rec.ID]; ok {
		rec = existing.Merge(rec)
	}
	g.records[rec.ID] = rec

	snapshot := g.sortedLocked()
	subs := make([]func([]types.CallRecord), 0, len(g.subs))
	for _, fn := range g.subs {
		subs = append(subs, fn)
	}
	g.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
	return rec
}

// Get returns the record for id, if known.
func (g *Registry) Get(id string) (types.CallRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[id]
	return rec, ok
}

// Query filters and sorts the stored records, most recent StartTime first.
// No filter returns everything.
func (g *Registry) Query(f Filter) []types.CallRecord {
	g.mu.Lock()
	all := g.sortedLocked()
	g.mu.Unlock()

	out := make([]types.CallRecord, 0, len(all))
	for _, r := range all {
		if f.AgentPhone != "" && r.AgentPhone != f.AgentPhone {
			continue
		}
		if f.Direction != "" && r.Direction != f.Direction {
			continue
		}
		if f.StartDate != nil && r.StartTime.Before(*f.StartDate) {
			continue
		}
		if f.EndDate != nil && r.StartTime.After(*f.EndDate) {
			continue
		}
		out = append(out, r)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// All returns every record, sorted.
func (g *Registry) All() []types.CallRecord {
	return g.Query(Filter{})
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

// Subscribe registers fn and invokes it once immediately with the current
// record set, then again after every Store. The returned func removes the
// subscription.
func (g *Registry) Subscribe(fn func([]types.CallRecord)) func() {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	snapshot := g.sortedLocked()
	g.mu.Unlock()

	fn(snapshot)

	return func() {
		g.mu.Lock()
		delete(g.subs, id)
		g.mu.Unlock()
	}
}

func (g *Registry) sortedLocked() []types.CallRecord {
	out := make([]types.CallRecord, 0, len(g.records))
	for _, r := range g.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}
