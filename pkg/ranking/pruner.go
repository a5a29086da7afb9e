package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/halldyll/recall-go/pkg/model"
)

// TTLPolicy maps a kind to its time-to-live. Kinds absent from the policy
// never expire.
type TTLPolicy map[model.MemoryKind]time.Duration

// Expired reports whether item has outlived its kind's TTL at instant now,
// i.e. now - created_at > ttl.
func (p TTLPolicy) Expired(item *model.MemoryItem, now time.Time) bool {
	ttl, ok := p[item.Kind]
	if !ok {
		return false
	}
	return now.Sub(item.CreatedAt) > ttl
}

// Filter splits candidates into live ones (order preserved) and the ids of
// expired ones.
func (p TTLPolicy) Filter(candidates []model.RankedMemory, now time.Time) ([]model.RankedMemory, []model.MemoryID) {
	if len(p) == 0 {
		return candidates, nil
	}
	live := candidates[:0:0]
	var expired []model.MemoryID
	for _, c := range candidates {
		if p.Expired(c.Item, now) {
			expired = append(expired, c.Item.ID)
			continue
		}
		live = append(live, c)
	}
	return live, expired
}

// Kinds returns the kinds with a TTL, in a stable order.
func (p TTLPolicy) Kinds() []model.MemoryKind {
	kinds := make([]model.MemoryKind, 0, len(p))
	for k := range p {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// SweepStore is the subset of a vector store used by Sweep.
type SweepStore interface {
	ListOlderThan(ctx context.Context, kind model.MemoryKind, cutoff time.Time) ([]*model.MemoryItem, error)
	Delete(ctx context.Context, ids ...model.MemoryID) error
}

// SweepResult reports what a sweep did.
type SweepResult struct {
	Scanned int
	Deleted int
}

// Sweep deletes every stored item that is expired at instant now. It uses
// the same predicate as Filter, so an item a sweep would delete is never
// ranked at the same instant.
func (p TTLPolicy) Sweep(ctx context.Context, store SweepStore, now time.Time) (SweepResult, error) {
	var res SweepResult
	for _, kind := range p.Kinds() {
		items, err := store.ListOlderThan(ctx, kind, now.Add(-p[kind]))
		if err != nil {
			return res, fmt.Errorf("Sweep: %s: %w", kind, err)
		}
		res.Scanned += len(items)

		var ids []model.MemoryID
		for _, item := range items {
			if p.Expired(item, now) {
				ids = append(ids, item.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		if err := store.Delete(ctx, ids...); err != nil {
			return res, fmt.Errorf("Sweep: %s: %w", kind, err)
		}
		res.Deleted += len(ids)
	}
	return res, nil
}
