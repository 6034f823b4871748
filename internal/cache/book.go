package cache

import (
	"fmt"
	"sync"

	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

// Policy controls which kinds of deltas a book computes.
type Policy struct {
	Add    bool
	Remove bool
	Update bool
}

// Strategy configures a Book for one data type: identity, change detection
// and snapshot trimming. Each specialized book injects its own strategy at
// construction instead of overriding methods.
type Strategy[T any] struct {
	// ID returns the identity of an item; two items with the same ID are the
	// same entity at different points in time.
	ID func(T) string
	// Equal reports whether two items with the same ID are unchanged.
	Equal func(a, b T) bool
	// Trim bounds and orders a freshly built snapshot. It receives a slice
	// the book owns and may mutate or replace it.
	Trim func([]T) []T

	Policy Policy
}

// Difference is the delta between two consecutive snapshots of one key.
type Difference[T any] struct {
	Added   []T
	Removed []T
	Updated []T
}

// Empty reports whether the difference carries no changes.
func (d Difference[T]) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0
}

// Book is a snapshot/difference container keyed by an arbitrary identifier
// (market id or member id). It owns its snapshots exclusively; readers always
// receive copies. Updates never throw: they return false and leave the last
// known-good snapshot intact on failure.
type Book[T any] struct {
	name     string
	strategy Strategy[T]
	logger   logger.Interface

	mu        sync.RWMutex
	snapshots map[string][]T
	diffs     map[string]Difference[T]
}

// NewBook creates a Book with the given strategy.
func NewBook[T any](name string, strategy Strategy[T], log logger.Interface) *Book[T] {
	if strategy.Trim == nil {
		strategy.Trim = func(items []T) []T { return items }
	}
	return &Book[T]{
		name:      name,
		strategy:  strategy,
		logger:    log,
		snapshots: make(map[string][]T),
		diffs:     make(map[string]Difference[T]),
	}
}

// UpdateAll replaces the snapshot for key wholly, computing the full
// difference versus the prior snapshot. Used for bulk refresh.
func (b *Book[T]) UpdateAll(key string, items []T) (ok bool) {
	defer b.recoverUpdate(key, &ok)

	next := b.strategy.Trim(append([]T(nil), items...))

	b.mu.Lock()
	defer b.mu.Unlock()

	diff := b.diffSnapshots(b.snapshots[key], next)
	b.snapshots[key] = next
	b.diffs[key] = diff
	return true
}

// UpdateByDifference applies an incremental delta directly to the snapshot
// without recomputing a full diff. Updates that equal the held item per the
// strategy are discarded, so a re-sent unchanged row neither mutates the
// snapshot nor surfaces in the stored difference. Tolerates an empty prior
// snapshot.
func (b *Book[T]) UpdateByDifference(key string, delta Difference[T]) (ok bool) {
	defer b.recoverUpdate(key, &ok)

	b.mu.Lock()
	defer b.mu.Unlock()

	delta.Updated = b.dropUnchanged(b.snapshots[key], delta.Updated)
	next := b.applyDelta(b.snapshots[key], delta)
	next = b.strategy.Trim(next)

	b.snapshots[key] = next
	b.diffs[key] = b.filterByPolicy(delta)
	return true
}

// Snapshot returns a copy of the current snapshot for key. Pure read.
func (b *Book[T]) Snapshot(key string) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]T(nil), b.snapshots[key]...)
}

// Difference returns a copy of the delta produced by the last update for key.
// Safe to call repeatedly; reading does not consume the delta.
func (b *Book[T]) Difference(key string) Difference[T] {
	b.mu.RLock()
	defer b.mu.RUnlock()

	d := b.diffs[key]
	return Difference[T]{
		Added:   append([]T(nil), d.Added...),
		Removed: append([]T(nil), d.Removed...),
		Updated: append([]T(nil), d.Updated...),
	}
}

// Keys returns all keys holding a snapshot.
func (b *Book[T]) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.snapshots))
	for key := range b.snapshots {
		keys = append(keys, key)
	}
	return keys
}

// Drop removes a key entirely, e.g. when the last subscriber left.
func (b *Book[T]) Drop(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.snapshots, key)
	delete(b.diffs, key)
}

func (b *Book[T]) recoverUpdate(key string, ok *bool) {
	if r := recover(); r != nil {
		*ok = false
		if b.logger != nil {
			b.logger.Error(
				errors.NewTracer(fmt.Sprintf("%s cache update panicked: %v", b.name, r)),
				logger.Field{Key: "book", Value: b.name},
				logger.Field{Key: "key", Value: key},
			)
		}
	}
}

// diffSnapshots computes the policy-filtered delta between two snapshots.
func (b *Book[T]) diffSnapshots(prior, next []T) Difference[T] {
	priorByID := make(map[string]T, len(prior))
	for _, item := range prior {
		priorByID[b.strategy.ID(item)] = item
	}

	var diff Difference[T]
	nextIDs := make(map[string]struct{}, len(next))
	for _, item := range next {
		id := b.strategy.ID(item)
		nextIDs[id] = struct{}{}

		old, existed := priorByID[id]
		switch {
		case !existed:
			if b.strategy.Policy.Add {
				diff.Added = append(diff.Added, item)
			}
		case !b.strategy.Equal(old, item):
			if b.strategy.Policy.Update {
				diff.Updated = append(diff.Updated, item)
			}
		}
	}

	if b.strategy.Policy.Remove {
		for _, item := range prior {
			if _, kept := nextIDs[b.strategy.ID(item)]; !kept {
				diff.Removed = append(diff.Removed, item)
			}
		}
	}

	return diff
}

// dropUnchanged filters updates that equal the item currently held under the
// same id.
func (b *Book[T]) dropUnchanged(prior, updates []T) []T {
	if len(updates) == 0 || b.strategy.Equal == nil {
		return updates
	}

	held := make(map[string]T, len(prior))
	for _, item := range prior {
		held[b.strategy.ID(item)] = item
	}

	kept := make([]T, 0, len(updates))
	for _, item := range updates {
		if old, ok := held[b.strategy.ID(item)]; ok && b.strategy.Equal(old, item) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// applyDelta merges a delta into a snapshot copy: removals drop by id,
// updates replace in place, additions append.
func (b *Book[T]) applyDelta(prior []T, delta Difference[T]) []T {
	removed := make(map[string]struct{}, len(delta.Removed))
	for _, item := range delta.Removed {
		removed[b.strategy.ID(item)] = struct{}{}
	}
	updated := make(map[string]T, len(delta.Updated))
	for _, item := range delta.Updated {
		updated[b.strategy.ID(item)] = item
	}
	added := make(map[string]T, len(delta.Added))
	for _, item := range delta.Added {
		added[b.strategy.ID(item)] = item
	}

	next := make([]T, 0, len(prior)+len(delta.Added))
	seen := make(map[string]struct{}, len(prior))
	for _, item := range prior {
		id := b.strategy.ID(item)
		seen[id] = struct{}{}
		if _, drop := removed[id]; drop {
			continue
		}
		if repl, ok := updated[id]; ok {
			next = append(next, repl)
			continue
		}
		// an "added" item for an id we already hold replaces the held item
		if repl, ok := added[id]; ok {
			next = append(next, repl)
			continue
		}
		next = append(next, item)
	}
	for _, item := range delta.Added {
		if _, dup := seen[b.strategy.ID(item)]; dup {
			continue
		}
		next = append(next, item)
	}
	// updates for ids the snapshot never held initialize lazily
	for id, item := range updated {
		if _, held := seen[id]; !held {
			next = append(next, item)
		}
	}

	return next
}

func (b *Book[T]) filterByPolicy(delta Difference[T]) Difference[T] {
	var diff Difference[T]
	if b.strategy.Policy.Add {
		diff.Added = append([]T(nil), delta.Added...)
	}
	if b.strategy.Policy.Remove {
		diff.Removed = append([]T(nil), delta.Removed...)
	}
	if b.strategy.Policy.Update {
		diff.Updated = append([]T(nil), delta.Updated...)
	}
	return diff
}
