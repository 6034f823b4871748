package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

type item struct {
	id  string
	val int
}

func newTestBook(policy Policy) *Book[item] {
	return NewBook("test", Strategy[item]{
		ID:     func(i item) string { return i.id },
		Equal:  func(a, b item) bool { return a.val == b.val },
		Policy: policy,
	}, logger.NewNop())
}

func TestBookUpdateAll(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		prior    []item
		next     []item
		assertFn func(t *testing.T, diff Difference[item])
	}{
		{
			name:   "first snapshot is all additions",
			policy: Policy{Add: true, Remove: true, Update: true},
			next:   []item{{"a", 1}, {"b", 2}},
			assertFn: func(t *testing.T, diff Difference[item]) {
				assert.Len(t, diff.Added, 2)
				assert.Empty(t, diff.Removed)
				assert.Empty(t, diff.Updated)
			},
		},
		{
			name:   "changed value shows as update",
			policy: Policy{Add: true, Remove: true, Update: true},
			prior:  []item{{"a", 1}, {"b", 2}},
			next:   []item{{"a", 1}, {"b", 3}},
			assertFn: func(t *testing.T, diff Difference[item]) {
				require.Len(t, diff.Updated, 1)
				assert.Equal(t, item{"b", 3}, diff.Updated[0])
				assert.Empty(t, diff.Added)
				assert.Empty(t, diff.Removed)
			},
		},
		{
			name:   "missing item shows as removal",
			policy: Policy{Add: true, Remove: true, Update: true},
			prior:  []item{{"a", 1}, {"b", 2}},
			next:   []item{{"a", 1}},
			assertFn: func(t *testing.T, diff Difference[item]) {
				require.Len(t, diff.Removed, 1)
				assert.Equal(t, "b", diff.Removed[0].id)
			},
		},
		{
			name:   "policy suppresses delta kinds",
			policy: Policy{Add: true},
			prior:  []item{{"a", 1}, {"b", 2}},
			next:   []item{{"a", 9}, {"c", 3}},
			assertFn: func(t *testing.T, diff Difference[item]) {
				require.Len(t, diff.Added, 1)
				assert.Equal(t, "c", diff.Added[0].id)
				assert.Empty(t, diff.Removed)
				assert.Empty(t, diff.Updated)
			},
		},
		{
			name:   "identical snapshot yields empty diff",
			policy: Policy{Add: true, Remove: true, Update: true},
			prior:  []item{{"a", 1}},
			next:   []item{{"a", 1}},
			assertFn: func(t *testing.T, diff Difference[item]) {
				assert.True(t, diff.Empty())
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			book := newTestBook(tc.policy)
			if tc.prior != nil {
				require.True(t, book.UpdateAll("k", tc.prior))
			}
			require.True(t, book.UpdateAll("k", tc.next))

			tc.assertFn(t, book.Difference("k"))
			assert.ElementsMatch(t, tc.next, book.Snapshot("k"))
		})
	}
}

func TestBookUpdateByDifference(t *testing.T) {
	book := newTestBook(Policy{Add: true, Remove: true, Update: true})
	require.True(t, book.UpdateAll("k", []item{{"a", 1}, {"b", 2}}))

	ok := book.UpdateByDifference("k", Difference[item]{
		Added:   []item{{"c", 3}},
		Removed: []item{{"a", 0}},
		Updated: []item{{"b", 5}},
	})
	require.True(t, ok)

	assert.ElementsMatch(t, []item{{"b", 5}, {"c", 3}}, book.Snapshot("k"))

	diff := book.Difference("k")
	assert.Equal(t, []item{{"c", 3}}, diff.Added)
	assert.Equal(t, []item{{"b", 5}}, diff.Updated)
	require.Len(t, diff.Removed, 1)
	assert.Equal(t, "a", diff.Removed[0].id)
}

func TestBookUpdateByDifferenceReplacesReAddedItem(t *testing.T) {
	book := newTestBook(Policy{Add: true, Remove: true, Update: true})
	require.True(t, book.UpdateAll("k", []item{{"a", 1}, {"b", 2}}))

	// an addition for an id the snapshot already holds replaces it in place
	ok := book.UpdateByDifference("k", Difference[item]{Added: []item{{"a", 7}}})
	require.True(t, ok)
	assert.ElementsMatch(t, []item{{"a", 7}, {"b", 2}}, book.Snapshot("k"))
}

func TestBookUpdateByDifferenceDropsNoOpUpdates(t *testing.T) {
	book := newTestBook(Policy{Add: true, Remove: true, Update: true})
	require.True(t, book.UpdateAll("k", []item{{"a", 1}, {"b", 2}}))

	ok := book.UpdateByDifference("k", Difference[item]{Updated: []item{{"a", 1}, {"b", 5}}})
	require.True(t, ok)

	diff := book.Difference("k")
	assert.Equal(t, []item{{"b", 5}}, diff.Updated)
	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Removed)

	// replaying the identical item leaves an empty difference
	require.True(t, book.UpdateByDifference("k", Difference[item]{Updated: []item{{"b", 5}}}))
	assert.True(t, book.Difference("k").Empty())
	assert.ElementsMatch(t, []item{{"a", 1}, {"b", 5}}, book.Snapshot("k"))
}

func TestBookUpdateByDifferenceEmptyPrior(t *testing.T) {
	book := newTestBook(Policy{Add: true, Remove: true, Update: true})

	ok := book.UpdateByDifference("fresh", Difference[item]{
		Added:   []item{{"a", 1}},
		Updated: []item{{"b", 2}},
	})
	require.True(t, ok)
	assert.ElementsMatch(t, []item{{"a", 1}, {"b", 2}}, book.Snapshot("fresh"))
}

func TestBookUpdateFailureKeepsSnapshot(t *testing.T) {
	book := NewBook("test", Strategy[item]{
		ID:    func(i item) string { return i.id },
		Equal: func(a, b item) bool { return a.val == b.val },
		Trim: func(items []item) []item {
			for _, it := range items {
				if it.val < 0 {
					panic("negative value")
				}
			}
			return items
		},
		Policy: Policy{Add: true, Remove: true, Update: true},
	}, logger.NewNop())

	require.True(t, book.UpdateAll("k", []item{{"a", 1}}))
	priorDiff := book.Difference("k")

	assert.False(t, book.UpdateAll("k", []item{{"a", -1}}))

	// last known-good snapshot and diff survive the failed update
	assert.Equal(t, []item{{"a", 1}}, book.Snapshot("k"))
	assert.Equal(t, priorDiff, book.Difference("k"))
}

func TestBookDifferenceIsRepeatable(t *testing.T) {
	book := newTestBook(Policy{Add: true, Remove: true, Update: true})
	require.True(t, book.UpdateAll("k", []item{{"a", 1}}))

	first := book.Difference("k")
	second := book.Difference("k")
	assert.Equal(t, first, second)
}

func TestBookSnapshotIsACopy(t *testing.T) {
	book := newTestBook(Policy{Add: true})
	require.True(t, book.UpdateAll("k", []item{{"a", 1}, {"b", 2}}))

	snap := book.Snapshot("k")
	snap[0] = item{"mutated", 99}

	assert.ElementsMatch(t, []item{{"a", 1}, {"b", 2}}, book.Snapshot("k"))
}

func TestBookDropAndKeys(t *testing.T) {
	book := newTestBook(Policy{Add: true})
	require.True(t, book.UpdateAll("k1", []item{{"a", 1}}))
	require.True(t, book.UpdateAll("k2", []item{{"b", 2}}))

	assert.ElementsMatch(t, []string{"k1", "k2"}, book.Keys())

	book.Drop("k1")
	assert.Empty(t, book.Snapshot("k1"))
	assert.ElementsMatch(t, []string{"k2"}, book.Keys())
}
