package sequence

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ledgerkernel/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "seq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNextValueStartsAtOneAndIncrements(t *testing.T) {
	svc := NewService(newTestStore(t))

	first, err := svc.NextValue("GL")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	second, err := svc.NextValue("GL")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second)
}

func TestNextValueStreamsAreIndependent(t *testing.T) {
	svc := NewService(newTestStore(t))

	glFirst, err := svc.NextValue("GL")
	require.NoError(t, err)
	arFirst, err := svc.NextValue("AR")
	require.NoError(t, err)

	assert.Equal(t, int64(1), glFirst)
	assert.Equal(t, int64(1), arFirst)
}

func TestCurrentValueReflectsLastAllocation(t *testing.T) {
	svc := NewService(newTestStore(t))

	cur, err := svc.CurrentValue("GL")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cur)

	_, err = svc.NextValue("GL")
	require.NoError(t, err)
	_, err = svc.NextValue("GL")
	require.NoError(t, err)

	cur, err = svc.CurrentValue("GL")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cur)
}

func TestNextValueSerializesConcurrentCallersOnSameStream(t *testing.T) {
	svc := NewService(newTestStore(t))

	const n = 50
	var wg sync.WaitGroup
	results := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err := svc.NextValue("GL")
			require.NoError(t, err)
			results[idx] = v
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, v := range results {
		assert.False(t, seen[v], "sequence value %d allocated twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, n)
}
