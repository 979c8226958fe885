package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	key := []byte("loan/1")

	_, err := db.Get(key)
	require.ErrorIs(t, err, ErrNotFound)
	ok, err := db.Has(key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.Put(key, []byte("funded")))
	got, err := db.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("funded"), got)

	require.NoError(t, db.Put(key, []byte("approved")))
	got, err = db.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("approved"), got)

	require.NoError(t, db.Delete(key))
	_, err = db.Get(key)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, db.Delete(key))
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'z'
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}

func TestLevelDB(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	exerciseDatabase(t, db)

	require.NoError(t, db.Put([]byte("persist"), []byte("yes")))
	db.Close()

	reopened, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get([]byte("persist"))
	require.NoError(t, err)
	require.Equal(t, []byte("yes"), got)
}

func TestBoltDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := NewBoltDB(path)
	require.NoError(t, err)
	exerciseDatabase(t, db)

	require.NoError(t, db.Put([]byte("persist"), []byte("yes")))
	db.Close()

	reopened, err := NewBoltDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get([]byte("persist"))
	require.NoError(t, err)
	require.Equal(t, []byte("yes"), got)
}

func TestOverlayCommitAndDiscard(t *testing.T) {
	parent := NewMemDB()
	require.NoError(t, parent.Put([]byte("a"), []byte("1")))
	require.NoError(t, parent.Put([]byte("b"), []byte("2")))

	overlay := NewOverlay(parent)
	exerciseDatabase(t, overlay)

	require.NoError(t, overlay.Put([]byte("a"), []byte("10")))
	require.NoError(t, overlay.Delete([]byte("b")))
	require.NoError(t, overlay.Put([]byte("c"), []byte("3")))

	got, err := overlay.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("10"), got)
	ok, err := overlay.Has([]byte("b"))
	require.NoError(t, err)
	require.False(t, ok)

	// Parent is untouched until commit.
	got, err = parent.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)

	overlay.Discard()
	require.Zero(t, overlay.Pending())
	got, err = overlay.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)

	require.NoError(t, overlay.Put([]byte("a"), []byte("10")))
	require.NoError(t, overlay.Delete([]byte("b")))
	require.NoError(t, overlay.Commit())
	require.Zero(t, overlay.Pending())

	got, err = parent.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("10"), got)
	_, err = parent.Get([]byte("b"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenBackends(t *testing.T) {
	for _, backend := range []string{BackendMemory, BackendLevelDB, BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			db, err := Open(backend, t.TempDir())
			require.NoError(t, err)
			defer db.Close()
			exerciseDatabase(t, db)
		})
	}
	_, err := Open("rocksdb", t.TempDir())
	require.Error(t, err)
}

// unbatchedPuts fails any individual Put, so a commit only succeeds when it
// goes through WriteBatch.
type unbatchedPuts struct {
	*MemDB
}

func (d unbatchedPuts) Put([]byte, []byte) error {
	return errors.New("individual put")
}

type failingBatch struct {
	*MemDB
}

func (d failingBatch) WriteBatch([]Write) error {
	return errors.New("disk full")
}

// flakyDB has no batch support and fails its second Put.
type flakyDB struct {
	mem  *MemDB
	puts int
}

func (d *flakyDB) Put(key, value []byte) error {
	d.puts++
	if d.puts == 2 {
		return errors.New("disk full")
	}
	return d.mem.Put(key, value)
}

func (d *flakyDB) Get(key []byte) ([]byte, error) { return d.mem.Get(key) }
func (d *flakyDB) Has(key []byte) (bool, error) { return d.mem.Has(key) }
func (d *flakyDB) Delete(key []byte) error { return d.mem.Delete(key) }
func (d *flakyDB) Close() {}

func stageLoan(t *testing.T, overlay *Overlay) {
	t.Helper()
	require.NoError(t, overlay.Put([]byte("loan/1"), []byte("approved")))
	require.NoError(t, overlay.Put([]byte("balance/lender"), []byte("900")))
	require.NoError(t, overlay.Put([]byte("balance/escrow"), []byte("100")))
	require.NoError(t, overlay.Delete([]byte("pending/1")))
}

func TestOverlayCommitUsesBatch(t *testing.T) {
	parent := unbatchedPuts{NewMemDB()}
	require.NoError(t, parent.MemDB.Put([]byte("pending/1"), []byte("x")))

	overlay := NewOverlay(parent)
	stageLoan(t, overlay)
	require.NoError(t, overlay.Commit())

	got, err := parent.Get([]byte("balance/escrow"))
	require.NoError(t, err)
	require.Equal(t, []byte("100"), got)
	ok, err := parent.Has([]byte("pending/1"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 3, parent.Len())
}

func TestOverlayCommitFailureLeavesParentUntouched(t *testing.T) {
	parent := failingBatch{NewMemDB()}
	require.NoError(t, parent.Put([]byte("pending/1"), []byte("x")))

	overlay := NewOverlay(parent)
	stageLoan(t, overlay)
	require.Error(t, overlay.Commit())
	require.Equal(t, 4, overlay.Pending())
	require.Equal(t, 1, parent.Len())
	got, err := parent.Get([]byte("pending/1"))
	require.NoError(t, err)
	require.Equal(t, []byte("x"), got)
}

func TestOverlayCommitWithoutBatchIsPartial(t *testing.T) {
	parent := &flakyDB{mem: NewMemDB()}
	_, isBatcher := Database(parent).(Batcher)
	require.False(t, isBatcher)

	overlay := NewOverlay(parent)
	stageLoan(t, overlay)
	require.Error(t, overlay.Commit())
	require.Equal(t, 4, overlay.Pending())
	// Puts run in key order; only the first landed.
	require.Equal(t, 1, parent.mem.Len())
	ok, err := parent.Has([]byte("balance/escrow"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBackendsCommitOverlayAtomically(t *testing.T) {
	for _, backend := range []string{BackendMemory, BackendLevelDB, BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			db, err := Open(backend, t.TempDir())
			require.NoError(t, err)
			defer db.Close()
			_, ok := db.(Batcher)
			require.True(t, ok)

			require.NoError(t, db.Put([]byte("pending/1"), []byte("x")))
			overlay := NewOverlay(db)
			stageLoan(t, overlay)
			require.NoError(t, overlay.Commit())

			got, err := db.Get([]byte("loan/1"))
			require.NoError(t, err)
			require.Equal(t, []byte("approved"), got)
			ok, err = db.Has([]byte("pending/1"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestStackedOverlays(t *testing.T) {
	base := NewMemDB()
	outer := NewOverlay(base)
	inner := NewOverlay(outer)
	stageLoan(t, inner)
	require.NoError(t, inner.Commit())
	require.Zero(t, base.Len())
	require.Equal(t, 4, outer.Pending())
	require.NoError(t, outer.Commit())
	require.Equal(t, 3, base.Len())
}
