package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"crosslend/storage"
)

type kvRecord struct {
	Name  string
	Count uint64
}

func TestKVRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	var out kvRecord
	ok, err := mgr.KVGet([]byte("missing"), &out)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.KVPut([]byte("record"), kvRecord{Name: "alpha", Count: 3}))
	ok, err = mgr.KVGet([]byte("record"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, kvRecord{Name: "alpha", Count: 3}, out)

	require.NoError(t, mgr.KVDelete([]byte("record")))
	ok, err = mgr.KVGet([]byte("record"), nil)
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, mgr.KVPut(nil, 1))
	_, err = mgr.KVGet(nil, &out)
	require.Error(t, err)
}

func TestKVGetListInitialisesEmptySlice(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	var ids []uint64
	require.NoError(t, mgr.KVGetList([]byte("ids"), &ids))
	require.NotNil(t, ids)
	require.Empty(t, ids)

	var notSlice uint64
	require.Error(t, mgr.KVGetList([]byte("ids"), &notSlice))
}

func TestAppendIDDeduplicates(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	key := []byte("index")
	for _, id := range []uint64{3, 1, 3, 2, 1} {
		require.NoError(t, mgr.appendID(key, id))
	}
	ids, err := mgr.listIDs(key)
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 1, 2}, ids)
}

func TestNextIDStartsAtOne(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	for want := uint64(1); want <= 3; want++ {
		id, err := mgr.LoanNextID()
		require.NoError(t, err)
		require.Equal(t, want, id)
	}
	id, err := mgr.CollateralNextID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	count, err := mgr.LoanCount()
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)
}

func TestKeysAreHashed(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	require.NoError(t, mgr.KVPut([]byte("plain"), uint64(7)))

	ok, err := db.Has([]byte("plain"))
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = db.Has(kvKey([]byte("plain")))
	require.NoError(t, err)
	require.True(t, ok)
}
