package kv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestBoltDB_UpdateAndView(t *testing.T) {
	db, clean := makeDB(t)
	defer clean()

	err := db.Update([]byte("bucket"), func(b Bucket) error {
		return b.Set([]byte("ping"), []byte("pong"))
	})
	require.NoError(t, err)

	err = db.View([]byte("bucket"), func(b Bucket) error {
		value := b.Get([]byte("ping"))
		require.Equal(t, []byte("pong"), value)

		return nil
	})
	require.NoError(t, err)

	err = db.View([]byte{0xaa}, nil)
	require.EqualError(t, err, "bucket 'aa' not found")

	err = db.Update(nil, nil)
	require.EqualError(t, err, "failed to create bucket: bucket name required")
}

func TestBoltDB_UpdateRollback(t *testing.T) {
	db, clean := makeDB(t)
	defer clean()

	err := db.Update([]byte("bucket"), func(b Bucket) error {
		require.NoError(t, b.Set([]byte("ping"), []byte("pong")))

		return xerrors.New("oops")
	})
	require.EqualError(t, err, "oops")

	err = db.Update([]byte("bucket"), func(b Bucket) error {
		require.Nil(t, b.Get([]byte("ping")))
		return nil
	})
	require.NoError(t, err)
}

func TestBoltBucket_Get_Set_Delete(t *testing.T) {
	db, clean := makeDB(t)
	defer clean()

	err := db.Update([]byte("bucket"), func(b Bucket) error {
		require.NoError(t, b.Set([]byte("ping"), []byte("pong")))

		value := b.Get([]byte("ping"))
		require.Equal(t, []byte("pong"), value)

		value = b.Get([]byte("pong"))
		require.Nil(t, value)

		require.NoError(t, b.Delete([]byte("ping")))

		value = b.Get([]byte("ping"))
		require.Nil(t, value)

		return nil
	})

	require.NoError(t, err)
}

func TestBoltBucket_ForEach(t *testing.T) {
	db, clean := makeDB(t)
	defer clean()

	err := db.Update([]byte("bucket"), func(b Bucket) error {
		require.NoError(t, b.Set([]byte{2}, []byte{2}))
		require.NoError(t, b.Set([]byte{1}, []byte{1}))
		require.NoError(t, b.Set([]byte{0}, []byte{0}))

		var i byte = 0
		return b.ForEach(func(k, v []byte) error {
			require.Equal(t, []byte{i}, k)
			require.Equal(t, []byte{i}, v)
			i++
			return nil
		})
	})
	require.NoError(t, err)
}

func TestBoltBucket_Scan(t *testing.T) {
	db, clean := makeDB(t)
	defer clean()

	err := db.Update([]byte("bucket"), func(b Bucket) error {
		require.NoError(t, b.Set([]byte("a/2"), []byte{2}))
		require.NoError(t, b.Set([]byte("a/1"), []byte{1}))
		require.NoError(t, b.Set([]byte("b/1"), []byte{3}))

		values := []byte{}
		err := b.Scan([]byte("a/"), func(k, v []byte) error {
			values = append(values, v...)
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []byte{1, 2}, values)

		err = b.Scan([]byte("c/"), func(k, v []byte) error {
			return xerrors.New("oops")
		})
		require.NoError(t, err)

		err = b.Scan([]byte{}, func(k, v []byte) error {
			return xerrors.New("oops")
		})
		require.EqualError(t, err, "callback failed: oops")

		return nil
	})
	require.NoError(t, err)
}

func TestBoltDB_New(t *testing.T) {
	db, err := New(filepath.Join(os.TempDir(), "unknown", "dir", "test.db"))
	require.Nil(t, db)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to open db: ")
}

// -----------------------------------------------------------------------------
// Utility functions

func makeDB(t *testing.T) (DB, func()) {
	dir, err := os.MkdirTemp(os.TempDir(), "community-kv")
	require.NoError(t, err)

	db, err := New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)

	return db, func() {
		db.Close()
		os.RemoveAll(dir)
	}
}
