package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"latchain/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("rewards/state"))
	value := []byte("value")

	require.NoError(t, tr.Update(key.Bytes(), value))
	root, err := tr.Commit(common.Hash{}, 1)
	require.NoError(t, err)

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestTrieResetDiscardsStagedWrites(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)

	committed := crypto.Keccak256Hash([]byte("committed"))
	require.NoError(t, tr.Update(committed.Bytes(), []byte{1}))
	root, err := tr.Commit(tr.Root(), 1)
	require.NoError(t, err)
	require.Equal(t, root, tr.Root())

	staged := crypto.Keccak256Hash([]byte("staged"))
	require.NoError(t, tr.Update(staged.Bytes(), []byte{2}))
	require.NotEqual(t, root, tr.Hash())

	require.NoError(t, tr.Reset(root))
	got, err := tr.Get(staged.Bytes())
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = tr.Get(committed.Bytes())
	require.NoError(t, err)
	require.Equal(t, []byte{1}, got)
	require.Equal(t, root, tr.Hash())
}
