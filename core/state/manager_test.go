package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"latchain/crypto"
	"latchain/native/rewards"
	"latchain/native/token"
	"latchain/storage"
	"latchain/storage/trie"
)

func newTestManager(t *testing.T) (*Manager, *trie.Trie) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	return NewManager(tr), tr
}

func testAddr(b byte) crypto.Address {
	var a crypto.Address
	a[31] = b
	return a
}

func TestKVRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.KVPut([]byte("k"), uint64(42)))
	var out uint64
	ok, err := mgr.KVGet([]byte("k"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), out)

	ok, err = mgr.KVGet([]byte("missing"), &out)
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, mgr.KVPut(nil, uint64(1)))
}

func TestParticipantsRegisteredOnce(t *testing.T) {
	mgr, _ := newTestManager(t)
	alice, bob := testAddr(1), testAddr(2)

	count, err := mgr.ParticipantCount()
	require.NoError(t, err)
	require.Zero(t, count)

	require.NoError(t, mgr.PutTraderStats(alice, &rewards.TraderStats{TradeCount: 1}))
	require.NoError(t, mgr.PutStakeRecord(bob, &rewards.StakeRecord{Amount: 5}))

	for i := uint64(2); i < 10; i++ {
		require.NoError(t, mgr.PutTraderStats(alice, &rewards.TraderStats{TradeCount: i}))
		require.NoError(t, mgr.PutStakeRecord(alice, &rewards.StakeRecord{Amount: i}))
	}
	count, err = mgr.ParticipantCount()
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)

	participants, err := mgr.Participants()
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{alice, bob}, participants)

	require.NoError(t, mgr.PutTraderStats(bob, &rewards.TraderStats{TradeCount: 3}))
	count, err = mgr.ParticipantCount()
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)
}

func TestProgramStateCreateOnce(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, ok, err := mgr.RewardProgramState()
	require.NoError(t, err)
	require.False(t, ok)

	ps := &rewards.ProgramState{
		Admin:               testAddr(1),
		RewardMint:          testAddr(2),
		TradeRewardRate:     10,
		StakeRewardRate:     3,
		TradeEpochDuration:  -5,
		PoolVolumeThreshold: 1000,
		PoolBoostMultiplier: 200,
		MintAuthBump:        254,
		VaultAuthBump:       253,
	}
	created, err := mgr.CreateRewardProgramState(ps)
	require.NoError(t, err)
	require.True(t, created)

	other := ps.Clone()
	other.TradeRewardRate = 99
	created, err = mgr.CreateRewardProgramState(other)
	require.NoError(t, err)
	require.False(t, created)

	loaded, ok, err := mgr.RewardProgramState()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ps, loaded)
}

func TestTraderAndStakeRecords(t *testing.T) {
	mgr, _ := newTestManager(t)
	alice, bob := testAddr(1), testAddr(2)

	stats, err := mgr.GetOrCreateTraderStats(alice)
	require.NoError(t, err)
	require.Equal(t, &rewards.TraderStats{}, stats)
	_, ok, err := mgr.TraderStats(alice)
	require.NoError(t, err)
	require.False(t, ok, "get-or-create must not persist")

	stats.TradeCount = 2
	stats.TotalVolume = 500
	stats.PendingTradeRewards = 75
	stats.LastClaim = 1_700_000_000
	require.NoError(t, mgr.PutTraderStats(alice, stats))

	record := &rewards.StakeRecord{Amount: 10, StakeStart: 1_700_000_100, LastUpdated: 1_700_000_200}
	require.NoError(t, mgr.PutStakeRecord(bob, record))
	require.NoError(t, mgr.PutStakeRecord(alice, record))

	loadedStats, ok, err := mgr.TraderStats(alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, stats, loadedStats)

	loadedRecord, err := mgr.GetOrCreateStakeRecord(bob)
	require.NoError(t, err)
	require.Equal(t, record, loadedRecord)

	participants, err := mgr.Participants()
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{alice, bob}, participants)
}

func TestTokenAndNonceRecords(t *testing.T) {
	mgr, _ := newTestManager(t)
	mint, owner := testAddr(7), testAddr(8)

	_, ok, err := mgr.TokenMint(mint)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mgr.PutTokenMint(mint, &token.Mint{Authority: testAddr(9), Supply: 5, Decimals: 9}))
	info, ok, err := mgr.TokenMint(mint)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, &token.Mint{Authority: testAddr(9), Supply: 5, Decimals: 9}, info)

	balance, err := mgr.TokenBalance(mint, owner)
	require.NoError(t, err)
	require.Zero(t, balance)
	require.NoError(t, mgr.SetTokenBalance(mint, owner, 5))
	balance, err = mgr.TokenBalance(mint, owner)
	require.NoError(t, err)
	require.Equal(t, uint64(5), balance)

	nonce, err := mgr.Nonce(owner)
	require.NoError(t, err)
	require.Zero(t, nonce)
	require.NoError(t, mgr.SetNonce(owner, 3))
	nonce, err = mgr.Nonce(owner)
	require.NoError(t, err)
	require.Equal(t, uint64(3), nonce)
}

func TestStateVersion(t *testing.T) {
	mgr, tr := newTestManager(t)
	require.NoError(t, EnsureStateVersion(tr, false))
	require.NoError(t, mgr.SetStateVersion(StateVersion+1))
	require.ErrorIs(t, EnsureStateVersion(tr, false), ErrStateVersionMismatch)
	require.NoError(t, EnsureStateVersion(tr, true))
}

func TestEngineOverManager(t *testing.T) {
	mgr, _ := newTestManager(t)
	programID, err := crypto.DecodeAddress(rewards.DefaultProgramID)
	require.NoError(t, err)
	auths, err := rewards.DeriveAuthorities(programID)
	require.NoError(t, err)

	ledger := token.NewLedger(programID)
	ledger.SetState(mgr)
	mint := testAddr(0x55)
	require.NoError(t, ledger.CreateMint(mint, auths.MintAuthority, 6))

	now := int64(1_000)
	engine := rewards.NewEngine(programID)
	engine.SetState(mgr)
	engine.SetLedger(ledger)
	engine.SetClock(rewards.ClockFunc(func() int64 { return now }))

	_, err = engine.Initialize(testAddr(1), rewards.InitializeParams{
		RewardMint:          mint,
		TradeRewardRate:     2,
		StakeRewardRate:     1,
		TradeEpochDuration:  60,
		PoolVolumeThreshold: 1_000_000,
		PoolBoostMultiplier: 100,
	})
	require.NoError(t, err)

	trader := testAddr(2)
	reward, err := engine.RecordTrade(trader, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(300), reward)

	now += 60
	claimed, err := engine.ClaimTradeRewards(trader)
	require.NoError(t, err)
	require.Equal(t, uint64(300), claimed)

	balance, err := mgr.TokenBalance(mint, trader)
	require.NoError(t, err)
	require.Equal(t, uint64(300), balance)
}
