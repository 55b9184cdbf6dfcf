package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"latchain/config"
	"latchain/core/events"
	"latchain/core/types"
	"latchain/crypto"
	nativecommon "latchain/native/common"
	"latchain/native/rewards"
	"latchain/services/indexer"
	"latchain/storage"
)

const testNetwork = "lat-test"

type testClock struct {
	mu  sync.Mutex
	now int64

	// step is added after every read.
	step int64
}

func (c *testClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now += c.step
	return now
}

func (c *testClock) Advance(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
}

type recordingSink struct {
	receipts []*types.Receipt
}

func (s *recordingSink) IndexReceipt(_ context.Context, receipt *types.Receipt) error {
	s.receipts = append(s.receipts, receipt)
	return nil
}

type nodeFixture struct {
	node   *Node
	clock  *testClock
	admin  *crypto.PrivateKey
	trader *crypto.PrivateKey
	mint   crypto.Address
	nonces map[crypto.Address]uint64
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func testProgramID(t *testing.T) crypto.Address {
	t.Helper()
	id, err := crypto.DecodeAddress(rewards.DefaultProgramID)
	require.NoError(t, err)
	return id
}

func testGenesis(admin, holder, mint crypto.Address) *config.Genesis {
	return &config.Genesis{
		Admin:        admin.String(),
		RewardMint:   mint.String(),
		MintDecimals: 6,
		Params: config.GenesisParams{
			TradeRewardRate:     2,
			StakeRewardRate:     1,
			TradeEpochDuration:  3600,
			PoolVolumeThreshold: 1_000,
			PoolBoostMultiplier: 200,
		},
		Allocations: []config.GenesisAllocation{{Owner: holder.String(), Amount: 10_000}},
	}
}

func newNodeFixture(t *testing.T, db storage.Database, opts Options) *nodeFixture {
	t.Helper()
	clock := &testClock{now: 1_700_000_000}
	opts.ProgramID = testProgramID(t)
	opts.Network = testNetwork
	opts.Clock = clock
	node, err := NewNode(db, opts)
	require.NoError(t, err)

	f := &nodeFixture{
		node:   node,
		clock:  clock,
		admin:  mustKey(t),
		trader: mustKey(t),
		mint:   mustKey(t).PubKey().Address(),
		nonces: make(map[crypto.Address]uint64),
	}
	_, err = node.Bootstrap(context.Background(), testGenesis(f.admin.PubKey().Address(), f.trader.PubKey().Address(), f.mint))
	require.NoError(t, err)
	return f
}

func (f *nodeFixture) submit(t *testing.T, key *crypto.PrivateKey, typ types.InstructionType, amount uint64) (*types.Receipt, error) {
	t.Helper()
	return f.submitContext(context.Background(), t, key, typ, amount)
}

func (f *nodeFixture) submitContext(ctx context.Context, t *testing.T, key *crypto.PrivateKey, typ types.InstructionType, amount uint64) (*types.Receipt, error) {
	t.Helper()
	addr := key.PubKey().Address()
	ix := &types.Instruction{
		Network: testNetwork,
		Type:    typ,
		Nonce:   f.nonces[addr] + 1,
		Amount:  amount,
	}
	require.NoError(t, ix.Sign(key))
	receipt, err := f.node.Submit(ctx, ix)
	if err == nil {
		f.nonces[addr]++
	}
	return receipt, err
}

func TestBootstrapSeedsProgramAndAllocations(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	f := newNodeFixture(t, db, Options{})

	ps, err := f.node.ProgramState()
	require.NoError(t, err)
	require.Equal(t, f.admin.PubKey().Address(), ps.Admin)
	require.Equal(t, f.mint, ps.RewardMint)

	balance, err := f.node.Balance(f.trader.PubKey().Address())
	require.NoError(t, err)
	require.Equal(t, uint64(10_000), balance)

	_, err = f.node.Bootstrap(context.Background(), testGenesis(f.admin.PubKey().Address(), f.trader.PubKey().Address(), f.mint))
	require.ErrorIs(t, err, ErrGenesisApplied)

	_, seq := f.node.Head()
	require.Equal(t, uint64(1), seq)
}

func TestSubmitTradeAndClaimFlow(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	sink := &recordingSink{}
	f := newNodeFixture(t, db, Options{})
	f.node.AddSink(sink)
	stream, cancel := f.node.Events().Subscribe(8)
	defer cancel()

	receipt, err := f.submit(t, f.trader, types.InstructionRecordTrade, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(300), receipt.Reward)
	require.Equal(t, uint64(2), receipt.Sequence)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, events.TypeTradeRecorded, receipt.Events[0].Type)

	select {
	case streamed := <-stream:
		require.Equal(t, receipt.ID, streamed.ID)
	default:
		t.Fatalf("expected receipt on event stream")
	}

	_, err = f.submit(t, f.trader, types.InstructionClaimTradeRewards, 0)
	require.ErrorIs(t, err, rewards.ErrEpochNotEnded)

	f.clock.Advance(3600)
	receipt, err = f.submit(t, f.trader, types.InstructionClaimTradeRewards, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(300), receipt.Reward)

	balance, err := f.node.Balance(f.trader.PubKey().Address())
	require.NoError(t, err)
	require.Equal(t, uint64(10_300), balance)
	require.Len(t, sink.receipts, 2)
}

func TestFailedInstructionLeavesStateUntouched(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	f := newNodeFixture(t, db, Options{})
	trader := f.trader.PubKey().Address()

	_, err := f.submit(t, f.trader, types.InstructionStake, 4_000)
	require.NoError(t, err)
	rootBefore, seqBefore := f.node.Head()

	// The withdrawal fails after nothing else has been written, but the nonce
	// bump happens first and must be rolled back with it.
	_, err = f.submit(t, f.trader, types.InstructionWithdrawStake, 4_001)
	require.ErrorIs(t, err, rewards.ErrInsufficientStake)

	rootAfter, seqAfter := f.node.Head()
	require.Equal(t, rootBefore, rootAfter)
	require.Equal(t, seqBefore, seqAfter)
	nonce, err := f.node.Nonce(trader)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)

	// Staking more than the balance fails inside the ledger after the record
	// has been staged; nothing may leak.
	_, err = f.submit(t, f.trader, types.InstructionStake, 1_000_000)
	require.Error(t, err)
	record, found, err := f.node.StakeRecord(trader)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(4_000), record.Amount)
	balance, err := f.node.Balance(trader)
	require.NoError(t, err)
	require.Equal(t, uint64(6_000), balance)
}

func TestSubmitRejectsReplayAndForeignNetwork(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	f := newNodeFixture(t, db, Options{})

	ix := &types.Instruction{Network: testNetwork, Type: types.InstructionRecordTrade, Nonce: 1, Amount: 5}
	require.NoError(t, ix.Sign(f.trader))
	_, err := f.node.Submit(context.Background(), ix)
	require.NoError(t, err)
	_, err = f.node.Submit(context.Background(), ix)
	require.ErrorIs(t, err, ErrInvalidNonce)

	foreign := &types.Instruction{Network: "other", Type: types.InstructionRecordTrade, Nonce: 2, Amount: 5}
	require.NoError(t, foreign.Sign(f.trader))
	_, err = f.node.Submit(context.Background(), foreign)
	require.ErrorIs(t, err, ErrWrongNetwork)

	unsigned := &types.Instruction{Network: testNetwork, Type: types.InstructionRecordTrade, Nonce: 2}
	_, err = f.node.Submit(context.Background(), unsigned)
	require.ErrorIs(t, err, types.ErrMissingSignature)
}

func TestSubmitInitializeAfterGenesisFails(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	f := newNodeFixture(t, db, Options{})

	ix := &types.Instruction{
		Network: testNetwork,
		Type:    types.InstructionInitialize,
		Nonce:   1,
		Init:    &types.InitializeArgs{RewardMint: f.mint, TradeRewardRate: 9},
	}
	require.NoError(t, ix.Sign(f.admin))
	_, err := f.node.Submit(context.Background(), ix)
	rerr, ok := rewards.AsError(err)
	require.True(t, ok)
	require.Equal(t, rewards.CodeAlreadyInitialized, rerr.Code)
}

func TestPausedModuleRejectsInstructions(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	clock := &testClock{now: 1_700_000_000}
	node, err := NewNode(db, Options{
		ProgramID: testProgramID(t),
		Network:   testNetwork,
		Clock:     clock,
		Pauses:    nativecommon.NewStaticPauses([]string{"rewards"}),
	})
	require.NoError(t, err)

	key := mustKey(t)
	ix := &types.Instruction{Network: testNetwork, Type: types.InstructionRecordTrade, Nonce: 1, Amount: 1}
	require.NoError(t, ix.Sign(key))
	_, err = node.Submit(context.Background(), ix)
	require.True(t, errors.Is(err, nativecommon.ErrModulePaused))
}

func TestNodeReopensCommittedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	f := newNodeFixture(t, db, Options{})
	_, err = f.submit(t, f.trader, types.InstructionRecordTrade, 40)
	require.NoError(t, err)
	root, seq := f.node.Head()
	db.Close()

	reopened, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	node, err := NewNode(reopened, Options{ProgramID: testProgramID(t), Network: testNetwork, Clock: f.clock})
	require.NoError(t, err)
	gotRoot, gotSeq := node.Head()
	require.Equal(t, root, gotRoot)
	require.Equal(t, seq, gotSeq)

	stats, found, err := node.TraderStats(f.trader.PubKey().Address())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(40), stats.TotalVolume)
	nonce, err := node.Nonce(f.trader.PubKey().Address())
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)
}

func TestSnapshotReportsVault(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	f := newNodeFixture(t, db, Options{})
	_, err := f.submit(t, f.trader, types.InstructionStake, 2_500)
	require.NoError(t, err)

	snap, err := f.node.Snapshot()
	require.NoError(t, err)
	require.Equal(t, uint64(2_500), snap.VaultBalance)
	require.Equal(t, 1, snap.Participants)
	require.NoError(t, f.node.RefreshMetrics())

	quote, err := f.node.PreviewStakeReward(f.trader.PubKey().Address())
	require.ErrorIs(t, err, rewards.ErrVestingPeriodNotCompleted)
	require.Nil(t, quote)

	f.clock.Advance(rewards.VestingPeriodSeconds)
	quote, err = f.node.PreviewStakeReward(f.trader.PubKey().Address())
	require.NoError(t, err)
	require.Equal(t, uint64(2_500)*uint64(rewards.VestingPeriodSeconds), quote.Reward)
}

func TestEventHubCancel(t *testing.T) {
	hub := NewEventHub()
	ch, cancel := hub.Subscribe(1)
	require.Equal(t, 1, hub.Subscribers())
	hub.Publish(&types.Receipt{ID: "a"})
	hub.Publish(&types.Receipt{ID: "b"})
	require.Equal(t, uint64(1), hub.Dropped())
	cancel()
	cancel()
	require.Equal(t, 0, hub.Subscribers())
	first, ok := <-ch
	require.True(t, ok)
	require.Equal(t, "a", first.ID)
	_, ok = <-ch
	require.False(t, ok)
}

func TestReceiptIndexedWhenCallerCancels(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	f := newNodeFixture(t, db, Options{})

	idx, err := indexer.Open(indexer.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	defer idx.Close()
	f.node.AddSink(idx)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	receipt, err := f.submitContext(ctx, t, f.trader, types.InstructionRecordTrade, 100)
	require.NoError(t, err)

	count, err := idx.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	history, err := idx.History(context.Background(), indexer.Query{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, receipt.ID, history[0].ID)
}

func TestReceiptTimestampMatchesEngineTime(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	f := newNodeFixture(t, db, Options{})
	f.clock.step = 7
	trader := f.trader.PubKey().Address()

	receipt, err := f.submit(t, f.trader, types.InstructionRecordTrade, 100)
	require.NoError(t, err)
	stats, _, err := f.node.TraderStats(trader)
	require.NoError(t, err)
	require.Equal(t, stats.LastClaim, receipt.Timestamp)

	receipt, err = f.submit(t, f.trader, types.InstructionStake, 500)
	require.NoError(t, err)
	record, _, err := f.node.StakeRecord(trader)
	require.NoError(t, err)
	require.Equal(t, record.StakeStart, receipt.Timestamp)
	require.Equal(t, record.LastUpdated, receipt.Timestamp)
}
