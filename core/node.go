package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"latchain/core/events"
	chainstate "latchain/core/state"
	"latchain/core/types"
	"latchain/crypto"
	nativecommon "latchain/native/common"
	"latchain/native/rewards"
	"latchain/native/token"
	"latchain/observability/metrics"
	"latchain/storage"
	"latchain/storage/trie"
)

var (
	ErrWrongNetwork = errors.New("core: instruction targets another network")
	ErrInvalidNonce = errors.New("core: invalid nonce")
	errNilNode      = errors.New("core: node not initialised")
)

// sinkTimeout bounds the receipt sinks of one committed call.
const sinkTimeout = 10 * time.Second

var (
	headRootKey     = []byte("lat/head/root")
	headSequenceKey = []byte("lat/head/sequence")
)

// ReceiptSink receives every committed receipt. Failures are logged and never
// undo the commit.
type ReceiptSink interface {
	IndexReceipt(ctx context.Context, receipt *types.Receipt) error
}

// Options configures a Node.
type Options struct {
	ProgramID crypto.Address
	Network   string
	Clock     rewards.Clock
	Pauses    nativecommon.PauseView
	Logger    *slog.Logger
	// AllowMigrate tolerates a stored schema version different from the
	// binary's.
	AllowMigrate bool
}

// Node owns the state trie and runs every reward operation as one atomic
// state transaction: the trie is committed when the operation succeeds and
// reset to the parent root when it fails.
type Node struct {
	db        storage.Database
	trie      *trie.Trie
	programID crypto.Address
	network   string
	clock     rewards.Clock
	pauses    nativecommon.PauseView
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics.RewardsMetrics
	hub       *EventHub

	stateMu  sync.Mutex
	sequence uint64
	sinks    []ReceiptSink
}

// NewNode opens the state committed in db, or an empty state on first start.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if opts.ProgramID.IsZero() {
		return nil, fmt.Errorf("core: program id required")
	}
	root, sequence, err := loadHead(db)
	if err != nil {
		return nil, err
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("core: open state at %x: %w", root, err)
	}
	if err := chainstate.EnsureStateVersion(stateTrie, opts.AllowMigrate); err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = rewards.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{
		db:        db,
		trie:      stateTrie,
		programID: opts.ProgramID,
		network:   opts.Network,
		clock:     clock,
		pauses:    opts.Pauses,
		logger:    logger.With("component", "core"),
		tracer:    otel.Tracer("latchain/core"),
		metrics:   metrics.Rewards(),
		hub:       NewEventHub(),
		sequence:  sequence,
	}, nil
}

func loadHead(db storage.Database) ([]byte, uint64, error) {
	root, err := db.Get(headRootKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("core: load head root: %w", err)
	}
	raw, err := db.Get(headSequenceKey)
	if err != nil {
		return nil, 0, fmt.Errorf("core: load head sequence: %w", err)
	}
	if len(raw) != 8 {
		return nil, 0, fmt.Errorf("core: corrupt head sequence")
	}
	return root, binary.BigEndian.Uint64(raw), nil
}

func (n *Node) storeHead(root common.Hash, sequence uint64) error {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], sequence)
	if err := n.db.Put(headSequenceKey, raw[:]); err != nil {
		return err
	}
	return n.db.Put(headRootKey, root.Bytes())
}

// AddSink registers a receipt consumer. Call before serving traffic.
func (n *Node) AddSink(sink ReceiptSink) {
	if n == nil || sink == nil {
		return
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.sinks = append(n.sinks, sink)
}

// Events exposes the post-commit event stream.
func (n *Node) Events() *EventHub { return n.hub }

func (n *Node) ProgramID() crypto.Address { return n.programID }

func (n *Node) Network() string { return n.network }

// Head returns the committed state root and the number of committed calls.
func (n *Node) Head() (common.Hash, uint64) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.trie.Root(), n.sequence
}

// engines builds a ledger and a reward engine over manager that emit into buf.
// The engine observes now for the whole call.
func (n *Node) engines(manager *chainstate.Manager, buf *events.Buffer, now int64) (*rewards.Engine, *token.Ledger) {
	ledger := token.NewLedger(n.programID)
	ledger.SetState(manager)
	ledger.SetEmitter(buf)

	engine := rewards.NewEngine(n.programID)
	engine.SetState(manager)
	engine.SetLedger(ledger)
	engine.SetClock(rewards.ClockFunc(func() int64 { return now }))
	engine.SetPauses(n.pauses)
	engine.SetEmitter(buf)
	return engine, ledger
}

// Submit verifies and executes a signed instruction, committing its effects
// only if every step succeeds.
func (n *Node) Submit(ctx context.Context, ix *types.Instruction) (*types.Receipt, error) {
	if n == nil {
		return nil, errNilNode
	}
	if ix == nil {
		return nil, fmt.Errorf("core: instruction required")
	}
	ctx, span := n.tracer.Start(ctx, "core.Submit", trace.WithAttributes(
		attribute.String("lat.operation", ix.Type.String()),
		attribute.String("lat.caller", ix.Caller.String()),
	))
	defer span.End()

	started := time.Now()
	receipt, err := n.submit(ctx, ix)
	errName := ""
	if err != nil {
		errName = "internal"
		if rerr, ok := rewards.AsError(err); ok {
			errName = rerr.Name
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, errName)
		n.logger.Warn("instruction rejected",
			"operation", ix.Type.String(),
			"caller", ix.Caller.String(),
			"nonce", ix.Nonce,
			"code", uint32(rewards.CodeOf(err)),
			"error", err)
	}
	n.metrics.ObserveOperation(ix.Type.String(), errName, time.Since(started))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("lat.sequence", int64(receipt.Sequence)))
	n.logger.Info("instruction committed",
		"operation", receipt.Operation,
		"caller", receipt.Caller.String(),
		"receipt", receipt.ID,
		"sequence", receipt.Sequence)
	return receipt, nil
}

func (n *Node) submit(ctx context.Context, ix *types.Instruction) (*types.Receipt, error) {
	if err := ix.Verify(); err != nil {
		return nil, err
	}
	if ix.Network != n.network {
		return nil, fmt.Errorf("%w: %q", ErrWrongNetwork, ix.Network)
	}
	id, err := ix.Hash()
	if err != nil {
		return nil, err
	}

	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	now := n.clock.Now()
	parent := n.trie.Root()
	manager := chainstate.NewManager(n.trie)
	buf := &events.Buffer{}
	reward, err := n.apply(manager, buf, ix, now)
	if err != nil {
		if rbErr := n.trie.Reset(parent); rbErr != nil {
			return nil, fmt.Errorf("%v (rollback failed: %w)", err, rbErr)
		}
		return nil, err
	}

	root, sequence, err := n.commitLocked(parent)
	if err != nil {
		return nil, err
	}

	receipt := &types.Receipt{
		ID:        types.FormatID(id),
		Type:      ix.Type,
		Operation: ix.Type.String(),
		Caller:    ix.Caller,
		Nonce:     ix.Nonce,
		Amount:    ix.Amount,
		Reward:    reward,
		Sequence:  sequence,
		StateRoot: root.Hex(),
		Timestamp: now,
		Events:    events.Render(buf.Events()),
	}
	n.afterCommit(ctx, receipt, buf.Events())
	return receipt, nil
}

// commitLocked flushes the staged call and advances the head. Callers hold
// stateMu.
func (n *Node) commitLocked(parent common.Hash) (common.Hash, uint64, error) {
	sequence := n.sequence + 1
	root, err := n.trie.Commit(parent, sequence)
	if err != nil {
		if rbErr := n.trie.Reset(parent); rbErr != nil {
			return common.Hash{}, 0, fmt.Errorf("state commit failed: %v (rollback failed: %w)", err, rbErr)
		}
		return common.Hash{}, 0, fmt.Errorf("state commit failed: %w", err)
	}
	if err := n.storeHead(root, sequence); err != nil {
		return common.Hash{}, 0, fmt.Errorf("core: persist head: %w", err)
	}
	n.sequence = sequence
	return root, sequence, nil
}

// apply runs one instruction against manager. The nonce is consumed in the same
// transaction, so a rejected instruction leaves it untouched.
func (n *Node) apply(manager *chainstate.Manager, buf *events.Buffer, ix *types.Instruction, now int64) (uint64, error) {
	stored, err := manager.Nonce(ix.Caller)
	if err != nil {
		return 0, err
	}
	if ix.Nonce != stored+1 {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrInvalidNonce, stored+1, ix.Nonce)
	}
	if err := manager.SetNonce(ix.Caller, ix.Nonce); err != nil {
		return 0, err
	}

	engine, _ := n.engines(manager, buf, now)
	switch ix.Type {
	case types.InstructionInitialize:
		_, err := engine.Initialize(ix.Caller, rewards.InitializeParams{
			RewardMint:          ix.Init.RewardMint,
			TradeRewardRate:     ix.Init.TradeRewardRate,
			StakeRewardRate:     ix.Init.StakeRewardRate,
			TradeEpochDuration:  ix.Init.TradeEpochDuration,
			PoolVolumeThreshold: ix.Init.PoolVolumeThreshold,
			PoolBoostMultiplier: ix.Init.PoolBoostMultiplier,
		})
		return 0, err
	case types.InstructionRecordTrade:
		return engine.RecordTrade(ix.Caller, ix.Amount)
	case types.InstructionClaimTradeRewards:
		return engine.ClaimTradeRewards(ix.Caller)
	case types.InstructionStake:
		return 0, engine.Stake(ix.Caller, ix.Amount)
	case types.InstructionClaimStakeRewards:
		return engine.ClaimStakeRewards(ix.Caller)
	case types.InstructionWithdrawStake:
		return 0, engine.WithdrawStake(ix.Caller, ix.Amount)
	default:
		return 0, fmt.Errorf("core: unsupported instruction %s", ix.Type)
	}
}

// afterCommit fans committed events out. It runs under stateMu so subscribers
// observe calls in commit order. Sinks run on a context detached from the
// caller: the commit already happened.
func (n *Node) afterCommit(ctx context.Context, receipt *types.Receipt, evts []events.Event) {
	for _, evt := range evts {
		switch e := evt.(type) {
		case events.TradeRewardsClaimed:
			n.metrics.RecordMinted("trade", e.Amount)
		case events.StakeRewardsClaimed:
			n.metrics.RecordMinted("stake", e.Reward)
		}
	}
	n.hub.Publish(receipt)
	if len(n.sinks) == 0 {
		return
	}
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	for _, sink := range n.sinks {
		if err := sink.IndexReceipt(sinkCtx, receipt); err != nil {
			n.logger.Error("receipt sink failed", "receipt", receipt.ID, "error", err)
		}
	}
}
