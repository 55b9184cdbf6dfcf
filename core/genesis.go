package core

import (
	"context"
	"errors"
	"fmt"

	"latchain/config"
	"latchain/core/events"
	chainstate "latchain/core/state"
	"latchain/core/types"
	"latchain/native/rewards"
	"latchain/native/token"
)

// ErrGenesisApplied is returned by Bootstrap when state already holds a
// program.
var ErrGenesisApplied = errors.New("core: genesis already applied")

// Bootstrap applies gen to empty state: the reward mint is registered under
// the derived mint authority, the program is initialised and allocations are
// minted. Everything commits as one call.
func (n *Node) Bootstrap(ctx context.Context, gen *config.Genesis) (*types.Receipt, error) {
	if n == nil {
		return nil, errNilNode
	}
	if gen == nil {
		return nil, fmt.Errorf("core: genesis required")
	}
	admin, err := gen.AdminAddress()
	if err != nil {
		return nil, err
	}
	params, err := gen.InitializeParams()
	if err != nil {
		return nil, err
	}
	allocations, err := gen.ResolvedAllocations()
	if err != nil {
		return nil, err
	}
	auths, err := rewards.DeriveAuthorities(n.programID)
	if err != nil {
		return nil, err
	}

	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	parent := n.trie.Root()
	manager := chainstate.NewManager(n.trie)
	if _, exists, err := manager.RewardProgramState(); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrGenesisApplied
	}

	now := n.clock.Now()
	buf := &events.Buffer{}
	engine, ledger := n.engines(manager, buf, now)
	apply := func() error {
		if err := manager.SetStateVersion(chainstate.StateVersion); err != nil {
			return err
		}
		if err := ledger.CreateMint(params.RewardMint, auths.MintAuthority, gen.MintDecimals); err != nil {
			return fmt.Errorf("core: register reward mint: %w", err)
		}
		if _, err := engine.Initialize(admin, params); err != nil {
			return err
		}
		authority := token.DerivedAuthority(rewards.SeedMintAuthority, auths.State, auths.MintAuthBump)
		for _, alloc := range allocations {
			if err := ledger.Mint(params.RewardMint, alloc.Amount, alloc.Owner, authority); err != nil {
				return fmt.Errorf("core: allocate %s: %w", alloc.Owner, err)
			}
		}
		return nil
	}
	if err := apply(); err != nil {
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
		ID:        fmt.Sprintf("genesis-%s", root.Hex()),
		Type:      types.InstructionInitialize,
		Operation: "genesis",
		Caller:    admin,
		Sequence:  sequence,
		StateRoot: root.Hex(),
		Timestamp: now,
		Events:    events.Render(buf.Events()),
	}
	n.logger.Info("genesis applied",
		"admin", admin.String(),
		"rewardMint", params.RewardMint.String(),
		"allocations", len(allocations),
		"root", receipt.StateRoot)
	n.afterCommit(ctx, receipt, buf.Events())
	return receipt, nil
}
