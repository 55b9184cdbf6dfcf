package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"latchain/config"
	"latchain/core/types"
	"latchain/crypto"
	"latchain/native/rewards"
	"latchain/rpc"
)

func parseAmount(raw string) (uint64, error) {
	amount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount, nil
}

func newKeygenCmd() *cobra.Command {
	var out string
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new ed25519 keypair file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if _, err := crypto.LoadKeypair(out); err == nil {
					return fmt.Errorf("keypair %s already exists; pass --force to overwrite", out)
				}
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			if err := crypto.SaveKeypair(out, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved keypair to %s\nAddress: %s\n", out, key.PubKey().Address())
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", defaultKeyFile, "Output path for the keypair file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing keypair file")
	return cmd
}

func newDeriveCmd() *cobra.Command {
	var program string
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the program's derived state, mint and vault authorities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			programID, err := crypto.DecodeAddress(program)
			if err != nil {
				return err
			}
			auths, err := rewards.DeriveAuthorities(programID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rpc.AuthoritiesResult{
				ProgramID:      auths.ProgramID.String(),
				State:          auths.State.String(),
				MintAuthority:  auths.MintAuthority.String(),
				MintAuthBump:   auths.MintAuthBump,
				VaultAuthority: auths.VaultAuthority.String(),
				VaultAuthBump:  auths.VaultAuthBump,
			})
		},
	}
	cmd.Flags().StringVar(&program, "program", rewards.DefaultProgramID, "Program identity (base58)")
	return cmd
}

func newInitGenesisCmd() *cobra.Command {
	var (
		out         string
		admin       string
		mint        string
		decimals    uint8
		params      config.GenesisParams
		allocations []string
	)
	cmd := &cobra.Command{
		Use:   "init-genesis",
		Short: "Write a genesis YAML file for latd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gen := &config.Genesis{
				Admin:        admin,
				RewardMint:   mint,
				MintDecimals: decimals,
				Params:       params,
			}
			for _, entry := range allocations {
				owner, amount, err := parseAllocation(entry)
				if err != nil {
					return err
				}
				gen.Allocations = append(gen.Allocations, config.GenesisAllocation{Owner: owner, Amount: amount})
			}
			if err := config.WriteGenesis(out, gen); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote genesis to %s\n", out)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&out, "out", "genesis.yaml", "Output path")
	flags.StringVar(&admin, "admin", "", "Admin identity (base58)")
	flags.StringVar(&mint, "mint", "", "Reward mint identity (base58)")
	flags.Uint8Var(&decimals, "decimals", 6, "Reward mint decimals")
	flags.Uint64Var(&params.TradeRewardRate, "trade-rate", 1, "Base trade reward rate")
	flags.Uint64Var(&params.StakeRewardRate, "stake-rate", 1, "Base stake reward rate")
	flags.Int64Var(&params.TradeEpochDuration, "epoch", 86_400, "Trade epoch duration in seconds")
	flags.Uint64Var(&params.PoolVolumeThreshold, "pool-threshold", 0, "Pool volume threshold for the stake boost")
	flags.Uint64Var(&params.PoolBoostMultiplier, "pool-boost", 100, "Stake boost multiplier in percent")
	flags.StringArrayVar(&allocations, "alloc", nil, "Initial token allocation as <address>=<amount> (repeatable)")
	_ = cmd.MarkFlagRequired("admin")
	_ = cmd.MarkFlagRequired("mint")
	return cmd
}

func parseAllocation(entry string) (string, uint64, error) {
	idx := strings.LastIndex(entry, "=")
	if idx <= 0 {
		return "", 0, fmt.Errorf("allocation %q must be <address>=<amount>", entry)
	}
	amount, err := parseAmount(entry[idx+1:])
	if err != nil {
		return "", 0, err
	}
	return strings.TrimSpace(entry[:idx]), amount, nil
}

func newInitializeCmd(opts *globalOptions) *cobra.Command {
	var (
		mint string
		args types.InitializeArgs
	)
	cmd := &cobra.Command{
		Use:   "initialize",
		Short: "Initialise the reward program (operator)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rewardMint, err := crypto.DecodeAddress(mint)
			if err != nil {
				return err
			}
			initArgs := args
			initArgs.RewardMint = rewardMint
			return submitAndPrint(cmd, opts, "lat_initialize", true, &types.Instruction{
				Type: types.InstructionInitialize,
				Init: &initArgs,
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&mint, "mint", "", "Reward mint identity (base58)")
	flags.Uint64Var(&args.TradeRewardRate, "trade-rate", 1, "Base trade reward rate")
	flags.Uint64Var(&args.StakeRewardRate, "stake-rate", 1, "Base stake reward rate")
	flags.Int64Var(&args.TradeEpochDuration, "epoch", 86_400, "Trade epoch duration in seconds")
	flags.Uint64Var(&args.PoolVolumeThreshold, "pool-threshold", 0, "Pool volume threshold for the stake boost")
	flags.Uint64Var(&args.PoolBoostMultiplier, "pool-boost", 100, "Stake boost multiplier in percent")
	_ = cmd.MarkFlagRequired("mint")
	return cmd
}

func submitAndPrint(cmd *cobra.Command, opts *globalOptions, method string, requireAuth bool, ix *types.Instruction) error {
	key, err := opts.signer()
	if err != nil {
		return err
	}
	ix.Network = opts.network
	receipt, err := opts.client().submit(cmd.Context(), method, requireAuth, key, ix)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), receipt)
}

// amountCmd builds a command that signs one instruction carrying an amount.
func amountCmd(opts *globalOptions, use, short, method string, typ types.InstructionType) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <amount>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			return submitAndPrint(cmd, opts, method, false, &types.Instruction{Type: typ, Amount: amount})
		},
	}
}

// claimCmd builds a command that signs one argument-free claim.
func claimCmd(opts *globalOptions, use, short, method string, typ types.InstructionType) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return submitAndPrint(cmd, opts, method, false, &types.Instruction{Type: typ})
		},
	}
}

func newTradeCmd(opts *globalOptions) *cobra.Command {
	return amountCmd(opts, "trade", "Record a trade of the given volume", "lat_recordTrade", types.InstructionRecordTrade)
}

func newClaimTradeCmd(opts *globalOptions) *cobra.Command {
	return claimCmd(opts, "claim-trade", "Claim pending trade rewards", "lat_claimTradeRewards", types.InstructionClaimTradeRewards)
}

func newStakeCmd(opts *globalOptions) *cobra.Command {
	return amountCmd(opts, "stake", "Stake reward tokens into the vault", "lat_stake", types.InstructionStake)
}

func newClaimStakeCmd(opts *globalOptions) *cobra.Command {
	return claimCmd(opts, "claim-stake", "Claim staking rewards after vesting", "lat_claimStakeRewards", types.InstructionClaimStakeRewards)
}

func newWithdrawCmd(opts *globalOptions) *cobra.Command {
	return amountCmd(opts, "withdraw", "Withdraw staked tokens from the vault", "lat_withdrawStake", types.InstructionWithdrawStake)
}

// queryCmd builds a read-only command for a per-participant query. The
// address defaults to the signing key's identity.
func queryCmd(opts *globalOptions, use, short, method string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [address]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := opts.resolveAddress(args)
			if err != nil {
				return err
			}
			raw, err := opts.client().call(cmd.Context(), method, false, addr.String())
			if err != nil {
				return err
			}
			return printRaw(cmd.OutOrStdout(), raw)
		},
	}
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return queryCmd(opts, "stats", "Show a participant's trade statistics", "lat_getTraderStats")
}

func newStakeInfoCmd(opts *globalOptions) *cobra.Command {
	return queryCmd(opts, "stake-info", "Show a participant's stake record", "lat_getStakeRecord")
}

func newBalanceCmd(opts *globalOptions) *cobra.Command {
	return queryCmd(opts, "balance", "Show a participant's reward token balance", "lat_getBalance")
}

func newStateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the program state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := opts.client().call(cmd.Context(), "lat_getProgramState", false)
			if err != nil {
				return err
			}
			return printRaw(cmd.OutOrStdout(), raw)
		},
	}
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var param rpc.HistoryParam
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List indexed receipts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := opts.client().call(cmd.Context(), "lat_getHistory", false, param)
			if err != nil {
				return err
			}
			return printRaw(cmd.OutOrStdout(), raw)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&param.Address, "address", "", "Only receipts involving this participant")
	flags.StringVar(&param.Operation, "operation", "", "Only receipts of this operation")
	flags.Uint64Var(&param.Before, "before", 0, "Only receipts with a lower sequence number")
	flags.IntVar(&param.Limit, "limit", 50, "Maximum receipts returned")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write a parquet export of indexed receipts on the node (operator)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := opts.client().call(cmd.Context(), "lat_export", true)
			if err != nil {
				return err
			}
			return printRaw(cmd.OutOrStdout(), raw)
		},
	}
}
