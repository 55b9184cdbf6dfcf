package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"latchain/config"
	"latchain/core"
	"latchain/core/types"
	"latchain/crypto"
	"latchain/native/rewards"
	"latchain/rpc"
	"latchain/storage"
)

const cliNetwork = "lat-cli-test"

func startNode(t *testing.T, holder crypto.Address) string {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	programID, err := crypto.DecodeAddress(rewards.DefaultProgramID)
	require.NoError(t, err)
	node, err := core.NewNode(db, core.Options{
		ProgramID: programID,
		Network:   cliNetwork,
		Clock:     rewards.ClockFunc(func() int64 { return 1_700_000_000 }),
	})
	require.NoError(t, err)

	admin, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	mint, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	_, err = node.Bootstrap(context.Background(), &config.Genesis{
		Admin:      admin.PubKey().Address().String(),
		RewardMint: mint.PubKey().Address().String(),
		Params: config.GenesisParams{
			TradeRewardRate:     2,
			StakeRewardRate:     1,
			TradeEpochDuration:  3600,
			PoolVolumeThreshold: 1000,
		},
		Allocations: []config.GenesisAllocation{{Owner: holder.String(), Amount: 5_000}},
	})
	require.NoError(t, err)

	server := httptest.NewServer(rpc.NewServer(node, nil, rpc.Config{RateLimitPerMinute: 6000, RateLimitBurst: 100}).Handler())
	t.Cleanup(server.Close)
	return server.URL + "/"
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestKeygenRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	out, err := runCLI(t, "keygen", "--out", path)
	require.NoError(t, err)
	require.Contains(t, out, "Address: ")

	_, err = runCLI(t, "keygen", "--out", path)
	require.Error(t, err)

	_, err = runCLI(t, "keygen", "--out", path, "--force")
	require.NoError(t, err)
}

func TestDeriveMatchesEngine(t *testing.T) {
	out, err := runCLI(t, "derive")
	require.NoError(t, err)
	var result rpc.AuthoritiesResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	programID, err := crypto.DecodeAddress(rewards.DefaultProgramID)
	require.NoError(t, err)
	auths, err := rewards.DeriveAuthorities(programID)
	require.NoError(t, err)
	require.Equal(t, auths.VaultAuthority.String(), result.VaultAuthority)
	require.Equal(t, auths.MintAuthBump, result.MintAuthBump)
}

func TestInitGenesisWritesLoadableFile(t *testing.T) {
	admin, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	mint, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "genesis.yaml")

	_, err = runCLI(t, "init-genesis",
		"--out", path,
		"--admin", admin.PubKey().Address().String(),
		"--mint", mint.PubKey().Address().String(),
		"--trade-rate", "3",
		"--alloc", admin.PubKey().Address().String()+"=750")
	require.NoError(t, err)

	gen, err := config.LoadGenesis(path)
	require.NoError(t, err)
	require.Equal(t, uint64(3), gen.Params.TradeRewardRate)
	require.Len(t, gen.Allocations, 1)
	require.Equal(t, uint64(750), gen.Allocations[0].Amount)

	_, err = runCLI(t, "init-genesis", "--out", path, "--admin", "x", "--mint", "y", "--alloc", "broken")
	require.Error(t, err)
}

func TestTradeStakeAndQueriesOverRPC(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "trader.json")
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	require.NoError(t, crypto.SaveKeypair(keyPath, key))
	endpoint := startNode(t, key.PubKey().Address())
	common := []string{"--rpc", endpoint, "--network", cliNetwork, "--key", keyPath}

	out, err := runCLI(t, append([]string{"trade", "50"}, common...)...)
	require.NoError(t, err)
	var receipt types.Receipt
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	require.Equal(t, uint64(150), receipt.Reward)
	require.Equal(t, uint64(1), receipt.Nonce)

	out, err = runCLI(t, append([]string{"stake", "1000"}, common...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	require.Equal(t, uint64(2), receipt.Nonce)

	out, err = runCLI(t, append([]string{"balance"}, common...)...)
	require.NoError(t, err)
	var balance rpc.BalanceResult
	require.NoError(t, json.Unmarshal([]byte(out), &balance))
	require.Equal(t, "4000", balance.Balance)

	out, err = runCLI(t, append([]string{"stats", key.PubKey().Address().String()}, common...)...)
	require.NoError(t, err)
	var stats rpc.TraderStatsResult
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Equal(t, "150", stats.PendingTradeRewards)

	_, err = runCLI(t, append([]string{"claim-trade"}, common...)...)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, int(rewards.CodeEpochNotEnded), rpcErr.Code)

	_, err = runCLI(t, append([]string{"withdraw", "5000"}, common...)...)
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, int(rewards.CodeInsufficientStake), rpcErr.Code)

	out, err = runCLI(t, append([]string{"state"}, common...)...)
	require.NoError(t, err)
	require.Contains(t, out, `"totalTrades": "1"`)

	_, err = runCLI(t, append([]string{"history"}, common...)...)
	require.ErrorAs(t, err, &rpcErr)

	_, err = runCLI(t, append([]string{"export"}, common...)...)
	require.Error(t, err)
}
