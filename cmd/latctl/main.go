package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"latchain/crypto"
)

const (
	rpcURLEnv       = "LAT_RPC_URL"
	rpcTokenEnv     = "LAT_RPC_TOKEN"
	networkEnv      = "LAT_NETWORK"
	defaultEndpoint = "http://127.0.0.1:8547/"
	defaultNetwork  = "lat-local"
	defaultKeyFile  = "lat-keypair.json"
)

type globalOptions struct {
	endpoint string
	token    string
	network  string
	keyFile  string
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "latctl",
		Short:         "latctl talks to a latchain node: trade, stake and inspect liquidity rewards.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.endpoint, "rpc", envOr(rpcURLEnv, defaultEndpoint), "JSON-RPC endpoint of the node")
	flags.StringVar(&opts.token, "token", os.Getenv(rpcTokenEnv), "Bearer token for operator methods")
	flags.StringVar(&opts.network, "network", envOr(networkEnv, defaultNetwork), "Network name instructions are signed for")
	flags.StringVar(&opts.keyFile, "key", defaultKeyFile, "Path to the signing keypair file")

	root.AddCommand(
		newKeygenCmd(),
		newDeriveCmd(),
		newInitGenesisCmd(),
		newInitializeCmd(opts),
		newTradeCmd(opts),
		newClaimTradeCmd(opts),
		newStakeCmd(opts),
		newClaimStakeCmd(opts),
		newWithdrawCmd(opts),
		newStateCmd(opts),
		newStatsCmd(opts),
		newStakeInfoCmd(opts),
		newBalanceCmd(opts),
		newHistoryCmd(opts),
		newExportCmd(opts),
	)
	return root
}

func (o *globalOptions) client() *client {
	return newClient(o.endpoint, o.token)
}

func (o *globalOptions) signer() (*crypto.PrivateKey, error) {
	key, err := crypto.LoadKeypair(o.keyFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("keypair file %s not found. run latctl keygen first", o.keyFile)
		}
		return nil, fmt.Errorf("failed to load keypair %s: %w", o.keyFile, err)
	}
	return key, nil
}

// resolveAddress takes an explicit address argument or falls back to the
// signing key's identity.
func (o *globalOptions) resolveAddress(args []string) (crypto.Address, error) {
	if len(args) > 0 {
		return crypto.DecodeAddress(args[0])
	}
	key, err := o.signer()
	if err != nil {
		return crypto.Address{}, err
	}
	return key.PubKey().Address(), nil
}

func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printRaw(w io.Writer, raw json.RawMessage) error {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		_, err = fmt.Fprintln(w, string(raw))
		return err
	}
	return printJSON(w, decoded)
}
