package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"latchain/native/rewards"
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// Amounts are rendered as decimal strings so JavaScript clients keep full
// uint64 precision.
func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// AddressParam is the single-object parameter of per-participant queries.
type AddressParam struct {
	Address string `json:"address"`
}

// HistoryParam filters lat_getHistory.
type HistoryParam struct {
	Address   string `json:"address,omitempty"`
	Operation string `json:"operation,omitempty"`
	Before    uint64 `json:"before,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type ProgramStateResult struct {
	Admin               string `json:"admin"`
	RewardMint          string `json:"rewardMint"`
	TradeRewardRate     string `json:"tradeRewardRate"`
	StakeRewardRate     string `json:"stakeRewardRate"`
	TotalTrades         string `json:"totalTrades"`
	EpochTradeVolume    string `json:"epochTradeVolume"`
	TradeEpochDuration  int64  `json:"tradeEpochDuration"`
	PoolTradingVolume   string `json:"poolTradingVolume"`
	PoolVolumeThreshold string `json:"poolVolumeThreshold"`
	PoolBoostMultiplier string `json:"poolBoostMultiplier"`
	MintAuthBump        uint8  `json:"mintAuthBump"`
	VaultAuthBump       uint8  `json:"vaultAuthBump"`
}

func programStateResult(ps *rewards.ProgramState) ProgramStateResult {
	return ProgramStateResult{
		Admin:               ps.Admin.String(),
		RewardMint:          ps.RewardMint.String(),
		TradeRewardRate:     formatAmount(ps.TradeRewardRate),
		StakeRewardRate:     formatAmount(ps.StakeRewardRate),
		TotalTrades:         formatAmount(ps.TotalTrades),
		EpochTradeVolume:    formatAmount(ps.EpochTradeVolume),
		TradeEpochDuration:  ps.TradeEpochDuration,
		PoolTradingVolume:   formatAmount(ps.PoolTradingVolume),
		PoolVolumeThreshold: formatAmount(ps.PoolVolumeThreshold),
		PoolBoostMultiplier: formatAmount(ps.PoolBoostMultiplier),
		MintAuthBump:        ps.MintAuthBump,
		VaultAuthBump:       ps.VaultAuthBump,
	}
}

type TraderStatsResult struct {
	Address             string `json:"address"`
	Exists              bool   `json:"exists"`
	TradeCount          string `json:"tradeCount"`
	TotalVolume         string `json:"totalVolume"`
	PendingTradeRewards string `json:"pendingTradeRewards"`
	LastClaim           int64  `json:"lastClaim"`
}

type StakeRecordResult struct {
	Address     string `json:"address"`
	Exists      bool   `json:"exists"`
	Amount      string `json:"amount"`
	StakeStart  int64  `json:"stakeStart"`
	LastUpdated int64  `json:"lastUpdated"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type AuthoritiesResult struct {
	ProgramID      string `json:"programId"`
	State          string `json:"state"`
	MintAuthority  string `json:"mintAuthority"`
	MintAuthBump   uint8  `json:"mintAuthBump"`
	VaultAuthority string `json:"vaultAuthority"`
	VaultAuthBump  uint8  `json:"vaultAuthBump"`
}

type ClaimScheduleResult struct {
	Address      string `json:"address"`
	TradeClaimAt int64  `json:"tradeClaimAt"`
	VestingEndAt int64  `json:"vestingEndAt"`
}

type StakeQuoteResult struct {
	Address       string `json:"address"`
	Reward        string `json:"reward"`
	Duration      string `json:"duration"`
	EffectiveRate string `json:"effectiveRate"`
	Boosted       bool   `json:"boosted"`
	ClaimedAt     int64  `json:"claimedAt"`
}

type NonceResult struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
	Next    uint64 `json:"next"`
}

type HeadResult struct {
	StateRoot string `json:"stateRoot"`
	Sequence  uint64 `json:"sequence"`
	Network   string `json:"network"`
	ProgramID string `json:"programId"`
}

type ExportResult struct {
	Path string `json:"path"`
}

// RewardErrorData accompanies errors raised by the reward program.
type RewardErrorData struct {
	Name string `json:"name"`
	Code uint32 `json:"code"`
}
