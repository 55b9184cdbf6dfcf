package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"latchain/core"
	"latchain/core/types"
	"latchain/crypto"
	nativecommon "latchain/native/common"
	"latchain/native/rewards"
	"latchain/native/token"
	"latchain/services/indexer"
)

// callError is a JSON-RPC error together with its HTTP status.
type callError struct {
	status int
	err    *RPCError
}

func newCallError(status, code int, message string, data interface{}) *callError {
	return &callError{status: status, err: &RPCError{Code: code, Message: message, Data: data}}
}

type handlerFunc func(r *http.Request, req *RPCRequest) (interface{}, *callError)

type method struct {
	handler  handlerFunc
	operator bool
}

func (s *Server) methods() map[string]method {
	return map[string]method{
		"lat_initialize":         {handler: s.submitHandler(types.InstructionInitialize), operator: true},
		"lat_recordTrade":        {handler: s.submitHandler(types.InstructionRecordTrade)},
		"lat_claimTradeRewards":  {handler: s.submitHandler(types.InstructionClaimTradeRewards)},
		"lat_stake":              {handler: s.submitHandler(types.InstructionStake)},
		"lat_claimStakeRewards":  {handler: s.submitHandler(types.InstructionClaimStakeRewards)},
		"lat_withdrawStake":      {handler: s.submitHandler(types.InstructionWithdrawStake)},
		"lat_getProgramState":    {handler: s.handleGetProgramState},
		"lat_getTraderStats":     {handler: s.handleGetTraderStats},
		"lat_getStakeRecord":     {handler: s.handleGetStakeRecord},
		"lat_getBalance":         {handler: s.handleGetBalance},
		"lat_getAuthorities":     {handler: s.handleGetAuthorities},
		"lat_getClaimSchedule":   {handler: s.handleGetClaimSchedule},
		"lat_previewStakeReward": {handler: s.handlePreviewStakeReward},
		"lat_getNonce":           {handler: s.handleGetNonce},
		"lat_getHead":            {handler: s.handleGetHead},
		"lat_getHistory":         {handler: s.handleGetHistory},
		"lat_export":             {handler: s.handleExport, operator: true},
	}
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	w.Header().Set("Content-Type", "application/json")

	source := clientSource(r)
	if !s.limiter.allow(source) {
		s.metrics.RecordThrottle("rate_limit")
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", source)
		return
	}

	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()
	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	m, ok := s.methods()[req.Method]
	if !ok {
		s.metrics.Observe(req.Method, codeMethodNotFound, time.Since(started))
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
		return
	}
	if m.operator {
		if authErr := s.auth.check(r.Header.Get("Authorization")); authErr != nil {
			s.metrics.RecordThrottle("unauthorized")
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	result, callErr := m.handler(r, req)
	if callErr != nil {
		s.metrics.Observe(req.Method, callErr.err.Code, time.Since(started))
		writeError(w, callErr.status, req.ID, callErr.err.Code, callErr.err.Message, callErr.err.Data)
		return
	}
	s.metrics.Observe(req.Method, 0, time.Since(started))
	writeResult(w, req.ID, result)
}

// submitHandler decodes a signed instruction of the expected type and runs it.
func (s *Server) submitHandler(want types.InstructionType) handlerFunc {
	return func(r *http.Request, req *RPCRequest) (interface{}, *callError) {
		if len(req.Params) != 1 {
			return nil, newCallError(http.StatusBadRequest, codeInvalidParams, "signed instruction parameter required", nil)
		}
		var ix types.Instruction
		if err := json.Unmarshal(req.Params[0], &ix); err != nil {
			return nil, newCallError(http.StatusBadRequest, codeInvalidParams, "invalid instruction format", err.Error())
		}
		if ix.Type != want {
			return nil, newCallError(http.StatusBadRequest, codeInvalidParams,
				fmt.Sprintf("instruction type %s does not match %s", ix.Type, req.Method), nil)
		}
		receipt, err := s.node.Submit(r.Context(), &ix)
		if err != nil {
			return nil, mapError(err)
		}
		return receipt, nil
	}
}

// mapError translates engine and node failures into JSON-RPC errors. Reward
// program errors keep their taxonomy code.
func mapError(err error) *callError {
	if rerr, ok := rewards.AsError(err); ok {
		return newCallError(http.StatusUnprocessableEntity, int(rerr.Code),
			fmt.Sprintf("%s: %s", rerr.Name, rerr.Message),
			RewardErrorData{Name: rerr.Name, Code: uint32(rerr.Code)})
	}
	switch {
	case errors.Is(err, rewards.ErrNotInitialized),
		errors.Is(err, rewards.ErrTraderStatsNotFound),
		errors.Is(err, rewards.ErrStakeRecordNotFound),
		errors.Is(err, token.ErrMintNotFound):
		return newCallError(http.StatusNotFound, codeNotFound, err.Error(), nil)
	case errors.Is(err, nativecommon.ErrModulePaused):
		return newCallError(http.StatusServiceUnavailable, codeModulePaused, err.Error(), nil)
	case errors.Is(err, core.ErrInvalidNonce),
		errors.Is(err, core.ErrWrongNetwork),
		errors.Is(err, crypto.ErrInvalidSignature),
		errors.Is(err, crypto.ErrInvalidAddress),
		errors.Is(err, types.ErrMissingSignature),
		errors.Is(err, types.ErrMissingInitArgs),
		errors.Is(err, rewards.ErrInvalidParams),
		errors.Is(err, token.ErrInsufficientFunds),
		errors.Is(err, token.ErrOverflow):
		return newCallError(http.StatusBadRequest, codeInvalidParams, err.Error(), nil)
	default:
		return newCallError(http.StatusInternalServerError, codeServerError, "internal error", err.Error())
	}
}

// parseAddressParam accepts either a bare base58 string or {"address": ...}.
func parseAddressParam(req *RPCRequest) (crypto.Address, *callError) {
	if len(req.Params) != 1 {
		return crypto.Address{}, newCallError(http.StatusBadRequest, codeInvalidParams, "address parameter required", nil)
	}
	var raw string
	if err := json.Unmarshal(req.Params[0], &raw); err != nil {
		var param AddressParam
		if err := json.Unmarshal(req.Params[0], &param); err != nil {
			return crypto.Address{}, newCallError(http.StatusBadRequest, codeInvalidParams, "invalid address parameter", err.Error())
		}
		raw = param.Address
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, newCallError(http.StatusBadRequest, codeInvalidParams, "invalid address", err.Error())
	}
	return addr, nil
}

func (s *Server) handleGetProgramState(_ *http.Request, _ *RPCRequest) (interface{}, *callError) {
	ps, err := s.node.ProgramState()
	if err != nil {
		return nil, mapError(err)
	}
	return programStateResult(ps), nil
}

func (s *Server) handleGetTraderStats(_ *http.Request, req *RPCRequest) (interface{}, *callError) {
	addr, callErr := parseAddressParam(req)
	if callErr != nil {
		return nil, callErr
	}
	stats, found, err := s.node.TraderStats(addr)
	if err != nil {
		return nil, mapError(err)
	}
	return TraderStatsResult{
		Address:             addr.String(),
		Exists:              found,
		TradeCount:          formatAmount(stats.TradeCount),
		TotalVolume:         formatAmount(stats.TotalVolume),
		PendingTradeRewards: formatAmount(stats.PendingTradeRewards),
		LastClaim:           stats.LastClaim,
	}, nil
}

func (s *Server) handleGetStakeRecord(_ *http.Request, req *RPCRequest) (interface{}, *callError) {
	addr, callErr := parseAddressParam(req)
	if callErr != nil {
		return nil, callErr
	}
	record, found, err := s.node.StakeRecord(addr)
	if err != nil {
		return nil, mapError(err)
	}
	return StakeRecordResult{
		Address:     addr.String(),
		Exists:      found,
		Amount:      formatAmount(record.Amount),
		StakeStart:  record.StakeStart,
		LastUpdated: record.LastUpdated,
	}, nil
}

func (s *Server) handleGetBalance(_ *http.Request, req *RPCRequest) (interface{}, *callError) {
	addr, callErr := parseAddressParam(req)
	if callErr != nil {
		return nil, callErr
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		return nil, mapError(err)
	}
	return BalanceResult{Address: addr.String(), Balance: formatAmount(balance)}, nil
}

func (s *Server) handleGetAuthorities(_ *http.Request, _ *RPCRequest) (interface{}, *callError) {
	auths, err := s.node.Authorities()
	if err != nil {
		return nil, mapError(err)
	}
	return AuthoritiesResult{
		ProgramID:      auths.ProgramID.String(),
		State:          auths.State.String(),
		MintAuthority:  auths.MintAuthority.String(),
		MintAuthBump:   auths.MintAuthBump,
		VaultAuthority: auths.VaultAuthority.String(),
		VaultAuthBump:  auths.VaultAuthBump,
	}, nil
}

func (s *Server) handleGetClaimSchedule(_ *http.Request, req *RPCRequest) (interface{}, *callError) {
	addr, callErr := parseAddressParam(req)
	if callErr != nil {
		return nil, callErr
	}
	schedule, err := s.node.ClaimSchedule(addr)
	if err != nil {
		return nil, mapError(err)
	}
	return ClaimScheduleResult{
		Address:      addr.String(),
		TradeClaimAt: schedule.TradeClaimAt,
		VestingEndAt: schedule.VestingEndAt,
	}, nil
}

func (s *Server) handlePreviewStakeReward(_ *http.Request, req *RPCRequest) (interface{}, *callError) {
	addr, callErr := parseAddressParam(req)
	if callErr != nil {
		return nil, callErr
	}
	quote, err := s.node.PreviewStakeReward(addr)
	if err != nil {
		return nil, mapError(err)
	}
	return StakeQuoteResult{
		Address:       addr.String(),
		Reward:        formatAmount(quote.Reward),
		Duration:      formatAmount(quote.Duration),
		EffectiveRate: formatAmount(quote.EffectiveRate),
		Boosted:       quote.Boosted,
		ClaimedAt:     quote.ClaimedAt,
	}, nil
}

func (s *Server) handleGetNonce(_ *http.Request, req *RPCRequest) (interface{}, *callError) {
	addr, callErr := parseAddressParam(req)
	if callErr != nil {
		return nil, callErr
	}
	nonce, err := s.node.Nonce(addr)
	if err != nil {
		return nil, mapError(err)
	}
	return NonceResult{Address: addr.String(), Nonce: nonce, Next: nonce + 1}, nil
}

func (s *Server) handleGetHead(_ *http.Request, _ *RPCRequest) (interface{}, *callError) {
	root, sequence := s.node.Head()
	return HeadResult{
		StateRoot: root.Hex(),
		Sequence:  sequence,
		Network:   s.node.Network(),
		ProgramID: s.node.ProgramID().String(),
	}, nil
}

func (s *Server) handleGetHistory(r *http.Request, req *RPCRequest) (interface{}, *callError) {
	if s.history == nil {
		return nil, newCallError(http.StatusServiceUnavailable, codeUnavailable, "history index not enabled", nil)
	}
	var param HistoryParam
	if len(req.Params) > 1 {
		return nil, newCallError(http.StatusBadRequest, codeInvalidParams, "at most one filter object expected", nil)
	}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &param); err != nil {
			return nil, newCallError(http.StatusBadRequest, codeInvalidParams, "invalid history filter", err.Error())
		}
	}
	q := indexer.Query{
		Operation: strings.TrimSpace(param.Operation),
		Before:    param.Before,
		Limit:     param.Limit,
	}
	if strings.TrimSpace(param.Address) != "" {
		addr, err := crypto.DecodeAddress(param.Address)
		if err != nil {
			return nil, newCallError(http.StatusBadRequest, codeInvalidParams, "invalid address", err.Error())
		}
		q.Participant = addr
	}
	receipts, err := s.history.History(r.Context(), q)
	if err != nil {
		return nil, newCallError(http.StatusInternalServerError, codeServerError, "history query failed", err.Error())
	}
	return receipts, nil
}

func (s *Server) handleExport(r *http.Request, _ *RPCRequest) (interface{}, *callError) {
	if s.history == nil || s.cfg.ExportDir == "" {
		return nil, newCallError(http.StatusServiceUnavailable, codeUnavailable, "export not configured", nil)
	}
	path, err := s.history.ExportParquet(r.Context(), s.cfg.ExportDir, time.Now())
	if err != nil {
		return nil, newCallError(http.StatusInternalServerError, codeServerError, "export failed", err.Error())
	}
	s.logger.Info("receipt export written", "path", path)
	return ExportResult{Path: path}, nil
}
