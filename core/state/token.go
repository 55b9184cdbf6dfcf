package state

import (
	"fmt"

	"latchain/crypto"
	"latchain/native/token"
)

type storedMint struct {
	Authority crypto.Address
	Supply    uint64
	Decimals  uint8
}

// TokenMint loads mint metadata.
func (m *Manager) TokenMint(mint crypto.Address) (*token.Mint, bool, error) {
	var stored storedMint
	ok, err := m.KVGet(tokenMintKey(mint), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &token.Mint{Authority: stored.Authority, Supply: stored.Supply, Decimals: stored.Decimals}, true, nil
}

// PutTokenMint persists mint metadata.
func (m *Manager) PutTokenMint(mint crypto.Address, info *token.Mint) error {
	if info == nil {
		return fmt.Errorf("state: mint must not be nil")
	}
	return m.KVPut(tokenMintKey(mint), &storedMint{Authority: info.Authority, Supply: info.Supply, Decimals: info.Decimals})
}

// TokenBalance returns owner's balance for mint; absent accounts hold zero.
func (m *Manager) TokenBalance(mint, owner crypto.Address) (uint64, error) {
	var balance uint64
	if _, err := m.KVGet(TokenBalanceKey(mint, owner), &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (m *Manager) SetTokenBalance(mint, owner crypto.Address, amount uint64) error {
	return m.KVPut(TokenBalanceKey(mint, owner), amount)
}
