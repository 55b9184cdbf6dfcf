package state

import "latchain/crypto"

// Nonce returns the last accepted instruction nonce for addr.
func (m *Manager) Nonce(addr crypto.Address) (uint64, error) {
	var nonce uint64
	if _, err := m.KVGet(nonceKey(addr), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (m *Manager) SetNonce(addr crypto.Address, nonce uint64) error {
	return m.KVPut(nonceKey(addr), nonce)
}
