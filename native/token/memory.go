package token

import (
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

type allowanceKey struct {
	token   ethcommon.Address
	owner   ethcommon.Address
	spender ethcommon.Address
}

type balanceKey struct {
	token   ethcommon.Address
	account ethcommon.Address
}

// MemoryState is a map backed ledger state used by tests and tooling that
// do not need persistence.
type MemoryState struct {
	mu         sync.Mutex
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
}

// NewMemoryState returns an empty ledger state.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

func (m *MemoryState) TokenBalanceGet(token, account ethcommon.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bal, ok := m.balances[balanceKey{token, account}]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (m *MemoryState) TokenBalancePut(token, account ethcommon.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[balanceKey{token, account}] = new(big.Int).Set(amount)
	return nil
}

func (m *MemoryState) TokenAllowanceGet(token, owner, spender ethcommon.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if allowance, ok := m.allowances[allowanceKey{token, owner, spender}]; ok {
		return new(big.Int).Set(allowance), nil
	}
	return big.NewInt(0), nil
}

func (m *MemoryState) TokenAllowancePut(token, owner, spender ethcommon.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{token, owner, spender}] = new(big.Int).Set(amount)
	return nil
}
