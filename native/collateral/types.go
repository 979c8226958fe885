package collateral

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/native/common"
)

// PositionState enumerates the lifecycle of a collateral position.
type PositionState uint8

const (
	PositionStateLocked PositionState = iota
	PositionStateSeizedOpen
	PositionStateClosedCooperative
)

func (s PositionState) Valid() bool {
	return s <= PositionStateClosedCooperative
}

func (s PositionState) String() string {
	switch s {
	case PositionStateLocked:
		return "locked"
	case PositionStateSeizedOpen:
		return "seized"
	case PositionStateClosedCooperative:
		return "closed"
	default:
		return "unknown"
	}
}

// Position is native value locked against a loan on the counterparty
// ledger. CollateralValue is fixed at lock time (WAD² scaled) while
// LiquidationPrice is replaced with the oracle price read at seizure.
type Position struct {
	ID                      uint64
	Borrower                ethcommon.Address
	Lender                  ethcommon.Address
	SecretHashA1            ethcommon.Hash
	SecretHashB1            ethcommon.Hash
	SecretA1                []byte
	SecretB1                []byte
	CounterpartyBorrower    ethcommon.Address
	CounterpartyLoanID      uint64
	CounterpartyAssetSymbol string
	Collateral              *big.Int
	LockPrice               *big.Int
	LiquidationPrice        *big.Int
	CollateralValue         *big.Int
	LoanExpiry              int64
	CreatedAt               int64
	State                   PositionState
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.SecretA1 = append([]byte(nil), p.SecretA1...)
	clone.SecretB1 = append([]byte(nil), p.SecretB1...)
	clone.Collateral = common.CloneBig(p.Collateral)
	clone.LockPrice = common.CloneBig(p.LockPrice)
	clone.LiquidationPrice = common.CloneBig(p.LiquidationPrice)
	clone.CollateralValue = common.CloneBig(p.CollateralValue)
	return &clone
}

// LockRequest carries the borrower supplied terms of a lock.
type LockRequest struct {
	Lender                  ethcommon.Address
	SecretHashA1            ethcommon.Hash
	SecretHashB1            ethcommon.Hash
	CounterpartyBorrower    ethcommon.Address
	CounterpartyLoanID      uint64
	CounterpartyAssetSymbol string
}
