package state

import (
	"encoding/binary"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	authorityPrefix         = []byte("authority/")
	loanRecordPrefix        = []byte("loans/record/")
	loanNextIDKey           = []byte("loans/next-id")
	loanAccountPrefix       = []byte("loans/account/")
	loanReferrerPrefix      = []byte("loans/referrer/")
	loanParamsKey           = []byte("loans/params")
	assetTypePrefix         = []byte("assets/type/")
	moneyMarketPrefix       = []byte("moneymarket/market/")
	vaultSharesPrefix       = []byte("moneymarket/vault/shares/")
	vaultTotalPrefix        = []byte("moneymarket/vault/total/")
	tokenBalancePrefix      = []byte("token/balance/")
	tokenAllowancePrefix    = []byte("token/allowance/")
	collateralRecordPrefix  = []byte("collateral/record/")
	collateralNextIDKey     = []byte("collateral/next-id")
	collateralAccountPrefix = []byte("collateral/account/")
	collateralParamsKey     = []byte("collateral/params")
)

func joinKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return buf
}

func idKey(prefix []byte, id uint64) []byte {
	var enc [8]byte
	binary.BigEndian.PutUint64(enc[:], id)
	return joinKey(prefix, enc[:])
}

func addrKey(prefix []byte, addrs ...ethcommon.Address) []byte {
	parts := make([][]byte, len(addrs))
	for i := range addrs {
		parts[i] = addrs[i].Bytes()
	}
	return joinKey(prefix, parts...)
}
