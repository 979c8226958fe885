package moneymarket

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/core/types"
)

const (
	EventTypeMarketAdded    = "moneymarket.added"
	EventTypeMarketModified = "moneymarket.modified"
	EventTypeMarketToggled  = "moneymarket.toggled"
	EventTypeDeposited      = "moneymarket.deposited"
	EventTypeRedeemed       = "moneymarket.redeemed"
)

func newMarketEvent(eventType string, m *MoneyMarket) *types.Event {
	attrs := map[string]string{}
	if m != nil {
		attrs["token"] = m.UnderlyingToken.Hex()
		attrs["market"] = m.Market.Hex()
		if m.Enabled {
			attrs["enabled"] = "true"
		} else {
			attrs["enabled"] = "false"
		}
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newFlowEvent(eventType string, holder, token, market ethcommon.Address, amount, shares *big.Int) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"holder": holder.Hex(),
			"token":  token.Hex(),
			"market": market.Hex(),
			"amount": amount.String(),
			"shares": shares.String(),
		},
	}
}
