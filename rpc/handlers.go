package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"crosslend/host"
	"crosslend/indexer"
	"crosslend/native/collateral"
	"crosslend/native/loans"
)

// Amounts are WAD scaled on chain. Collateral values are WAD² scaled.
const (
	wadExponent   = -18
	wadSqExponent = -36
)

// Amount renders an on-chain integer together with its scaled decimal form.
type Amount struct {
	Raw     string `json:"raw"`
	Decimal string `json:"decimal"`
}

func newAmount(v *big.Int, exp int32) Amount {
	if v == nil {
		v = new(big.Int)
	}
	return Amount{Raw: v.String(), Decimal: decimal.NewFromBigInt(v, exp).String()}
}

type LoanResponse struct {
	ID                   uint64 `json:"id"`
	State                string `json:"state"`
	Lender               string `json:"lender"`
	LenderDelegate       string `json:"lenderDelegate,omitempty"`
	Borrower             string `json:"borrower,omitempty"`
	Token                string `json:"token"`
	Principal            Amount `json:"principal"`
	Interest             Amount `json:"interest"`
	Repayment            Amount `json:"repayment"`
	SecretHashA1         string `json:"secretHashA1,omitempty"`
	SecretHashB1         string `json:"secretHashB1"`
	SecretHashDelegateB1 string `json:"secretHashDelegateB1,omitempty"`
	SecretA1             string `json:"secretA1,omitempty"`
	SecretB1             string `json:"secretB1,omitempty"`
	SecretDelegateB1     string `json:"secretDelegateB1,omitempty"`
	LoanExpiry           int64  `json:"loanExpiry"`
	AcceptExpiry         int64  `json:"acceptExpiry"`
	CreatedAt            int64  `json:"createdAt"`
	PayoutIdentity       string `json:"payoutIdentity,omitempty"`
	Referrer             string `json:"referrer,omitempty"`
	MoneyMarket          string `json:"moneyMarket,omitempty"`
}

type PositionResponse struct {
	ID                      uint64 `json:"id"`
	State                   string `json:"state"`
	Borrower                string `json:"borrower"`
	Lender                  string `json:"lender"`
	SecretHashA1            string `json:"secretHashA1"`
	SecretHashB1            string `json:"secretHashB1"`
	SecretA1                string `json:"secretA1,omitempty"`
	SecretB1                string `json:"secretB1,omitempty"`
	CounterpartyBorrower    string `json:"counterpartyBorrower,omitempty"`
	CounterpartyLoanID      uint64 `json:"counterpartyLoanId"`
	CounterpartyAssetSymbol string `json:"counterpartyAssetSymbol,omitempty"`
	Collateral              Amount `json:"collateral"`
	LockPrice               Amount `json:"lockPrice"`
	LiquidationPrice        Amount `json:"liquidationPrice"`
	CollateralValue         Amount `json:"collateralValue"`
	LoanExpiry              int64  `json:"loanExpiry"`
	CreatedAt               int64  `json:"createdAt"`
}

type AssetTypeResponse struct {
	Token               string `json:"token"`
	Enabled             bool   `json:"enabled"`
	MinPrincipal        Amount `json:"minPrincipal"`
	MaxPrincipal        Amount `json:"maxPrincipal"`
	BaseRatePerYear     Amount `json:"baseRatePerYear"`
	MultiplierPerYear   Amount `json:"multiplierPerYear"`
	BaseRatePerPeriod   Amount `json:"baseRatePerPeriod"`
	MultiplierPerPeriod Amount `json:"multiplierPerPeriod"`
	ReferralFeeRate     Amount `json:"referralFeeRate"`
}

type RateResponse struct {
	Token string `json:"token"`
	Rate  Amount `json:"rate"`
}

type MoneyMarketResponse struct {
	Token   string `json:"token"`
	Market  string `json:"market"`
	Enabled bool   `json:"enabled"`
}

type IDsResponse struct {
	Account string   `json:"account"`
	IDs     []uint64 `json:"ids"`
}

type CountResponse struct {
	Account string `json:"account"`
	Count   uint64 `json:"count"`
}

type ParamsResponse struct {
	LoanExpirationPeriod       uint64 `json:"loanExpirationPeriod"`
	AcceptExpirationPeriod     uint64 `json:"acceptExpirationPeriod"`
	CollateralExpirationPeriod uint64 `json:"collateralExpirationPeriod"`
	CollateralizationRatio     Amount `json:"collateralizationRatio"`
	PriceFeed                  string `json:"priceFeed,omitempty"`
}

type EventResponse struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Module     string            `json:"module"`
	RecordID   string            `json:"recordId"`
	Type       string            `json:"type"`
	Operation  string            `json:"operation"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"createdAt"`
}

func hexOrEmpty(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(b)
}

func addrOrEmpty(a ethcommon.Address) string {
	if a == (ethcommon.Address{}) {
		return ""
	}
	return a.Hex()
}

func hashOrEmpty(h ethcommon.Hash) string {
	if h == (ethcommon.Hash{}) {
		return ""
	}
	return h.Hex()
}

func newLoanResponse(l *loans.Loan) LoanResponse {
	return LoanResponse{
		ID:                   l.ID,
		State:                l.State.String(),
		Lender:               l.Lender.Hex(),
		LenderDelegate:       addrOrEmpty(l.LenderDelegate),
		Borrower:             addrOrEmpty(l.Borrower),
		Token:                l.Token.Hex(),
		Principal:            newAmount(l.Principal, wadExponent),
		Interest:             newAmount(l.Interest, wadExponent),
		Repayment:            newAmount(l.Repayment(), wadExponent),
		SecretHashA1:         hashOrEmpty(l.SecretHashA1),
		SecretHashB1:         l.SecretHashB1.Hex(),
		SecretHashDelegateB1: hashOrEmpty(l.SecretHashDelegateB1),
		SecretA1:             hexOrEmpty(l.SecretA1),
		SecretB1:             hexOrEmpty(l.SecretB1),
		SecretDelegateB1:     hexOrEmpty(l.SecretDelegateB1),
		LoanExpiry:           l.LoanExpiry,
		AcceptExpiry:         l.AcceptExpiry,
		CreatedAt:            l.CreatedAt,
		PayoutIdentity:       l.PayoutIdentity,
		Referrer:             addrOrEmpty(l.Referrer),
		MoneyMarket:          addrOrEmpty(l.MoneyMarket),
	}
}

func newPositionResponse(p *collateral.Position) PositionResponse {
	return PositionResponse{
		ID:                      p.ID,
		State:                   p.State.String(),
		Borrower:                p.Borrower.Hex(),
		Lender:                  p.Lender.Hex(),
		SecretHashA1:            p.SecretHashA1.Hex(),
		SecretHashB1:            p.SecretHashB1.Hex(),
		SecretA1:                hexOrEmpty(p.SecretA1),
		SecretB1:                hexOrEmpty(p.SecretB1),
		CounterpartyBorrower:    addrOrEmpty(p.CounterpartyBorrower),
		CounterpartyLoanID:      p.CounterpartyLoanID,
		CounterpartyAssetSymbol: p.CounterpartyAssetSymbol,
		Collateral:              newAmount(p.Collateral, wadExponent),
		LockPrice:               newAmount(p.LockPrice, wadExponent),
		LiquidationPrice:        newAmount(p.LiquidationPrice, wadExponent),
		CollateralValue:         newAmount(p.CollateralValue, wadSqExponent),
		LoanExpiry:              p.LoanExpiry,
		CreatedAt:               p.CreatedAt,
	}
}

func newEventResponse(rec indexer.EventRecord) (EventResponse, error) {
	attrs, err := rec.Decoded()
	if err != nil {
		return EventResponse{}, err
	}
	return EventResponse{
		ID:         rec.ID.String(),
		Sequence:   rec.Sequence,
		Module:     rec.Module,
		RecordID:   rec.RecordID,
		Type:       rec.Type,
		Operation:  rec.Operation,
		Attributes: attrs,
		CreatedAt:  rec.CreatedAt.Unix(),
	}, nil
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid-id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func pathAddress(w http.ResponseWriter, r *http.Request, key string) (ethcommon.Address, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if !ethcommon.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid-address", key+" must be a hex address")
		return ethcommon.Address{}, false
	}
	return ethcommon.HexToAddress(raw), true
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var resp LoanResponse
	err := s.rt.View(r.Context(), func(tx *host.Tx) error {
		loan, err := tx.Loans.FetchLoan(id)
		if err != nil {
			return err
		}
		resp = newLoanResponse(loan)
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getAccountLoans(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAddress(w, r, "addr")
	if !ok {
		return
	}
	var ids []uint64
	err := s.rt.View(r.Context(), func(tx *host.Tx) error {
		var err error
		ids, err = tx.Loans.GetAccountLoans(account)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, IDsResponse{Account: account.Hex(), IDs: ids})
}

func (s *Server) getAccountLoansCount(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAddress(w, r, "addr")
	if !ok {
		return
	}
	var count uint64
	err := s.rt.View(r.Context(), func(tx *host.Tx) error {
		var err error
		count, err = tx.Loans.UserLoansCount(account)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Account: account.Hex(), Count: count})
}

func (s *Server) getAccountPositions(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAddress(w, r, "addr")
	if !ok {
		return
	}
	var ids []uint64
	err := s.rt.View(r.Context(), func(tx *host.Tx) error {
		var err error
		ids, err = tx.Collateral.GetAccountPositions(account)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, IDsResponse{Account: account.Hex(), IDs: ids})
}

func (s *Server) getAssetType(w http.ResponseWriter, r *http.Request) {
	tokenAddr, ok := pathAddress(w, r, "token")
	if !ok {
		return
	}
	var resp AssetTypeResponse
	err := s.rt.View(r.Context(), func(tx *host.Tx) error {
		asset, err := tx.Assets.GetAssetType(tokenAddr)
		if err != nil {
			return err
		}
		resp = AssetTypeResponse{
			Token:               asset.Token.Hex(),
			Enabled:             asset.Enabled,
			MinPrincipal:        newAmount(asset.MinPrincipal, wadExponent),
			MaxPrincipal:        newAmount(asset.MaxPrincipal, wadExponent),
			BaseRatePerYear:     newAmount(asset.BaseRatePerYear, wadExponent),
			MultiplierPerYear:   newAmount(asset.MultiplierPerYear, wadExponent),
			BaseRatePerPeriod:   newAmount(asset.BaseRatePerPeriod, wadExponent),
			MultiplierPerPeriod: newAmount(asset.MultiplierPerPeriod, wadExponent),
			ReferralFeeRate:     newAmount(asset.ReferralFeeRate, wadExponent),
		}
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getAssetRate(w http.ResponseWriter, r *http.Request) {
	tokenAddr, ok := pathAddress(w, r, "token")
	if !ok {
		return
	}
	var rate *big.Int
	err := s.rt.View(r.Context(), func(tx *host.Tx) error {
		var err error
		rate, err = tx.Assets.GetAssetInterestRate(tokenAddr)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RateResponse{Token: tokenAddr.Hex(), Rate: newAmount(rate, wadExponent)})
}

func (s *Server) getMoneyMarket(w http.ResponseWriter, r *http.Request) {
	tokenAddr, ok := pathAddress(w, r, "token")
	if !ok {
		return
	}
	var resp MoneyMarketResponse
	err := s.rt.View(r.Context(), func(tx *host.Tx) error {
		record, err := tx.MoneyMarkets.MoneyMarket(tokenAddr)
		if err != nil {
			return err
		}
		resp = MoneyMarketResponse{
			Token:   record.UnderlyingToken.Hex(),
			Market:  record.Market.Hex(),
			Enabled: record.Enabled,
		}
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var resp PositionResponse
	err := s.rt.View(r.Context(), func(tx *host.Tx) error {
		pos, err := tx.Collateral.FetchPosition(id)
		if err != nil {
			return err
		}
		resp = newPositionResponse(pos)
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getParams(w http.ResponseWriter, r *http.Request) {
	var resp ParamsResponse
	err := s.rt.View(r.Context(), func(tx *host.Tx) error {
		loanParams, err := tx.Loans.Params()
		if err != nil {
			return err
		}
		collParams, err := tx.Collateral.Params()
		if err != nil {
			return err
		}
		resp = ParamsResponse{
			LoanExpirationPeriod:       loanParams.LoanExpirationPeriod,
			AcceptExpirationPeriod:     loanParams.AcceptExpirationPeriod,
			CollateralExpirationPeriod: collParams.LoanExpirationPeriod,
			CollateralizationRatio:     newAmount(collParams.CollateralizationRatio, wadExponent),
			PriceFeed:                  addrOrEmpty(collParams.PriceFeed),
		}
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getRecordEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "indexer-disabled", "event archive is not configured")
		return
	}
	module := strings.TrimSpace(chi.URLParam(r, "module"))
	recordID := strings.TrimSpace(chi.URLParam(r, "id"))
	records, err := s.events.Query(r.Context(), module, recordID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.writeEvents(w, records)
}

func (s *Server) getRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "indexer-disabled", "event archive is not configured")
		return
	}
	limit := defaultRecentEvents
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > indexer.MaxRecent {
			writeError(w, http.StatusBadRequest, "invalid-limit", fmt.Sprintf("limit must be between 1 and %d", indexer.MaxRecent))
			return
		}
		limit = parsed
	}
	records, err := s.events.Recent(r.Context(), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.writeEvents(w, records)
}

func (s *Server) writeEvents(w http.ResponseWriter, records []indexer.EventRecord) {
	out := make([]EventResponse, 0, len(records))
	for _, rec := range records {
		resp, err := newEventResponse(rec)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}
