package collateral

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/core/events"
	"crosslend/native/common"
	"crosslend/native/pricefeed"
	"crosslend/native/token"
)

type mockState struct {
	authorities map[string]*common.Authority
	positions   map[uint64]*Position
	nextID      uint64
	accounts    map[ethcommon.Address][]uint64
	params      *Params
}

func newMockState(owner ethcommon.Address) *mockState {
	return &mockState{
		authorities: map[string]*common.Authority{
			common.ModuleCollateral: common.NewAuthority(common.ModuleCollateral, owner),
		},
		positions: make(map[uint64]*Position),
		accounts:  make(map[ethcommon.Address][]uint64),
	}
}

func (m *mockState) AuthorityGet(module string) (*common.Authority, bool, error) {
	auth, ok := m.authorities[module]
	return auth.Clone(), ok, nil
}

func (m *mockState) AuthorityPut(auth *common.Authority) error {
	m.authorities[auth.Module] = auth.Clone()
	return nil
}

func (m *mockState) CollateralGet(id uint64) (*Position, bool, error) {
	pos, ok := m.positions[id]
	return pos.Clone(), ok, nil
}

func (m *mockState) CollateralPut(pos *Position) error {
	m.positions[pos.ID] = pos.Clone()
	return nil
}

func (m *mockState) CollateralNextID() (uint64, error) {
	m.nextID++
	return m.nextID, nil
}

func (m *mockState) AccountPositionsAppend(account ethcommon.Address, id uint64) error {
	for _, existing := range m.accounts[account] {
		if existing == id {
			return nil
		}
	}
	m.accounts[account] = append(m.accounts[account], id)
	return nil
}

func (m *mockState) AccountPositions(account ethcommon.Address) ([]uint64, error) {
	return append([]uint64{}, m.accounts[account]...), nil
}

func (m *mockState) CollateralParams() (Params, error) {
	if m.params == nil {
		return DefaultParams(), nil
	}
	return m.params.Clone(), nil
}

func (m *mockState) CollateralParamsPut(p Params) error {
	clone := p.Clone()
	m.params = &clone
	return nil
}

func newTestAddress(fill byte) ethcommon.Address {
	var addr ethcommon.Address
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func wad(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), common.WAD)
}

func testSecret(label string) ([]byte, ethcommon.Hash) {
	secret := sha256.Sum256([]byte(label))
	return secret[:], common.SchemeSHA256.Commit(secret[:])
}

type fixture struct {
	engine *Engine
	state  *mockState
	bank   *token.Ledger
	feed   *pricefeed.Aggregator
	events *events.Buffer
	now    int64

	owner, borrower, lender, escrow, feedAddr ethcommon.Address

	secretA1, secretB1 []byte
	hashA1, hashB1     ethcommon.Hash
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:      1_700_000_000,
		owner:    newTestAddress(0x01),
		borrower: newTestAddress(0x20),
		lender:   newTestAddress(0x10),
		escrow:   newTestAddress(0xC0),
		feedAddr: newTestAddress(0xFE),
		feed:     pricefeed.NewAggregator(big.NewInt(541000)),
		events:   &events.Buffer{},
	}
	f.secretA1, f.hashA1 = testSecret("secret-a1")
	f.secretB1, f.hashB1 = testSecret("secret-b1")
	f.state = newMockState(f.owner)
	params := DefaultParams()
	params.PriceFeed = f.feedAddr
	f.state.params = &params
	f.bank = token.NewNative(token.NewMemoryState())

	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetBank(f.bank)
	f.engine.SetEscrowAccount(f.escrow)
	f.engine.SetFeeds(func(addr ethcommon.Address) (PriceFeed, error) {
		if addr == f.feedAddr {
			return f.feed, nil
		}
		return nil, fmt.Errorf("unknown feed %s", addr.Hex())
	})
	f.engine.SetNowFunc(func() int64 { return f.now })
	f.engine.SetEmitter(f.events)

	if err := f.bank.Mint(f.borrower, wad(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	return f
}

func (f *fixture) balance(t *testing.T, account ethcommon.Address) *big.Int {
	t.Helper()
	bal, err := f.bank.BalanceOf(account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func (f *fixture) lock(t *testing.T, amount *big.Int) *Position {
	t.Helper()
	pos, err := f.engine.LockCollateral(f.borrower, amount, LockRequest{
		Lender:                  f.lender,
		SecretHashA1:            f.hashA1,
		SecretHashB1:            f.hashB1,
		CounterpartyBorrower:    newTestAddress(0x21),
		CounterpartyLoanID:      7,
		CounterpartyAssetSymbol: "DAI",
	})
	if err != nil {
		t.Fatalf("lock collateral: %v", err)
	}
	return pos
}

func (f *fixture) setPrice(t *testing.T, answer int64) {
	t.Helper()
	if err := f.feed.UpdateAnswer(big.NewInt(answer)); err != nil {
		t.Fatalf("update answer: %v", err)
	}
}

func TestLockCollateralPricesPosition(t *testing.T) {
	f := newFixture(t)
	pos := f.lock(t, wad(9))

	if pos.ID != 1 || pos.State != PositionStateLocked {
		t.Fatalf("unexpected position %d in state %s", pos.ID, pos.State)
	}
	wantPrice, _ := new(big.Int).SetString("5410000000000000", 10)
	if pos.LockPrice.Cmp(wantPrice) != 0 {
		t.Fatalf("lock price: got %s want %s", pos.LockPrice, wantPrice)
	}
	wantValue := new(big.Int).Mul(wad(6), wantPrice)
	if pos.CollateralValue.Cmp(wantValue) != 0 {
		t.Fatalf("collateral value: got %s want %s", pos.CollateralValue, wantValue)
	}
	if pos.LoanExpiry != f.now+int64(DefaultLoanExpirationPeriod) {
		t.Fatalf("loan expiry: got %d", pos.LoanExpiry)
	}
	if got := f.balance(t, f.escrow); got.Cmp(wad(9)) != 0 {
		t.Fatalf("escrow balance: got %s", got)
	}
	for _, account := range []ethcommon.Address{f.borrower, f.lender} {
		ids, err := f.engine.GetAccountPositions(account)
		if err != nil || len(ids) != 1 || ids[0] != pos.ID {
			t.Fatalf("positions of %s: %v %v", account.Hex(), ids, err)
		}
	}
	if got := f.events.Types(); len(got) != 1 || got[0] != EventTypeCollateralLocked {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestLockCollateralValidation(t *testing.T) {
	f := newFixture(t)
	req := LockRequest{Lender: f.lender, SecretHashA1: f.hashA1, SecretHashB1: f.hashB1}

	if _, err := f.engine.LockCollateral(f.borrower, big.NewInt(0), req); !errors.Is(err, ErrInvalidCollateralAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	noLender := req
	noLender.Lender = ethcommon.Address{}
	if _, err := f.engine.LockCollateral(f.borrower, wad(1), noLender); !errors.Is(err, ErrInvalidLender) {
		t.Fatalf("expected invalid lender, got %v", err)
	}
	noHash := req
	noHash.SecretHashB1 = ethcommon.Hash{}
	if _, err := f.engine.LockCollateral(f.borrower, wad(1), noHash); !errors.Is(err, ErrInvalidSecretHash) {
		t.Fatalf("expected invalid secret hash, got %v", err)
	}
	if _, err := f.engine.LockCollateral(f.borrower, wad(1000), req); !errors.Is(err, common.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := f.engine.DisableContract(f.owner); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := f.engine.LockCollateral(f.borrower, wad(1), req); !errors.Is(err, ErrContractNotEnabled) {
		t.Fatalf("expected contract disabled, got %v", err)
	}
	if got := f.balance(t, f.borrower); got.Cmp(wad(100)) != 0 {
		t.Fatalf("failed locks moved funds: %s", got)
	}
}

func TestUnlockCollateralAndCloseLoan(t *testing.T) {
	f := newFixture(t)
	pos := f.lock(t, wad(9))

	if _, err := f.engine.UnlockCollateralAndCloseLoan(pos.ID, f.secretA1); !errors.Is(err, ErrInvalidSecretB1) {
		t.Fatalf("expected invalid secret B1, got %v", err)
	}
	closed, err := f.engine.UnlockCollateralAndCloseLoan(pos.ID, f.secretB1)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if closed.State != PositionStateClosedCooperative || closed.Collateral.Sign() != 0 {
		t.Fatalf("unexpected closed position %+v", closed)
	}
	if got := f.balance(t, f.borrower); got.Cmp(wad(100)) != 0 {
		t.Fatalf("borrower balance: got %s", got)
	}
	if _, err := f.engine.UnlockCollateralAndCloseLoan(pos.ID, f.secretB1); !errors.Is(err, ErrCollateralNotLocked) {
		t.Fatalf("expected not locked on replay, got %v", err)
	}
	if _, err := f.engine.SeizeCollateral(pos.ID, f.secretA1); !errors.Is(err, ErrCollateralNotLocked) {
		t.Fatalf("expected not locked on seize, got %v", err)
	}
}

func TestUnlockAfterExpiry(t *testing.T) {
	f := newFixture(t)
	pos := f.lock(t, wad(9))
	f.now = pos.LoanExpiry
	if _, err := f.engine.UnlockCollateralAndCloseLoan(pos.ID, f.secretB1); !errors.Is(err, ErrLoanPeriodExpired) {
		t.Fatalf("expected loan period expired, got %v", err)
	}
}

func TestSeizeCollateralWindow(t *testing.T) {
	f := newFixture(t)
	pos := f.lock(t, wad(9))

	f.now = pos.LoanExpiry - 1
	if _, err := f.engine.SeizeCollateral(pos.ID, f.secretA1); !errors.Is(err, ErrLoanPeriodActive) {
		t.Fatalf("expected loan period active, got %v", err)
	}
	f.now = pos.LoanExpiry
	if _, err := f.engine.SeizeCollateral(pos.ID, f.secretB1); !errors.Is(err, ErrInvalidSecretA1) {
		t.Fatalf("expected invalid secret A1, got %v", err)
	}
	if _, err := f.engine.SeizeCollateral(99, f.secretA1); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSeizeCollateralSplitsAtFreshPrice(t *testing.T) {
	cases := []struct {
		name     string
		answer   int64
		seized   *big.Int
		residual *big.Int
	}{
		{name: "unchanged", answer: 541000, seized: wad(6), residual: wad(3)},
		{name: "doubled", answer: 1082000, seized: wad(3), residual: wad(6)},
		{name: "halved", answer: 270500, seized: wad(9), residual: big.NewInt(0)},
		{name: "collapsed", answer: 1000, seized: wad(9), residual: big.NewInt(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			pos := f.lock(t, wad(9))
			f.setPrice(t, tc.answer)
			f.now = pos.LoanExpiry
			f.events.Reset()

			seized, err := f.engine.SeizeCollateral(pos.ID, f.secretA1)
			if err != nil {
				t.Fatalf("seize: %v", err)
			}
			if seized.State != PositionStateSeizedOpen || seized.Collateral.Sign() != 0 {
				t.Fatalf("unexpected seized position %+v", seized)
			}
			wantLiquidation := new(big.Int).Mul(big.NewInt(tc.answer), PriceNormalization)
			if seized.LiquidationPrice.Cmp(wantLiquidation) != 0 {
				t.Fatalf("liquidation price: got %s want %s", seized.LiquidationPrice, wantLiquidation)
			}
			if got := f.balance(t, f.lender); got.Cmp(tc.seized) != 0 {
				t.Fatalf("lender received %s want %s", got, tc.seized)
			}
			wantBorrower := new(big.Int).Add(wad(91), tc.residual)
			if got := f.balance(t, f.borrower); got.Cmp(wantBorrower) != 0 {
				t.Fatalf("borrower balance %s want %s", got, wantBorrower)
			}
			if got := f.balance(t, f.escrow); got.Sign() != 0 {
				t.Fatalf("escrow retained %s", got)
			}
			got := f.events.Types()
			if len(got) != 2 || got[0] != EventTypeCollateralSeized || got[1] != EventTypeRefundableUnlocked {
				t.Fatalf("unexpected events %v", got)
			}
			if _, err := f.engine.SeizeCollateral(pos.ID, f.secretA1); !errors.Is(err, ErrCollateralNotLocked) {
				t.Fatalf("expected not locked on replay, got %v", err)
			}
		})
	}
}

func TestSeizableCollateralConserves(t *testing.T) {
	collateral := wad(9)
	price := new(big.Int).Mul(big.NewInt(541000), PriceNormalization)
	value, err := CollateralValue(collateral, DefaultParams().CollateralizationRatio, price)
	if err != nil {
		t.Fatalf("collateral value: %v", err)
	}
	for answer := int64(1); answer < 5_000_000; answer = answer*3 + 7 {
		latest := new(big.Int).Mul(big.NewInt(answer), PriceNormalization)
		seizable, residual, err := SeizableCollateral(collateral, value, latest)
		if err != nil {
			t.Fatalf("split at %d: %v", answer, err)
		}
		if residual.Sign() < 0 || new(big.Int).Add(seizable, residual).Cmp(collateral) != 0 {
			t.Fatalf("split at %d does not conserve: %s + %s", answer, seizable, residual)
		}
	}
}

func TestModifyLoanParameters(t *testing.T) {
	f := newFixture(t)
	stranger := newTestAddress(0x99)

	if _, err := f.engine.ModifyLoanParameters(stranger, ParamLoanExpirationPeriod, big.NewInt(100)); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if _, err := f.engine.ModifyLoanParameters(f.owner, ParamCollateralizationRatio, nil); !errors.Is(err, ErrNullData) {
		t.Fatalf("expected null data, got %v", err)
	}
	if _, err := f.engine.ModifyLoanParameters(f.owner, Param("bogus"), big.NewInt(1)); !errors.Is(err, ErrUnrecognizedParam) {
		t.Fatalf("expected unrecognized param, got %v", err)
	}
	params, err := f.engine.ModifyLoanParameters(f.owner, ParamCollateralizationRatio, wad(200))
	if err != nil {
		t.Fatalf("modify ratio: %v", err)
	}
	if params.CollateralizationRatio.Cmp(wad(200)) != 0 {
		t.Fatalf("ratio not applied: %s", params.CollateralizationRatio)
	}
	pos := f.lock(t, wad(8))
	price := new(big.Int).Mul(big.NewInt(541000), PriceNormalization)
	if want := new(big.Int).Mul(wad(4), price); pos.CollateralValue.Cmp(want) != 0 {
		t.Fatalf("collateral value at 200%%: got %s want %s", pos.CollateralValue, want)
	}

	newFeed := newTestAddress(0xAB)
	params, err = f.engine.ModifyLoanParameters(f.owner, ParamPriceFeed, new(big.Int).SetBytes(newFeed.Bytes()))
	if err != nil {
		t.Fatalf("modify feed: %v", err)
	}
	if params.PriceFeed != newFeed {
		t.Fatalf("price feed not applied: %s", params.PriceFeed.Hex())
	}
	if _, err := f.engine.LockCollateral(f.borrower, wad(1), LockRequest{Lender: f.lender, SecretHashA1: f.hashA1, SecretHashB1: f.hashB1}); err == nil {
		t.Fatalf("expected lock to fail against an unknown feed")
	}
}

func TestLockRejectsNonPositivePrice(t *testing.T) {
	f := newFixture(t)
	f.engine.SetFeeds(func(ethcommon.Address) (PriceFeed, error) { return zeroFeed{}, nil })
	_, err := f.engine.LockCollateral(f.borrower, wad(1), LockRequest{Lender: f.lender, SecretHashA1: f.hashA1, SecretHashB1: f.hashB1})
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
}

type zeroFeed struct{}

func (zeroFeed) LatestAnswer() (*big.Int, error) { return big.NewInt(0), nil }

func TestContractAdministration(t *testing.T) {
	f := newFixture(t)
	admin := newTestAddress(0x02)
	if err := f.engine.AddAuthorization(f.owner, admin); err != nil {
		t.Fatalf("add authorization: %v", err)
	}
	pos := f.lock(t, wad(9))
	if err := f.engine.DisableContract(admin); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := f.engine.AddAuthorization(admin, newTestAddress(0x03)); !errors.Is(err, ErrContractNotEnabled) {
		t.Fatalf("expected contract disabled, got %v", err)
	}
	// Locked positions stay closable while new locks are stopped.
	if _, err := f.engine.UnlockCollateralAndCloseLoan(pos.ID, f.secretB1); err != nil {
		t.Fatalf("unlock while disabled: %v", err)
	}
	if err := f.engine.EnableContract(admin); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := f.engine.RemoveAuthorization(f.owner, admin); err != nil {
		t.Fatalf("remove authorization: %v", err)
	}
	if err := f.engine.DisableContract(admin); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
}
