package loans

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/core/events"
	"crosslend/native/assets"
	"crosslend/native/common"
	"crosslend/native/moneymarket"
	"crosslend/native/token"
)

type mockState struct {
	authorities map[string]*common.Authority
	loans       map[uint64]*Loan
	nextID      uint64
	accounts    map[ethcommon.Address][]uint64
	referrers   map[ethcommon.Address]ethcommon.Address
	params      *Params
	assets      map[ethcommon.Address]*assets.AssetType
	markets     map[ethcommon.Address]*moneymarket.MoneyMarket
	shares      map[[2]ethcommon.Address]*big.Int
	totals      map[ethcommon.Address]*big.Int
}

func newMockState(owner ethcommon.Address) *mockState {
	return &mockState{
		authorities: map[string]*common.Authority{
			common.ModuleLoans: common.NewAuthority(common.ModuleLoans, owner),
		},
		loans:     make(map[uint64]*Loan),
		accounts:  make(map[ethcommon.Address][]uint64),
		referrers: make(map[ethcommon.Address]ethcommon.Address),
		assets:    make(map[ethcommon.Address]*assets.AssetType),
		markets:   make(map[ethcommon.Address]*moneymarket.MoneyMarket),
		shares:    make(map[[2]ethcommon.Address]*big.Int),
		totals:    make(map[ethcommon.Address]*big.Int),
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

func (m *mockState) LoanGet(id uint64) (*Loan, bool, error) {
	loan, ok := m.loans[id]
	return loan.Clone(), ok, nil
}

func (m *mockState) LoanPut(loan *Loan) error {
	m.loans[loan.ID] = loan.Clone()
	return nil
}

func (m *mockState) LoanNextID() (uint64, error) {
	m.nextID++
	return m.nextID, nil
}

func (m *mockState) AccountLoansAppend(account ethcommon.Address, id uint64) error {
	for _, existing := range m.accounts[account] {
		if existing == id {
			return nil
		}
	}
	m.accounts[account] = append(m.accounts[account], id)
	return nil
}

func (m *mockState) AccountLoans(account ethcommon.Address) ([]uint64, error) {
	return append([]uint64{}, m.accounts[account]...), nil
}

func (m *mockState) ReferrerGet(account ethcommon.Address) (ethcommon.Address, bool, error) {
	ref, ok := m.referrers[account]
	return ref, ok, nil
}

func (m *mockState) ReferrerPut(account, referrer ethcommon.Address) error {
	m.referrers[account] = referrer
	return nil
}

func (m *mockState) LoanParams() (Params, error) {
	if m.params == nil {
		return DefaultParams(), nil
	}
	return *m.params, nil
}

func (m *mockState) LoanParamsPut(p Params) error {
	m.params = &p
	return nil
}

func (m *mockState) LoanPeriod() (uint64, error) {
	p, err := m.LoanParams()
	return p.LoanExpirationPeriod, err
}

func (m *mockState) AssetTypeGet(addr ethcommon.Address) (*assets.AssetType, bool, error) {
	asset, ok := m.assets[addr]
	return asset.Clone(), ok, nil
}

func (m *mockState) AssetTypePut(asset *assets.AssetType) error {
	m.assets[asset.Token] = asset.Clone()
	return nil
}

func (m *mockState) MoneyMarketGet(addr ethcommon.Address) (*moneymarket.MoneyMarket, bool, error) {
	record, ok := m.markets[addr]
	return record.Clone(), ok, nil
}

func (m *mockState) MoneyMarketPut(record *moneymarket.MoneyMarket) error {
	m.markets[record.UnderlyingToken] = record.Clone()
	return nil
}

func (m *mockState) VaultSharesGet(market, holder ethcommon.Address) (*big.Int, error) {
	return common.CloneBig(m.shares[[2]ethcommon.Address{market, holder}]), nil
}

func (m *mockState) VaultSharesPut(market, holder ethcommon.Address, shares *big.Int) error {
	m.shares[[2]ethcommon.Address{market, holder}] = common.CloneBig(shares)
	return nil
}

func (m *mockState) VaultTotalSharesGet(market ethcommon.Address) (*big.Int, error) {
	return common.CloneBig(m.totals[market]), nil
}

func (m *mockState) VaultTotalSharesPut(market ethcommon.Address, shares *big.Int) error {
	m.totals[market] = common.CloneBig(shares)
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
	engine   *Engine
	state    *mockState
	registry *assets.Registry
	adapter  *moneymarket.Adapter
	ledger   *token.Ledger
	events   *events.Buffer
	now      int64

	owner, lender, delegate, borrower, referrer, escrow, token ethcommon.Address

	secretA1, secretB1, secretDelegateB1 []byte
	hashA1, hashB1, hashDelegateB1       ethcommon.Hash
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:      1_700_000_000,
		owner:    newTestAddress(0x01),
		lender:   newTestAddress(0x10),
		delegate: newTestAddress(0x11),
		borrower: newTestAddress(0x20),
		referrer: newTestAddress(0x30),
		escrow:   newTestAddress(0xE5),
		token:    newTestAddress(0xDA),
		events:   &events.Buffer{},
	}
	f.secretA1, f.hashA1 = testSecret("secret-a1")
	f.secretB1, f.hashB1 = testSecret("secret-b1")
	f.secretDelegateB1, f.hashDelegateB1 = testSecret("secret-delegate-b1")
	f.state = newMockState(f.owner)
	f.ledger = token.NewLedger(f.token, token.NewMemoryState())

	f.registry = assets.NewRegistry()
	f.registry.SetState(f.state)
	if _, err := f.registry.AddAssetType(f.owner, f.token, wad(10000), wad(100),
		new(big.Int).Div(wad(55), big.NewInt(1000)), wad(1),
		new(big.Int).Div(wad(1), big.NewInt(4))); err != nil {
		t.Fatalf("add asset type: %v", err)
	}

	f.adapter = moneymarket.NewAdapter()
	f.adapter.SetState(f.state)

	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetAssets(f.registry)
	f.engine.SetMoneyMarkets(f.adapter)
	f.engine.SetEscrowAccount(f.escrow)
	f.engine.SetTokens(func(addr ethcommon.Address) (Token, error) {
		if addr == f.token {
			return f.ledger, nil
		}
		return nil, fmt.Errorf("unknown token %s", addr.Hex())
	})
	f.engine.SetNowFunc(func() int64 { return f.now })
	f.engine.SetEmitter(f.events)

	f.mint(t, f.lender, wad(50000))
	f.mint(t, f.borrower, wad(1000))
	return f
}

func (f *fixture) mint(t *testing.T, to ethcommon.Address, amount *big.Int) {
	t.Helper()
	if err := f.ledger.Mint(to, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, account ethcommon.Address) *big.Int {
	t.Helper()
	bal, err := f.ledger.BalanceOf(account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func (f *fixture) createLoan(t *testing.T, principal *big.Int, referrer ethcommon.Address) *Loan {
	t.Helper()
	if err := f.ledger.Approve(f.lender, f.escrow, principal); err != nil {
		t.Fatalf("approve: %v", err)
	}
	loan, err := f.engine.CreateLoan(f.lender, CreateLoanRequest{
		LenderDelegate:       f.delegate,
		SecretHashB1:         f.hashB1,
		SecretHashDelegateB1: f.hashDelegateB1,
		Principal:            principal,
		Token:                f.token,
		PayoutIdentity:       "one1lenderpayout",
		Referrer:             referrer,
	})
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	return loan
}

func (f *fixture) approve(t *testing.T, id uint64) *Loan {
	t.Helper()
	loan, err := f.engine.SetBorrowerAndApprove(f.lender, id, f.borrower, f.hashA1)
	if err != nil {
		t.Fatalf("approve loan: %v", err)
	}
	return loan
}

func (f *fixture) withdrawn(t *testing.T, principal *big.Int) *Loan {
	t.Helper()
	loan := f.createLoan(t, principal, ethcommon.Address{})
	f.approve(t, loan.ID)
	loan, err := f.engine.Withdraw(loan.ID, f.secretA1)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	return loan
}

func (f *fixture) repaid(t *testing.T, principal *big.Int) *Loan {
	t.Helper()
	loan := f.withdrawn(t, principal)
	if err := f.ledger.Approve(f.borrower, f.escrow, loan.Repayment()); err != nil {
		t.Fatalf("approve repayment: %v", err)
	}
	loan, err := f.engine.Payback(f.borrower, loan.ID)
	if err != nil {
		t.Fatalf("payback: %v", err)
	}
	return loan
}

func TestCreateLoanFundsEscrow(t *testing.T) {
	f := newFixture(t)
	principal := wad(1000)
	loan := f.createLoan(t, principal, ethcommon.Address{})

	if loan.ID != 1 || loan.State != LoanStateFunded {
		t.Fatalf("unexpected loan %d in state %s", loan.ID, loan.State)
	}
	rate, err := f.registry.GetAssetInterestRate(f.token)
	if err != nil {
		t.Fatalf("interest rate: %v", err)
	}
	want := new(big.Int).Div(new(big.Int).Mul(principal, rate), common.WAD)
	if loan.Interest.Cmp(want) != 0 {
		t.Fatalf("interest: got %s want %s", loan.Interest, want)
	}
	if got := f.balance(t, f.escrow); got.Cmp(principal) != 0 {
		t.Fatalf("escrow balance: got %s want %s", got, principal)
	}
	count, err := f.engine.UserLoansCount(f.lender)
	if err != nil || count != 1 {
		t.Fatalf("lender loan count: %d %v", count, err)
	}
	if got := f.events.Types(); len(got) != 1 || got[0] != EventTypeLoanCreated {
		t.Fatalf("unexpected events %v", got)
	}
	fetched, err := f.engine.FetchLoan(loan.ID)
	if err != nil {
		t.Fatalf("fetch loan: %v", err)
	}
	if fetched.PayoutIdentity != "one1lenderpayout" || fetched.SecretHashB1 != f.hashB1 {
		t.Fatalf("unexpected stored loan %+v", fetched)
	}
}

func TestCreateLoanValidation(t *testing.T) {
	f := newFixture(t)
	if err := f.ledger.Approve(f.lender, f.escrow, wad(20000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	base := CreateLoanRequest{SecretHashB1: f.hashB1, Principal: wad(1000), Token: f.token}
	cases := []struct {
		name   string
		mutate func(*CreateLoanRequest)
		want   error
	}{
		{"zero principal", func(r *CreateLoanRequest) { r.Principal = big.NewInt(0) }, ErrInvalidPrincipalAmount},
		{"above max", func(r *CreateLoanRequest) { r.Principal = wad(10001) }, ErrInvalidPrincipalRange},
		{"below min", func(r *CreateLoanRequest) { r.Principal = wad(99) }, ErrInvalidPrincipalRange},
		{"zero token", func(r *CreateLoanRequest) { r.Token = ethcommon.Address{} }, ErrInvalidTokenAddress},
		{"unregistered token", func(r *CreateLoanRequest) { r.Token = newTestAddress(0xDB) }, ErrAssetTypeDisabled},
		{"missing commitment", func(r *CreateLoanRequest) { r.SecretHashB1 = ethcommon.Hash{} }, ErrInvalidSecretHash},
		{"self referral", func(r *CreateLoanRequest) { r.Referrer = f.lender }, ErrReferrerIsReferral},
	}
	for _, tc := range cases {
		req := base
		tc.mutate(&req)
		if _, err := f.engine.CreateLoan(f.lender, req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if err := f.ledger.Approve(f.lender, f.escrow, wad(10)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err := f.engine.CreateLoan(f.lender, base)
	if !errors.Is(err, ErrInsufficientAllowance) || !errors.Is(err, common.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient allowance, got %v", err)
	}

	poor := newTestAddress(0x40)
	if err := f.ledger.Approve(poor, f.escrow, wad(1000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.engine.CreateLoan(poor, base); !errors.Is(err, common.ErrInsufficientFunds) {
		t.Fatalf("expected propagated balance failure, got %v", err)
	}

	if err := f.registry.DisableAssetType(f.owner, f.token); err != nil {
		t.Fatalf("disable asset type: %v", err)
	}
	if _, err := f.engine.CreateLoan(f.lender, base); !errors.Is(err, ErrAssetTypeDisabled) {
		t.Fatalf("expected asset-type-disabled, got %v", err)
	}
	if err := f.registry.EnableAssetType(f.owner, f.token); err != nil {
		t.Fatalf("enable asset type: %v", err)
	}
	if err := f.engine.DisableContract(f.owner); err != nil {
		t.Fatalf("disable contract: %v", err)
	}
	if _, err := f.engine.CreateLoan(f.lender, base); !errors.Is(err, ErrContractNotEnabled) {
		t.Fatalf("expected contract-not-enabled, got %v", err)
	}

	if len(f.state.loans) != 0 || f.state.nextID != 0 {
		t.Fatalf("failed creations must not persist loans")
	}
	if got := f.balance(t, f.escrow); got.Sign() != 0 {
		t.Fatalf("failed creations must not move funds, escrow holds %s", got)
	}
}

func TestSetBorrowerAndApprove(t *testing.T) {
	f := newFixture(t)
	loan := f.createLoan(t, wad(1000), ethcommon.Address{})

	if _, err := f.engine.SetBorrowerAndApprove(f.borrower, loan.ID, f.borrower, f.hashA1); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected account-not-authorized, got %v", err)
	}
	if _, err := f.engine.SetBorrowerAndApprove(f.lender, loan.ID, ethcommon.Address{}, f.hashA1); !errors.Is(err, ErrInvalidBorrower) {
		t.Fatalf("expected invalid-borrower, got %v", err)
	}
	approved, err := f.engine.SetBorrowerAndApprove(f.delegate, loan.ID, f.borrower, f.hashA1)
	if err != nil {
		t.Fatalf("delegate approve: %v", err)
	}
	if approved.State != LoanStateApproved || approved.Borrower != f.borrower {
		t.Fatalf("unexpected approved loan %+v", approved)
	}
	wantLoanExpiry := f.now + int64(DefaultLoanExpirationPeriod)
	if approved.LoanExpiry != wantLoanExpiry || approved.AcceptExpiry != wantLoanExpiry+int64(DefaultAcceptExpirationPeriod) {
		t.Fatalf("unexpected expiries %d %d", approved.LoanExpiry, approved.AcceptExpiry)
	}
	if _, err := f.engine.SetBorrowerAndApprove(f.lender, loan.ID, f.borrower, f.hashA1); !errors.Is(err, ErrLoanNotFunded) {
		t.Fatalf("expected loan-not-funded, got %v", err)
	}
	ids, _ := f.engine.GetAccountLoans(f.borrower)
	if len(ids) != 1 || ids[0] != loan.ID {
		t.Fatalf("borrower index: %v", ids)
	}
	if _, err := f.engine.SetBorrowerAndApprove(f.lender, 99, f.borrower, f.hashA1); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWithdrawIsSingleUse(t *testing.T) {
	f := newFixture(t)
	principal := wad(1000)
	loan := f.createLoan(t, principal, ethcommon.Address{})
	f.approve(t, loan.ID)

	if _, err := f.engine.Withdraw(loan.ID, f.secretB1); !errors.Is(err, ErrInvalidSecretA1) {
		t.Fatalf("expected invalid-secret-A1, got %v", err)
	}
	withdrawn, err := f.engine.Withdraw(loan.ID, f.secretA1)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if withdrawn.State != LoanStateWithdrawn {
		t.Fatalf("unexpected state %s", withdrawn.State)
	}
	if got := f.balance(t, f.borrower); got.Cmp(new(big.Int).Add(wad(1000), principal)) != 0 {
		t.Fatalf("borrower balance %s", got)
	}
	_, err = f.engine.Withdraw(loan.ID, f.secretA1)
	if !errors.Is(err, ErrLoanNotApproved) || !errors.Is(err, common.ErrState) {
		t.Fatalf("expected loan-not-approved state error, got %v", err)
	}
	if got := f.balance(t, f.escrow); got.Sign() != 0 {
		t.Fatalf("escrow should be empty, holds %s", got)
	}
}

func TestWithdrawAfterExpiry(t *testing.T) {
	f := newFixture(t)
	loan := f.createLoan(t, wad(1000), ethcommon.Address{})
	approved := f.approve(t, loan.ID)
	f.now = approved.LoanExpiry
	if _, err := f.engine.Withdraw(loan.ID, f.secretA1); !errors.Is(err, ErrLoanExpired) {
		t.Fatalf("expected loan-expired, got %v", err)
	}
}

func TestCancelLoanBeforePrincipalWithdraw(t *testing.T) {
	f := newFixture(t)
	principal := wad(1000)
	before := f.balance(t, f.lender)
	loan := f.createLoan(t, principal, ethcommon.Address{})

	if _, err := f.engine.CancelLoanBeforePrincipalWithdraw(loan.ID, f.secretB1); !errors.Is(err, ErrLoanNotApproved) {
		t.Fatalf("expected loan-not-approved for funded loan, got %v", err)
	}
	f.approve(t, loan.ID)
	if _, err := f.engine.CancelLoanBeforePrincipalWithdraw(loan.ID, f.secretA1); !errors.Is(err, ErrInvalidSecretB1) {
		t.Fatalf("expected invalid-secret-B1, got %v", err)
	}
	canceled, err := f.engine.CancelLoanBeforePrincipalWithdraw(loan.ID, f.secretB1)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.State != LoanStateCanceled || canceled.Principal.Sign() != 0 {
		t.Fatalf("unexpected canceled loan %+v", canceled)
	}
	if got := f.balance(t, f.lender); got.Cmp(before) != 0 {
		t.Fatalf("lender balance: got %s want %s", got, before)
	}
	if _, err := f.engine.CancelLoanBeforePrincipalWithdraw(loan.ID, f.secretB1); !errors.Is(err, common.ErrState) {
		t.Fatalf("expected replayed cancel to fail with a state error, got %v", err)
	}

	withdrawn := f.withdrawn(t, principal)
	if _, err := f.engine.CancelLoanBeforePrincipalWithdraw(withdrawn.ID, f.secretB1); !errors.Is(err, ErrPrincipalWithdrawn) {
		t.Fatalf("expected principal-withdrawn, got %v", err)
	}
}

func TestPaybackValidation(t *testing.T) {
	f := newFixture(t)
	loan := f.withdrawn(t, wad(1000))

	if _, err := f.engine.Payback(f.lender, loan.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected account-not-authorized, got %v", err)
	}
	if _, err := f.engine.Payback(f.borrower, loan.ID); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected insufficient-token-allowance, got %v", err)
	}
	f.now = loan.LoanExpiry
	if _, err := f.engine.Payback(f.borrower, loan.ID); !errors.Is(err, ErrLoanExpired) {
		t.Fatalf("expected loan-expired, got %v", err)
	}

	funded := f.createLoan(t, wad(1000), ethcommon.Address{})
	if _, err := f.engine.Payback(f.borrower, funded.ID); !errors.Is(err, ErrInvalidLoanState) {
		t.Fatalf("expected invalid-loan-state, got %v", err)
	}
}

func TestAcceptRepaymentSplitsReferralFee(t *testing.T) {
	f := newFixture(t)
	principal := wad(1000)
	lenderStart := f.balance(t, f.lender)
	borrowerStart := f.balance(t, f.borrower)

	loan := f.createLoan(t, principal, f.referrer)
	if loan.Referrer != f.referrer {
		t.Fatalf("loan should capture referrer")
	}
	f.approve(t, loan.ID)
	if _, err := f.engine.Withdraw(loan.ID, f.secretA1); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := f.ledger.Approve(f.borrower, f.escrow, loan.Repayment()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.engine.Payback(f.borrower, loan.ID); err != nil {
		t.Fatalf("payback: %v", err)
	}
	if _, err := f.engine.AcceptRepayment(loan.ID, f.secretA1); !errors.Is(err, ErrInvalidSecretB1) {
		t.Fatalf("expected invalid-secret-B1, got %v", err)
	}
	accepted, err := f.engine.AcceptRepayment(loan.ID, f.secretB1)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.State != LoanStateAccepted {
		t.Fatalf("unexpected state %s", accepted.State)
	}

	fee := new(big.Int).Div(loan.Interest, big.NewInt(4))
	if got := f.balance(t, f.referrer); got.Cmp(fee) != 0 {
		t.Fatalf("referrer balance: got %s want %s", got, fee)
	}
	wantLender := new(big.Int).Add(lenderStart, new(big.Int).Sub(loan.Interest, fee))
	if got := f.balance(t, f.lender); got.Cmp(wantLender) != 0 {
		t.Fatalf("lender balance: got %s want %s", got, wantLender)
	}
	wantBorrower := new(big.Int).Sub(borrowerStart, loan.Interest)
	if got := f.balance(t, f.borrower); got.Cmp(wantBorrower) != 0 {
		t.Fatalf("borrower balance: got %s want %s", got, wantBorrower)
	}
	if got := f.balance(t, f.escrow); got.Sign() != 0 {
		t.Fatalf("escrow must be empty after acceptance, holds %s", got)
	}
	if _, err := f.engine.AcceptRepayment(loan.ID, f.secretB1); !errors.Is(err, ErrLoanNotRepaid) {
		t.Fatalf("expected replayed accept to fail with loan-not-repaid, got %v", err)
	}
	types := f.events.Types()
	if types[len(types)-1] != EventTypeLoanAccepted {
		t.Fatalf("unexpected events %v", types)
	}
	last := f.events.Events()[len(types)-1].Event()
	if last.Attr("referralFee") != fee.String() || last.Attr("secretB1") == "" {
		t.Fatalf("unexpected accepted attributes %v", last.Attributes)
	}
}

func TestAcceptRepaymentWithDelegateSecret(t *testing.T) {
	f := newFixture(t)
	loan := f.repaid(t, wad(1000))
	accepted, err := f.engine.AcceptRepayment(loan.ID, f.secretDelegateB1)
	if err != nil {
		t.Fatalf("accept with delegate secret: %v", err)
	}
	if len(accepted.SecretDelegateB1) == 0 || len(accepted.SecretB1) != 0 {
		t.Fatalf("expected delegate secret to be recorded")
	}
}

func TestAcceptRepaymentAfterWindow(t *testing.T) {
	f := newFixture(t)
	loan := f.repaid(t, wad(1000))
	f.now = loan.AcceptExpiry
	if _, err := f.engine.AcceptRepayment(loan.ID, f.secretB1); !errors.Is(err, ErrAcceptPeriodExpired) || !errors.Is(err, common.ErrExpiry) {
		t.Fatalf("expected accept-period-expired, got %v", err)
	}
}

func TestRefundPayback(t *testing.T) {
	f := newFixture(t)
	borrowerStart := f.balance(t, f.borrower)
	loan := f.repaid(t, wad(1000))

	if _, err := f.engine.RefundPayback(f.borrower, loan.ID); !errors.Is(err, ErrAcceptPeriodNotExpired) {
		t.Fatalf("expected accept-period-not-expired, got %v", err)
	}
	f.now = loan.AcceptExpiry
	if _, err := f.engine.RefundPayback(f.lender, loan.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected account-not-authorized, got %v", err)
	}
	refunded, err := f.engine.RefundPayback(f.borrower, loan.ID)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.State != LoanStateRefunded || refunded.Principal.Sign() != 0 || refunded.Interest.Sign() != 0 {
		t.Fatalf("unexpected refunded loan %+v", refunded)
	}
	// The borrower keeps the principal withdrawn earlier and gets the
	// repayment back.
	want := new(big.Int).Add(borrowerStart, wad(1000))
	if got := f.balance(t, f.borrower); got.Cmp(want) != 0 {
		t.Fatalf("borrower balance: got %s want %s", got, want)
	}
	if got := f.balance(t, f.escrow); got.Sign() != 0 {
		t.Fatalf("escrow must be empty after refund, holds %s", got)
	}
	if _, err := f.engine.RefundPayback(f.borrower, loan.ID); !errors.Is(err, ErrLoanNotRepaid) {
		t.Fatalf("expected loan-not-repaid, got %v", err)
	}
	if _, err := f.engine.AcceptRepayment(loan.ID, f.secretB1); !errors.Is(err, common.ErrState) {
		t.Fatalf("accept after refund must fail with a state error, got %v", err)
	}
}

func TestSaveReferrerRecordsOnce(t *testing.T) {
	f := newFixture(t)
	account := newTestAddress(0x50)

	saved, err := f.engine.SaveReferrer(account, account)
	if err != nil || saved {
		t.Fatalf("self referral must be ignored: %v %v", saved, err)
	}
	saved, err = f.engine.SaveReferrer(account, f.referrer)
	if err != nil || !saved {
		t.Fatalf("expected referrer to be recorded: %v %v", saved, err)
	}
	saved, err = f.engine.SaveReferrer(account, newTestAddress(0x31))
	if err != nil || saved {
		t.Fatalf("repeated referral must be ignored: %v %v", saved, err)
	}
	ref, ok, err := f.engine.Referrer(account)
	if err != nil || !ok || ref != f.referrer {
		t.Fatalf("referrer must not be overwritten: %s %v %v", ref.Hex(), ok, err)
	}
	count := 0
	for _, typ := range f.events.Types() {
		if typ == EventTypeReferrerSaved {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one referral event, got %d", count)
	}
}

func TestModifyLoanParameters(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.ModifyLoanParameters(f.owner, ParamLoanExpirationPeriod, big.NewInt(1000)); err != nil {
		t.Fatalf("modify loan period: %v", err)
	}
	params, err := f.engine.ModifyLoanParameters(f.owner, ParamAcceptExpirationPeriod, big.NewInt(1000))
	if err != nil {
		t.Fatalf("modify accept period: %v", err)
	}
	if params.LoanExpirationPeriod != 1000 || params.AcceptExpirationPeriod != 1000 {
		t.Fatalf("unexpected params %+v", params)
	}
	if _, err := f.engine.ModifyLoanParameters(f.owner, Param("invalidParam"), big.NewInt(1000)); !errors.Is(err, ErrUnrecognizedParam) {
		t.Fatalf("expected modify-unrecognized-param, got %v", err)
	}
	if _, err := f.engine.ModifyLoanParameters(f.owner, ParamLoanExpirationPeriod, big.NewInt(0)); !errors.Is(err, ErrNullData) {
		t.Fatalf("expected null-data, got %v", err)
	}
	if _, err := f.engine.ModifyLoanParameters(f.borrower, ParamLoanExpirationPeriod, big.NewInt(1)); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected account-not-authorized, got %v", err)
	}

	loan := f.createLoan(t, wad(1000), ethcommon.Address{})
	approved := f.approve(t, loan.ID)
	if approved.AcceptExpiry-f.now != 2000 {
		t.Fatalf("new windows should apply to later approvals, got %d", approved.AcceptExpiry-f.now)
	}
}

func TestContractAdministration(t *testing.T) {
	f := newFixture(t)
	admin := newTestAddress(0x02)

	if err := f.engine.AddAuthorization(admin, admin); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected account-not-authorized, got %v", err)
	}
	if err := f.engine.AddAuthorization(f.owner, admin); err != nil {
		t.Fatalf("add authorization: %v", err)
	}
	if err := f.engine.DisableContract(admin); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := f.engine.AddAuthorization(f.owner, newTestAddress(0x03)); !errors.Is(err, ErrContractNotEnabled) {
		t.Fatalf("expected contract-not-enabled, got %v", err)
	}
	if err := f.engine.EnableContract(f.owner); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := f.engine.RemoveAuthorization(f.owner, admin); err != nil {
		t.Fatalf("remove authorization: %v", err)
	}
	if err := f.engine.DisableContract(admin); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("removed account must lose rights, got %v", err)
	}
}

func TestMoneyMarketRoutesPrincipal(t *testing.T) {
	f := newFixture(t)
	vault := moneymarket.NewVault(newTestAddress(0xCD), f.ledger, f.state)
	f.adapter.SetResolver(func(addr ethcommon.Address) (moneymarket.YieldMarket, error) {
		if addr == vault.Address() {
			return vault, nil
		}
		return nil, fmt.Errorf("unknown market %s", addr.Hex())
	})
	if _, err := f.adapter.AddMoneyMarket(f.owner, f.token, vault.Address()); err != nil {
		t.Fatalf("add money market: %v", err)
	}
	principal := wad(1000)
	loan := f.createLoan(t, principal, ethcommon.Address{})
	if loan.MoneyMarket != vault.Address() {
		t.Fatalf("loan should record its money market")
	}
	if got := f.balance(t, f.escrow); got.Sign() != 0 {
		t.Fatalf("principal should sit in the market, escrow holds %s", got)
	}
	if got := f.balance(t, vault.Address()); got.Cmp(principal) != 0 {
		t.Fatalf("vault cash: got %s want %s", got, principal)
	}

	// Routing changes do not strand loans already deposited.
	if _, err := f.adapter.ToggleMoneyMarket(f.owner, f.token, false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	f.approve(t, loan.ID)
	if _, err := f.engine.Withdraw(loan.ID, f.secretA1); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := f.balance(t, f.borrower); got.Cmp(new(big.Int).Add(wad(1000), principal)) != 0 {
		t.Fatalf("borrower balance %s", got)
	}
	shares, _ := vault.SharesOf(f.escrow)
	if shares.Sign() != 0 {
		t.Fatalf("escrow shares should be fully redeemed, got %s", shares)
	}
}
