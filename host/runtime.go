// Package host runs the lending engines against a persistent store. Every
// operation executes inside a write overlay that is committed only when the
// operation succeeds, so a failed call leaves no partial effects behind.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crosslend/core/events"
	"crosslend/core/state"
	"crosslend/core/types"
	"crosslend/native/assets"
	"crosslend/native/collateral"
	"crosslend/native/common"
	"crosslend/native/loans"
	"crosslend/native/moneymarket"
	"crosslend/native/pricefeed"
	"crosslend/native/token"
	"crosslend/observability"
	"crosslend/observability/logging"
	telemetry "crosslend/observability/otel"
	"crosslend/storage"
)

const (
	outcomeCommitted  = "committed"
	outcomeRolledBack = "rolled_back"
)

var (
	// DefaultLoansEscrow custodies principal and repayments on the loan ledger.
	DefaultLoansEscrow = deriveAccount("crosslend/loans-escrow")
	// DefaultCollateralEscrow custodies locked native value.
	DefaultCollateralEscrow = deriveAccount("crosslend/collateral-escrow")

	ErrUnknownToken  = errors.New("host: unknown token")
	ErrUnknownMarket = errors.New("host: unknown money market")
	ErrUnknownFeed   = errors.New("host: unknown price feed")
)

func deriveAccount(label string) ethcommon.Address {
	return ethcommon.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}

// Subscriber receives the events of every committed operation in commit
// order. indexer.Store satisfies it.
type Subscriber interface {
	Append(ctx context.Context, operation string, evts []*types.Event, at time.Time) error
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger routes runtime logs to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the wall clock engines read block time from.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) {
		if now != nil {
			r.now = now
		}
	}
}

// WithScheme selects the commitment hash used for secret hashes.
func WithScheme(scheme common.Scheme) Option {
	return func(r *Runtime) { r.scheme = scheme }
}

// WithEscrowAccounts overrides the custody accounts. Zero addresses keep the
// defaults.
func WithEscrowAccounts(loansEscrow, collateralEscrow ethcommon.Address) Option {
	return func(r *Runtime) {
		if loansEscrow != (ethcommon.Address{}) {
			r.loansEscrow = loansEscrow
		}
		if collateralEscrow != (ethcommon.Address{}) {
			r.collateralEscrow = collateralEscrow
		}
	}
}

// WithSubscriber registers a committed-event subscriber.
func WithSubscriber(sub Subscriber) Option {
	return func(r *Runtime) {
		if sub != nil {
			r.subscribers = append(r.subscribers, sub)
		}
	}
}

// Runtime serialises engine operations over a single database.
type Runtime struct {
	mu     sync.RWMutex
	regMu  sync.RWMutex
	db     storage.Database
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
	scheme common.Scheme

	loansEscrow      ethcommon.Address
	collateralEscrow ethcommon.Address

	tokens      map[ethcommon.Address]struct{}
	vaults      map[ethcommon.Address]ethcommon.Address
	feeds       *pricefeed.Directory
	subscribers []Subscriber
}

// New returns a runtime over db.
func New(db storage.Database, opts ...Option) *Runtime {
	r := &Runtime{
		db:               db,
		logger:           slog.Default(),
		tracer:           telemetry.Tracer(),
		now:              time.Now,
		scheme:           common.SchemeSHA256,
		loansEscrow:      DefaultLoansEscrow,
		collateralEscrow: DefaultCollateralEscrow,
		tokens:           make(map[ethcommon.Address]struct{}),
		vaults:           make(map[ethcommon.Address]ethcommon.Address),
		feeds:            pricefeed.NewDirectory(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe adds a committed-event subscriber after construction.
func (r *Runtime) Subscribe(sub Subscriber) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	r.subscribers = append(r.subscribers, sub)
	r.mu.Unlock()
}

// RegisterToken deploys the token ledger at addr.
func (r *Runtime) RegisterToken(addr ethcommon.Address) {
	r.regMu.Lock()
	r.tokens[addr] = struct{}{}
	r.regMu.Unlock()
}

// RegisterVault deploys a yield vault at market over the underlying token.
// The underlying is registered as a token as well.
func (r *Runtime) RegisterVault(market, underlying ethcommon.Address) {
	r.regMu.Lock()
	r.tokens[underlying] = struct{}{}
	r.vaults[market] = underlying
	r.regMu.Unlock()
}

// RegisterFeed deploys an oracle at addr.
func (r *Runtime) RegisterFeed(addr ethcommon.Address, feed *pricefeed.Aggregator) {
	r.feeds.Register(addr, feed)
}

// Feed returns the oracle deployed at addr.
func (r *Runtime) Feed(addr ethcommon.Address) (*pricefeed.Aggregator, bool) {
	return r.feeds.Lookup(addr)
}

// LoansEscrow returns the loan ledger custody account.
func (r *Runtime) LoansEscrow() ethcommon.Address { return r.loansEscrow }

// CollateralEscrow returns the collateral custody account.
func (r *Runtime) CollateralEscrow() ethcommon.Address { return r.collateralEscrow }

// Scheme returns the configured commitment scheme.
func (r *Runtime) Scheme() common.Scheme { return r.scheme }

// Tx exposes the engines bound to one operation's write overlay.
type Tx struct {
	State        *state.Manager
	Assets       *assets.Registry
	MoneyMarkets *moneymarket.Adapter
	Loans        *loans.Engine
	Collateral   *collateral.Engine
	Native       *token.Ledger

	rt  *Runtime
	now int64
}

// Now returns the block time the operation executes at.
func (tx *Tx) Now() int64 { return tx.now }

// Token returns the ledger of a registered token.
func (tx *Tx) Token(addr ethcommon.Address) (*token.Ledger, error) {
	tx.rt.regMu.RLock()
	_, ok := tx.rt.tokens[addr]
	tx.rt.regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return token.NewLedger(addr, tx.State), nil
}

// Vault returns the yield vault deployed at market.
func (tx *Tx) Vault(market ethcommon.Address) (*moneymarket.Vault, error) {
	tx.rt.regMu.RLock()
	underlying, ok := tx.rt.vaults[market]
	tx.rt.regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, market.Hex())
	}
	return moneymarket.NewVault(market, token.NewLedger(underlying, tx.State), tx.State), nil
}

func (r *Runtime) newTx(mgr *state.Manager, emitter events.Emitter, now int64) *Tx {
	tx := &Tx{
		State:        mgr,
		Assets:       assets.NewRegistry(),
		MoneyMarkets: moneymarket.NewAdapter(),
		Loans:        loans.NewEngine(),
		Collateral:   collateral.NewEngine(),
		Native:       token.NewNative(mgr),
		rt:           r,
		now:          now,
	}
	clock := func() int64 { return tx.now }

	tx.Assets.SetState(mgr)
	tx.Assets.SetEmitter(emitter)

	tx.MoneyMarkets.SetState(mgr)
	tx.MoneyMarkets.SetEmitter(emitter)
	tx.MoneyMarkets.SetResolver(func(market ethcommon.Address) (moneymarket.YieldMarket, error) {
		vault, err := tx.Vault(market)
		if err != nil {
			return nil, err
		}
		return vault, nil
	})

	tx.Loans.SetState(mgr)
	tx.Loans.SetAssets(tx.Assets)
	tx.Loans.SetMoneyMarkets(tx.MoneyMarkets)
	tx.Loans.SetTokens(func(addr ethcommon.Address) (loans.Token, error) {
		ledger, err := tx.Token(addr)
		if err != nil {
			return nil, err
		}
		return ledger, nil
	})
	tx.Loans.SetEscrowAccount(r.loansEscrow)
	tx.Loans.SetScheme(r.scheme)
	tx.Loans.SetNowFunc(clock)
	tx.Loans.SetEmitter(emitter)

	tx.Collateral.SetState(mgr)
	tx.Collateral.SetFeeds(func(addr ethcommon.Address) (collateral.PriceFeed, error) {
		feed, ok := r.feeds.Lookup(addr)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, addr.Hex())
		}
		return feed, nil
	})
	tx.Collateral.SetBank(tx.Native)
	tx.Collateral.SetEscrowAccount(r.collateralEscrow)
	tx.Collateral.SetScheme(r.scheme)
	tx.Collateral.SetNowFunc(clock)
	tx.Collateral.SetEmitter(emitter)
	return tx
}

// Execute runs fn against a fresh overlay. The overlay is committed and the
// buffered events published when fn returns nil; otherwise every write and
// event is dropped and fn's error returned.
func (r *Runtime) Execute(ctx context.Context, operation string, fn func(*Tx) error) error {
	ctx, span := r.tracer.Start(ctx, operation, trace.WithAttributes(
		attribute.String("crosslend.operation", operation),
	))
	defer span.End()
	started := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	at := r.now()
	overlay := storage.NewOverlay(r.db)
	buffer := &events.Buffer{}
	tx := r.newTx(state.NewManager(overlay), buffer, at.Unix())

	err := fn(tx)
	if err == nil {
		err = overlay.Commit()
	}
	if err != nil {
		overlay.Discard()
		observability.Transactions().Observe(operation, time.Since(started), outcomeRolledBack)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("operation rolled back",
			slog.String("operation", operation),
			slog.String("reason", common.ReasonOf(err)),
			slog.Any("error", err),
			slog.Duration("duration", time.Since(started)))
		return err
	}

	evts := payloads(buffer)
	for _, evt := range evts {
		observability.Transitions().Record(evt.Type)
		if r.logger.Enabled(ctx, slog.LevelDebug) {
			r.logger.Debug("event", eventAttrs(evt)...)
		}
	}
	r.publish(ctx, operation, evts, at)

	observability.Transactions().Observe(operation, time.Since(started), outcomeCommitted)
	span.SetAttributes(attribute.Int("crosslend.events", len(evts)))
	r.logger.Info("operation committed",
		slog.String("operation", operation),
		slog.Int("events", len(evts)),
		slog.Duration("duration", time.Since(started)))
	return nil
}

// View runs fn against a throwaway overlay. Writes made by fn are discarded
// and no events are published.
func (r *Runtime) View(ctx context.Context, fn func(*Tx) error) error {
	_, span := r.tracer.Start(ctx, "view")
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	overlay := storage.NewOverlay(r.db)
	defer overlay.Discard()
	err := fn(r.newTx(state.NewManager(overlay), events.NoopEmitter{}, r.now().Unix()))
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *Runtime) publish(ctx context.Context, operation string, evts []*types.Event, at time.Time) {
	if len(evts) == 0 {
		return
	}
	for _, sub := range r.subscribers {
		if err := sub.Append(ctx, operation, evts, at); err != nil {
			r.logger.Error("event subscriber failed",
				slog.String("operation", operation),
				slog.Any("error", err))
		}
	}
}

func payloads(buffer *events.Buffer) []*types.Event {
	buffered := buffer.Events()
	out := make([]*types.Event, 0, len(buffered))
	for _, evt := range buffered {
		if payload := evt.Event(); payload != nil {
			out = append(out, payload.Clone())
		}
	}
	return out
}

// eventAttrs renders an event for the debug log with revealed secrets masked.
func eventAttrs(evt *types.Event) []any {
	attrs := []any{slog.String("type", evt.Type)}
	for _, attr := range logging.MaskAttributes(evt.Attributes) {
		attrs = append(attrs, attr)
	}
	return attrs
}

// Balance is a convenience read of a token balance; the zero address reads
// native value.
func (r *Runtime) Balance(ctx context.Context, tokenAddr, account ethcommon.Address) (*big.Int, error) {
	var bal *big.Int
	err := r.View(ctx, func(tx *Tx) error {
		ledger := tx.Native
		if tokenAddr != token.NativeAsset {
			var err error
			if ledger, err = tx.Token(tokenAddr); err != nil {
				return err
			}
		}
		var err error
		bal, err = ledger.BalanceOf(account)
		return err
	})
	return bal, err
}
