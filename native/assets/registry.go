package assets

import (
	"errors"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/core/events"
	"crosslend/core/types"
	"crosslend/native/common"
)

// Asset types are administered by the loan ledger, so failures carry its
// module prefix.
var (
	ErrInvalidAssetType      = common.NewError(common.ErrValidation, common.ModuleLoans, "invalid-assetType")
	ErrAssetTypeExists       = common.NewError(common.ErrState, common.ModuleLoans, "asset-type-exists")
	ErrAssetTypeNotFound     = common.NewError(common.ErrNotFound, common.ModuleLoans, "asset-type-not-found")
	ErrInvalidPrincipalRange = common.NewError(common.ErrValidation, common.ModuleLoans, "invalid-principal-range")
	ErrInvalidReferralFee    = common.NewError(common.ErrValidation, common.ModuleLoans, "invalid-referral-fee")
	ErrNullData              = common.NewError(common.ErrValidation, common.ModuleLoans, common.ReasonNullData)
	ErrUnrecognizedParam     = common.NewError(common.ErrValidation, common.ModuleLoans, common.ReasonUnrecognizedParam)

	errNilState = errors.New("asset registry: state not configured")
)

type registryState interface {
	common.AuthorityStore
	AssetTypeGet(token ethcommon.Address) (*AssetType, bool, error)
	AssetTypePut(*AssetType) error
	// LoanPeriod returns the loan expiration period currently in force.
	LoanPeriod() (uint64, error)
}

// Registry maintains per-token lending configuration.
type Registry struct {
	state   registryState
	emitter events.Emitter
}

// NewRegistry returns a registry with a no-op emitter.
func NewRegistry() *Registry {
	return &Registry{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) emit(evt *types.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(events.Wrap(evt))
}

func (r *Registry) requireAdmin(caller ethcommon.Address) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	return common.Admin{Module: common.ModuleLoans, Store: r.state}.Require(caller)
}

// AddAssetType registers a token as loanable. Per-period rates are derived
// with the current loan period and the type starts enabled.
func (r *Registry) AddAssetType(caller, token ethcommon.Address, maxPrincipal, minPrincipal, baseRatePerYear, multiplierPerYear, referralFeeRate *big.Int) (*AssetType, error) {
	if err := r.requireAdmin(caller); err != nil {
		return nil, err
	}
	if token == (ethcommon.Address{}) {
		return nil, ErrInvalidAssetType
	}
	if _, exists, err := r.state.AssetTypeGet(token); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAssetTypeExists
	}
	if common.IsZero(minPrincipal) || common.IsZero(maxPrincipal) || minPrincipal.Sign() < 0 || minPrincipal.Cmp(maxPrincipal) > 0 {
		return nil, ErrInvalidPrincipalRange
	}
	if referralFeeRate != nil && (referralFeeRate.Sign() < 0 || referralFeeRate.Cmp(common.WAD) > 0) {
		return nil, ErrInvalidReferralFee
	}
	period, err := r.state.LoanPeriod()
	if err != nil {
		return nil, err
	}
	asset := &AssetType{
		Token:             token,
		Enabled:           true,
		MinPrincipal:      common.CloneBig(minPrincipal),
		MaxPrincipal:      common.CloneBig(maxPrincipal),
		BaseRatePerYear:   common.CloneBig(baseRatePerYear),
		MultiplierPerYear: common.CloneBig(multiplierPerYear),
		ReferralFeeRate:   common.CloneBig(referralFeeRate),
	}
	if err := asset.deriveRates(period); err != nil {
		return nil, err
	}
	if err := r.state.AssetTypePut(asset); err != nil {
		return nil, err
	}
	r.emit(newAssetEvent(EventTypeAssetTypeAdded, asset))
	return asset.Clone(), nil
}

// ModifyAssetTypeLoanParameters updates one recognised parameter. Rate
// changes re-derive the per-period values, affecting loans created afterwards
// only.
func (r *Registry) ModifyAssetTypeLoanParameters(caller, token ethcommon.Address, param Param, value *big.Int) (*AssetType, error) {
	if err := r.requireAdmin(caller); err != nil {
		return nil, err
	}
	asset, err := r.lookup(token)
	if err != nil {
		return nil, err
	}
	if common.IsZero(value) || value.Sign() < 0 {
		return nil, ErrNullData
	}
	switch param {
	case ParamMaxLoanAmount:
		if value.Cmp(asset.MinPrincipal) < 0 {
			return nil, ErrInvalidPrincipalRange
		}
		asset.MaxPrincipal = common.CloneBig(value)
	case ParamMinLoanAmount:
		if value.Cmp(asset.MaxPrincipal) > 0 {
			return nil, ErrInvalidPrincipalRange
		}
		asset.MinPrincipal = common.CloneBig(value)
	case ParamBaseRatePerYear, ParamMultiplierPerYear:
		period, err := r.state.LoanPeriod()
		if err != nil {
			return nil, err
		}
		derived, err := RatePerPeriod(value, period)
		if err != nil {
			return nil, err
		}
		if param == ParamBaseRatePerYear {
			asset.BaseRatePerYear = common.CloneBig(value)
			asset.BaseRatePerPeriod = derived
		} else {
			asset.MultiplierPerYear = common.CloneBig(value)
			asset.MultiplierPerPeriod = derived
		}
	default:
		return nil, ErrUnrecognizedParam
	}
	if err := r.state.AssetTypePut(asset); err != nil {
		return nil, err
	}
	r.emit(newModifiedEvent(asset, param, value.String()))
	return asset.Clone(), nil
}

// EnableAssetType allows new loans against token.
func (r *Registry) EnableAssetType(caller, token ethcommon.Address) error {
	return r.setEnabled(caller, token, true)
}

// DisableAssetType blocks new loans against token. Existing loans are
// unaffected.
func (r *Registry) DisableAssetType(caller, token ethcommon.Address) error {
	return r.setEnabled(caller, token, false)
}

func (r *Registry) setEnabled(caller, token ethcommon.Address, enabled bool) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	asset, err := r.lookup(token)
	if err != nil {
		return err
	}
	asset.Enabled = enabled
	if err := r.state.AssetTypePut(asset); err != nil {
		return err
	}
	if enabled {
		r.emit(newAssetEvent(EventTypeAssetTypeEnabled, asset))
	} else {
		r.emit(newAssetEvent(EventTypeAssetTypeDisabled, asset))
	}
	return nil
}

// GetAssetType returns a copy of the configuration for token.
func (r *Registry) GetAssetType(token ethcommon.Address) (*AssetType, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	asset, ok, err := r.state.AssetTypeGet(token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetTypeNotFound
	}
	return asset.Clone(), nil
}

// GetAssetInterestRate returns base + multiplier per period for token.
func (r *Registry) GetAssetInterestRate(token ethcommon.Address) (*big.Int, error) {
	asset, err := r.GetAssetType(token)
	if err != nil {
		return nil, err
	}
	return asset.InterestRate(), nil
}

func (r *Registry) lookup(token ethcommon.Address) (*AssetType, error) {
	if token == (ethcommon.Address{}) {
		return nil, ErrInvalidAssetType
	}
	asset, ok, err := r.state.AssetTypeGet(token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidAssetType
	}
	return asset.Clone(), nil
}
