package common

// Module names scope error reasons, authority records and event types.
const (
	ModuleLoans       = "loans"
	ModuleCollateral  = "collateral"
	ModuleAssets      = "assets"
	ModuleMoneyMarket = "moneymarket"
)

// Reasons shared by every parameterised administration entry point.
const (
	ReasonNullData          = "null-data"
	ReasonUnrecognizedParam = "modify-unrecognized-param"
)
