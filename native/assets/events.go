package assets

import (
	"crosslend/core/types"
)

const (
	EventTypeAssetTypeAdded    = "assets.added"
	EventTypeAssetTypeModified = "assets.modified"
	EventTypeAssetTypeEnabled  = "assets.enabled"
	EventTypeAssetTypeDisabled = "assets.disabled"
)

func newAssetEvent(eventType string, a *AssetType) *types.Event {
	attrs := map[string]string{}
	if a != nil {
		attrs["token"] = a.Token.Hex()
		attrs["enabled"] = boolString(a.Enabled)
		attrs["minPrincipal"] = a.MinPrincipal.String()
		attrs["maxPrincipal"] = a.MaxPrincipal.String()
		attrs["baseRatePerPeriod"] = a.BaseRatePerPeriod.String()
		attrs["multiplierPerPeriod"] = a.MultiplierPerPeriod.String()
		attrs["referralFeeRate"] = a.ReferralFeeRate.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newModifiedEvent(a *AssetType, param Param, value string) *types.Event {
	evt := newAssetEvent(EventTypeAssetTypeModified, a)
	evt.Attributes["param"] = string(param)
	evt.Attributes["value"] = value
	return evt
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
