package snapshot

// Known Extra keys. Adapters may add others; these are the ones the read side
// and the registry documentation refer to.
const (
	ExtraMarketAddress    = "market_address"
	ExtraChainID          = "chain_id"
	ExtraCollateralFactor = "collateral_factor"
	ExtraAPYMean30d       = "apy_mean_30d"
	ExtraAPYBase7d        = "apy_base_7d"
	ExtraPoolMeta         = "pool_meta"
	ExtraPoolID           = "pool_id"
	ExtraPriceUSD         = "price_usd"
	ExtraVolumeUSD1d      = "volume_usd_1d"
	ExtraURL              = "url"
	ExtraStablecoin       = "stablecoin"
	ExtraSubCategory      = "sub_category"
)
