package market

import "fmt"

// AssetClass decides the default trade size of an instrument.
type AssetClass string

const (
	ClassCrypto    AssetClass = "crypto"
	ClassCommodity AssetClass = "commodity"
)

func ParseAssetClass(value string) (AssetClass, error) {
	switch AssetClass(value) {
	case ClassCrypto, ClassCommodity:
		return AssetClass(value), nil
	default:
		return "", fmt.Errorf("unknown asset class: %q", value)
	}
}

// Instrument is the static description of a tracked symbol. It is loaded
// once from the session configuration and never changed afterwards.
type Instrument struct {
	Symbol       string
	Name         string
	Volatility   float64
	InitialPrice float64
	Class        AssetClass
	// BrokerSymbol is the ticker used when forwarding orders, e.g. "BTC/USD".
	BrokerSymbol string
}

func (i Instrument) BrokerTicker() string {
	if i.BrokerSymbol != "" {
		return i.BrokerSymbol
	}
	return i.Symbol
}

// LotSizes holds the default order size per asset class: fractional units for
// crypto, whole lots for commodities.
type LotSizes struct {
	Crypto    float64
	Commodity float64
}

func (l LotSizes) For(class AssetClass) float64 {
	if class == ClassCommodity {
		return l.Commodity
	}
	return l.Crypto
}
