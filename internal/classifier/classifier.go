package classifier

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/polymirror/polymirror/internal/model"
)

// usdcAssetID marks the collateral side of a fill. Any other asset id is
// an outcome token.
var usdcAssetID = big.NewInt(0)

// Classify reduces a settlement event to the target account's trade, if
// any. The second return is false when the target is neither maker nor
// taker of the fill.
//
// The direction follows from which leg carries collateral: the party that
// pays USDC is buying outcome tokens, the party that receives USDC is
// selling them. Maker is checked first; in the degenerate case where the
// target fills its own order the maker interpretation wins.
func Classify(ev model.SettlementEvent, target common.Address) (model.ClassifiedTrade, bool) {
	switch {
	case ev.Maker == target:
		if ev.MakerAssetID.Cmp(usdcAssetID) == 0 {
			// Target pays USDC, receives outcome tokens.
			return build(model.SideBuy, model.RoleMaker, ev.TakerAssetID,
				ev.MakerAmountFilled, ev.TakerAmountFilled), true
		}
		// Target pays outcome tokens, receives USDC.
		return build(model.SideSell, model.RoleMaker, ev.MakerAssetID,
			ev.TakerAmountFilled, ev.MakerAmountFilled), true

	case ev.Taker == target:
		if ev.TakerAssetID.Cmp(usdcAssetID) == 0 {
			return build(model.SideBuy, model.RoleTaker, ev.MakerAssetID,
				ev.TakerAmountFilled, ev.MakerAmountFilled), true
		}
		return build(model.SideSell, model.RoleTaker, ev.TakerAssetID,
			ev.MakerAmountFilled, ev.TakerAmountFilled), true
	}

	return model.ClassifiedTrade{}, false
}

// build converts the raw fixed-point amounts (6 implied decimals) into
// decimal units and derives the fill price as quote/base. A zero base
// yields a zero price rather than a division error.
func build(side, role string, tokenID, quoteRaw, baseRaw *big.Int) model.ClassifiedTrade {
	quote := decimal.NewFromBigInt(quoteRaw, -6)
	base := decimal.NewFromBigInt(baseRaw, -6)

	price := decimal.Zero
	if !base.IsZero() {
		price = quote.Div(base)
	}

	return model.ClassifiedTrade{
		Side:        side,
		Role:        role,
		TokenID:     tokenID.String(),
		QuoteAmount: quote,
		BaseAmount:  base,
		FillPrice:   price,
	}
}
