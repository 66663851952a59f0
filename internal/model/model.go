package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Trade sides as they appear on the CLOB and in the trade log.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Terminal statuses of a mirror attempt.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Roles the target account can play in a settlement.
const (
	RoleMaker = "maker"
	RoleTaker = "taker"
)

// SettlementEvent is one decoded OrderFilled event from the CTF Exchange.
// Amounts are raw fixed-point integers with 6 implied decimals; asset id 0
// is the USDC collateral token, any other id is an outcome token.
type SettlementEvent struct {
	OrderHash         common.Hash
	Maker             common.Address
	Taker             common.Address
	MakerAssetID      *big.Int
	TakerAssetID      *big.Int
	MakerAmountFilled *big.Int
	TakerAmountFilled *big.Int
	Fee               *big.Int

	Block  uint64
	TxHash common.Hash
}

// ClassifiedTrade is a settlement event reduced to the target account's
// point of view. Amounts are in decimal units (already scaled by 10^6).
type ClassifiedTrade struct {
	Side        string
	Role        string
	TokenID     string
	QuoteAmount decimal.Decimal
	BaseAmount  decimal.Decimal
	FillPrice   decimal.Decimal
}

// MirrorOrder is the order the bot submits to replicate a detected trade.
type MirrorOrder struct {
	TokenID string
	Side    string
	Price   decimal.Decimal
	Size    decimal.Decimal
}

// Quote holds the top of book for one token. A zero price means that side
// of the book is empty.
type Quote struct {
	BestAsk decimal.Decimal
	BestBid decimal.Decimal
}

// MarketDetails is the human-readable metadata for an outcome token.
type MarketDetails struct {
	Question string `json:"question"`
	Outcome  string `json:"outcome"`
	Slug     string `json:"slug"`
}

// BotSettings is the mutable copy-trading configuration. It lives in the
// settings store and is re-read on every poll cycle and at decision time,
// so operator changes take effect without a restart.
type BotSettings struct {
	IsActive      bool    `json:"is_active" db:"is_active"`
	CopyRatio     float64 `json:"copy_ratio" db:"copy_ratio"`
	MaxNotional   float64 `json:"max_notional" db:"max_notional"`
	TargetAccount string  `json:"target_account" db:"target_account"`
}

// TradeRecord is one append-only row in the trade log. Created once per
// mirror attempt, never mutated.
type TradeRecord struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Market    string    `json:"market" db:"market"`
	Outcome   string    `json:"outcome" db:"outcome"`
	Side      string    `json:"side" db:"side"`
	Size      float64   `json:"size" db:"size"`
	Price     float64   `json:"price" db:"price"`
	Status    string    `json:"status" db:"status"`
}

// TradeStats is the aggregate summary shown by the dashboard.
type TradeStats struct {
	TotalTrades int        `json:"total_trades"`
	TotalVolume float64    `json:"total_volume"`
	LastTradeAt *time.Time `json:"last_trade_at"`
}
