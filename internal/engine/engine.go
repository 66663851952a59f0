package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/polymirror/polymirror/internal/config"
	"github.com/polymirror/polymirror/internal/model"
	"github.com/polymirror/polymirror/internal/pkg/apperrors"
	"github.com/polymirror/polymirror/internal/pkg/logger"
	"github.com/polymirror/polymirror/internal/pkg/metrics"
)

// SettingsSource provides the live bot configuration. It is read fresh at
// decision time so operator changes apply without a restart.
type SettingsSource interface {
	Load(ctx context.Context) (model.BotSettings, error)
}

// LabelResolver maps an outcome token id to human-readable market labels.
type LabelResolver interface {
	Resolve(ctx context.Context, tokenID string) model.MarketDetails
}

// QuoteSource fetches the current top of book for a token.
type QuoteSource interface {
	Book(ctx context.Context, tokenID string) (model.Quote, error)
}

// OrderSubmitter places a mirror order on the exchange.
type OrderSubmitter interface {
	Submit(ctx context.Context, order model.MirrorOrder) error
}

// TradeSink records terminal mirror decisions.
type TradeSink interface {
	Append(ctx context.Context, rec model.TradeRecord) error
}

// storeTimeout bounds settings reads and trade-log writes so a stalled
// database cannot wedge the poll loop.
const storeTimeout = 5 * time.Second

// Engine turns a classified target trade into at most one mirror order.
// Every terminal decision writes exactly one trade record, except a
// settings-store failure, which aborts before any label is known.
type Engine struct {
	settings  SettingsSource
	labels    LabelResolver
	quotes    QuoteSource
	submitter OrderSubmitter
	sink      TradeSink

	slippageTolerance decimal.Decimal
}

func New(cfg config.ListenerConfig, settings SettingsSource, labels LabelResolver,
	quotes QuoteSource, submitter OrderSubmitter, sink TradeSink) *Engine {
	return &Engine{
		settings:          settings,
		labels:            labels,
		quotes:            quotes,
		submitter:         submitter,
		sink:              sink,
		slippageTolerance: decimal.NewFromFloat(cfg.SlippageTolerance),
	}
}

// Process runs the mirror decision pipeline for one detected trade.
func (e *Engine) Process(ctx context.Context, trade model.ClassifiedTrade) error {
	// Config gate. No record on failure: labels are not resolved yet and
	// a half-empty record would be worse than none.
	loadCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	settings, err := e.settings.Load(loadCtx)
	cancel()
	if err != nil {
		metrics.MirrorAborts.WithLabelValues("config_unavailable").Inc()
		return apperrors.New(apperrors.ErrConfigUnavailable, "failed to load bot settings", err)
	}

	details := e.labels.Resolve(ctx, trade.TokenID)

	// Quote fetch: mirror a BUY against the ask, a SELL against the bid.
	quote, err := e.quotes.Book(ctx, trade.TokenID)
	price := decimal.Zero
	if err == nil {
		if trade.Side == model.SideBuy {
			price = quote.BestAsk
		} else {
			price = quote.BestBid
		}
	}
	if price.IsZero() {
		metrics.MirrorAborts.WithLabelValues("quote_unavailable").Inc()
		e.record(ctx, details, trade.Side, decimal.Zero, decimal.Zero, model.StatusFailed)
		return apperrors.New(apperrors.ErrQuoteUnavailable, "order book empty or unreachable", err)
	}

	// Slippage guard against the fill price of the originating trade.
	// A zero reference disables the check; the boundary is inclusive.
	if !trade.FillPrice.IsZero() {
		deviation := price.Sub(trade.FillPrice).Abs().Div(trade.FillPrice)
		if deviation.GreaterThan(e.slippageTolerance) {
			metrics.MirrorAborts.WithLabelValues("slippage_exceeded").Inc()
			e.record(ctx, details, trade.Side, decimal.Zero, price, model.StatusFailed)
			return apperrors.New(apperrors.ErrSlippageExceeded, "quote price moved past tolerance", nil)
		}
	}

	// Sizing. The reference notional falls back to the configured cap:
	// the originating trade's true notional is not used here yet, so the
	// computed size is effectively copy_ratio * max_notional.
	ratio := decimal.NewFromFloat(settings.CopyRatio)
	maxNotional := decimal.NewFromFloat(settings.MaxNotional)
	size := decimal.Min(ratio.Mul(maxNotional), maxNotional)
	if !size.IsPositive() {
		metrics.MirrorAborts.WithLabelValues("sizing").Inc()
		e.record(ctx, details, trade.Side, decimal.Zero, price, model.StatusFailed)
		return apperrors.New(apperrors.ErrSizing, "computed order size is not positive", nil)
	}

	order := model.MirrorOrder{
		TokenID: trade.TokenID,
		Side:    trade.Side,
		Price:   price,
		Size:    size,
	}
	if err := e.submitter.Submit(ctx, order); err != nil {
		metrics.MirrorOrders.WithLabelValues(model.StatusFailed, trade.Side).Inc()
		e.record(ctx, details, trade.Side, size, price, model.StatusFailed)
		return apperrors.New(apperrors.ErrSubmission, "order submission failed", err)
	}

	metrics.MirrorOrders.WithLabelValues(model.StatusSuccess, trade.Side).Inc()
	e.record(ctx, details, trade.Side, size, price, model.StatusSuccess)
	logger.Info("mirror order placed",
		"market", details.Question,
		"outcome", details.Outcome,
		"side", trade.Side,
		"size", size.String(),
		"price", price.String())
	return nil
}

func (e *Engine) record(ctx context.Context, details model.MarketDetails,
	side string, size, price decimal.Decimal, status string) {
	rec := model.TradeRecord{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Market:    details.Question,
		Outcome:   details.Outcome,
		Side:      side,
		Size:      size.InexactFloat64(),
		Price:     price.InexactFloat64(),
		Status:    status,
	}
	appendCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := e.sink.Append(appendCtx, rec); err != nil {
		logger.LogError(ctx, err, "failed to append trade record", "market", rec.Market)
	}
}
