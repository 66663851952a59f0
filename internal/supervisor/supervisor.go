package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polymirror/polymirror/internal/classifier"
	"github.com/polymirror/polymirror/internal/config"
	"github.com/polymirror/polymirror/internal/model"
	"github.com/polymirror/polymirror/internal/pkg/apperrors"
	"github.com/polymirror/polymirror/internal/pkg/logger"
	"github.com/polymirror/polymirror/internal/pkg/metrics"
)

// storeTimeout bounds the per-cycle settings read; a stalled database
// must not block the poll loop past its cadence.
const storeTimeout = 5 * time.Second

// Connection states, exposed for the dashboard.
const (
	StateDisconnected = "DISCONNECTED"
	StateConnecting   = "CONNECTING"
	StatePolling      = "POLLING"
)

// Reconnect policies. "latest" resets the block cursor to the current
// head after a reconnect, skipping anything that settled during the
// outage; "resume" continues from the last processed height.
const (
	PolicyLatest = "latest"
	PolicyResume = "resume"
)

// ChainSource reads block heights and settlement events from the ledger.
type ChainSource interface {
	Height(ctx context.Context) (uint64, error)
	FetchFills(ctx context.Context, from, to uint64) ([]model.SettlementEvent, error)
	Reset()
}

// SettingsSource provides the live bot configuration each cycle.
type SettingsSource interface {
	Load(ctx context.Context) (model.BotSettings, error)
}

// Decision runs the mirror pipeline for one classified trade.
type Decision interface {
	Process(ctx context.Context, trade model.ClassifiedTrade) error
}

// Supervisor owns the poll loop: it tracks a block cursor, pulls fills
// in order, and hands the target account's trades to the decision
// engine. Connectivity faults trigger a reconnect with delay, never a
// crash; retries are unbounded.
type Supervisor struct {
	chain    ChainSource
	settings SettingsSource
	decision Decision

	pollInterval   time.Duration
	reconnectDelay time.Duration
	policy         string

	cursor uint64
	state  atomic.Value
}

func New(cfg config.ListenerConfig, chain ChainSource, settings SettingsSource, decision Decision) *Supervisor {
	policy := cfg.ReconnectPolicy
	if policy != PolicyResume {
		policy = PolicyLatest
	}
	s := &Supervisor{
		chain:          chain,
		settings:       settings,
		decision:       decision,
		pollInterval:   time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		reconnectDelay: time.Duration(cfg.ReconnectDelayMs) * time.Millisecond,
		policy:         policy,
	}
	s.state.Store(StateDisconnected)
	return s
}

// State returns the current connection state.
func (s *Supervisor) State() string {
	return s.state.Load().(string)
}

// Run drives the watch loop until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := s.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.backoff(ctx, err)
			continue
		}

		s.state.Store(StatePolling)
		logger.Info("watching settlement events", "from_block", s.cursor, "policy", s.policy)

		err := s.poll(ctx)
		if ctx.Err() != nil {
			s.state.Store(StateDisconnected)
			return ctx.Err()
		}
		s.backoff(ctx, err)
	}
}

// connect establishes the chain connection and positions the cursor.
// Under the "latest" policy the cursor always restarts at the current
// head; under "resume" an existing cursor survives the reconnect.
func (s *Supervisor) connect(ctx context.Context) error {
	s.state.Store(StateConnecting)

	head, err := s.chain.Height(ctx)
	if err != nil {
		return err
	}
	if s.policy == PolicyLatest || s.cursor == 0 {
		s.cursor = head
	}
	return nil
}

// poll runs cycles at the configured cadence and returns on the first
// connectivity fault.
func (s *Supervisor) poll(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if err := s.cycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// cycle processes one poll iteration. Settings are re-read every cycle
// so toggles and retuning apply without a restart. Only connectivity
// faults propagate; anything else is contained to this cycle.
func (s *Supervisor) cycle(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	settings, err := s.settings.Load(loadCtx)
	cancel()
	if err != nil {
		logger.Warn("settings unavailable, skipping cycle", "error", err)
		return nil
	}

	head, err := s.chain.Height(ctx)
	if err != nil {
		return err
	}
	if head <= s.cursor {
		return nil
	}

	events, err := s.chain.FetchFills(ctx, s.cursor+1, head)
	if err != nil {
		return err
	}

	// While paused, fills are still scanned and detections logged; only
	// the mirror step is skipped. The cursor keeps moving so stale fills
	// are never mirrored when the bot is switched back on.
	target := common.HexToAddress(settings.TargetAccount)
	for _, ev := range events {
		s.handleEvent(ctx, ev, target, settings.IsActive)
	}

	metrics.BlocksScanned.Add(float64(head - s.cursor))
	s.cursor = head
	return nil
}

// handleEvent classifies and mirrors a single fill. A failure here never
// aborts the rest of the batch; later events still settle in order.
func (s *Supervisor) handleEvent(ctx context.Context, ev model.SettlementEvent, target common.Address, mirror bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling settlement event",
				"tx", ev.TxHash.Hex(), "panic", r)
		}
	}()

	trade, ok := classifier.Classify(ev, target)
	if !ok {
		return
	}

	metrics.TradesDetected.WithLabelValues(trade.Side, trade.Role).Inc()
	logger.Info("target trade detected",
		"tx", ev.TxHash.Hex(),
		"block", ev.Block,
		"side", trade.Side,
		"role", trade.Role,
		"token_id", trade.TokenID,
		"base", trade.BaseAmount.String(),
		"quote", trade.QuoteAmount.String(),
		"fill_price", trade.FillPrice.String())

	if !mirror {
		logger.Info("bot paused, trade not mirrored", "tx", ev.TxHash.Hex())
		return
	}

	if err := s.decision.Process(ctx, trade); err != nil {
		logger.LogError(ctx, err, "mirror decision aborted",
			"tx", ev.TxHash.Hex(), "kind", string(apperrors.KindOf(err)))
	}
}

// backoff resets the connection and waits out the reconnect delay.
func (s *Supervisor) backoff(ctx context.Context, cause error) {
	s.state.Store(StateDisconnected)
	metrics.Reconnects.Inc()
	s.chain.Reset()
	if s.policy == PolicyLatest {
		s.cursor = 0
	}
	logger.Warn("connection lost, reconnecting", "delay", s.reconnectDelay, "error", cause)

	select {
	case <-ctx.Done():
	case <-time.After(s.reconnectDelay):
	}
}
