package executor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GoPolymarket/polymarket-go-sdk"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/clobtypes"
	"github.com/shopspring/decimal"

	"github.com/polymirror/polymirror/internal/config"
	"github.com/polymirror/polymirror/internal/model"
	"github.com/polymirror/polymirror/internal/pkg/apperrors"
	"github.com/polymirror/polymirror/internal/pkg/logger"
	"github.com/polymirror/polymirror/internal/signer"
)

// Executor talks to the CLOB API: it fetches order books and submits
// mirror orders. Orders are built by the SDK and signed locally with the
// pre-computed EIP-712 signer.
type Executor struct {
	client     *polymarket.Client
	authSigner auth.Signer
	apiKey     *auth.APIKey
	fastSigner *signer.Signer
}

func New(cfg config.PolymarketConfig) (*Executor, error) {
	if cfg.ApiKey == "" || cfg.ApiSecret == "" || cfg.ApiPassphrase == "" {
		return nil, fmt.Errorf("CLOB API credentials are required")
	}

	pk := strings.TrimPrefix(cfg.PrivateKey, "0x")
	fastSigner, err := signer.NewSigner(pk, auth.PolygonChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize order signer: %w", err)
	}
	authSigner, err := auth.NewPrivateKeySigner(pk, auth.PolygonChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth signer: %w", err)
	}

	apiKey := &auth.APIKey{
		Key:        cfg.ApiKey,
		Secret:     cfg.ApiSecret,
		Passphrase: cfg.ApiPassphrase,
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 10 * time.Second,
	}

	client := polymarket.NewClient(
		polymarket.WithUseServerTime(true),
		polymarket.WithHTTPClient(httpClient),
	).WithAuth(authSigner, apiKey)

	return &Executor{
		client:     client,
		authSigner: authSigner,
		apiKey:     apiKey,
		fastSigner: fastSigner,
	}, nil
}

// Book returns the top of book for the token. Empty book sides come back
// as zero prices; transport failures are quote errors.
func (e *Executor) Book(ctx context.Context, tokenID string) (model.Quote, error) {
	book, err := e.client.CLOB.OrderBook(ctx, &clobtypes.BookRequest{TokenID: tokenID})
	if err != nil {
		return model.Quote{}, apperrors.New(apperrors.ErrQuoteUnavailable, "failed to fetch order book", err)
	}

	var quote model.Quote
	if len(book.Asks) > 0 {
		quote.BestAsk, err = decimal.NewFromString(book.Asks[0].Price)
		if err != nil {
			return model.Quote{}, apperrors.New(apperrors.ErrQuoteUnavailable, "invalid ask price in book", err)
		}
	}
	if len(book.Bids) > 0 {
		quote.BestBid, err = decimal.NewFromString(book.Bids[0].Price)
		if err != nil {
			return model.Quote{}, apperrors.New(apperrors.ErrQuoteUnavailable, "invalid bid price in book", err)
		}
	}
	return quote, nil
}

// Submit builds, signs and posts a GTC order mirroring the detected
// trade. Every failure surfaces as a submission error; the caller turns
// it into a FAILED trade record.
func (e *Executor) Submit(ctx context.Context, order model.MirrorOrder) error {
	signable, err := clob.NewOrderBuilder(e.client.CLOB, e.authSigner).
		TokenID(order.TokenID).
		PriceDec(order.Price).
		SizeDec(order.Size).
		Side(order.Side).
		OrderType(clobtypes.OrderTypeGTC).
		BuildSignableWithContext(ctx)
	if err != nil {
		return apperrors.New(apperrors.ErrSubmission, "failed to build order", err)
	}

	signature, err := e.fastSigner.SignOrder(toSignable(signable.Order))
	if err != nil {
		return apperrors.New(apperrors.ErrSubmission, "failed to sign order", err)
	}

	signed := &clobtypes.SignedOrder{
		Order:     *signable.Order,
		Signature: signature,
		Owner:     e.apiKey.Key,
		OrderType: signable.OrderType,
		PostOnly:  signable.PostOnly,
	}

	resp, err := e.client.CLOB.PostOrder(ctx, signed)
	if err != nil {
		return apperrors.New(apperrors.ErrSubmission, "polymarket api error", err)
	}

	logger.Info("order submitted",
		"token_id", order.TokenID,
		"side", order.Side,
		"price", order.Price.String(),
		"size", order.Size.String(),
		"response", fmt.Sprintf("%+v", resp))
	return nil
}

func toSignable(o *clobtypes.Order) *signer.Order {
	side := uint8(0) // BUY
	if strings.ToUpper(o.Side) == "SELL" {
		side = 1
	}
	sigType := uint8(0)
	if o.SignatureType != nil {
		sigType = uint8(*o.SignatureType)
	}

	return &signer.Order{
		Salt:          o.Salt.Int,
		Maker:         o.Maker,
		Signer:        o.Signer,
		Taker:         o.Taker,
		TokenID:       o.TokenID.Int,
		MakerAmount:   o.MakerAmount.BigInt(),
		TakerAmount:   o.TakerAmount.BigInt(),
		Expiration:    o.Expiration.Int,
		Nonce:         o.Nonce.Int,
		FeeRateBps:    o.FeeRateBps.BigInt(),
		Side:          side,
		SignatureType: sigType,
	}
}
