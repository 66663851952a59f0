package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/polymirror/polymirror/internal/config"
	"github.com/polymirror/polymirror/internal/model"
	"github.com/polymirror/polymirror/internal/pkg/apperrors"
	"github.com/polymirror/polymirror/internal/pkg/logger"
	"github.com/polymirror/polymirror/internal/pkg/metrics"
)

// OrderFilled as emitted by the CTF Exchange. orderHash, maker and taker
// are indexed; the four amounts and the fee travel in the data segment.
const orderFilledABI = `[{"anonymous":false,"inputs":[
{"indexed":true,"internalType":"bytes32","name":"orderHash","type":"bytes32"},
{"indexed":true,"internalType":"address","name":"maker","type":"address"},
{"indexed":true,"internalType":"address","name":"taker","type":"address"},
{"indexed":false,"internalType":"uint256","name":"makerAssetId","type":"uint256"},
{"indexed":false,"internalType":"uint256","name":"takerAssetId","type":"uint256"},
{"indexed":false,"internalType":"uint256","name":"makerAmountFilled","type":"uint256"},
{"indexed":false,"internalType":"uint256","name":"takerAmountFilled","type":"uint256"},
{"indexed":false,"internalType":"uint256","name":"fee","type":"uint256"}],
"name":"OrderFilled","type":"event"}]`

// Client reads settlement events from the exchange contract over JSON-RPC.
// The underlying connection is dialed lazily and can be dropped with Reset
// so the supervisor can force a fresh dial after a connectivity fault.
type Client struct {
	rpcURL      string
	contract    common.Address
	callTimeout time.Duration

	contractABI abi.ABI
	eventID     common.Hash

	mu     sync.Mutex
	client *ethclient.Client
}

func NewClient(cfg config.ChainConfig) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(orderFilledABI))
	if err != nil {
		return nil, fmt.Errorf("parse event ABI: %w", err)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	return &Client{
		rpcURL:      cfg.RPCURL,
		contract:    common.HexToAddress(cfg.ContractAddress),
		callTimeout: time.Duration(cfg.CallTimeoutMs) * time.Millisecond,
		contractABI: parsed,
		eventID:     parsed.Events["OrderFilled"].ID,
	}, nil
}

func (c *Client) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, c.rpcURL)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrConnectivity, "failed to dial RPC endpoint", err)
	}
	c.client = client
	return client, nil
}

// Reset drops the current connection. The next call dials again.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

// Height returns the current chain head.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	height, err := client.BlockNumber(callCtx)
	if err != nil {
		return 0, apperrors.New(apperrors.ErrConnectivity, "failed to fetch block height", err)
	}
	return height, nil
}

// FetchFills returns the decoded OrderFilled events between the two block
// heights, inclusive, in log order. Logs that fail to decode are skipped
// with a warning; one malformed log must not hide the rest of the range.
func (c *Client) FetchFills(ctx context.Context, from, to uint64) ([]model.SettlementEvent, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	logs, err := client.FilterLogs(callCtx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{c.eventID}},
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrConnectivity, "failed to fetch logs", err)
	}

	events := make([]model.SettlementEvent, 0, len(logs))
	for _, lg := range logs {
		ev, err := c.decode(lg)
		if err != nil {
			logger.Warn("skipping undecodable fill log",
				"tx", lg.TxHash.Hex(), "block", lg.BlockNumber, "error", err)
			continue
		}
		metrics.FillsObserved.Inc()
		events = append(events, ev)
	}
	return events, nil
}

func (c *Client) decode(lg types.Log) (model.SettlementEvent, error) {
	if len(lg.Topics) != 4 {
		return model.SettlementEvent{}, apperrors.New(apperrors.ErrClassification,
			fmt.Sprintf("expected 4 topics, got %d", len(lg.Topics)), nil)
	}

	unpacked, err := c.contractABI.Unpack("OrderFilled", lg.Data)
	if err != nil {
		return model.SettlementEvent{}, apperrors.New(apperrors.ErrClassification, "failed to unpack event data", err)
	}
	if len(unpacked) != 5 {
		return model.SettlementEvent{}, apperrors.New(apperrors.ErrClassification,
			fmt.Sprintf("expected 5 data fields, got %d", len(unpacked)), nil)
	}

	fields := make([]*big.Int, 5)
	for i, raw := range unpacked {
		v, ok := raw.(*big.Int)
		if !ok {
			return model.SettlementEvent{}, apperrors.New(apperrors.ErrClassification,
				fmt.Sprintf("data field %d is not uint256", i), nil)
		}
		fields[i] = v
	}

	return model.SettlementEvent{
		OrderHash:         lg.Topics[1],
		Maker:             common.BytesToAddress(lg.Topics[2].Bytes()),
		Taker:             common.BytesToAddress(lg.Topics[3].Bytes()),
		MakerAssetID:      fields[0],
		TakerAssetID:      fields[1],
		MakerAmountFilled: fields[2],
		TakerAmountFilled: fields[3],
		Fee:               fields[4],
		Block:             lg.BlockNumber,
		TxHash:            lg.TxHash,
	}, nil
}
