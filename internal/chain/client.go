// Package chain talks to the stablecoin token and the payment contract.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solva-wallet/internal/config"
	"solva-wallet/internal/errs"
	"solva-wallet/internal/models"
	"solva-wallet/internal/wallet"
)

// Backend is the subset of ethclient.Client the chain client needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Client is an ERC-20 token plus payment contract client for a single chain.
type Client struct {
	backend         Backend
	chainID         *big.Int
	chainName       models.BlockchainName
	token           common.Address
	paymentContract common.Address
	hasPayment      bool
	decimals        int32
	confirmTimeout  time.Duration
	pollInterval    time.Duration
	explorerBaseURL string
	logger          *zerolog.Logger
}

// apiKeyTransport adds the RPC provider key to every request
type apiKeyTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.apiKey != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	return t.base.RoundTrip(req)
}

// Dial connects to the configured RPC endpoint and checks that it serves the
// configured chain.
func Dial(ctx context.Context, cfg config.ChainConfig, logger *zerolog.Logger) (*Client, error) {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &apiKeyTransport{
			base:   http.DefaultTransport,
			apiKey: cfg.ApiKey,
		},
	}

	rpcClient, err := rpc.DialHTTPWithClient(cfg.RpcEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}
	ec := ethclient.NewClient(rpcClient)

	id, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	if id.Int64() != cfg.ChainID {
		ec.Close()
		return nil, fmt.Errorf("rpc endpoint serves chain %s, expected %d", id, cfg.ChainID)
	}

	return New(ec, cfg, logger)
}

// New builds a client over an existing backend.
func New(backend Backend, cfg config.ChainConfig, logger *zerolog.Logger) (*Client, error) {
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, fmt.Errorf("invalid token address %q", cfg.TokenAddress)
	}
	c := &Client{
		backend:         backend,
		chainID:         big.NewInt(cfg.ChainID),
		chainName:       models.ChainNameByID(cfg.ChainID),
		token:           common.HexToAddress(cfg.TokenAddress),
		decimals:        cfg.TokenDecimals,
		confirmTimeout:  cfg.ConfirmTimeout,
		pollInterval:    cfg.PollInterval,
		explorerBaseURL: cfg.ExplorerBaseURL,
		logger:          logger,
	}
	if cfg.PaymentContract != "" {
		if !common.IsHexAddress(cfg.PaymentContract) {
			return nil, fmt.Errorf("invalid payment contract address %q", cfg.PaymentContract)
		}
		c.paymentContract = common.HexToAddress(cfg.PaymentContract)
		c.hasPayment = true
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 2 * time.Second
	}
	if c.confirmTimeout <= 0 {
		c.confirmTimeout = 2 * time.Minute
	}
	return c, nil
}

func (c *Client) GetChainName() models.BlockchainName {
	return c.chainName
}

func (c *Client) Decimals() int32 {
	return c.decimals
}

// BlockHead returns the latest block number.
func (c *Client) BlockHead(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get block number: %w", errs.ErrChain, err)
	}
	return n, nil
}

// ExplorerURL links a transaction hash to the block explorer.
func (c *Client) ExplorerURL(txHash string) string {
	if c.explorerBaseURL == "" || txHash == "" {
		return ""
	}
	return strings.TrimSuffix(c.explorerBaseURL, "/") + "/" + txHash
}

// BalanceOf returns the owner's token balance in dollars.
func (c *Client) BalanceOf(ctx context.Context, owner common.Address) (decimal.Decimal, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: balanceOf call failed: %w", errs.ErrChain, err)
	}

	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return decimal.Zero, fmt.Errorf("%w: unexpected balanceOf result: %v", errs.ErrChain, err)
	}
	units, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unexpected balanceOf type %T", errs.ErrChain, values[0])
	}

	return FromUnits(units, c.decimals), nil
}

// Approve lets the payment contract spend units of the account's tokens and
// waits until the approval is mined.
func (c *Client) Approve(ctx context.Context, acct wallet.Account, units *big.Int) (common.Hash, error) {
	if !c.hasPayment {
		return common.Hash{}, fmt.Errorf("%w: payment contract not configured", errs.ErrChain)
	}
	data, err := erc20ABI.Pack("approve", c.paymentContract, units)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve: %w", err)
	}
	return c.transact(ctx, acct, c.token, data, "approve")
}

// SendPayment transfers units to receiver through the payment contract and
// waits until the transfer is mined.
func (c *Client) SendPayment(ctx context.Context, acct wallet.Account, units *big.Int, receiver common.Address) (common.Hash, error) {
	if !c.hasPayment {
		return common.Hash{}, fmt.Errorf("%w: payment contract not configured", errs.ErrChain)
	}
	data, err := paymentABI.Pack("sendPayment", units, receiver)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack sendPayment: %w", err)
	}
	return c.transact(ctx, acct, c.paymentContract, data, "sendPayment")
}

func (c *Client) transact(ctx context.Context, acct wallet.Account, to common.Address, data []byte, method string) (common.Hash, error) {
	from := acct.Address()
	log := c.logger.With().Str("method", method).Str("from", from.Hex()).Logger()

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: failed to get nonce: %w", errs.ErrChain, err)
	}

	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: failed to suggest gas tip: %w", errs.ErrChain, err)
	}

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: failed to get latest header: %w", errs.ErrChain, err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:      from,
		To:        &to,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %s would fail: %w", errs.ErrChain, method, err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signed, err := acct.SignTx(ctx, tx, c.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", errs.ErrChain, err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%w: failed to submit %s: %w", errs.ErrChain, method, err)
	}
	log.Info().Str("tx", signed.Hash().Hex()).Uint64("nonce", nonce).Msg("Transaction submitted")

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return signed.Hash(), err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Warn().Str("tx", signed.Hash().Hex()).Msg("Transaction reverted")
		return signed.Hash(), fmt.Errorf("%w: %s reverted in block %s", errs.ErrChain, method, receipt.BlockNumber)
	}

	log.Info().Str("tx", signed.Hash().Hex()).Uint64("gas_used", receipt.GasUsed).Msg("Transaction confirmed")
	return signed.Hash(), nil
}

// waitMined polls for the receipt until the confirmation timeout elapses.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.logger.Debug().Err(err).Str("tx", hash.Hex()).Msg("Receipt lookup failed")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: transaction %s not confirmed: %w", errs.ErrChain, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
