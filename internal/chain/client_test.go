package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solva-wallet/internal/config"
	"solva-wallet/internal/errs"
	"solva-wallet/internal/wallet"
)

const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	tokenAddr   = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"
	paymentAddr = "0x1111111111111111111111111111111111111111"
)

type fakeBackend struct {
	mu          sync.Mutex
	balance     *big.Int
	sent        []*types.Transaction
	receiptMiss int
	status      uint64
	estimateErr error
	baseFee     *big.Int
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(137), nil }

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) { return 42, nil }

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(42), BaseFee: f.baseFee}, nil
}

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return erc20ABI.Methods["balanceOf"].Outputs.Pack(f.balance)
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) { return big.NewInt(30), nil }

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 60000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptMiss != 0 {
		if f.receiptMiss > 0 {
			f.receiptMiss--
		}
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: f.status, TxHash: hash, BlockNumber: big.NewInt(43), GasUsed: 51000}, nil
}

func newTestClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	logger := zerolog.Nop()
	c, err := New(backend, config.ChainConfig{
		ChainID:         137,
		TokenAddress:    tokenAddr,
		PaymentContract: paymentAddr,
		TokenDecimals:   6,
		ConfirmTimeout:  200 * time.Millisecond,
		PollInterval:    5 * time.Millisecond,
		ExplorerBaseURL: "https://polygonscan.com/tx/",
	}, &logger)
	require.NoError(t, err)
	return c
}

func testAccount(t *testing.T) wallet.Account {
	t.Helper()
	acct, err := wallet.FromHex(testKey)
	require.NoError(t, err)
	return acct
}

func TestNew_RejectsBadAddresses(t *testing.T) {
	logger := zerolog.Nop()
	_, err := New(&fakeBackend{}, config.ChainConfig{TokenAddress: "nope"}, &logger)
	assert.Error(t, err)

	_, err = New(&fakeBackend{}, config.ChainConfig{TokenAddress: tokenAddr, PaymentContract: "0x12"}, &logger)
	assert.Error(t, err)
}

func TestBalanceOf(t *testing.T) {
	c := newTestClient(t, &fakeBackend{balance: big.NewInt(12_345_678)})

	bal, err := c.BalanceOf(context.Background(), common.HexToAddress(paymentAddr))
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("12.345678")), bal.String())
}

func TestSendPayment_Success(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful, receiptMiss: 2, baseFee: big.NewInt(100)}
	c := newTestClient(t, backend)
	acct := testAccount(t)
	receiver := common.HexToAddress("0x2222222222222222222222222222222222222222")

	hash, err := c.SendPayment(context.Background(), acct, big.NewInt(5_000_000), receiver)
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, common.HexToAddress(paymentAddr), *tx.To())
	assert.Equal(t, "230", tx.GasFeeCap().String())
	assert.Equal(t, "30", tx.GasTipCap().String())

	args, err := paymentABI.Methods["sendPayment"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, "5000000", args[0].(*big.Int).String())
	assert.Equal(t, receiver, args[1])

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(137)), tx)
	require.NoError(t, err)
	assert.Equal(t, acct.Address(), from)
}

func TestApprove_TargetsToken(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful}
	c := newTestClient(t, backend)

	_, err := c.Approve(context.Background(), testAccount(t), big.NewInt(1_000_000))
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	assert.Equal(t, common.HexToAddress(tokenAddr), *backend.sent[0].To())

	args, err := erc20ABI.Methods["approve"].Inputs.Unpack(backend.sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(paymentAddr), args[0])
}

func TestTransact_Failures(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
		account func(t *testing.T) wallet.Account
	}{
		{
			name:    "reverted",
			backend: &fakeBackend{status: types.ReceiptStatusFailed},
			account: testAccount,
		},
		{
			name:    "confirmation timeout",
			backend: &fakeBackend{status: types.ReceiptStatusSuccessful, receiptMiss: -1},
			account: testAccount,
		},
		{
			name:    "estimate fails",
			backend: &fakeBackend{estimateErr: errors.New("execution reverted")},
			account: testAccount,
		},
		{
			name:    "signature rejected",
			backend: &fakeBackend{status: types.ReceiptStatusSuccessful},
			account: func(t *testing.T) wallet.Account {
				return wallet.NewConfirmingAccount(testAccount(t), wallet.ConfirmFunc(func(context.Context, string) (bool, error) {
					return false, nil
				}))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.backend)
			_, err := c.Approve(context.Background(), tt.account(t), big.NewInt(1))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrChain), err.Error())
		})
	}
}

func TestPaymentContractRequired(t *testing.T) {
	logger := zerolog.Nop()
	c, err := New(&fakeBackend{}, config.ChainConfig{ChainID: 137, TokenAddress: tokenAddr}, &logger)
	require.NoError(t, err)

	_, err = c.SendPayment(context.Background(), testAccount(t), big.NewInt(1), common.Address{})
	assert.True(t, errors.Is(err, errs.ErrChain))
}

func TestBlockHeadAndExplorer(t *testing.T) {
	c := newTestClient(t, &fakeBackend{})

	head, err := c.BlockHead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), head)
	assert.Equal(t, "Polygon", c.GetChainName().String())
	assert.Equal(t, "https://polygonscan.com/tx/0xabc", c.ExplorerURL("0xabc"))
	assert.Empty(t, c.ExplorerURL(""))
}
