package payment

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solva-wallet/internal/errs"
	"solva-wallet/internal/models"
	"solva-wallet/internal/wallet"
)

const (
	senderKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	bobAddress    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	approveHash   = "0x1111111111111111111111111111111111111111111111111111111111111111"
	sendHash      = "0x2222222222222222222222222222222222222222222222222222222222222222"
	explorerRoot  = "https://polygonscan.com/tx/"
	startingFunds = "100"
)

type fakeChain struct {
	mu         sync.Mutex
	approveErr error
	sendErr    error
	approved   []*big.Int
	sent       []common.Address
	gate       chan struct{}
}

func (f *fakeChain) Approve(_ context.Context, _ wallet.Account, units *big.Int) (common.Hash, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.approveErr != nil {
		return common.Hash{}, f.approveErr
	}
	f.approved = append(f.approved, units)
	return common.HexToHash(approveHash), nil
}

func (f *fakeChain) SendPayment(_ context.Context, _ wallet.Account, _ *big.Int, receiver common.Address) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent = append(f.sent, receiver)
	return common.HexToHash(sendHash), nil
}

func (f *fakeChain) Decimals() int32 { return 6 }

func (f *fakeChain) GetChainName() models.BlockchainName { return models.Polygon }

func (f *fakeChain) ExplorerURL(txHash string) string { return explorerRoot + txHash }

func (f *fakeChain) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.approved), len(f.sent)
}

type fakeSession struct {
	mu      sync.Mutex
	account wallet.Account
	epoch   uint64
	balance decimal.Decimal
	records []models.Transaction
}

func (f *fakeSession) Account() (wallet.Account, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account, f.epoch
}

func (f *fakeSession) Snapshot() models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := models.StateDisconnected
	if f.account != nil {
		state = models.StateConnectedRegistered
	}
	return models.Session{State: state, Username: "alice", Balance: f.balance, Epoch: f.epoch}
}

func (f *fakeSession) RecordPayment(epoch uint64, record models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if epoch != f.epoch {
		return errs.ErrStaleSession
	}
	f.records = append([]models.Transaction{record}, f.records...)
	f.balance = f.balance.Sub(record.Amount)
	return nil
}

type fakeEmitter struct {
	events []models.PaymentEvent
}

func (f *fakeEmitter) EmitEvent(event models.PaymentEvent) error {
	f.events = append(f.events, event)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *recordingNotifier) Success(title, _ string) { n.add(title) }
func (n *recordingNotifier) Error(title, _ string)   { n.add(title) }

func (n *recordingNotifier) add(title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
}

type fixture struct {
	chain    *fakeChain
	session  *fakeSession
	emitter  *fakeEmitter
	notifier *recordingNotifier
	ctrl     *Controller
	steps    []Step
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	acct, err := wallet.FromHex(senderKey)
	require.NoError(t, err)

	f := &fixture{
		chain:    &fakeChain{},
		session:  &fakeSession{account: acct, epoch: 3, balance: decimal.RequireFromString(startingFunds)},
		emitter:  &fakeEmitter{},
		notifier: &recordingNotifier{},
	}
	logger := zerolog.Nop()
	f.ctrl = NewController(f.chain, f.session, f.emitter, f.notifier, &logger)
	f.ctrl.now = func() time.Time { return time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC) }
	f.ctrl.OnStep(func(s Step) { f.steps = append(f.steps, s) })
	return f
}

func TestSend_RejectsBeforeTouchingChain(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		wantTitle string
	}{
		{"negative amount", Request{Recipient: "bob", RecipientAddress: bobAddress, Amount: "-5"}, "Invalid amount"},
		{"zero amount", Request{Recipient: "bob", RecipientAddress: bobAddress, Amount: "0"}, "Invalid amount"},
		{"not a number", Request{Recipient: "bob", RecipientAddress: bobAddress, Amount: "ten"}, "Invalid amount"},
		{"over balance", Request{Recipient: "bob", RecipientAddress: bobAddress, Amount: "100.01"}, "Insufficient funds"},
		{"no recipient", Request{Recipient: " ", RecipientAddress: bobAddress, Amount: "5"}, "Recipient required"},
		{"unresolved recipient", Request{Recipient: "bob", Amount: "5"}, "Recipient address not found"},
		{"malformed address", Request{Recipient: "bob", RecipientAddress: "0x1234", Amount: "5"}, "Recipient address not found"},
		{"below token precision", Request{Recipient: "bob", RecipientAddress: bobAddress, Amount: "0.0000001"}, "Invalid amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.ctrl.Send(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrValidation), err.Error())

			var rej *Rejection
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, tt.wantTitle, rej.Title)
			assert.Equal(t, []string{tt.wantTitle}, f.notifier.titles)

			approves, sends := f.chain.calls()
			assert.Zero(t, approves)
			assert.Zero(t, sends)
			assert.Empty(t, f.steps)
			assert.Equal(t, StepInput, f.ctrl.Step())
			assert.Empty(t, f.session.records)
		})
	}
}

func TestSend_RequiresSession(t *testing.T) {
	f := newFixture(t)
	f.session.account = nil

	err := f.ctrl.Validate(Request{Recipient: "bob", RecipientAddress: bobAddress, Amount: "5"})
	assert.True(t, errors.Is(err, errs.ErrAuthRequired))
}

func TestSend_Success(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.ctrl.Send(context.Background(), Request{Recipient: "bob", RecipientAddress: bobAddress, Amount: "12.345678"})
	require.NoError(t, err)

	assert.Equal(t, []Step{StepApprove, StepSend, StepComplete, StepInput}, f.steps)
	assert.Equal(t, "12345678", f.chain.approved[0].String())
	assert.Equal(t, common.HexToAddress(bobAddress), f.chain.sent[0])

	require.Len(t, f.session.records, 1)
	record := f.session.records[0]
	assert.Equal(t, models.DirectionSent, record.Direction)
	assert.Equal(t, "bob", record.Counterparty)
	assert.True(t, record.Amount.Equal(decimal.RequireFromString("12.345678")))
	assert.Equal(t, common.HexToHash(sendHash).Hex(), record.ID)
	assert.True(t, f.session.balance.Equal(decimal.RequireFromString("87.654322")))

	assert.Equal(t, explorerRoot+common.HexToHash(sendHash).Hex(), receipt.ExplorerURL)
	require.Len(t, f.emitter.events, 1)
	event := f.emitter.events[0]
	assert.Equal(t, "alice", event.Sender)
	assert.Equal(t, models.Polygon, event.Chain)
	assert.Equal(t, common.HexToHash(approveHash).Hex(), event.ApproveTx)
	assert.Contains(t, f.notifier.titles, "Money sent!")
}

func TestSend_ExactBalanceIsAllowed(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Send(context.Background(), Request{Recipient: "bob", RecipientAddress: bobAddress, Amount: "$100"})
	require.NoError(t, err)
	assert.True(t, f.session.balance.IsZero())
}

func TestSend_ChainFailuresReturnToInput(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(c *fakeChain)
		wantTitle string
		wantSends int
	}{
		{
			name:      "approve fails",
			setup:     func(c *fakeChain) { c.approveErr = errors.New("user rejected") },
			wantTitle: "Approval failed",
		},
		{
			name:      "send reverts",
			setup:     func(c *fakeChain) { c.sendErr = errors.New("execution reverted") },
			wantTitle: "Payment failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f.chain)

			_, err := f.ctrl.Send(context.Background(), Request{Recipient: "bob", RecipientAddress: bobAddress, Amount: "5"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrChain))

			assert.Equal(t, StepInput, f.ctrl.Step())
			assert.Equal(t, StepInput, f.steps[len(f.steps)-1])
			assert.NotContains(t, f.steps, StepComplete)
			assert.Empty(t, f.session.records)
			assert.True(t, f.session.balance.Equal(decimal.RequireFromString(startingFunds)))
			assert.Empty(t, f.emitter.events)
			assert.Equal(t, []string{tt.wantTitle}, f.notifier.titles)
		})
	}
}

func TestSend_Busy(t *testing.T) {
	f := newFixture(t)
	f.chain.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Send(context.Background(), Request{Recipient: "bob", RecipientAddress: bobAddress, Amount: "5"})
		done <- err
	}()

	require.Eventually(t, func() bool { return f.ctrl.Step() == StepApprove }, time.Second, time.Millisecond)

	_, err := f.ctrl.Send(context.Background(), Request{Recipient: "bob", RecipientAddress: bobAddress, Amount: "5"})
	assert.True(t, errors.Is(err, ErrBusy))

	close(f.chain.gate)
	require.NoError(t, <-done)
	assert.Len(t, f.session.records, 1)
}

func TestSend_StaleSessionStillReportsTransfer(t *testing.T) {
	f := newFixture(t)
	f.chain.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Send(context.Background(), Request{Recipient: "bob", RecipientAddress: bobAddress, Amount: "5"})
		done <- err
	}()
	require.Eventually(t, func() bool { return f.ctrl.Step() == StepApprove }, time.Second, time.Millisecond)

	f.session.mu.Lock()
	f.session.epoch++
	f.session.mu.Unlock()
	close(f.chain.gate)

	require.NoError(t, <-done)
	assert.Empty(t, f.session.records)
	assert.Len(t, f.emitter.events, 1)
}
