// Package payment drives the two-stage token transfer: approve the payment
// contract as spender, then invoke it to move funds to the recipient.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solva-wallet/internal/chain"
	"solva-wallet/internal/errs"
	"solva-wallet/internal/interfaces"
	"solva-wallet/internal/models"
	"solva-wallet/internal/validation"
	"solva-wallet/internal/wallet"
)

// Step is the stage of the send form.
type Step string

const (
	StepInput    Step = "input"
	StepApprove  Step = "approve"
	StepSend     Step = "send"
	StepComplete Step = "complete"
)

// ErrBusy is returned when a payment is started while another is in flight.
var ErrBusy = errors.New("a payment is already in progress")

// Chain submits the approve and payment transactions and waits for them.
type Chain interface {
	Approve(ctx context.Context, acct wallet.Account, units *big.Int) (common.Hash, error)
	SendPayment(ctx context.Context, acct wallet.Account, units *big.Int, receiver common.Address) (common.Hash, error)
	Decimals() int32
	GetChainName() models.BlockchainName
	ExplorerURL(txHash string) string
}

// Session is the view of the session store the controller needs.
type Session interface {
	Account() (wallet.Account, uint64)
	Snapshot() models.Session
	RecordPayment(epoch uint64, record models.Transaction) error
}

// Request is the send form. RecipientAddress must come from a resolved
// search result, never from the typed name.
type Request struct {
	Recipient        string
	RecipientAddress string
	Amount           string
}

// Rejection is a failed pre-flight check. It matches errs.ErrValidation.
type Rejection struct {
	Title  string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Title, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return errs.ErrValidation
}

// Receipt describes a completed payment.
type Receipt struct {
	Recipient   string
	Receiver    common.Address
	Amount      decimal.Decimal
	ApproveTx   common.Hash
	TxHash      common.Hash
	ExplorerURL string
}

// Controller runs one payment at a time against the connected session.
type Controller struct {
	chain    Chain
	session  Session
	emitter  interfaces.EventEmitter
	notifier interfaces.Notifier
	logger   *zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	step     Step
	busy     bool
	observer func(Step)
}

// NewController wires the flow. emitter and notifier may be nil.
func NewController(ch Chain, session Session, emitter interfaces.EventEmitter, notifier interfaces.Notifier, logger *zerolog.Logger) *Controller {
	return &Controller{
		chain:    ch,
		session:  session,
		emitter:  emitter,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		step:     StepInput,
	}
}

// OnStep registers fn to be called on every step change.
func (c *Controller) OnStep(fn func(Step)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

type checked struct {
	account  wallet.Account
	epoch    uint64
	amount   decimal.Decimal
	units    *big.Int
	receiver common.Address
	sender   string
}

// Validate runs the pre-flight checks without touching the chain.
func (c *Controller) Validate(req Request) error {
	_, err := c.validate(req)
	return err
}

func (c *Controller) validate(req Request) (*checked, error) {
	acct, epoch := c.session.Account()
	snap := c.session.Snapshot()
	if acct == nil || !snap.Connected() {
		return nil, fmt.Errorf("%w: please connect your wallet first", errs.ErrAuthRequired)
	}

	if strings.TrimSpace(req.Recipient) == "" {
		return nil, &Rejection{Title: "Recipient required", Reason: "Please enter a recipient"}
	}

	amount, err := validation.ParseAmount(req.Amount)
	if err != nil {
		return nil, &Rejection{Title: "Invalid amount", Reason: "Please enter a valid amount"}
	}
	if amount.GreaterThan(snap.Balance) {
		return nil, &Rejection{Title: "Insufficient funds", Reason: "Your balance is too low for this transaction"}
	}

	if validation.ValidateAddress(req.RecipientAddress) != nil {
		return nil, &Rejection{Title: "Recipient address not found", Reason: "Please select a valid recipient from the search results"}
	}

	units := chain.ToUnits(amount, c.chain.Decimals())
	if units.Sign() <= 0 {
		return nil, &Rejection{Title: "Invalid amount", Reason: "Amount is smaller than the token's precision"}
	}

	return &checked{
		account:  acct,
		epoch:    epoch,
		amount:   amount,
		units:    units,
		receiver: common.HexToAddress(req.RecipientAddress),
		sender:   snap.Username,
	}, nil
}

// Send validates req and runs approve then send. Any failure returns the
// flow to the input step; nothing is retried.
func (c *Controller) Send(ctx context.Context, req Request) (*Receipt, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.busy = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	chk, err := c.validate(req)
	if err != nil {
		c.fail(err)
		return nil, err
	}

	recipient := strings.TrimSpace(req.Recipient)
	log := c.logger.With().
		Str("from", chk.account.Address().Hex()).
		Str("recipient", recipient).
		Str("amount", chk.amount.StringFixed(2)).
		Logger()

	c.setStep(StepApprove)
	approveTx, err := c.chain.Approve(ctx, chk.account, chk.units)
	if err != nil {
		log.Error().Err(err).Msg("Approval failed")
		c.setStep(StepInput)
		c.notifyError("Approval failed", err)
		return nil, chainErr(err)
	}

	c.setStep(StepSend)
	txHash, err := c.chain.SendPayment(ctx, chk.account, chk.units, chk.receiver)
	if err != nil {
		log.Error().Err(err).Str("approve_tx", approveTx.Hex()).Msg("Payment failed")
		c.setStep(StepInput)
		c.notifyError("Payment failed", err)
		return nil, chainErr(err)
	}

	c.setStep(StepComplete)
	now := c.now()
	receipt := &Receipt{
		Recipient:   recipient,
		Receiver:    chk.receiver,
		Amount:      chk.amount,
		ApproveTx:   approveTx,
		TxHash:      txHash,
		ExplorerURL: c.chain.ExplorerURL(txHash.Hex()),
	}

	record := models.Transaction{
		ID:                  txHash.Hex(),
		Counterparty:        recipient,
		CounterpartyAddress: chk.receiver.Hex(),
		Amount:              chk.amount,
		Timestamp:           now,
		Direction:           models.DirectionSent,
		Status:              models.StatusCompleted,
		Source:              models.SourceLocal,
	}
	if err := c.session.RecordPayment(chk.epoch, record); err != nil {
		// the transfer is on chain; only the local record is lost
		log.Warn().Err(err).Str("tx", txHash.Hex()).Msg("Session changed before the payment could be recorded")
	}

	c.publish(models.PaymentEvent{
		From:        chk.account.Address().Hex(),
		To:          chk.receiver.Hex(),
		Sender:      chk.sender,
		Recipient:   recipient,
		Amount:      chk.amount,
		ApproveTx:   approveTx.Hex(),
		TxHash:      txHash.Hex(),
		Chain:       c.chain.GetChainName(),
		Timestamp:   now,
		ExplorerURL: receipt.ExplorerURL,
	})

	log.Info().Str("tx", txHash.Hex()).Msg("Payment sent")
	if c.notifier != nil {
		c.notifier.Success("Money sent!", fmt.Sprintf("$%s sent to %s", chk.amount.StringFixed(2), recipient))
	}
	c.setStep(StepInput)
	return receipt, nil
}

func (c *Controller) publish(event models.PaymentEvent) {
	if c.emitter == nil {
		return
	}
	if err := c.emitter.EmitEvent(event); err != nil {
		c.logger.Error().Err(err).Str("tx", event.TxHash).Msg("Failed to publish payment event")
	}
}

func (c *Controller) fail(err error) {
	var rej *Rejection
	if errors.As(err, &rej) {
		if c.notifier != nil {
			c.notifier.Error(rej.Title, rej.Reason)
		}
		return
	}
	c.notifyError(errs.Title(err), err)
}

func (c *Controller) notifyError(title string, err error) {
	if c.notifier != nil {
		c.notifier.Error(title, err.Error())
	}
}

func (c *Controller) setStep(step Step) {
	c.mu.Lock()
	c.step = step
	observer := c.observer
	c.mu.Unlock()

	if observer != nil {
		observer(step)
	}
}

// chainErr makes sure a failed transfer is classified as a chain error.
func chainErr(err error) error {
	if errors.Is(err, errs.ErrChain) {
		return err
	}
	return fmt.Errorf("%w: %w", errs.ErrChain, err)
}
