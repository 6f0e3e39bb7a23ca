package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// Confirmer asks the user to approve a signature request.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// ConfirmingAccount asks before every signature, like a wallet popup.
type ConfirmingAccount struct {
	Account
	confirmer Confirmer
}

func NewConfirmingAccount(acct Account, confirmer Confirmer) *ConfirmingAccount {
	return &ConfirmingAccount{Account: acct, confirmer: confirmer}
}

func (c *ConfirmingAccount) SignMessage(ctx context.Context, message string) (string, error) {
	if err := c.ask(ctx, fmt.Sprintf("Sign login message for %s?\n%s", c.Address().Hex(), message)); err != nil {
		return "", err
	}
	return c.Account.SignMessage(ctx, message)
}

func (c *ConfirmingAccount) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	to := "contract creation"
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	if err := c.ask(ctx, fmt.Sprintf("Sign transaction to %s (gas %d)?", to, tx.Gas())); err != nil {
		return nil, err
	}
	return c.Account.SignTx(ctx, tx, chainID)
}

func (c *ConfirmingAccount) ask(ctx context.Context, prompt string) error {
	ok, err := c.confirmer.Confirm(ctx, prompt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if !ok {
		return ErrRejected
	}
	return nil
}
