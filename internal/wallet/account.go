// Package wallet holds the user's signing identity: accounts that sign login
// challenges and transactions, and the connector that reports account changes.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrRejected is returned when the user declines a signature request.
var ErrRejected = errors.New("signature request rejected by user")

// Account is a wallet identity able to sign messages and transactions.
type Account interface {
	Address() common.Address
	// SignMessage returns an EIP-191 personal_sign signature, 0x-hex encoded.
	SignMessage(ctx context.Context, message string) (string, error)
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// LocalAccount signs with an in-memory private key.
type LocalAccount struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewLocalAccount(key *ecdsa.PrivateKey) *LocalAccount {
	return &LocalAccount{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// FromHex loads an account from a hex-encoded private key, with or without 0x.
func FromHex(hexKey string) (*LocalAccount, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewLocalAccount(key), nil
}

// FromKeystore decrypts a geth-style keystore JSON file.
func FromKeystore(path, passphrase string) (*LocalAccount, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}
	key, err := keystore.DecryptKey(raw, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
	}
	return NewLocalAccount(key.PrivateKey), nil
}

func (a *LocalAccount) Address() common.Address {
	return a.address
}

func (a *LocalAccount) SignMessage(_ context.Context, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	// personal_sign convention: V is 27/28
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

func (a *LocalAccount) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), a.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// RecoverSigner returns the address that produced a SignMessage signature.
func RecoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SameAccount compares two possibly nil accounts by address.
func SameAccount(a, b Account) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Address() == b.Address()
}
