package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"solva-wallet/internal/models"
	"solva-wallet/internal/validation"
)

type AuthMessageRequest struct {
	Address string `json:"address"`
}

type AuthMessageResponse struct {
	Message string `json:"message"`
}

type AuthLoginRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type AuthLoginResponse struct {
	AccessToken string `json:"access_token"`
	Address     string `json:"address"`
}

type AuthRegisterRequest struct {
	Username string `json:"username"`
}

type AuthRegisterResponse struct {
	Success bool `json:"success"`
}

type AuthIsRegisteredResponse struct {
	Registered bool    `json:"registered"`
	Username   *string `json:"username"`
}

type AuthCheckUsernameResponse struct {
	Available bool `json:"available"`
}

type SearchUsersResponse struct {
	Users []models.SearchResult `json:"users"`
}

type GetTransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

const (
	TransactionTypeTopUp = "topup"
	TransactionTypeP2P   = "p2p"
)

// Transaction is a record of the backend's authoritative transaction log
type Transaction struct {
	SenderUsername   string          `json:"sender_username"`
	ReceiverUsername string          `json:"receiver_username"`
	Amount           decimal.Decimal `json:"amount"`
	Type             string          `json:"type"`
	TransactionHash  string          `json:"transaction_hash"`
	CreatedAt        string          `json:"created_at"`
}

// The backend serialises naive timestamps; those are treated as UTC.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// CreatedAtTime parses CreatedAt.
func (t Transaction) CreatedAtTime() (time.Time, error) {
	raw := strings.TrimSpace(t.CreatedAt)
	for _, layout := range createdAtLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised created_at %q", t.CreatedAt)
}

// ToModel maps the record onto the viewer's perspective. Top-ups are always
// topup; p2p records are sent when the viewer is the sender.
func (t Transaction) ToModel(viewer string) (models.Transaction, error) {
	if err := validation.ValidateTxHash(t.TransactionHash); err != nil {
		return models.Transaction{}, err
	}
	ts, err := t.CreatedAtTime()
	if err != nil {
		return models.Transaction{}, err
	}

	tx := models.Transaction{
		ID:        t.TransactionHash,
		Amount:    t.Amount,
		Timestamp: ts,
		Status:    models.StatusCompleted,
		Source:    models.SourceBackend,
	}

	switch {
	case t.Type == TransactionTypeTopUp:
		tx.Direction = models.DirectionTopUp
		tx.Counterparty = "Wallet"
	case strings.EqualFold(t.SenderUsername, viewer):
		tx.Direction = models.DirectionSent
		tx.Counterparty = t.ReceiverUsername
	default:
		tx.Direction = models.DirectionReceived
		tx.Counterparty = t.SenderUsername
	}

	return tx, nil
}
