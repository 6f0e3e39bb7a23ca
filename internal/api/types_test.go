package api

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solva-wallet/internal/errs"
	"solva-wallet/internal/models"
)

const testTxHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

func TestTransaction_ToModel(t *testing.T) {
	tests := []struct {
		name             string
		tx               Transaction
		viewer           string
		wantDirection    models.Direction
		wantCounterparty string
	}{
		{
			name:             "sent by viewer",
			tx:               Transaction{SenderUsername: "alice", ReceiverUsername: "bob", Type: TransactionTypeP2P},
			viewer:           "alice",
			wantDirection:    models.DirectionSent,
			wantCounterparty: "bob",
		},
		{
			name:             "received by viewer",
			tx:               Transaction{SenderUsername: "bob", ReceiverUsername: "alice", Type: TransactionTypeP2P},
			viewer:           "alice",
			wantDirection:    models.DirectionReceived,
			wantCounterparty: "bob",
		},
		{
			name:             "sender match ignores case",
			tx:               Transaction{SenderUsername: "Alice", ReceiverUsername: "bob", Type: TransactionTypeP2P},
			viewer:           "alice",
			wantDirection:    models.DirectionSent,
			wantCounterparty: "bob",
		},
		{
			name:             "top up",
			tx:               Transaction{SenderUsername: "alice", ReceiverUsername: "alice", Type: TransactionTypeTopUp},
			viewer:           "alice",
			wantDirection:    models.DirectionTopUp,
			wantCounterparty: "Wallet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.tx.Amount = decimal.NewFromInt(5)
			tt.tx.TransactionHash = testTxHash
			tt.tx.CreatedAt = "2025-03-30T12:34:56.123456"

			got, err := tt.tx.ToModel(tt.viewer)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDirection, got.Direction)
			assert.Equal(t, tt.wantCounterparty, got.Counterparty)
			assert.Equal(t, testTxHash, got.ID)
			assert.Equal(t, models.SourceBackend, got.Source)
			assert.Equal(t, models.StatusCompleted, got.Status)
		})
	}
}

func TestTransaction_ToModelRejectsMalformedRecords(t *testing.T) {
	valid := Transaction{
		SenderUsername:   "alice",
		ReceiverUsername: "bob",
		Amount:           decimal.NewFromInt(5),
		Type:             TransactionTypeP2P,
		TransactionHash:  testTxHash,
		CreatedAt:        "2025-03-30T12:34:56",
	}

	badHash := valid
	badHash.TransactionHash = "0x01"
	_, err := badHash.ToModel("alice")
	assert.ErrorIs(t, err, errs.ErrValidation)

	noHash := valid
	noHash.TransactionHash = ""
	_, err = noHash.ToModel("alice")
	assert.ErrorIs(t, err, errs.ErrValidation)

	badTime := valid
	badTime.CreatedAt = "yesterday"
	_, err = badTime.ToModel("alice")
	assert.Error(t, err)
}

func TestTransaction_CreatedAtTime(t *testing.T) {
	for _, raw := range []string{
		"2025-03-30T12:34:56Z",
		"2025-03-30T12:34:56.123456",
		"2025-03-30T12:34:56",
		"2025-03-30 12:34:56",
	} {
		t.Run(raw, func(t *testing.T) {
			ts, err := Transaction{CreatedAt: raw}.CreatedAtTime()
			require.NoError(t, err)
			assert.Equal(t, 2025, ts.Year())
			assert.Equal(t, time.March, ts.Month())
			assert.Equal(t, 34, ts.Minute())
		})
	}

	_, err := Transaction{CreatedAt: "yesterday"}.CreatedAtTime()
	assert.Error(t, err)
}
