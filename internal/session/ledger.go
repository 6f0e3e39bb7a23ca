package session

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"solva-wallet/internal/errs"
	"solva-wallet/internal/models"
)

// Transactions merges backend history with local records. A backend record
// supersedes a local one with the same id. Most recent first.
func (s *Store) Transactions() []models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.remote))
	merged := make([]models.Transaction, 0, len(s.remote)+len(s.local))
	for _, tx := range s.remote {
		seen[tx.ID] = struct{}{}
		merged = append(merged, tx)
	}
	for _, tx := range s.local {
		if _, dup := seen[tx.ID]; dup {
			continue
		}
		merged = append(merged, tx)
	}
	models.SortTransactions(merged)
	return merged
}

// RecordPayment adds a completed outgoing payment and takes its amount off
// the balance. It fails if the session changed since epoch.
func (s *Store) RecordPayment(epoch uint64, record models.Transaction) error {
	if !record.Amount.IsPositive() {
		return fmt.Errorf("%w: payment amount must be positive", errs.ErrValidation)
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now()
	}
	record.Direction = models.DirectionSent
	record.Source = models.SourceLocal
	if record.Status == "" {
		record.Status = models.StatusCompleted
	}

	var ok bool
	s.applyIfCurrent(epoch, func() {
		if s.token == "" {
			return
		}
		s.local = append([]models.Transaction{record}, s.local...)
		s.balance = s.balance.Sub(record.Amount)
		ok = true
	})
	if !ok {
		return errs.ErrStaleSession
	}

	s.logger.Info().
		Str("tx", record.ID).
		Str("recipient", record.Counterparty).
		Str("amount", record.Amount.StringFixed(2)).
		Msg("Payment recorded")
	return nil
}

// TopUp credits the local balance and records a top-up entry.
func (s *Store) TopUp(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		err := fmt.Errorf("%w: top-up amount must be positive", errs.ErrValidation)
		s.notifier.Error("Invalid amount", "Top-up amount must be positive")
		return err
	}

	creds, err := s.credentials()
	if err != nil {
		s.notifier.Error("Authentication required", "Please connect your wallet first")
		return err
	}

	record := models.Transaction{
		ID:           uuid.NewString(),
		Counterparty: "Wallet",
		Amount:       amount,
		Timestamp:    s.now(),
		Direction:    models.DirectionTopUp,
		Status:       models.StatusCompleted,
		Source:       models.SourceLocal,
	}

	if !s.applyIfCurrent(creds.epoch, func() {
		s.local = append([]models.Transaction{record}, s.local...)
		s.balance = s.balance.Add(amount)
	}) {
		return errs.ErrStaleSession
	}

	s.logger.Info().Str("amount", amount.StringFixed(2)).Msg("Balance topped up")
	s.notifier.Success(fmt.Sprintf("Added $%s to your wallet", amount.StringFixed(2)), "Your balance has been updated")
	return nil
}
