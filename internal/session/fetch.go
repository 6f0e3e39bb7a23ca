package session

import (
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"solva-wallet/internal/errs"
	"solva-wallet/internal/models"
)

// spawnUserData starts the non-fatal avatar and history fetches that follow
// a confirmed registration.
func (s *Store) spawnUserData(ctx context.Context, token string, epoch uint64) {
	s.spawn(ctx, func(ctx context.Context) {
		if err := s.fetchAvatar(ctx, token, epoch); err != nil && !isStale(err) {
			s.logger.Debug().Err(err).Msg("Avatar fetch failed")
		}
	})
	s.spawn(ctx, func(ctx context.Context) {
		if err := s.fetchTransactions(ctx, token, epoch); err != nil && !isStale(err) {
			s.logger.Warn().Err(err).Msg("Transaction history fetch failed")
		}
	})
}

// RefreshBalance reads the wallet's token balance from the chain.
func (s *Store) RefreshBalance(ctx context.Context) error {
	creds, err := s.credentials()
	if err != nil {
		return err
	}
	return s.refreshBalance(ctx, creds.account.Address(), creds.epoch)
}

func (s *Store) refreshBalance(ctx context.Context, owner common.Address, epoch uint64) error {
	if s.balances == nil {
		return nil
	}
	if !s.applyIfCurrent(epoch, func() { s.balanceLoads++ }) {
		return errs.ErrStaleSession
	}

	balance, err := s.balances.BalanceOf(ctx, owner)

	if !s.applyIfCurrent(epoch, func() {
		s.balanceLoads--
		if err == nil {
			s.balance = balance
		}
	}) {
		return errs.ErrStaleSession
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("address", owner.Hex()).Msg("Balance refresh failed")
		return err
	}
	s.logger.Debug().Str("address", owner.Hex()).Str("balance", balance.StringFixed(2)).Msg("Balance refreshed")
	return nil
}

// FetchTransactions replaces the backend copy of the history. Unregistered
// sessions have no history and are skipped.
func (s *Store) FetchTransactions(ctx context.Context) error {
	creds, err := s.credentials()
	if err != nil {
		return err
	}
	return s.fetchTransactions(ctx, creds.token, creds.epoch)
}

func (s *Store) fetchTransactions(ctx context.Context, token string, epoch uint64) error {
	s.mu.RLock()
	username := s.username
	s.mu.RUnlock()
	if username == "" {
		return nil
	}

	raw, err := s.backend.Transactions(ctx, token)
	if err != nil {
		return err
	}

	records := make([]models.Transaction, 0, len(raw))
	for _, tx := range raw {
		record, err := tx.ToModel(username)
		if err != nil {
			s.logger.Warn().Err(err).Str("tx", tx.TransactionHash).Msg("Skipping malformed transaction")
			continue
		}
		records = append(records, record)
	}
	models.SortTransactions(records)

	if !s.applyIfCurrent(epoch, func() { s.remote = records }) {
		return errs.ErrStaleSession
	}
	s.logger.Debug().Int("count", len(records)).Msg("Transaction history loaded")
	return nil
}

// FetchAvatar reloads the profile picture URL.
func (s *Store) FetchAvatar(ctx context.Context) error {
	creds, err := s.credentials()
	if err != nil {
		return err
	}
	return s.fetchAvatar(ctx, creds.token, creds.epoch)
}

func (s *Store) fetchAvatar(ctx context.Context, token string, epoch uint64) error {
	avatarURL, err := s.backend.Avatar(ctx, token)
	if err != nil {
		return err
	}
	if avatarURL == "" {
		return nil
	}
	if !s.applyIfCurrent(epoch, func() { s.avatarURL = avatarURL }) {
		return errs.ErrStaleSession
	}
	return nil
}

// Refresh reloads balance, history and avatar concurrently.
func (s *Store) Refresh(ctx context.Context) error {
	creds, err := s.credentials()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.refreshBalance(gctx, creds.account.Address(), creds.epoch)
	})
	g.Go(func() error {
		return s.fetchTransactions(gctx, creds.token, creds.epoch)
	})
	g.Go(func() error {
		return s.fetchAvatar(gctx, creds.token, creds.epoch)
	})
	return g.Wait()
}

// UploadAvatar replaces the user's avatar with the given image.
func (s *Store) UploadAvatar(ctx context.Context, filename string, content io.Reader) error {
	creds, err := s.credentials()
	if err != nil {
		s.notifier.Error("Authentication required", "Please connect your wallet first")
		return err
	}

	avatarURL, err := s.backend.UploadAvatar(ctx, creds.token, filename, content)
	if err == nil && avatarURL == "" {
		err = fmt.Errorf("%w: empty avatar url", errs.ErrBackend)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("file", filename).Msg("Avatar upload failed")
		s.notifier.Error("Avatar upload failed", describe(err))
		return err
	}

	if !s.applyIfCurrent(creds.epoch, func() { s.avatarURL = avatarURL }) {
		return errs.ErrStaleSession
	}
	s.notifier.Success("Avatar updated successfully", "")
	return nil
}
