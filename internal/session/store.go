// Package session is the single source of truth for the wallet connection,
// backend authentication, registration and the user's derived data.
// Views read snapshots and call Store methods; nothing else mutates it.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solva-wallet/internal/api"
	"solva-wallet/internal/errs"
	"solva-wallet/internal/interfaces"
	"solva-wallet/internal/models"
	"solva-wallet/internal/wallet"
)

// Backend is the part of the backend API the store drives.
type Backend interface {
	RequestAuthMessage(ctx context.Context, address string) (string, error)
	Login(ctx context.Context, address, signature string) (*api.AuthLoginResponse, error)
	Register(ctx context.Context, token, username string) (bool, error)
	IsRegistered(ctx context.Context, token string) (*api.AuthIsRegisteredResponse, error)
	UsernameAvailable(ctx context.Context, token, username string) (bool, error)
	Avatar(ctx context.Context, token string) (string, error)
	UploadAvatar(ctx context.Context, token, filename string, content io.Reader) (string, error)
	Transactions(ctx context.Context, token string) ([]api.Transaction, error)
}

// BalanceReader reads the token balance of an address.
type BalanceReader interface {
	BalanceOf(ctx context.Context, owner common.Address) (decimal.Decimal, error)
}

// Store holds one wallet session at a time. Every response is tagged with the
// epoch it was requested under and dropped if the session changed meanwhile.
type Store struct {
	backend  Backend
	balances BalanceReader
	notifier interfaces.Notifier
	logger   *zerolog.Logger
	now      func() time.Time

	mu               sync.RWMutex
	state            models.SessionState
	account          wallet.Account
	pending          wallet.Account
	token            string
	isAuthenticating bool
	isRegistered     bool
	username         string
	avatarURL        string
	balance          decimal.Decimal
	balanceLoads     int
	local            []models.Transaction
	remote           []models.Transaction
	epoch            uint64

	wg sync.WaitGroup
}

// New creates an empty, disconnected store. notifier may be nil.
func New(backend Backend, balances BalanceReader, notifier interfaces.Notifier, logger *zerolog.Logger) *Store {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Store{
		backend:  backend,
		balances: balances,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		state:    models.StateDisconnected,
	}
}

type nopNotifier struct{}

func (nopNotifier) Success(string, string) {}
func (nopNotifier) Error(string, string)   {}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.Session{
		State:            s.state,
		Authenticated:    s.token != "",
		IsAuthenticating: s.isAuthenticating,
		IsRegistered:     s.isRegistered,
		Username:         s.username,
		AvatarURL:        s.avatarURL,
		Balance:          s.balance,
		IsLoadingBalance: s.balanceLoads > 0,
		Epoch:            s.epoch,
	}
	switch {
	case s.account != nil:
		snap.Address = s.account.Address().Hex()
	case s.pending != nil:
		snap.Address = s.pending.Address().Hex()
	}
	return snap
}

// Account returns the bound wallet account and the epoch it belongs to.
// The account is nil unless a backend session exists.
func (s *Store) Account() (wallet.Account, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return nil, s.epoch
	}
	return s.account, s.epoch
}

// Wait blocks until background fetches started by the store have finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// OnAccountChange reacts to the wallet reporting a new account, or none.
func (s *Store) OnAccountChange(ctx context.Context, acct wallet.Account) error {
	if acct == nil {
		s.Disconnect()
		return nil
	}

	s.mu.Lock()
	if s.account != nil && s.token != "" && wallet.SameAccount(s.account, acct) {
		s.mu.Unlock()
		return nil
	}
	if s.isAuthenticating {
		s.mu.Unlock()
		s.logger.Debug().Str("address", acct.Address().Hex()).Msg("Authentication already in progress, ignoring account change")
		return nil
	}
	s.resetLocked()
	s.state = models.StateAuthenticating
	s.isAuthenticating = true
	s.pending = acct
	epoch := s.epoch
	s.mu.Unlock()

	log := s.logger.With().Str("address", acct.Address().Hex()).Logger()
	log.Info().Msg("Authenticating wallet account")

	token, err := s.authenticate(ctx, acct)
	if err != nil {
		if s.applyIfCurrent(epoch, s.resetLocked) {
			log.Error().Err(err).Msg("Authentication failed")
			s.notifier.Error("Authentication failed", describe(err))
			return err
		}
		return errs.ErrStaleSession
	}

	if !s.applyIfCurrent(epoch, func() {
		s.token = token
		s.account = acct
		s.pending = nil
	}) {
		log.Debug().Msg("Session changed during authentication, dropping token")
		return errs.ErrStaleSession
	}

	registered, err := s.checkRegistration(ctx, token, epoch)
	if err != nil && !isStale(err) {
		log.Warn().Err(err).Msg("Registration check failed, treating as unregistered")
	}

	if !s.applyIfCurrent(epoch, func() {
		s.isAuthenticating = false
		s.state = stateFor(registered)
	}) {
		return errs.ErrStaleSession
	}

	s.spawn(ctx, func(ctx context.Context) {
		_ = s.refreshBalance(ctx, acct.Address(), epoch)
	})

	log.Info().Bool("registered", registered).Msg("Wallet connected")
	return nil
}

// authenticate runs challenge, signature and login strictly in order.
func (s *Store) authenticate(ctx context.Context, acct wallet.Account) (string, error) {
	address := acct.Address().Hex()

	message, err := s.backend.RequestAuthMessage(ctx, address)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrAuth, err)
	}
	if message == "" {
		return "", fmt.Errorf("%w: could not get message to sign", errs.ErrAuth)
	}

	signature, err := acct.SignMessage(ctx, message)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrAuth, err)
	}
	signer, err := wallet.RecoverSigner(message, signature)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrAuth, err)
	}
	if signer != acct.Address() {
		return "", fmt.Errorf("%w: signature was made by %s, not %s", errs.ErrAuth, signer.Hex(), address)
	}

	resp, err := s.backend.Login(ctx, address, signature)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrAuth, err)
	}
	if resp == nil || resp.AccessToken == "" {
		return "", fmt.Errorf("%w: invalid response from server", errs.ErrAuth)
	}
	return resp.AccessToken, nil
}

// Disconnect discards the whole session. Responses still in flight for it
// are dropped when they arrive.
func (s *Store) Disconnect() {
	s.mu.Lock()
	wasConnected := s.token != "" || s.isAuthenticating
	s.resetLocked()
	s.mu.Unlock()

	if wasConnected {
		s.logger.Info().Msg("Wallet disconnected")
	}
}

func (s *Store) resetLocked() {
	s.epoch++
	s.state = models.StateDisconnected
	s.account = nil
	s.pending = nil
	s.token = ""
	s.isAuthenticating = false
	s.isRegistered = false
	s.username = ""
	s.avatarURL = ""
	s.balance = decimal.Zero
	s.balanceLoads = 0
	s.local = nil
	s.remote = nil
}

// applyIfCurrent runs fn under the lock if the session has not changed since epoch.
func (s *Store) applyIfCurrent(epoch uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	fn()
	return true
}

type credentials struct {
	token   string
	account wallet.Account
	epoch   uint64
}

func (s *Store) credentials() (credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || s.account == nil {
		return credentials{}, errAuthRequired
	}
	return credentials{token: s.token, account: s.account, epoch: s.epoch}, nil
}

// spawn runs fn in the background, detached from the caller's cancellation.
func (s *Store) spawn(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

func stateFor(registered bool) models.SessionState {
	if registered {
		return models.StateConnectedRegistered
	}
	return models.StateConnectedUnregistered
}
