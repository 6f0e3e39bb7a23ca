package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"solva-wallet/internal/api"
	"solva-wallet/internal/errs"
	"solva-wallet/internal/validation"
)

var errAuthRequired = fmt.Errorf("%w: please connect your wallet first", errs.ErrAuthRequired)

// CheckRegistration asks the backend whether the connected wallet has a
// username. A registered answer without a username counts as unregistered.
func (s *Store) CheckRegistration(ctx context.Context) (bool, error) {
	creds, err := s.credentials()
	if err != nil {
		return false, err
	}

	registered, err := s.checkRegistration(ctx, creds.token, creds.epoch)
	if err != nil {
		return false, err
	}

	s.applyIfCurrent(creds.epoch, func() {
		if !s.isAuthenticating {
			s.state = stateFor(registered)
		}
	})
	return registered, nil
}

func (s *Store) checkRegistration(ctx context.Context, token string, epoch uint64) (bool, error) {
	resp, err := s.backend.IsRegistered(ctx, token)
	if err != nil {
		return false, err
	}

	username := ""
	if resp.Username != nil {
		username = strings.TrimSpace(*resp.Username)
	}
	registered := resp.Registered && username != ""

	if !s.applyIfCurrent(epoch, func() {
		s.isRegistered = registered
		if registered {
			s.username = username
		} else {
			s.username = ""
		}
	}) {
		return false, errs.ErrStaleSession
	}

	if registered {
		s.spawnUserData(ctx, token, epoch)
	}
	return registered, nil
}

// Register claims username for the connected wallet. Without a backend
// session or with a malformed name no request is made.
func (s *Store) Register(ctx context.Context, username string) error {
	creds, err := s.credentials()
	if err != nil {
		s.notifier.Error("Authentication required", "Please connect your wallet first")
		return err
	}

	username = strings.TrimSpace(username)
	if err := validation.ValidateUsername(username); err != nil {
		s.notifier.Error("Registration failed", validation.Message(err))
		return err
	}

	log := s.logger.With().Str("username", username).Logger()

	ok, err := s.backend.Register(ctx, creds.token, username)
	if err == nil && !ok {
		err = fmt.Errorf("%w: could not register username", errs.ErrBackend)
	}
	if err != nil {
		log.Error().Err(err).Msg("Registration failed")
		s.notifier.Error("Registration failed", describe(err))
		return err
	}

	if !s.applyIfCurrent(creds.epoch, func() {
		s.isRegistered = true
		s.username = username
		s.state = stateFor(true)
	}) {
		return errs.ErrStaleSession
	}

	log.Info().Msg("Username registered")
	s.notifier.Success("Registration successful", fmt.Sprintf("Welcome, %s!", username))
	s.spawnUserData(ctx, creds.token, creds.epoch)
	return nil
}

// CheckUsername reports whether username is free. Names failing the format
// rule are rejected locally.
func (s *Store) CheckUsername(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if err := validation.ValidateUsername(username); err != nil {
		return false, err
	}

	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	return s.backend.UsernameAvailable(ctx, token, username)
}

// describe turns err into notification text. Backend field validation
// messages are shown as sent.
func describe(err error) string {
	if err == nil {
		return ""
	}
	var be *api.BackendError
	if api.IsValidation(err) && errors.As(err, &be) {
		return be.Detail()
	}
	return err.Error()
}

func isStale(err error) bool {
	return errors.Is(err, errs.ErrStaleSession)
}
