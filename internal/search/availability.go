package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solva-wallet/internal/debounce"
	"solva-wallet/internal/validation"
)

// UsernameChecker asks the backend whether a username is free.
type UsernameChecker interface {
	CheckUsername(ctx context.Context, username string) (bool, error)
}

// Availability is the state shown under the username field.
type Availability struct {
	Username  string
	Valid     bool
	Checking  bool
	Available bool
	Message   string
}

type AvailabilityChecker struct {
	checker   UsernameChecker
	debouncer *debounce.Debouncer
	logger    *zerolog.Logger

	mu    sync.RWMutex
	state Availability
}

func NewAvailabilityChecker(checker UsernameChecker, wait time.Duration, logger *zerolog.Logger) *AvailabilityChecker {
	return &AvailabilityChecker{
		checker:   checker,
		debouncer: debounce.New(wait),
		logger:    logger,
	}
}

// SetUsername validates the input right away and asks the backend after
// the quiet window. Malformed names never reach the backend.
func (a *AvailabilityChecker) SetUsername(ctx context.Context, username string) {
	username = strings.TrimSpace(username)
	if username == "" {
		a.debouncer.Cancel()
		a.set(Availability{})
		return
	}
	if err := validation.ValidateUsername(username); err != nil {
		a.debouncer.Cancel()
		a.set(Availability{Username: username, Message: validation.Message(err)})
		return
	}

	a.set(Availability{Username: username, Valid: true, Checking: true, Message: "Checking availability..."})

	a.debouncer.Trigger(ctx, func(ctx context.Context, commit debounce.Commit) {
		available, err := a.checker.CheckUsername(ctx, username)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			// a failed lookup reads as taken
			a.logger.Warn().Err(err).Str("username", username).Msg("Username availability check failed")
			available = false
		}
		state := Availability{Username: username, Valid: true, Available: available, Message: "Username is already taken"}
		if available {
			state.Message = "Username is available!"
		}
		commit(func() { a.set(state) })
	})
}

func (a *AvailabilityChecker) Wait() {
	a.debouncer.Wait()
}

func (a *AvailabilityChecker) State() Availability {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *AvailabilityChecker) Stop() {
	a.debouncer.Cancel()
}

func (a *AvailabilityChecker) set(s Availability) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}
