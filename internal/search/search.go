// Package search implements the debounced user lookup and username
// availability check used while typing.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solva-wallet/internal/api"
	"solva-wallet/internal/debounce"
	"solva-wallet/internal/errs"
	"solva-wallet/internal/models"
)

// UserSearcher is the backend user search endpoint.
type UserSearcher interface {
	SearchUsers(ctx context.Context, query string, limit int) (*api.SearchUsersResponse, error)
}

// Results is the state of the search box.
type Results struct {
	Query   string
	Users   []models.SearchResult
	Loading bool
	Err     error
}

type Searcher struct {
	client    UserSearcher
	limit     int
	debouncer *debounce.Debouncer
	logger    *zerolog.Logger

	mu      sync.RWMutex
	results Results
}

func NewSearcher(client UserSearcher, wait time.Duration, limit int, logger *zerolog.Logger) *Searcher {
	return &Searcher{
		client:    client,
		limit:     limit,
		debouncer: debounce.New(wait),
		logger:    logger,
	}
}

// SetQuery records what the user typed. Blank input clears the results
// without a request; anything else is searched after the quiet window.
func (s *Searcher) SetQuery(ctx context.Context, query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		s.debouncer.Cancel()
		s.set(Results{})
		return
	}

	s.mu.Lock()
	s.results.Query = query
	s.results.Loading = true
	s.mu.Unlock()

	s.debouncer.Trigger(ctx, func(ctx context.Context, commit debounce.Commit) {
		resp, err := s.client.SearchUsers(ctx, query, s.limit)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Str("query", query).Msg("User search failed")
			commit(func() { s.set(Results{Query: query, Err: err}) })
			return
		}
		commit(func() { s.set(Results{Query: query, Users: resp.Users}) })
	})
}

// Wait blocks until the pending search, if any, has settled.
func (s *Searcher) Wait() {
	s.debouncer.Wait()
}

func (s *Searcher) Results() Results {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.results
	r.Users = append([]models.SearchResult(nil), s.results.Users...)
	return r
}

// Resolve looks a username up immediately and returns the exact match.
func (s *Searcher) Resolve(ctx context.Context, username string) (models.SearchResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.SearchResult{}, fmt.Errorf("%w: recipient is required", errs.ErrValidation)
	}
	resp, err := s.client.SearchUsers(ctx, username, s.limit)
	if err != nil {
		return models.SearchResult{}, err
	}
	for _, u := range resp.Users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return models.SearchResult{}, fmt.Errorf("%w: user %q not found", errs.ErrValidation, username)
}

func (s *Searcher) Stop() {
	s.debouncer.Cancel()
}

func (s *Searcher) set(r Results) {
	s.mu.Lock()
	s.results = r
	s.mu.Unlock()
}
