// Package health serves local liveness, readiness and session status
// endpoints, and tracks the chain head the client is talking to.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"solva-wallet/internal/interfaces"
	"solva-wallet/internal/models"
)

type BlockchainStatus struct {
	Name      string    `json:"name"`
	LastBlock uint64    `json:"last_block"`
	SeenAt    time.Time `json:"seen_at"`
}

// Monitor holds readiness state. A chain is considered live when its head
// was read within the stale window.
type Monitor struct {
	logger   *zerolog.Logger
	snapshot func() models.Session
	interval time.Duration
	stale    time.Duration
	now      func() time.Time

	isReady     int32
	statusMutex sync.RWMutex
	statuses    map[string]*BlockchainStatus
}

// NewMonitor creates a monitor polling heads every interval. snapshot
// feeds the /status endpoint and may be nil.
func NewMonitor(interval time.Duration, snapshot func() models.Session, logger *zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		logger:   logger,
		snapshot: snapshot,
		interval: interval,
		stale:    3 * interval,
		now:      time.Now,
		statuses: make(map[string]*BlockchainStatus),
	}
}

func (m *Monitor) SetReady(ready bool) {
	if ready {
		atomic.StoreInt32(&m.isReady, 1)
	} else {
		atomic.StoreInt32(&m.isReady, 0)
	}
}

// Router returns the status endpoints.
func (m *Monitor) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", m.LivenessHandler)
	r.Get("/readyz", m.ReadinessHandler)
	r.Get("/status", m.StatusHandler)
	return r
}

func (m *Monitor) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (m *Monitor) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	m.statusMutex.RLock()
	defer m.statusMutex.RUnlock()

	live := 0
	for _, status := range m.statuses {
		if m.now().Sub(status.SeenAt) <= m.stale {
			live++
		}
	}

	if live == 0 || atomic.LoadInt32(&m.isReady) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Not Ready"))
		return
	}

	response := make(map[string]interface{})
	response["status"] = "Ready"
	response["blockchains"] = m.statuses

	writeJSON(w, http.StatusOK, response)
}

// StatusHandler reports the current session snapshot.
func (m *Monitor) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	if m.snapshot == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"session": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": m.snapshot()})
}

// RegisterSource polls source's head until ctx is done.
func (m *Monitor) RegisterSource(ctx context.Context, source interfaces.HeadSource) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			m.poll(ctx, source)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (m *Monitor) poll(ctx context.Context, source interfaces.HeadSource) {
	blockhead, err := source.BlockHead(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error().
				Err(err).
				Str("chain", source.GetChainName().String()).
				Msg("Error getting latest block")
		}
		return
	}
	m.updateBlockchainStatus(source.GetChainName().String(), blockhead)
}

func (m *Monitor) updateBlockchainStatus(name string, lastBlock uint64) {
	m.statusMutex.Lock()
	defer m.statusMutex.Unlock()
	m.statuses[name] = &BlockchainStatus{
		Name:      name,
		LastBlock: lastBlock,
		SeenAt:    m.now(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
