package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solva-wallet/internal/models"
)

type fakeSource struct {
	head  uint64
	err   error
	calls int32
}

func (f *fakeSource) GetChainName() models.BlockchainName { return models.Polygon }

func (f *fakeSource) BlockHead(context.Context) (uint64, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.head, f.err
}

func newTestMonitor(snapshot func() models.Session) *Monitor {
	logger := zerolog.Nop()
	return NewMonitor(time.Second, snapshot, &logger)
}

func serve(m *Monitor, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	m.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLiveness(t *testing.T) {
	rec := serve(newTestMonitor(nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReadiness(t *testing.T) {
	m := newTestMonitor(nil)

	assert.Equal(t, http.StatusServiceUnavailable, serve(m, "/readyz").Code)

	m.SetReady(true)
	assert.Equal(t, http.StatusServiceUnavailable, serve(m, "/readyz").Code, "no head seen yet")

	m.poll(context.Background(), &fakeSource{head: 1234})
	rec := serve(m, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status      string                       `json:"status"`
		Blockchains map[string]*BlockchainStatus `json:"blockchains"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Ready", body.Status)
	assert.Equal(t, uint64(1234), body.Blockchains["Polygon"].LastBlock)

	// a head older than the stale window no longer counts
	m.now = func() time.Time { return time.Now().Add(time.Minute) }
	assert.Equal(t, http.StatusServiceUnavailable, serve(m, "/readyz").Code)
}

func TestPollErrorKeepsPreviousStatus(t *testing.T) {
	m := newTestMonitor(nil)
	m.poll(context.Background(), &fakeSource{head: 10})
	m.poll(context.Background(), &fakeSource{err: errors.New("rpc down")})

	assert.Equal(t, uint64(10), m.statuses["Polygon"].LastBlock)
}

func TestRegisterSource(t *testing.T) {
	m := newTestMonitor(nil)
	src := &fakeSource{head: 7}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.RegisterSource(ctx, src)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&src.calls) > 0 }, time.Second, 5*time.Millisecond)
}

func TestStatus(t *testing.T) {
	m := newTestMonitor(func() models.Session {
		return models.Session{State: models.StateConnectedRegistered, Username: "alice", Balance: decimal.NewFromInt(42)}
	})

	rec := serve(m, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Session models.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.Session.Username)
	assert.Equal(t, models.StateConnectedRegistered, body.Session.State)
	assert.True(t, body.Session.Balance.Equal(decimal.NewFromInt(42)))
}
