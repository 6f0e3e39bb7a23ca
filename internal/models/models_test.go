package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSortTransactions(t *testing.T) {
	now := time.Now()
	txs := []Transaction{
		{ID: "old", Timestamp: now.Add(-48 * time.Hour)},
		{ID: "new", Timestamp: now},
		{ID: "mid", Timestamp: now.Add(-24 * time.Hour)},
	}

	SortTransactions(txs)

	assert.Equal(t, []string{"new", "mid", "old"}, []string{txs[0].ID, txs[1].ID, txs[2].ID})
}

func TestSession_Connected(t *testing.T) {
	assert.False(t, Session{State: StateDisconnected}.Connected())
	assert.False(t, Session{State: StateAuthenticating}.Connected())
	assert.True(t, Session{State: StateConnectedUnregistered}.Connected())
	assert.True(t, Session{State: StateConnectedRegistered}.Connected())
}

func TestChainNameByID(t *testing.T) {
	assert.Equal(t, Polygon, ChainNameByID(137))
	assert.Equal(t, BlockchainName("chain-80002"), ChainNameByID(80002))
}
