package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SessionState is the connection lifecycle of the wallet session
type SessionState string

const (
	StateDisconnected          SessionState = "disconnected"
	StateAuthenticating        SessionState = "authenticating"
	StateConnectedUnregistered SessionState = "connected-unregistered"
	StateConnectedRegistered   SessionState = "connected-registered"
)

func (s SessionState) String() string {
	return string(s)
}

// Session is a read-only snapshot of the session store. The bearer token is
// never copied out; Authenticated reports whether one is held.
type Session struct {
	Address          string          `json:"address,omitempty"`
	State            SessionState    `json:"state"`
	Authenticated    bool            `json:"authenticated"`
	IsAuthenticating bool            `json:"is_authenticating"`
	IsRegistered     bool            `json:"is_registered"`
	Username         string          `json:"username,omitempty"`
	AvatarURL        string          `json:"avatar_url,omitempty"`
	Balance          decimal.Decimal `json:"balance"`
	IsLoadingBalance bool            `json:"is_loading_balance"`
	Epoch            uint64          `json:"epoch"`
}

// Connected reports whether a wallet is bound to a live backend session.
func (s Session) Connected() bool {
	return s.State == StateConnectedRegistered || s.State == StateConnectedUnregistered
}

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
	DirectionTopUp    Direction = "topup"
)

type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusPending   TransactionStatus = "pending"
	StatusFailed    TransactionStatus = "failed"
)

type TransactionSource string

const (
	SourceLocal   TransactionSource = "local"
	SourceBackend TransactionSource = "backend"
)

// Transaction is one entry of the user's payment history
type Transaction struct {
	ID                  string            `json:"id"`
	Counterparty        string            `json:"counterparty"`
	CounterpartyAddress string            `json:"counterparty_address,omitempty"`
	Amount              decimal.Decimal   `json:"amount"`
	Timestamp           time.Time         `json:"timestamp"`
	Direction           Direction         `json:"direction"`
	Status              TransactionStatus `json:"status"`
	Source              TransactionSource `json:"source"`
}

// SortTransactions orders records by timestamp, most recent first.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})
}

// SearchResult is a user returned by the backend search
type SearchResult struct {
	Username  string `json:"username"`
	Address   string `json:"address"`
	AvatarURL string `json:"avatar_url"`
}

// PaymentEvent describes a completed on-chain payment
type PaymentEvent struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Sender      string          `json:"sender"`
	Recipient   string          `json:"recipient"`
	Amount      decimal.Decimal `json:"amount"`
	ApproveTx   string          `json:"approve_tx"`
	TxHash      string          `json:"tx_hash"`
	Chain       BlockchainName  `json:"chain"`
	Timestamp   time.Time       `json:"timestamp"`
	ExplorerURL string          `json:"explorer_url"`
}
