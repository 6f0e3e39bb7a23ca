package wallet

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Handler reacts to an account change. A nil account means disconnected.
type Handler func(ctx context.Context, acct Account)

type accountEvent struct {
	acct Account
	done chan struct{}
}

// Connector delivers account-change notifications one at a time, in order,
// to a single handler. It plays the part of a wallet SDK's event source.
type Connector struct {
	events  chan accountEvent
	stopped chan struct{}
	stop    sync.Once
	logger  *zerolog.Logger

	mu      sync.RWMutex
	current Account
}

func NewConnector(logger *zerolog.Logger) *Connector {
	return &Connector{
		events:  make(chan accountEvent),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Connect reports acct as the active wallet account. The returned channel is
// closed once the handler has processed the notification, or right away if
// the connector has stopped.
func (c *Connector) Connect(acct Account) <-chan struct{} {
	c.mu.Lock()
	c.current = acct
	c.mu.Unlock()
	return c.publish(acct)
}

// Disconnect reports that no account is active.
func (c *Connector) Disconnect() <-chan struct{} {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	return c.publish(nil)
}

// publish blocks until Run takes the event. Events published after Run has
// returned are dropped.
func (c *Connector) publish(acct Account) <-chan struct{} {
	ev := accountEvent{acct: acct, done: make(chan struct{})}
	select {
	case c.events <- ev:
	case <-c.stopped:
		c.logger.Debug().Msg("Wallet connector stopped, dropping account change")
		close(ev.done)
	}
	return ev.done
}

// Current is the account the wallet itself reports, which may differ from
// the session's account when backend authentication failed.
func (c *Connector) Current() Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Run dispatches notifications until ctx is done.
func (c *Connector) Run(ctx context.Context, handle Handler) {
	defer c.stop.Do(func() { close(c.stopped) })

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug().Msg("Wallet connector shutting down")
			return
		case ev := <-c.events:
			if ev.acct == nil {
				c.logger.Info().Msg("Wallet disconnected")
			} else {
				c.logger.Info().Str("address", ev.acct.Address().Hex()).Msg("Wallet account changed")
			}
			handle(ctx, ev.acct)
			close(ev.done)
		}
	}
}
