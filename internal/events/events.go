package events

import (
	"github.com/rs/zerolog"

	"solva-wallet/internal/interfaces"
	"solva-wallet/internal/models"
)

// LogEmitter logs every completed payment and forwards it to the wrapped emitter
type LogEmitter struct {
	WrappedEmitter interfaces.EventEmitter
	Logger         *zerolog.Logger
}

// EmitEvent logs the payment and forwards it to the wrapped emitter
func (d *LogEmitter) EmitEvent(event models.PaymentEvent) error {
	d.Logger.Info().
		Str("chain", event.Chain.String()).
		Str("from", event.From).
		Str("to", event.To).
		Str("recipient", event.Recipient).
		Str("amount", event.Amount.StringFixed(2)).
		Str("approveTx", event.ApproveTx).
		Str("txHash", event.TxHash).
		Time("timestamp", event.Timestamp).
		Msg("Payment completed")

	if event.ExplorerURL != "" {
		d.Logger.Info().
			Str("chain", event.Chain.String()).
			Str("explorer", event.ExplorerURL).
			Msg("View on explorer")
	}

	if d.WrappedEmitter != nil {
		return d.WrappedEmitter.EmitEvent(event)
	}
	return nil
}
