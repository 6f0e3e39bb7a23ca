package interfaces

import "solva-wallet/internal/models"

// EventEmitter publishes completed payments
type EventEmitter interface {
	EmitEvent(event models.PaymentEvent) error
}
