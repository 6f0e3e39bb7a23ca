package interfaces

import (
	"context"

	"solva-wallet/internal/models"
)

// HeadSource reports the latest block of a chain
type HeadSource interface {
	GetChainName() models.BlockchainName
	BlockHead(ctx context.Context) (uint64, error)
}
