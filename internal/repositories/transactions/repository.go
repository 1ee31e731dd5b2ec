package transactions

import (
	"context"

	"github.com/omega-realm/presence/internal/models"
)

// Repository is the append-only ledger.
type Repository interface {
	// Insert assigns an ID when tx.ID is empty.
	Insert(ctx context.Context, tx *models.Transaction) error
	ListRecent(ctx context.Context, guildID, userID string, limit int) ([]models.Transaction, error)
}
