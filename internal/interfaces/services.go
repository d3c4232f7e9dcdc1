package interfaces

import (
	"context"
	"time"

	"github.com/KazimAndrei/HollyProject/internal/api"
	"github.com/KazimAndrei/HollyProject/internal/models"
)

// TokenIssuer mints bearer credentials for the App Store Server API
type TokenIssuer interface {
	Issue() (models.SignedToken, error)
}

// AppStoreAPI reads subscription data from the App Store Server API.
// Any failure is returned as an error; callers treat it as inconclusive.
type AppStoreAPI interface {
	GetSubscriptionStatuses(ctx context.Context, originalTransactionID string) (*api.SubscriptionStatusResponse, error)
	GetTransactionInfo(ctx context.Context, transactionID string) (*api.TransactionInfoResponse, error)
}

// Retriever finds passages relevant to a question
type Retriever interface {
	Retrieve(ctx context.Context, query, translation string) ([]models.Passage, error)
}

// Generator produces an answer grounded in the given passages
type Generator interface {
	Generate(ctx context.Context, question string, passages []models.Passage) (string, error)
}

// QuotaStore counts free messages per user per local day
type QuotaStore interface {
	Used(ctx context.Context, userID string, now time.Time) (int, error)
	Increment(ctx context.Context, userID string, now time.Time) (int, error)
	// Release undoes one Increment made for the same local day.
	Release(ctx context.Context, userID string, now time.Time) error
}

// EntitlementStore caches the last verification outcome per user
type EntitlementStore interface {
	SaveEntitlement(ctx context.Context, ent models.Entitlement) error
	Entitlement(ctx context.Context, userID string) (models.Entitlement, error)
}
