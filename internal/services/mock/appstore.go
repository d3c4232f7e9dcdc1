package mock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/KazimAndrei/HollyProject/internal/api"
	"github.com/KazimAndrei/HollyProject/internal/logging"
	"github.com/KazimAndrei/HollyProject/internal/models"
)

const (
	// Token is the sentinel bearer token used when credentials are absent.
	Token = "mock_token"

	// OriginalTransactionID is the canned original transaction id.
	OriginalTransactionID = "mock_1000000123456789"

	trialLength = 7 * 24 * time.Hour
)

// MockTokenIssuer never fails and never signs anything.
type MockTokenIssuer struct{}

func NewMockTokenIssuer() *MockTokenIssuer {
	return &MockTokenIssuer{}
}

func (MockTokenIssuer) Issue() (models.SignedToken, error) {
	return models.SignedToken{Value: Token}, nil
}

// MockAppStore answers every lookup with one trial transaction that ends a week from now.
type MockAppStore struct {
	now    func() time.Time
	logger zerolog.Logger
}

func NewMockAppStore(now func() time.Time, logger zerolog.Logger) *MockAppStore {
	if now == nil {
		now = time.Now
	}
	return &MockAppStore{
		now:    now,
		logger: logger.With().Str("component", "mock_appstore").Logger(),
	}
}

func (m *MockAppStore) GetSubscriptionStatuses(ctx context.Context, originalTransactionID string) (*api.SubscriptionStatusResponse, error) {
	m.logger.Debug().Str("original_transaction_id", logging.TruncateID(originalTransactionID)).Msg("[MOCK] Subscription lookup")

	return &api.SubscriptionStatusResponse{
		Environment: "Sandbox",
		Data: []api.SubscriptionGroupItem{{
			SignedTransactionInfo: m.signedTransaction(),
			Status:                api.SubscriptionStatusActive,
		}},
	}, nil
}

func (m *MockAppStore) GetTransactionInfo(ctx context.Context, transactionID string) (*api.TransactionInfoResponse, error) {
	m.logger.Debug().Str("transaction_id", logging.TruncateID(transactionID)).Msg("[MOCK] Transaction lookup")

	return &api.TransactionInfoResponse{SignedTransactionInfo: m.signedTransaction()}, nil
}

// signedTransaction builds an unsigned blob the decoder reads like a vendor one.
func (m *MockAppStore) signedTransaction() string {
	now := m.now()
	payload, _ := json.Marshal(models.TransactionRecord{
		OriginalTransactionID: OriginalTransactionID,
		TransactionID:         OriginalTransactionID,
		Environment:           "Sandbox",
		PurchaseDateMillis:    now.UnixMilli(),
		ExpiresAtMillis:       now.Add(trialLength).UnixMilli(),
		IsInTrial:             true,
	})

	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." + enc.EncodeToString(payload) + "."
}
