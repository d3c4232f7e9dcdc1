package models

import (
	"strings"
	"time"
)

// SubscriptionStatus is the tri-state entitlement derived from App Store transactions
type SubscriptionStatus string

const (
	StatusActive  SubscriptionStatus = "active"
	StatusTrial   SubscriptionStatus = "trial"
	StatusExpired SubscriptionStatus = "expired"
)

// Entitled reports whether the status grants access to premium features
func (s SubscriptionStatus) Entitled() bool {
	return s == StatusActive || s == StatusTrial
}

// Credentials holds the App Store Connect API key material
type Credentials struct {
	IssuerID   string
	KeyID      string
	PrivateKey string // base64(PEM) or raw PEM
	BundleID   string
}

// Complete reports whether live API calls are possible.
// Bundle id does not take part in the mock-mode decision.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.IssuerID) != "" &&
		strings.TrimSpace(c.KeyID) != "" &&
		strings.TrimSpace(c.PrivateKey) != ""
}

// SignedToken is a short-lived bearer credential for the App Store Server API
type SignedToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TransactionRecord holds the claims decoded from a signed transaction blob
type TransactionRecord struct {
	OriginalTransactionID string `json:"originalTransactionId"`
	TransactionID         string `json:"transactionId,omitempty"`
	ProductID             string `json:"productId,omitempty"`
	BundleID              string `json:"bundleId,omitempty"`
	Environment           string `json:"environment,omitempty"`
	PurchaseDateMillis    int64  `json:"purchaseDate,omitempty"`
	ExpiresAtMillis       int64  `json:"expiresDate"`
	IsInTrial             bool   `json:"isInTrialPeriod"`
	OfferDiscountType     string `json:"offerDiscountType,omitempty"`
}

// IsZero reports whether the record carries no usable data
func (r TransactionRecord) IsZero() bool {
	return r == TransactionRecord{}
}

// ExpiresAt converts the millisecond expiry into a UTC time
func (r TransactionRecord) ExpiresAt() time.Time {
	return time.UnixMilli(r.ExpiresAtMillis).UTC()
}

// VerifyRequest carries the caller-supplied identifiers.
// Either may be empty; whitespace-only values count as absent.
type VerifyRequest struct {
	OriginalTransactionID string
	TransactionID         string
}

// Normalized returns the request with identifiers trimmed
func (r VerifyRequest) Normalized() VerifyRequest {
	return VerifyRequest{
		OriginalTransactionID: strings.TrimSpace(r.OriginalTransactionID),
		TransactionID:         strings.TrimSpace(r.TransactionID),
	}
}

// VerificationResult is the outward contract of subscription verification
type VerificationResult struct {
	Status                SubscriptionStatus `json:"status"`
	OriginalTransactionID string             `json:"originalTransactionId"`
	TrialEndsAt           *time.Time         `json:"trialEndsAt,omitempty"`
	ExpiresAt             *time.Time         `json:"expiresAt,omitempty"`
	NeedsServerValidation bool               `json:"needsServerValidation"`
	Error                 string             `json:"error,omitempty"`
}

// Entitlement is the cached per-user view of the last verification
type Entitlement struct {
	UserID                string             `json:"user_id"`
	Status                SubscriptionStatus `json:"status"`
	OriginalTransactionID string             `json:"original_transaction_id,omitempty"`
	ExpiresAt             *time.Time         `json:"expires_at,omitempty"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// Active reports whether the entitlement still grants access at now
func (e Entitlement) Active(now time.Time) bool {
	if !e.Status.Entitled() {
		return false
	}
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// EntitlementFromResult builds the cache entry for a user's verification
func EntitlementFromResult(userID string, result VerificationResult, now time.Time) Entitlement {
	return Entitlement{
		UserID:                userID,
		Status:                result.Status,
		OriginalTransactionID: result.OriginalTransactionID,
		ExpiresAt:             result.ExpiresAt,
		UpdatedAt:             now.UTC(),
	}
}
