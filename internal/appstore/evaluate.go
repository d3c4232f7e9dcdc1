package appstore

import (
	"time"

	"github.com/KazimAndrei/HollyProject/internal/models"
)

// Evaluate picks the latest record by expiry and derives the subscription status.
// The result echoes the identifier it was asked about. Records without a
// positive expiry are ignored. On an exact expiry tie the
// non-trial record wins; otherwise the first one seen is kept.
func Evaluate(originalTransactionID string, records []models.TransactionRecord, now time.Time) (models.VerificationResult, error) {
	var (
		latest models.TransactionRecord
		found  bool
	)
	for _, record := range records {
		if record.ExpiresAtMillis <= 0 {
			continue
		}
		switch {
		case !found:
			latest, found = record, true
		case record.ExpiresAtMillis > latest.ExpiresAtMillis:
			latest = record
		case record.ExpiresAtMillis == latest.ExpiresAtMillis && latest.IsInTrial && !record.IsInTrial:
			latest = record
		}
	}
	if !found {
		return models.VerificationResult{}, ErrNoValidTransaction
	}

	expiresAt := latest.ExpiresAt()
	result := models.VerificationResult{
		Status:                models.StatusExpired,
		OriginalTransactionID: originalTransactionID,
		ExpiresAt:             &expiresAt,
	}
	if now.Before(expiresAt) {
		result.Status = models.StatusActive
		if latest.IsInTrial {
			result.Status = models.StatusTrial
			trialEndsAt := expiresAt
			result.TrialEndsAt = &trialEndsAt
		}
	}
	return result, nil
}
