package api

// App Store Server API models

// SubscriptionStatusResponse is returned by GET /inApps/v1/subscriptions/{originalTransactionId}
type SubscriptionStatusResponse struct {
	Environment string                  `json:"environment,omitempty"`
	BundleID    string                  `json:"bundleId,omitempty"`
	AppAppleID  int64                   `json:"appAppleId,omitempty"`
	Data        []SubscriptionGroupItem `json:"data"`
}

// SubscriptionGroupItem is one subscription group in a status response.
// Flat items carry the signed blob directly; vendor-shaped items nest it in LastTransactions.
type SubscriptionGroupItem struct {
	SubscriptionGroupIdentifier string            `json:"subscriptionGroupIdentifier,omitempty"`
	SignedTransactionInfo       string            `json:"signedTransactionInfo,omitempty"`
	Status                      int               `json:"status,omitempty"`
	LastTransactions            []LastTransaction `json:"lastTransactions,omitempty"`
}

// LastTransaction is the most recent transaction of one subscription in a group
type LastTransaction struct {
	OriginalTransactionID string `json:"originalTransactionId"`
	Status                int    `json:"status"`
	SignedTransactionInfo string `json:"signedTransactionInfo"`
	SignedRenewalInfo     string `json:"signedRenewalInfo,omitempty"`
}

// SignedTransactions collects every signed blob in the response, in document order
func (r *SubscriptionStatusResponse) SignedTransactions() []string {
	if r == nil {
		return nil
	}

	var blobs []string
	for _, item := range r.Data {
		if item.SignedTransactionInfo != "" {
			blobs = append(blobs, item.SignedTransactionInfo)
		}
		for _, last := range item.LastTransactions {
			if last.SignedTransactionInfo != "" {
				blobs = append(blobs, last.SignedTransactionInfo)
			}
		}
	}
	return blobs
}

// TransactionInfoResponse is returned by GET /inApps/v1/transactions/{transactionId}
type TransactionInfoResponse struct {
	SignedTransactionInfo string `json:"signedTransactionInfo"`
}

// AppStoreErrorResponse is the vendor's error body
type AppStoreErrorResponse struct {
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Subscription status values used by the vendor
const (
	SubscriptionStatusActive       = 1
	SubscriptionStatusExpired      = 2
	SubscriptionStatusBillingRetry = 3
	SubscriptionStatusBillingGrace = 4
	SubscriptionStatusRevoked      = 5
)
