package appstore

import "github.com/KazimAndrei/HollyProject/internal/models"

// Reason classifies a failed verification.
type Reason int

const (
	// ReasonNoIdentifier means the caller supplied neither identifier.
	ReasonNoIdentifier Reason = iota + 1
	// ReasonUnresolvable means a transaction id could not be mapped to its original id.
	ReasonUnresolvable
	// ReasonInconclusive covers API failures and responses without usable data.
	ReasonInconclusive
)

func (r Reason) String() string {
	switch r {
	case ReasonNoIdentifier:
		return "no_identifier"
	case ReasonUnresolvable:
		return "unresolvable"
	case ReasonInconclusive:
		return "inconclusive"
	default:
		return "unknown"
	}
}

// ClientError reports whether the failure stems from caller input.
func (r Reason) ClientError() bool {
	return r == ReasonNoIdentifier || r == ReasonUnresolvable
}

// Failure messages surfaced in VerificationResult.Error.
const (
	MsgNoIdentifier  = "no identifier provided"
	MsgUnresolvable  = "cannot resolve secondary identifier, request the canonical identifier (send originalTransactionId)"
	MsgNoData        = "no data"
	MsgInconclusive  = "inconclusive"
	MsgNoTransaction = "could not find valid transaction"
)

// Outcome is the result of one verification: either Resolved or Failed.
type Outcome interface {
	Result() models.VerificationResult
	outcome()
}

// Resolved carries a status derived from the vendor's records.
type Resolved struct {
	VerificationResult models.VerificationResult
}

func (r Resolved) Result() models.VerificationResult { return r.VerificationResult }
func (Resolved) outcome()                            {}

// Failed is terminal and always renders as expired.
type Failed struct {
	Reason  Reason
	Message string
	// TransactionID is the original id when known, else the caller's transaction id.
	TransactionID string
}

// Result renders the fail-closed verification result.
func (f Failed) Result() models.VerificationResult {
	return models.VerificationResult{
		Status:                models.StatusExpired,
		OriginalTransactionID: f.TransactionID,
		NeedsServerValidation: false,
		Error:                 f.Message,
	}
}

func (Failed) outcome() {}

func (f Failed) Error() string { return f.Message }
