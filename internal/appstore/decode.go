package appstore

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/KazimAndrei/HollyProject/internal/models"
)

// offerFreeTrial is the offerDiscountType the vendor uses for introductory free trials.
const offerFreeTrial = "FREE_TRIAL"

// Decoder extracts transaction claims from signed blobs.
// Without a verifier the signature is not checked.
type Decoder struct {
	parser   *jwt.Parser
	verifier *ChainVerifier
}

// NewDecoder returns a decoder; verifier may be nil.
func NewDecoder(verifier *ChainVerifier) *Decoder {
	return &Decoder{
		parser:   jwt.NewParser(jwt.WithPaddingAllowed()),
		verifier: verifier,
	}
}

// Decode never fails. Malformed or unverifiable blobs yield the zero record.
func (d *Decoder) Decode(blob string) models.TransactionRecord {
	segments := strings.Split(strings.TrimSpace(blob), ".")
	if len(segments) < 2 {
		return models.TransactionRecord{}
	}

	if d.verifier != nil {
		if err := d.verifier.Verify(blob); err != nil {
			return models.TransactionRecord{}
		}
	}

	payload, err := d.parser.DecodeSegment(segments[1])
	if err != nil {
		return models.TransactionRecord{}
	}

	var record models.TransactionRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return models.TransactionRecord{}
	}
	if record.OfferDiscountType == offerFreeTrial {
		record.IsInTrial = true
	}
	return record
}

// DecodeAll decodes every blob, keeping order. Failed blobs stay as zero records.
func (d *Decoder) DecodeAll(blobs []string) []models.TransactionRecord {
	records := make([]models.TransactionRecord, 0, len(blobs))
	for _, blob := range blobs {
		records = append(records, d.Decode(blob))
	}
	return records
}
