package appstore

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/KazimAndrei/HollyProject/internal/interfaces"
	"github.com/KazimAndrei/HollyProject/internal/logging"
	"github.com/KazimAndrei/HollyProject/internal/metrics"
	"github.com/KazimAndrei/HollyProject/internal/models"
)

// VerifierConfig holds the optional collaborators of a Verifier.
type VerifierConfig struct {
	// Deadline bounds a whole verification, all calls and retries included. Zero disables it.
	Deadline time.Duration
	Now      func() time.Time
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Verifier resolves caller identifiers and derives subscription status.
// It holds no per-request state and is safe for concurrent use.
type Verifier struct {
	api      interfaces.AppStoreAPI
	decoder  *Decoder
	deadline time.Duration
	now      func() time.Time
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewVerifier(client interfaces.AppStoreAPI, decoder *Decoder, cfg VerifierConfig) *Verifier {
	if decoder == nil {
		decoder = NewDecoder(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{
		api:      client,
		decoder:  decoder,
		deadline: cfg.Deadline,
		now:      cfg.Now,
		logger:   cfg.Logger.With().Str("component", "verifier").Logger(),
		metrics:  cfg.Metrics,
	}
}

// Verify runs the resolution state machine for req.
func (v *Verifier) Verify(ctx context.Context, req models.VerifyRequest) Outcome {
	req = req.Normalized()

	v.logger.Info().
		Str("event", "verify_start").
		Bool("original_transaction_id", req.OriginalTransactionID != "").
		Bool("transaction_id", req.TransactionID != "").
		Msg("Verification started")

	if v.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.deadline)
		defer cancel()
	}

	var (
		outcome Outcome
		method  string
	)
	switch {
	case req.OriginalTransactionID != "":
		method = "originalTransactionId"
		outcome = v.verifyOriginal(ctx, req.OriginalTransactionID)
	case req.TransactionID != "":
		method = "resolved_transactionId"
		outcome = v.resolveAndVerify(ctx, req.TransactionID)
	default:
		outcome = Failed{Reason: ReasonNoIdentifier, Message: MsgNoIdentifier}
	}

	v.record(outcome, method)
	return outcome
}

func (v *Verifier) resolveAndVerify(ctx context.Context, transactionID string) Outcome {
	unresolvable := Failed{
		Reason:        ReasonUnresolvable,
		Message:       MsgUnresolvable,
		TransactionID: transactionID,
	}

	info, err := v.api.GetTransactionInfo(ctx, transactionID)
	if err != nil {
		v.logger.Warn().Err(err).Str("transaction_id", logging.TruncateID(transactionID)).Msg("Transaction lookup failed")
		return unresolvable
	}
	if info == nil || info.SignedTransactionInfo == "" {
		return unresolvable
	}

	record := v.decoder.Decode(info.SignedTransactionInfo)
	if record.OriginalTransactionID == "" {
		return unresolvable
	}

	v.logger.Debug().
		Str("original_transaction_id", logging.TruncateID(record.OriginalTransactionID)).
		Msg("Resolved transaction id")
	return v.verifyOriginal(ctx, record.OriginalTransactionID)
}

func (v *Verifier) verifyOriginal(ctx context.Context, originalTransactionID string) Outcome {
	inconclusive := func(msg string) Failed {
		return Failed{Reason: ReasonInconclusive, Message: msg, TransactionID: originalTransactionID}
	}

	resp, err := v.api.GetSubscriptionStatuses(ctx, originalTransactionID)
	if err != nil {
		v.logger.Warn().Err(err).Str("original_transaction_id", logging.TruncateID(originalTransactionID)).Msg("Subscription lookup failed")
		return inconclusive(MsgInconclusive)
	}

	blobs := resp.SignedTransactions()
	if len(blobs) == 0 {
		return inconclusive(MsgNoData)
	}

	result, err := Evaluate(originalTransactionID, v.decoder.DecodeAll(blobs), v.now())
	if errors.Is(err, ErrNoValidTransaction) {
		return inconclusive(MsgNoTransaction)
	}
	if err != nil {
		return inconclusive(MsgInconclusive)
	}
	return Resolved{VerificationResult: result}
}

func (v *Verifier) record(outcome Outcome, method string) {
	switch o := outcome.(type) {
	case Resolved:
		v.metrics.ObserveVerification(string(o.VerificationResult.Status))
		v.logger.Info().
			Str("event", "verify_success").
			Str("status", string(o.VerificationResult.Status)).
			Str("method", method).
			Msg("Verification finished")
	case Failed:
		v.metrics.ObserveVerification("failed_" + o.Reason.String())
		v.logger.Info().
			Str("event", "verify_fail").
			Str("reason", o.Reason.String()).
			Msg("Verification failed")
	}
}
