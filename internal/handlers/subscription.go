package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KazimAndrei/HollyProject/internal/api"
	"github.com/KazimAndrei/HollyProject/internal/appstore"
	"github.com/KazimAndrei/HollyProject/internal/logging"
	"github.com/KazimAndrei/HollyProject/internal/models"
	"github.com/KazimAndrei/HollyProject/internal/storage"
)

// POST /api/subscription/verify
func (h *Handler) VerifySubscription(c *gin.Context) {
	var req api.SubscriptionVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, api.ErrorCodeInvalidRequest, "Invalid request format")
		return
	}

	if !strings.EqualFold(strings.TrimSpace(req.Platform), "ios") {
		h.writeError(c, http.StatusBadRequest, api.ErrorCodeUnsupportedPlatform, "Only iOS platform is supported")
		return
	}

	result, ok := h.verify(c, models.VerifyRequest{
		OriginalTransactionID: req.OriginalTransactionID,
		TransactionID:         req.TransactionID,
	})
	if !ok {
		return
	}

	if userID := strings.TrimSpace(req.UserID); userID != "" {
		ent := models.EntitlementFromResult(userID, result, h.now())
		if err := h.entitlements.SaveEntitlement(c.Request.Context(), ent); err != nil {
			h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to cache entitlement")
		}
	}

	c.JSON(http.StatusOK, result)
}

// GET /api/subscription/status
func (h *Handler) SubscriptionStatus(c *gin.Context) {
	result, ok := h.verify(c, models.VerifyRequest{
		OriginalTransactionID: c.Query("originalTransactionId"),
		TransactionID:         c.Query("transactionId"),
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result)
}

// verify writes the client error itself and reports false when the request was rejected.
func (h *Handler) verify(c *gin.Context, req models.VerifyRequest) (models.VerificationResult, bool) {
	req = req.Normalized()
	if req.OriginalTransactionID == "" && req.TransactionID == "" {
		h.writeError(c, http.StatusBadRequest, api.ErrorCodeMissingIdentifier, appstore.MsgNoIdentifier)
		return models.VerificationResult{}, false
	}

	outcome := h.verifier.Verify(c.Request.Context(), req)
	if failed, ok := outcome.(appstore.Failed); ok && failed.Reason.ClientError() {
		code := api.ErrorCodeUnresolvableID
		if failed.Reason == appstore.ReasonNoIdentifier {
			code = api.ErrorCodeMissingIdentifier
		}
		h.logger.Info().
			Str("transaction_id", logging.TruncateID(failed.TransactionID)).
			Str("reason", failed.Reason.String()).
			Msg("Verification rejected")
		h.writeError(c, http.StatusBadRequest, code, failed.Message)
		return models.VerificationResult{}, false
	}
	return outcome.Result(), true
}

// GET /v1/iap/entitlement
func (h *Handler) Entitlement(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		h.writeError(c, http.StatusBadRequest, api.ErrorCodeValidationFailed, "user_id is required")
		return
	}

	ent, err := h.entitlements.Entitlement(c.Request.Context(), userID)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusOK, api.EntitlementResponse{Status: "none"})
		return
	default:
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to read entitlement")
		h.writeError(c, http.StatusInternalServerError, api.ErrorCodeInternalError, "Failed to read entitlement")
		return
	}

	resp := api.EntitlementResponse{Status: "expired"}
	if ent.Active(h.now()) {
		resp.Status = "active"
	}
	if ent.ExpiresAt != nil {
		resp.ExpiresAt = ent.ExpiresAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}
