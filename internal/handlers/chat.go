package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KazimAndrei/HollyProject/internal/api"
	"github.com/KazimAndrei/HollyProject/internal/chat"
)

// POST /v1/chat
func (h *Handler) Chat(c *gin.Context) {
	var req api.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, api.ErrorCodeValidationFailed, "user_id and message (max 500 characters) are required")
		return
	}

	reply, err := h.chat.Ask(c.Request.Context(), chat.Request{
		UserID:         req.UserID,
		Message:        req.Message,
		Translation:    req.Translation,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		h.chatError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.ChatResponse{
		Answer:             reply.Answer,
		Citations:          citationResponses(reply.Citations),
		ConversationID:     reply.ConversationID,
		HasReliableSources: reply.HasReliableSources,
	})
}

// POST /api/chat
func (h *Handler) LocaleChat(c *gin.Context) {
	var req api.LocaleChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, http.StatusBadRequest, api.ErrorCodeValidationFailed, "text (max 500 characters) is required and locale must be en or ru")
		return
	}
	if req.Locale == "" {
		req.Locale = "en"
	}

	reply, err := h.chat.Answer(c.Request.Context(), req.Text, h.corpus.ForLocale(req.Locale))
	if err != nil {
		h.chatError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.LocaleChatResponse{
		Success:            true,
		Answer:             reply.Answer,
		Citations:          citationResponses(reply.Citations),
		HasReliableSources: reply.HasReliableSources,
	})
}

func citationResponses(cited []chat.Citation) []api.CitationResponse {
	out := make([]api.CitationResponse, 0, len(cited))
	for _, cit := range cited {
		out = append(out, api.CitationResponse{
			Ref:         cit.Ref,
			Translation: cit.Translation,
			Text:        cit.Text,
			Spans:       cit.Spans,
		})
	}
	return out
}

func (h *Handler) chatError(c *gin.Context, err error) {
	if errors.Is(err, chat.ErrPaywall) {
		c.JSON(http.StatusPaymentRequired, api.PaywallResponse{Paywall: true, Limit: h.chat.FreeLimit()})
		return
	}
	if errors.Is(err, chat.ErrEmptyMessage) {
		h.writeError(c, http.StatusBadRequest, api.ErrorCodeValidationFailed, "question must not be empty")
		return
	}
	if genErr, ok := api.AsGenerationError(err); ok {
		h.logger.Warn().Err(genErr.Err).Str("code", genErr.Code).Msg("Generation failed")
		c.JSON(genErr.Status, api.APIError{Error: genErr.Code})
		return
	}

	h.logger.Error().Err(err).Msg("Chat failed")
	h.writeError(c, http.StatusInternalServerError, api.ErrorCodeInternalError, "Failed to answer")
}
