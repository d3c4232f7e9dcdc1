package api

import "github.com/KazimAndrei/HollyProject/internal/models"

// Subscription API models
type SubscriptionVerifyRequest struct {
	Platform              string `json:"platform" binding:"required"`
	OriginalTransactionID string `json:"originalTransactionId"`
	TransactionID         string `json:"transactionId"`
	UserID                string `json:"userId"`
}

type EntitlementResponse struct {
	Status    string `json:"status"` // "none", "active", "expired"
	ExpiresAt string `json:"expires_at,omitempty"`
}

// Chat API models
type ChatRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	Message        string `json:"message" binding:"required,max=500"`
	Translation    string `json:"translation"`
	ConversationID string `json:"conversation_id"`
}

type CitationResponse struct {
	Ref         string        `json:"ref"`
	Translation string        `json:"translation"`
	Text        string        `json:"text"`
	Spans       []models.Span `json:"spans"`
}

type ChatResponse struct {
	Answer             string             `json:"answer"`
	Citations          []CitationResponse `json:"citations"`
	ConversationID     string             `json:"conversation_id"`
	HasReliableSources bool               `json:"has_reliable_sources"`
}

// LocaleChatRequest is the anonymous chat body sent by the mobile client
type LocaleChatRequest struct {
	Text   string `json:"text" binding:"required,max=500"`
	Locale string `json:"locale" binding:"omitempty,oneof=en ru"`
}

type LocaleChatResponse struct {
	Success            bool               `json:"success"`
	Answer             string             `json:"answer"`
	Citations          []CitationResponse `json:"citations"`
	HasReliableSources bool               `json:"has_reliable_sources"`
}

type PaywallResponse struct {
	Paywall bool `json:"paywall"`
	Limit   int  `json:"limit"`
}

// Verse API models
type VerseSearchResult struct {
	Ref       string `json:"ref"`
	Book      string `json:"book"`
	Chapter   int    `json:"chapter"`
	Verse     string `json:"verse"`
	Text      string `json:"text"`
	Highlight string `json:"highlight"`
}

type VerseSearchResponse struct {
	Results []VerseSearchResult `json:"results"`
}

type DailyVerseResponse struct {
	Verse models.Verse `json:"verse"`
}

type ScriptureResponse struct {
	Success bool         `json:"success"`
	Data    models.Verse `json:"data"`
}

// Health
type HealthResponse struct {
	OK       bool         `json:"ok"`
	LLM      *bool        `json:"llm,omitempty"`
	AppStore AppStoreMode `json:"appstore,omitempty"`
}
