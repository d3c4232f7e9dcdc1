package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/KazimAndrei/HollyProject/internal/api"
	"github.com/KazimAndrei/HollyProject/internal/appstore"
	"github.com/KazimAndrei/HollyProject/internal/chat"
	"github.com/KazimAndrei/HollyProject/internal/interfaces"
	"github.com/KazimAndrei/HollyProject/internal/models"
	"github.com/KazimAndrei/HollyProject/internal/scripture"
)

// Verifier runs one subscription verification.
type Verifier interface {
	Verify(ctx context.Context, req models.VerifyRequest) appstore.Outcome
}

// Deps are the collaborators behind the public routes.
type Deps struct {
	Verifier     Verifier
	Entitlements interfaces.EntitlementStore
	Chat         *chat.Service
	Corpus       *scripture.Corpus
	Mode         api.AppStoreMode
	LLMEnabled   bool
	Location     *time.Location
	Now          func() time.Time
	Logger       zerolog.Logger
}

type Handler struct {
	verifier     Verifier
	entitlements interfaces.EntitlementStore
	chat         *chat.Service
	corpus       *scripture.Corpus
	mode         api.AppStoreMode
	llmEnabled   bool
	loc          *time.Location
	now          func() time.Time
	logger       zerolog.Logger
}

func NewHandler(deps Deps) *Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return &Handler{
		verifier:     deps.Verifier,
		entitlements: deps.Entitlements,
		chat:         deps.Chat,
		corpus:       deps.Corpus,
		mode:         deps.Mode,
		llmEnabled:   deps.LLMEnabled,
		loc:          deps.Location,
		now:          deps.Now,
		logger:       deps.Logger.With().Str("component", "handlers").Logger(),
	}
}

// Register mounts every public route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)

	sub := r.Group("/api")
	sub.POST("/chat", h.LocaleChat)
	sub.POST("/subscription/verify", h.VerifySubscription)
	sub.GET("/subscription/status", h.SubscriptionStatus)
	sub.GET("/daily-verse", h.LocalizedDailyVerse)
	sub.GET("/scripture/:ref", h.Scripture)

	v1 := r.Group("/v1")
	v1.GET("/healthz", h.DetailedHealth)
	v1.GET("/iap/entitlement", h.Entitlement)
	v1.POST("/chat", h.Chat)
	v1.GET("/verses/search", h.SearchVerses)
	v1.GET("/daily-verse", h.DailyVerse)
}

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{OK: true})
}

// GET /v1/healthz
func (h *Handler) DetailedHealth(c *gin.Context) {
	llm := h.llmEnabled
	c.JSON(http.StatusOK, api.HealthResponse{OK: true, LLM: &llm, AppStore: h.mode})
}

func (h *Handler) writeError(c *gin.Context, status int, code, message string) {
	h.logger.Debug().
		Int("status", status).
		Str("code", code).
		Str("path", c.FullPath()).
		Msg(message)
	c.JSON(status, api.APIError{Error: message, Code: code})
}
