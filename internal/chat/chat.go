package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KazimAndrei/HollyProject/internal/citation"
	"github.com/KazimAndrei/HollyProject/internal/interfaces"
	"github.com/KazimAndrei/HollyProject/internal/metrics"
	"github.com/KazimAndrei/HollyProject/internal/models"
	"github.com/KazimAndrei/HollyProject/internal/storage"
)

const (
	generationPassages = 3
	refusalPassages    = 3

	missingText = "(Text not available in corpus)"
)

var (
	// ErrPaywall means the user spent today's free messages and has no active subscription.
	ErrPaywall = errors.New("chat: free message limit reached")

	// ErrEmptyMessage rejects blank questions.
	ErrEmptyMessage = errors.New("chat: message is empty")
)

// Library is the verse lookup the pipeline needs besides retrieval.
type Library interface {
	Resolve(translation string) string
	Lang(translation string) string
	Lookup(ref, translation string) (models.Verse, error)
	Nearest(translation string, n int) []models.Passage
}

// Request is one user question.
type Request struct {
	UserID         string
	Message        string
	Translation    string
	ConversationID string
}

// Citation is a verse quoted back to the user.
type Citation struct {
	Ref         string
	Translation string
	Text        string
	Spans       []models.Span
}

// Reply is the pipeline's answer.
type Reply struct {
	Answer             string
	Citations          []Citation
	ConversationID     string
	HasReliableSources bool
}

// Config tunes the pipeline.
type Config struct {
	FreeLimit        int
	MinReliableScore int
	Now              func() time.Time
	Logger           zerolog.Logger
	Metrics          *metrics.Metrics
}

// Service gates questions on quota or entitlement, then retrieves, generates and cites.
type Service struct {
	retriever    interfaces.Retriever
	generator    interfaces.Generator
	library      Library
	quotas       interfaces.QuotaStore
	entitlements interfaces.EntitlementStore

	freeLimit int
	minScore  int
	now       func() time.Time
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewService(
	retriever interfaces.Retriever,
	generator interfaces.Generator,
	library Library,
	quotas interfaces.QuotaStore,
	entitlements interfaces.EntitlementStore,
	cfg Config,
) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		retriever:    retriever,
		generator:    generator,
		library:      library,
		quotas:       quotas,
		entitlements: entitlements,
		freeLimit:    cfg.FreeLimit,
		minScore:     cfg.MinReliableScore,
		now:          cfg.Now,
		logger:       cfg.Logger.With().Str("component", "chat").Logger(),
		metrics:      cfg.Metrics,
	}
}

// FreeLimit is the number of free messages per local day.
func (s *Service) FreeLimit() int {
	return s.freeLimit
}

// Ask answers one question for a user. Unentitled users reserve a slot of today's
// free quota before any work starts; the slot is handed back when no reply is produced.
// Errors from the generator are returned unchanged.
func (s *Service) Ask(ctx context.Context, req Request) (Reply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}

	now := s.now()
	entitled := s.entitled(ctx, req.UserID, now)
	if !entitled {
		used, err := s.quotas.Increment(ctx, req.UserID, now)
		if err != nil {
			return Reply{}, fmt.Errorf("reserve quota: %w", err)
		}
		if used > s.freeLimit {
			s.release(ctx, req.UserID, now)
			s.metrics.ObserveChatReply("paywall")
			return Reply{}, ErrPaywall
		}
	}

	reply, err := s.Answer(ctx, message, req.Translation)
	if err != nil {
		if !entitled {
			s.release(ctx, req.UserID, now)
		}
		return Reply{}, err
	}

	reply.ConversationID = req.ConversationID
	if reply.ConversationID == "" {
		reply.ConversationID = uuid.NewString()
	}
	return reply, nil
}

// Answer runs retrieval and generation without quota or entitlement checks.
// It refuses politely when no passage scores as reliable.
func (s *Service) Answer(ctx context.Context, message, translation string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}

	translation = s.library.Resolve(translation)
	passages, err := s.retriever.Retrieve(ctx, message, translation)
	if err != nil {
		s.metrics.ObserveChatReply("error")
		return Reply{}, fmt.Errorf("retrieve passages: %w", err)
	}

	if len(passages) == 0 || passages[0].Score < s.minScore {
		s.metrics.ObserveChatReply("refusal")
		return s.refuse(message, translation), nil
	}

	reply, err := s.answer(ctx, message, translation, passages)
	if err != nil {
		s.metrics.ObserveChatReply("error")
		return Reply{}, err
	}
	s.metrics.ObserveChatReply("answer")
	return reply, nil
}

func (s *Service) release(ctx context.Context, userID string, now time.Time) {
	if err := s.quotas.Release(ctx, userID, now); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to release quota slot")
	}
}

func (s *Service) entitled(ctx context.Context, userID string, now time.Time) bool {
	ent, err := s.entitlements.Entitlement(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Entitlement lookup failed")
		return false
	}
	return ent.Active(now)
}

func (s *Service) answer(ctx context.Context, message, translation string, passages []models.Passage) (Reply, error) {
	top := passages[:min(generationPassages, len(passages))]

	text, err := s.generator.Generate(ctx, message, top)
	if err != nil {
		return Reply{}, err
	}

	citations := s.enrich(citation.Parse(text, s.library.Lang(translation)), translation, top)
	if len(citations) == 0 {
		citations = fromPassages(top)
	}
	return Reply{Answer: text, Citations: citations, HasReliableSources: true}, nil
}

func (s *Service) enrich(parsed []models.Citation, translation string, used []models.Passage) []Citation {
	spans := make(map[string][]models.Span, len(used))
	for _, p := range used {
		spans[p.Ref] = p.Spans
	}

	out := make([]Citation, 0, len(parsed))
	for _, c := range parsed {
		cited := Citation{Ref: c.Ref, Translation: translation, Text: missingText, Spans: []models.Span{}}
		if verse, err := s.library.Lookup(c.Ref, translation); err == nil {
			cited.Text = verse.Text
			if sp, ok := spans[c.Ref]; ok && sp != nil {
				cited.Spans = sp
			}
		}
		out = append(out, cited)
	}
	return out
}

func (s *Service) refuse(message, translation string) Reply {
	var answer string
	if s.library.Lang(translation) == "ru" {
		answer = fmt.Sprintf("Извините, я не нашел достоверных источников для вашего вопроса '%s'. "+
			"Возможно, эти отрывки могут помочь:", message)
	} else {
		answer = fmt.Sprintf("I'm sorry, I couldn't find reliable sources for your question '%s'. "+
			"Perhaps these passages may help:", message)
	}

	return Reply{
		Answer:             answer,
		Citations:          fromPassages(s.library.Nearest(translation, refusalPassages)),
		HasReliableSources: false,
	}
}

func fromPassages(passages []models.Passage) []Citation {
	out := make([]Citation, 0, len(passages))
	for _, p := range passages {
		spans := p.Spans
		if spans == nil {
			spans = []models.Span{}
		}
		out = append(out, Citation{Ref: p.Ref, Translation: p.Translation, Text: p.Text, Spans: spans})
	}
	return out
}
