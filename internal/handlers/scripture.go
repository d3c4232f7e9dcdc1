package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/KazimAndrei/HollyProject/internal/api"
	"github.com/KazimAndrei/HollyProject/internal/scripture"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	minQueryLength     = 2
)

// GET /v1/verses/search
func (h *Handler) SearchVerses(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if utf8.RuneCountInString(q) < minQueryLength {
		h.writeError(c, http.StatusBadRequest, api.ErrorCodeValidationFailed, "q must be at least 2 characters")
		return
	}

	limit, err := intQuery(c, "limit", defaultSearchLimit)
	if err != nil || limit < 1 || limit > maxSearchLimit {
		h.writeError(c, http.StatusBadRequest, api.ErrorCodeValidationFailed, "limit must be between 1 and 100")
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil || offset < 0 {
		h.writeError(c, http.StatusBadRequest, api.ErrorCodeValidationFailed, "offset must not be negative")
		return
	}

	passages := h.corpus.Search(q, c.Query("translation"), limit, offset)
	results := make([]api.VerseSearchResult, 0, len(passages))
	for _, p := range passages {
		results = append(results, api.VerseSearchResult{
			Ref:       p.Ref,
			Book:      p.Book,
			Chapter:   p.Chapter,
			Verse:     p.Verse.Verse,
			Text:      p.Text,
			Highlight: scripture.Highlight(p.Text, p.Spans),
		})
	}
	c.JSON(http.StatusOK, api.VerseSearchResponse{Results: results})
}

// GET /v1/daily-verse
func (h *Handler) DailyVerse(c *gin.Context) {
	verse, err := h.corpus.Daily(c.Query("translation"), h.now().In(h.loc))
	if err != nil {
		h.writeError(c, http.StatusNotFound, api.ErrorCodeNotFound, "No daily verse available")
		return
	}
	c.JSON(http.StatusOK, api.DailyVerseResponse{Verse: verse})
}

// GET /api/daily-verse
func (h *Handler) LocalizedDailyVerse(c *gin.Context) {
	translation := h.corpus.ForLocale(c.DefaultQuery("locale", "en"))
	verse, err := h.corpus.Daily(translation, h.now().In(h.loc))
	if err != nil {
		h.writeError(c, http.StatusNotFound, api.ErrorCodeNotFound, "No daily verse available")
		return
	}
	c.JSON(http.StatusOK, api.ScriptureResponse{Success: true, Data: verse})
}

// GET /api/scripture/:ref
func (h *Handler) Scripture(c *gin.Context) {
	translation := h.corpus.ForLocale(c.DefaultQuery("locale", "en"))
	verse, err := h.corpus.Lookup(c.Param("ref"), translation)
	if errors.Is(err, scripture.ErrNotFound) {
		h.writeError(c, http.StatusNotFound, api.ErrorCodeNotFound, "Verse not found")
		return
	}
	if err != nil {
		h.writeError(c, http.StatusInternalServerError, api.ErrorCodeInternalError, "Failed to read verse")
		return
	}
	c.JSON(http.StatusOK, api.ScriptureResponse{Success: true, Data: verse})
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
