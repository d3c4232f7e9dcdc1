package scripture

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/KazimAndrei/HollyProject/internal/models"
)

// RetrieveLimit is how many passages Retrieve returns.
const RetrieveLimit = 5

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

func queryWords(query string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		words[w] = struct{}{}
	}
	return words
}

// score counts distinct query words present in text and records where they occur.
func score(words map[string]struct{}, text string) (int, []models.Span) {
	lower := strings.ToLower(text)
	matched := make(map[string]struct{})
	var spans []models.Span

	for _, loc := range wordPattern.FindAllStringIndex(lower, -1) {
		word := lower[loc[0]:loc[1]]
		if _, ok := words[word]; !ok {
			continue
		}
		matched[word] = struct{}{}
		start := utf8.RuneCountInString(lower[:loc[0]])
		spans = append(spans, models.Span{Start: start, End: start + utf8.RuneCountInString(word)})
	}
	return len(matched), spans
}

// Search ranks verses by word overlap with query. Ties keep corpus order.
func (c *Corpus) Search(query, translation string, limit, offset int) []models.Passage {
	words := queryWords(query)
	if len(words) == 0 {
		return nil
	}

	t := c.translations[c.Resolve(translation)]
	var results []models.Passage
	for _, v := range t.Verses {
		n, spans := score(words, v.Text)
		if n == 0 {
			continue
		}
		results = append(results, models.Passage{Verse: v, Translation: t.Code, Score: n, Spans: spans})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

// Retrieve returns the best passages for a question.
func (c *Corpus) Retrieve(ctx context.Context, query, translation string) ([]models.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Search(query, translation, RetrieveLimit, 0), nil
}

// Daily picks the verse of the day from the daily pool by day of year.
func (c *Corpus) Daily(translation string, now time.Time) (models.Verse, error) {
	t := c.translations[c.Resolve(translation)]

	var pool []models.Verse
	for _, ref := range c.dailyPool {
		if i, ok := t.byRef[ref]; ok {
			pool = append(pool, t.Verses[i])
		}
	}
	if len(pool) == 0 {
		if len(t.Verses) == 0 {
			return models.Verse{}, ErrNotFound
		}
		return t.Verses[0], nil
	}
	return pool[(now.YearDay()-1)%len(pool)], nil
}

// Highlight wraps every span of text in <b></b>.
func Highlight(text string, spans []models.Span) string {
	if len(spans) == 0 {
		return text
	}

	runes := []rune(text)
	sorted := append([]models.Span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var b strings.Builder
	pos := 0
	for _, s := range sorted {
		if s.Start < pos || s.End > len(runes) || s.Start >= s.End {
			continue
		}
		b.WriteString(string(runes[pos:s.Start]))
		b.WriteString("<b>")
		b.WriteString(string(runes[s.Start:s.End]))
		b.WriteString("</b>")
		pos = s.End
	}
	b.WriteString(string(runes[pos:]))
	return b.String()
}
