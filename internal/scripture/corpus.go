package scripture

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KazimAndrei/HollyProject/internal/models"
)

// ErrNotFound is returned for unknown references.
var ErrNotFound = errors.New("scripture: verse not found")

// ManifestEntry describes one translation file in manifest.json.
type ManifestEntry struct {
	Code string `json:"code"`
	Lang string `json:"lang"`
	Path string `json:"path"`
}

type manifest struct {
	Translations []ManifestEntry `json:"translations"`
}

type translationFile struct {
	Verses []models.Verse `json:"verses"`
}

// Translation is an in-memory verse list for one translation.
type Translation struct {
	Code   string
	Lang   string
	Verses []models.Verse
}

type indexedTranslation struct {
	Translation
	byRef map[string]int
}

// Corpus holds every loaded translation. It is read-only after construction.
type Corpus struct {
	translations map[string]*indexedTranslation
	order        []string
	defaultCode  string
	dailyPool    []string
}

// Load reads manifest.json from dir and every translation it lists.
func Load(dir, defaultTranslation string, dailyPool []string) (*Corpus, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %v", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %v", err)
	}

	translations := make([]Translation, 0, len(m.Translations))
	for _, entry := range m.Translations {
		raw, err := os.ReadFile(filepath.Join(dir, filepath.Base(entry.Path)))
		if err != nil {
			return nil, fmt.Errorf("failed to read translation %s: %v", entry.Code, err)
		}
		var file translationFile
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("failed to parse translation %s: %v", entry.Code, err)
		}
		translations = append(translations, Translation{Code: entry.Code, Lang: entry.Lang, Verses: file.Verses})
	}

	return New(defaultTranslation, dailyPool, translations...)
}

// New builds a corpus from translations already in memory.
func New(defaultTranslation string, dailyPool []string, translations ...Translation) (*Corpus, error) {
	if len(translations) == 0 {
		return nil, fmt.Errorf("scripture: no translations")
	}

	c := &Corpus{
		translations: make(map[string]*indexedTranslation, len(translations)),
		dailyPool:    dailyPool,
	}
	for _, t := range translations {
		code := normalizeCode(t.Code)
		if code == "" {
			return nil, fmt.Errorf("scripture: translation without code")
		}
		if _, dup := c.translations[code]; dup {
			return nil, fmt.Errorf("scripture: duplicate translation %s", code)
		}

		idx := &indexedTranslation{Translation: t, byRef: make(map[string]int, len(t.Verses))}
		idx.Code = code
		for i, v := range t.Verses {
			if _, seen := idx.byRef[v.Ref]; !seen {
				idx.byRef[v.Ref] = i
			}
		}
		c.translations[code] = idx
		c.order = append(c.order, code)
	}

	c.defaultCode = normalizeCode(defaultTranslation)
	if _, ok := c.translations[c.defaultCode]; !ok {
		c.defaultCode = c.order[0]
	}
	if len(c.dailyPool) == 0 {
		c.dailyPool = []string{"Psalm 23:1"}
	}
	return c, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Resolve returns the translation code to use, falling back to the default.
func (c *Corpus) Resolve(translation string) string {
	code := normalizeCode(translation)
	if _, ok := c.translations[code]; ok {
		return code
	}
	return c.defaultCode
}

// ForLocale returns the first translation in language lang, or the default.
func (c *Corpus) ForLocale(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	for _, code := range c.order {
		if strings.EqualFold(c.translations[code].Lang, lang) {
			return code
		}
	}
	return c.defaultCode
}

// Lang returns the language of a translation.
func (c *Corpus) Lang(translation string) string {
	return c.translations[c.Resolve(translation)].Lang
}

// Translations lists the loaded translation codes in manifest order.
func (c *Corpus) Translations() []string {
	return append([]string(nil), c.order...)
}

// Lookup finds a verse by its reference.
func (c *Corpus) Lookup(ref, translation string) (models.Verse, error) {
	t := c.translations[c.Resolve(translation)]
	i, ok := t.byRef[strings.TrimSpace(ref)]
	if !ok {
		return models.Verse{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return t.Verses[i], nil
}

// Nearest returns the first n verses of a translation, used when search finds nothing reliable.
func (c *Corpus) Nearest(translation string, n int) []models.Passage {
	t := c.translations[c.Resolve(translation)]
	n = min(n, len(t.Verses))
	out := make([]models.Passage, 0, n)
	for _, v := range t.Verses[:n] {
		out = append(out, models.Passage{Verse: v, Translation: t.Code, Spans: []models.Span{}})
	}
	return out
}
