// Package citation extracts verse references such as "John 3:16" from free text.
package citation

import (
	"regexp"
	"strings"

	"github.com/KazimAndrei/HollyProject/internal/models"
)

type patternSet struct {
	find     []*regexp.Regexp
	anchored []*regexp.Regexp
}

func compile(exprs ...string) patternSet {
	var set patternSet
	for _, expr := range exprs {
		set.find = append(set.find, regexp.MustCompile(expr))
		set.anchored = append(set.anchored, regexp.MustCompile(`^`+expr))
	}
	return set
}

var (
	// "John 3:16", "1 Corinthians 10:13", "Psalm 23:1-4", then "Matthew 11:28-30".
	english = compile(
		`(\d?\s?[A-Z][a-z]+)\s+(\d+):(\d+(?:-\d+)?)`,
		`([A-Z][a-z]+)\s+(\d+):(\d+)-(\d+)`,
	)
	russian = compile(
		`(\d?\s?[А-ЯЁ][а-яё]+)\s+(\d+):(\d+(?:-\d+)?)`,
		`([А-ЯЁ][а-яё]+)\s+(\d+):(\d+)-(\d+)`,
	)
)

func patternsFor(locale string) patternSet {
	if strings.EqualFold(strings.TrimSpace(locale), "ru") {
		return russian
	}
	return english
}

// Parse returns the distinct references in text, ordered by pattern then position.
func Parse(text, locale string) []models.Citation {
	var (
		out  []models.Citation
		seen = make(map[string]struct{})
	)
	for _, re := range patternsFor(locale).find {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			book := strings.TrimSpace(m[1])
			verse := m[3]
			if len(m) > 4 {
				verse = m[3] + "-" + m[4]
			}

			c := models.Citation{
				Ref:     book + " " + m[2] + ":" + verse,
				Book:    book,
				Chapter: m[2],
				Verse:   verse,
			}
			if _, dup := seen[c.Ref]; dup {
				continue
			}
			seen[c.Ref] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// Validate reports whether ref starts with a well-formed reference.
func Validate(ref, locale string) bool {
	for _, re := range patternsFor(locale).anchored {
		if re.MatchString(ref) {
			return true
		}
	}
	return false
}
