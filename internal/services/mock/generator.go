package mock

import (
	"context"
	"fmt"
	"strings"

	"github.com/KazimAndrei/HollyProject/internal/models"
)

const (
	offlineIntro       = "I cannot access the language model right now. Consider these passages:"
	offlineUnavailable = "I am unavailable right now. Please try again later."
)

// OfflineGenerator stands in for the language model when no API key is configured.
type OfflineGenerator struct{}

func NewOfflineGenerator() *OfflineGenerator {
	return &OfflineGenerator{}
}

func (OfflineGenerator) Generate(ctx context.Context, question string, passages []models.Passage) (string, error) {
	if len(passages) == 0 {
		return offlineUnavailable, nil
	}

	var b strings.Builder
	b.WriteString(offlineIntro)
	for _, p := range passages[:min(2, len(passages))] {
		fmt.Fprintf(&b, "\n%s %s", p.Translation, p.Ref)
		if p.Text != "" {
			fmt.Fprintf(&b, " - %s", p.Text)
		}
	}
	return b.String(), nil
}
