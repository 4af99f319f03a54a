package service

import (
	"regexp"

	"github.com/cloo-solutions/quotedesk/internal/domain"
)

const snippetMaxRunes = 160

var (
	referPattern = regexp.MustCompile(`(?i)\brefer\b`)
	yesPattern   = regexp.MustCompile(`(?i)\byes\b`)
	noPattern    = regexp.MustCompile(`(?i)\bno\b`)
)

// ExtractLabel classifies generated text. Refer wins over Yes, Yes over No,
// and text with none of them is Refer.
//
// Generated prose is not a controlled format, so this is best effort.
func ExtractLabel(text string) domain.Label {
	switch {
	case referPattern.MatchString(text):
		return domain.LabelRefer
	case yesPattern.MatchString(text):
		return domain.LabelYes
	case noPattern.MatchString(text):
		return domain.LabelNo
	default:
		return domain.LabelRefer
	}
}

// BuildAnswer packages the generated text with citations for the chunks that
// were used as context, in context order.
func BuildAnswer(generated string, used []RankedChunk) *domain.AnswerResult {
	sources := make([]domain.Source, 0, len(used))
	retrieved := make([]domain.RetrievedChunk, 0, len(used))
	for i, r := range used {
		page := ""
		if r.Chunk.Page != "" {
			page = "p." + r.Chunk.Page
		}
		sources = append(sources, domain.Source{
			Doc:     r.Chunk.DisplayName(),
			Page:    page,
			Snippet: snippet(r.Chunk.Text),
			Tag:     ReferenceTag(i + 1),
		})
		retrieved = append(retrieved, domain.RetrievedChunk{
			ID:    r.Chunk.ID,
			Text:  r.Chunk.Text,
			Doc:   r.Chunk.DisplayName(),
			Page:  r.Chunk.Page,
			Score: r.VectorScore,
		})
	}

	return &domain.AnswerResult{
		Answer:     ExtractLabel(generated),
		Conditions: generated,
		Sources:    sources,
		Retrieved:  retrieved,
	}
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetMaxRunes {
		return text
	}
	return string(runes[:snippetMaxRunes]) + "..."
}
