package service

import (
	"fmt"
	"strings"
)

// NoContextPlaceholder stands in for the context block when nothing was
// retrieved.
const NoContextPlaceholder = "N/A"

const groundingPromptTemplate = `You are a carrier eligibility assistant. You must ONLY use facts explicitly present in the Context.
If the Context does not contain the answer, respond with "Refer" and explain that the information is not found.
Do not add or infer any details not in the Context. Keep wording close to the source text.

Question: %s

Context:
%s

Respond with:
- Answer: Yes/No/Refer
- Conditions: bullet points copied or tightly paraphrased from Context only
- Include inline citations using [#n doc p.page] for every factual statement.`

// ReferenceTag is the citation tag of the n-th (1-based) context chunk.
func ReferenceTag(n int) string {
	return fmt.Sprintf("#%d", n)
}

// BuildContext renders at most maxChunks chunks as tagged context entries
// separated by blank lines.
func BuildContext(chunks []RankedChunk, maxChunks int) string {
	if maxChunks > 0 && len(chunks) > maxChunks {
		chunks = chunks[:maxChunks]
	}
	if len(chunks) == 0 {
		return NoContextPlaceholder
	}

	entries := make([]string, 0, len(chunks))
	for i, r := range chunks {
		header := ReferenceTag(i+1) + " " + r.Chunk.DisplayName()
		if r.Chunk.Page != "" {
			header += " p." + r.Chunk.Page
		}
		entries = append(entries, fmt.Sprintf("[%s] %s", header, r.Chunk.Text))
	}
	return strings.Join(entries, "\n\n")
}

// BuildPrompt fills the grounding template.
func BuildPrompt(question, contextBlock string) string {
	if strings.TrimSpace(contextBlock) == "" {
		contextBlock = NoContextPlaceholder
	}
	return fmt.Sprintf(groundingPromptTemplate, strings.TrimSpace(question), contextBlock)
}
