package domain

// Label is the eligibility classification of a generated answer.
type Label string

const (
	LabelYes   Label = "Yes"
	LabelNo    Label = "No"
	LabelRefer Label = "Refer"
)

// Filters are the business dimensions a question is scoped to. Program and
// Version are optional.
type Filters struct {
	Carrier string
	LOB     string
	State   string
	Program string
	Version string
}

// Source is a citation shown next to the answer.
type Source struct {
	Doc     string `json:"doc"`
	Page    string `json:"page"`
	Snippet string `json:"snippet"`
	Tag     string `json:"tag"`
}

// RetrievedChunk is the diagnostic view of a chunk used as context.
type RetrievedChunk struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Doc   string  `json:"doc"`
	Page  string  `json:"page"`
	Score float64 `json:"score"`
}

// AnswerResult is the output of the carrier assistant.
type AnswerResult struct {
	Answer     Label            `json:"answer"`
	Conditions string           `json:"conditions"`
	Sources    []Source         `json:"sources"`
	Retrieved  []RetrievedChunk `json:"retrieved"`
}

// ReferResult builds the conservative answer used when nothing can be
// grounded.
func ReferResult(message string) *AnswerResult {
	return &AnswerResult{
		Answer:     LabelRefer,
		Conditions: message,
		Sources:    []Source{},
		Retrieved:  []RetrievedChunk{},
	}
}

// Generation is generated text together with the provider step that
// produced it.
type Generation struct {
	Text     string
	Provider string
	Step     string
	Attempts int
}
