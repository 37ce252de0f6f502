package domain

// FallbackAnswerText is returned whenever no grounded answer could be produced.
const FallbackAnswerText = "No relevant information was found to answer this question."

type FailureKind string

const (
	FailureNoContext          FailureKind = "no_context"
	FailureAnswerExtraction   FailureKind = "answer_extraction"
	FailureBackendTimeout     FailureKind = "backend_timeout"
	FailureBackendUnreachable FailureKind = "backend_unreachable"
	FailureDimensionMismatch  FailureKind = "dimension_mismatch"
	FailureInvalidModel       FailureKind = "invalid_model"
	FailureIndexUnavailable   FailureKind = "index_unavailable"
	FailureOverloaded         FailureKind = "overloaded"
	FailureCanceled           FailureKind = "canceled"
	FailureInternal           FailureKind = "internal"
)

type AnswerFailure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Answer is either a success (OK, Text, SourceChunks) or a failure (Failure set,
// fallback Text, no sources). The two are never mixed.
type Answer struct {
	Text         string         `json:"text"`
	SourceChunks []Chunk        `json:"source_chunks"`
	OK           bool           `json:"ok"`
	Failure      *AnswerFailure `json:"failure,omitempty"`
}

func SuccessAnswer(text string, sources []Chunk) Answer {
	if sources == nil {
		sources = []Chunk{}
	}
	return Answer{Text: text, SourceChunks: sources, OK: true}
}

func FailedAnswer(kind FailureKind, message string) Answer {
	return Answer{
		Text:         FallbackAnswerText,
		SourceChunks: []Chunk{},
		OK:           false,
		Failure:      &AnswerFailure{Kind: kind, Message: message},
	}
}
