package usecase

import (
	"strings"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

// DefaultPromptTemplate is a text/template with .Context, .Question and
// .LanguagePolicy.
const DefaultPromptTemplate = `Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
{{if .LanguagePolicy}}{{.LanguagePolicy}}
{{end}}
{{.Context}}

Question: {{.Question}}
Helpful Answer:`

const DefaultLanguagePolicy = "Always answer in Brazilian Portuguese."

type promptData struct {
	Context        string
	Question       string
	LanguagePolicy string
}

func buildContext(chunks []domain.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n\n")
}
