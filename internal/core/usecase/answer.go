package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"text/template"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/ports"
)

type ComposerConfig struct {
	PromptTemplate string
	LanguagePolicy string
}

// AnswerComposer renders the prompt, calls the LLM and extracts the answer.
// It never returns an error: failures come back as a tagged failed Answer.
type AnswerComposer struct {
	generator ports.Generator
	tmpl      *template.Template
	policy    string
	logger    *slog.Logger
}

func NewAnswerComposer(generator ports.Generator, cfg ComposerConfig, logger *slog.Logger) (*AnswerComposer, error) {
	text := cfg.PromptTemplate
	if strings.TrimSpace(text) == "" {
		text = DefaultPromptTemplate
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "parse prompt template", err)
	}
	if _, err := renderPrompt(tmpl, promptData{}); err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "check prompt template", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerComposer{generator: generator, tmpl: tmpl, policy: cfg.LanguagePolicy, logger: logger}, nil
}

func (c *AnswerComposer) RenderPrompt(question string, chunks []domain.Chunk) (string, error) {
	return renderPrompt(c.tmpl, promptData{
		Context:        buildContext(chunks),
		Question:       question,
		LanguagePolicy: c.policy,
	})
}

func renderPrompt(tmpl *template.Template, data promptData) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Compose answers from the supplied chunks. An empty chunk list is still sent
// to the LLM; a successful extraction then yields OK with no sources.
func (c *AnswerComposer) Compose(ctx context.Context, question string, chunks []domain.Chunk) domain.Answer {
	prompt, err := c.RenderPrompt(question, chunks)
	if err != nil {
		return c.fail(domain.FailureInternal, fmt.Errorf("render prompt: %w", err))
	}

	raw, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		return c.fail(failureKind(err), err)
	}
	text, err := ExtractAnswer(raw)
	if err != nil {
		return c.fail(domain.FailureAnswerExtraction, err)
	}
	return domain.SuccessAnswer(text, chunks)
}

func (c *AnswerComposer) fail(kind domain.FailureKind, err error) domain.Answer {
	c.logger.Warn("answer_failed", "kind", string(kind), "model", c.generator.ModelID(), "error", err)
	return domain.FailedAnswer(kind, err.Error())
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// ExtractAnswer reads the "response" field of an Ollama generate body and
// strips reasoning blocks emitted by reasoning models.
func ExtractAnswer(raw json.RawMessage) (string, error) {
	var body struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", domain.WrapError(domain.ErrAnswerExtraction, "extract answer", fmt.Errorf("malformed response: %w", err))
	}
	if body.Response == nil {
		return "", domain.WrapError(domain.ErrAnswerExtraction, "extract answer", errors.New("response field missing"))
	}
	text := strings.TrimSpace(thinkBlock.ReplaceAllString(*body.Response, ""))
	if text == "" {
		return "", domain.WrapError(domain.ErrAnswerExtraction, "extract answer", errors.New("response is empty"))
	}
	return text, nil
}
