// Package answer renders retrieved chunks into a grounded prompt and asks a
// language model to answer it.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"pdfqa/internal/domain"
	"pdfqa/internal/logging"
)

// NoDocuments is the context used when retrieval found nothing.
const NoDocuments = "No relevant documents found."

const promptText = `
You are an expert assistant specializing in software engineering documentation, build processes, and development tools.

Based on the following relevant documents, provide accurate and helpful answers to the user's questions.

RELEVANT DOCUMENTATION:
{{.Context}}

USER QUESTION: {{.Question}}

INSTRUCTIONS FOR RESPONSE:
1. First, carefully review the provided documentation to see if it contains information relevant to the question
2. If the documentation contains relevant information, provide a detailed answer based on that content
3. If the documentation doesn't contain specific information about the question, clearly state this and provide general guidance if possible
4. Always be specific and cite information from the documents when available
5. For build/installation questions, provide step-by-step instructions when available in the documentation

ANSWER:
`

var promptTmpl = template.Must(template.New("prompt").Parse(promptText))

// FormatContext numbers each non-blank chunk and labels it with its source file.
func FormatContext(chunks []domain.Chunk) string {
	if len(chunks) == 0 {
		return NoDocuments
	}
	parts := make([]string, 0, len(chunks))
	for i, ch := range chunks {
		content := strings.TrimSpace(ch.Text)
		if content == "" {
			continue
		}
		source := ch.Source
		if source == "" {
			source = "Unknown"
		}
		parts = append(parts, fmt.Sprintf("Document %d (Source: %s):\n%s\n", i+1, source, content))
	}
	return strings.Join(parts, "\n")
}

// Prompt fills the instruction template with the formatted context and question.
func Prompt(question string, chunks []domain.Chunk) (string, error) {
	var sb strings.Builder
	err := promptTmpl.Execute(&sb, struct{ Context, Question string }{FormatContext(chunks), question})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return sb.String(), nil
}

// Composer turns a question and its retrieved chunks into an answer.
type Composer struct {
	completer domain.Completer
	logger    *zap.Logger
}

func NewComposer(completer domain.Completer, logger *zap.Logger) (*Composer, error) {
	if completer == nil {
		return nil, errors.New("composer needs a completer")
	}
	return &Composer{completer: completer, logger: logging.OrNop(logger)}, nil
}

// Answer returns the model's completion verbatim.
func (c *Composer) Answer(ctx context.Context, question string, chunks []domain.Chunk) (string, error) {
	prompt, err := Prompt(question, chunks)
	if err != nil {
		return "", err
	}
	c.logger.Debug("sending prompt", zap.Int("chunks", len(chunks)), zap.Int("prompt_len", len(prompt)))
	return c.completer.Complete(ctx, prompt)
}
