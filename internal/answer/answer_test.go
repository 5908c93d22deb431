package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfqa/internal/domain"
)

type recordingCompleter struct {
	prompt string
	reply  string
	err    error
}

func (r *recordingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	r.prompt = prompt
	return r.reply, r.err
}

func TestFormatContext(t *testing.T) {
	chunks := []domain.Chunk{
		{Text: "  first chunk  ", Source: "a.pdf"},
		{Text: "   ", Source: "blank.pdf"},
		{Text: "third chunk"},
	}

	got := FormatContext(chunks)

	want := "Document 1 (Source: a.pdf):\nfirst chunk\n" +
		"\n" +
		"Document 3 (Source: Unknown):\nthird chunk\n"
	assert.Equal(t, want, got)
}

func TestFormatContext_Empty(t *testing.T) {
	assert.Equal(t, NoDocuments, FormatContext(nil))
}

func TestPrompt_ContainsContextAndQuestion(t *testing.T) {
	p, err := Prompt("What is <RAP>?", []domain.Chunk{{Text: "RAP means register access protocol", Source: "eusb2.pdf"}})
	require.NoError(t, err)

	assert.Contains(t, p, "RELEVANT DOCUMENTATION:\nDocument 1 (Source: eusb2.pdf):\nRAP means register access protocol\n")
	// text/template does not escape
	assert.Contains(t, p, "USER QUESTION: What is <RAP>?")
	assert.True(t, strings.HasSuffix(p, "ANSWER:\n"))
}

func TestComposer_Answer(t *testing.T) {
	c := &recordingCompleter{reply: "  The answer.  "}
	comp, err := NewComposer(c, nil)
	require.NoError(t, err)

	got, err := comp.Answer(context.Background(), "q?", nil)

	require.NoError(t, err)
	assert.Equal(t, "  The answer.  ", got)
	assert.Contains(t, c.prompt, NoDocuments)
	assert.Contains(t, c.prompt, "USER QUESTION: q?")
}

func TestComposer_PropagatesError(t *testing.T) {
	boom := errors.New("model unavailable")
	comp, err := NewComposer(&recordingCompleter{err: boom}, nil)
	require.NoError(t, err)

	_, err = comp.Answer(context.Background(), "q", nil)
	assert.ErrorIs(t, err, boom)
}

func TestNewComposer_RequiresCompleter(t *testing.T) {
	_, err := NewComposer(nil, nil)
	assert.Error(t, err)
}
