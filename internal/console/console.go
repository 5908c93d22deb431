// Package console runs the line-oriented question loop.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"pdfqa/internal/logging"
	"pdfqa/internal/service"
)

const (
	Prompt  = "Ask your question (q to quit): "
	rule    = "=================================================="
	divider = "--------------------------------------------------"
)

// Asker answers one question.
type Asker interface {
	Ask(ctx context.Context, question string) (service.Answer, error)
}

// Run reads questions from in until "q" or EOF and writes answers to out.
// A failed question is reported and the loop moves on to the next one.
func Run(ctx context.Context, in io.Reader, out io.Writer, asker Asker, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintln(out, "RAG Q&A System - PDF Documentation")
	fmt.Fprintln(out, "Type 'q' to quit")
	fmt.Fprintln(out, rule)

	for {
		fmt.Fprintf(out, "\n%s\n", divider)
		fmt.Fprint(out, Prompt)
		if !sc.Scan() {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Goodbye!")
			return sc.Err()
		}
		question := strings.TrimSpace(sc.Text())
		fmt.Fprintln(out)

		if strings.EqualFold(question, "q") {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
		if question == "" {
			fmt.Fprintln(out, "Please enter a valid question.")
			continue
		}

		ans, err := asker.Ask(ctx, question)
		if err != nil {
			logger.Error("question failed", zap.String("question", question), zap.Error(err))
			fmt.Fprintln(out, "Error processing question.")
			fmt.Fprintln(out, "Please try rephrasing your question.")
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		fmt.Fprintln(out, ans.Text)
	}
}
