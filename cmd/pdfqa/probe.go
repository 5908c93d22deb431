package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pdfqa/internal/domain"
)

// defaultProbeQueries exercise the eUSB2 corpus the tool was first built for.
var defaultProbeQueries = []string{
	"What is the RAP format in eUSB2?",
	"How does L2 suspend work in repeater mode?",
	"What are the electrical requirements for high-speed signaling?",
	"Explain the eUSB2 state machine",
}

const previewLen = 200

type retrieverFunc func(ctx context.Context, query string) ([]domain.SearchResult, error)

func (a *app) newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe [query...]",
		Short: "Show what the retriever returns for some queries",
		Long: `Runs retrieval only (no language model) and prints the source file,
section title and a short preview of every selected chunk.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := buildPipeline(a.cfg, a.logger, false)
			if err != nil {
				return err
			}
			defer p.Close()
			if err := p.Open(ctx, false); err != nil {
				return fmt.Errorf("failed to initialize vector store: %w", err)
			}
			queries := args
			if len(queries) == 0 {
				queries = defaultProbeQueries
			}
			probe(ctx, cmd.OutOrStdout(), p.Retrieve, queries)
			return nil
		},
	}
}

func probe(ctx context.Context, w io.Writer, retrieve retrieverFunc, queries []string) {
	rule := strings.Repeat("=", 50)
	fmt.Fprintf(w, "\n%s\nTESTING RETRIEVAL SYSTEM\n%s\n", rule, rule)

	for _, q := range queries {
		fmt.Fprintf(w, "\nQuery: %s\n%s\n", q, strings.Repeat("-", 30))
		results, err := retrieve(ctx, q)
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(w, "Retrieved %d documents:\n", len(results))
		for i, r := range results {
			fmt.Fprintf(w, "  %d. Source: %s, Section: %s (score %.3f)\n", i+1, r.Chunk.Source, r.Chunk.Section, r.Score)
			fmt.Fprintf(w, "     Content: %s...\n", preview(r.Chunk.Text))
		}
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewLen {
		runes = runes[:previewLen]
	}
	return strings.ReplaceAll(string(runes), "\n", " ")
}
