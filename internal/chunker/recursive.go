package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"pdfqa/internal/domain"
	"pdfqa/internal/logging"
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word, character.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// RecursiveSplitter splits text into overlapping windows, preferring the
// earliest separator in its list that occurs in the text and recursing into
// pieces that are still too long with the remaining separators.
type RecursiveSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
	logger       *zap.Logger
}

// NewRecursiveSplitter creates a splitter. Lengths are measured in characters.
func NewRecursiveSplitter(chunkSize, chunkOverlap int, separators []string, logger *zap.Logger) (*RecursiveSplitter, error) {
	if chunkSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", chunkOverlap, chunkSize)
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &RecursiveSplitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   separators,
		logger:       logging.OrNop(logger),
	}, nil
}

// span is a piece of a page together with its byte offset in that page.
type span struct {
	text  string
	start int
}

// Split breaks text into chunks of at most chunkSize characters.
func (s *RecursiveSplitter) Split(text string) []string {
	spans := s.splitText(text, 0, s.separators)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = sp.text
	}
	return out
}

// SplitDocuments splits every page and assigns corpus-wide sequential IDs.
// StartIndex is the byte offset of the chunk text within its page.
func (s *RecursiveSplitter) SplitDocuments(docs []domain.Document) []domain.Chunk {
	var chunks []domain.Chunk
	for _, d := range docs {
		for i, sp := range s.splitText(d.Text, 0, s.separators) {
			chunks = append(chunks, domain.Chunk{
				ID:         fmt.Sprintf("doc_%d", len(chunks)),
				Text:       sp.text,
				Source:     d.Source,
				Page:       d.Page,
				Section:    d.Section,
				Index:      i,
				StartIndex: sp.start,
			})
		}
	}
	s.logger.Info("documents split into chunks",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", s.chunkSize),
		zap.Int("overlap", s.chunkOverlap))
	return chunks
}

// splitText splits text, which starts at byte offset in its page.
func (s *RecursiveSplitter) splitText(text string, offset int, separators []string) []span {
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var final, good []span
	for _, piece := range splitKeepingSeparator(text, separator, offset) {
		if runeLen(piece.text) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(next) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.splitText(piece.text, piece.start, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge packs small consecutive pieces into windows, carrying up to
// chunkOverlap characters of trailing pieces into the next window.
func (s *RecursiveSplitter) merge(pieces []span) []span {
	var out, current []span
	total := 0
	for _, p := range pieces {
		n := runeLen(p.text)
		if total+n > s.chunkSize {
			if total > s.chunkSize {
				s.logger.Warn("chunk longer than chunk size", zap.Int("length", total), zap.Int("chunk_size", s.chunkSize))
			}
			if len(current) > 0 {
				if doc, ok := joinPieces(current); ok {
					out = append(out, doc)
				}
				for total > s.chunkOverlap || (total+n > s.chunkSize && total > 0) {
					total -= runeLen(current[0].text)
					current = current[1:]
				}
			}
		}
		current = append(current, p)
		total += n
	}
	if doc, ok := joinPieces(current); ok {
		out = append(out, doc)
	}
	return out
}

// splitKeepingSeparator splits on sep and re-attaches it to the start of each
// following piece, so the pieces concatenate back to text.
func splitKeepingSeparator(text, sep string, offset int) []span {
	if sep == "" {
		out := make([]span, 0, len(text))
		for i, r := range text {
			out = append(out, span{text: string(r), start: offset + i})
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]span, 0, len(parts))
	pos := offset
	if parts[0] != "" {
		out = append(out, span{text: parts[0], start: pos})
	}
	pos += len(parts[0])
	for _, p := range parts[1:] {
		piece := sep + p
		out = append(out, span{text: piece, start: pos})
		pos += len(piece)
	}
	return out
}

// joinPieces concatenates consecutive pieces and trims surrounding
// whitespace, moving the start past any trimmed prefix.
func joinPieces(pieces []span) (span, bool) {
	var b strings.Builder
	for _, p := range pieces {
		b.WriteString(p.text)
	}
	joined := b.String()
	lead := len(joined) - len(strings.TrimLeftFunc(joined, unicode.IsSpace))
	text := strings.TrimSpace(joined)
	if text == "" {
		return span{}, false
	}
	return span{text: text, start: pieces[0].start + lead}, true
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
