// Package textnorm cleans extracted page text and drops pages that are noise.
package textnorm

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"pdfqa/internal/domain"
)

// UnknownSection labels pages without a leading numbered heading.
const UnknownSection = "Unknown Section"

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// numbered heading such as "3.2.1 Title", ending before the first period or newline
	sectionRe = regexp.MustCompile(`^(\d+(?:\.\d+)*\s+.[^.\n]*)`)
)

// Clean collapses every whitespace run to a single space and trims the result.
func Clean(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// SectionTitle extracts a leading numbered heading, or UnknownSection.
func SectionTitle(text string) string {
	m := sectionRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return UnknownSection
	}
	return strings.TrimSpace(m[1])
}

// Normalize cleans every page and keeps those with at least minLength characters.
func Normalize(docs []domain.Document, minLength int) []domain.Document {
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		text := Clean(d.Text)
		if utf8.RuneCountInString(text) < minLength {
			continue
		}
		d.Text = text
		d.Section = SectionTitle(text)
		out = append(out, d)
	}
	return out
}
