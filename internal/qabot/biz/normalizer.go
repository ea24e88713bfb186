package biz

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kart-io/qabot/internal/pkg/textutil"
	"github.com/kart-io/qabot/internal/qabot/sheets"
)

// Metadata carries the display fields of a document, copied onto every chunk
// so retrieval results can be rendered without a second lookup.
type Metadata struct {
	RowNumber int
	Question  string
	Answer    string
	Category  string
	Link      string
}

// Document is the canonical unit derived from one sheet row.
type Document struct {
	// ID is stable across syncs for the same logical row: the sheet's "id"
	// column when present, otherwise "row-<row number>". Never derived from
	// content, so editing a row keeps its id.
	ID string
	// Content is the order-stable text used for embedding and hashing.
	Content string
	// ContentHash is the sha256 of the whitespace-normalized content. It
	// changes exactly when Content changes.
	ContentHash string
	Metadata    Metadata
}

// Normalize converts a sheet row into a Document. Rows with a blank question
// or answer fail with ErrMalformedRow; the caller skips them and keeps going.
func Normalize(row sheets.Row) (*Document, error) {
	question := row.Get("question")
	answer := row.Get("answer")

	if question == "" || answer == "" {
		return nil, fmt.Errorf("%w: row %d: question and answer are required", ErrMalformedRow, row.Number)
	}

	id := row.Get("id")
	if id == "" {
		id = "row-" + strconv.Itoa(row.Number)
	}

	category := row.Get("category")
	link := row.Get("link")
	keywords := row.Get("keywords")

	content := buildContent(question, answer, category, keywords)

	return &Document{
		ID:          id,
		Content:     content,
		ContentHash: textutil.SHA256Hex(content),
		Metadata: Metadata{
			RowNumber: row.Number,
			Question:  question,
			Answer:    answer,
			Category:  category,
			Link:      link,
		},
	}, nil
}

// buildContent lays out the embedded text in a fixed field order and collapses
// whitespace, so formatting churn in the sheet never flips the content hash.
func buildContent(question, answer, category, keywords string) string {
	var b strings.Builder
	if category != "" {
		b.WriteString("Category: ")
		b.WriteString(category)
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nAnswer: ")
	b.WriteString(answer)
	if keywords != "" {
		b.WriteString("\nKeywords: ")
		b.WriteString(keywords)
	}
	return textutil.NormalizeWhitespace(b.String())
}
