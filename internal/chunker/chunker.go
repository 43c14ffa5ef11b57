// Package chunker turns uploaded documents into overlapping text chunks
// ready for indexing.
package chunker

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/efebarandurmaz/lectern/internal/vector"
)

var (
	// ErrUnsupportedFormat is returned for files outside the extension
	// allow-list, before any content is read.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyContent is returned when extraction yields no usable text.
	ErrEmptyContent = errors.New("no content could be extracted from the document")
)

// SupportedExtensions is the upload allow-list.
var SupportedExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".csv": true,
}

// Chunker splits documents into overlapping windows, preferring paragraph
// and sentence boundaries over hard character cuts.
type Chunker struct {
	chunkSize int
	overlap   int
}

// New creates a Chunker. Overlap must be strictly smaller than chunk size.
func New(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("overlap %d must be in [0, %d)", overlap, chunkSize)
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Process extracts text from the upload and splits it into chunks. Every
// chunk carries the source filename and its zero-based index in metadata.
func (c *Chunker) Process(r io.Reader, filename string) ([]vector.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !SupportedExtensions[ext] {
		return nil, fmt.Errorf("%w: %q (supported: .pdf, .txt, .csv)", ErrUnsupportedFormat, ext)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}

	var text string
	switch ext {
	case ".pdf":
		text, err = extractPDF(data)
	case ".csv":
		text, err = extractCSV(data)
	default:
		text = string(data)
	}
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyContent
	}

	pieces := c.split(text)
	chunks := make([]vector.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = vector.Chunk{
			Content: piece,
			Metadata: map[string]any{
				"source":      filename,
				"chunk_index": int64(i),
			},
		}
	}
	return chunks, nil
}

// extractPDF pulls text page by page so a single corrupt page does not sink
// the whole document.
func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// extractCSV flattens each row into a "header: value" line so tabular data
// stays meaningful after embedding.
func extractCSV(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parsing csv: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}

	header := records[0]
	var b strings.Builder
	for _, row := range records[1:] {
		var cells []string
		for i, cell := range row {
			if cell == "" {
				continue
			}
			if i < len(header) && header[i] != "" {
				cells = append(cells, header[i]+": "+cell)
			} else {
				cells = append(cells, cell)
			}
		}
		if len(cells) > 0 {
			b.WriteString(strings.Join(cells, ", "))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// split cuts text into overlapping windows of at most chunkSize characters.
func (c *Chunker) split(text string) []string {
	if len(text) <= c.chunkSize {
		return []string{text}
	}

	var pieces []string
	start := 0

	for start < len(text) {
		end := start + c.chunkSize
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			if bp := findBreakPoint(text, start, end, c.overlap); bp > start {
				end = bp
			}
		}

		pieces = append(pieces, strings.TrimSpace(text[start:end]))

		if end >= len(text) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	// Boundary trimming can leave empty windows in pathological inputs.
	out := pieces[:0]
	for _, p := range pieces {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// findBreakPoint looks backwards from maxEnd for a paragraph, sentence, or
// word boundary. Candidates too close to the window start are rejected so
// the next window, after stepping back by the overlap, still advances by at
// least half the non-overlap span.
func findBreakPoint(text string, start, maxEnd, overlap int) int {
	minEnd := start + (maxEnd-start+overlap)/2

	searchStart := maxEnd - 100
	if searchStart < start {
		searchStart = start
	}
	window := text[searchStart:maxEnd]

	if idx := strings.LastIndex(window, "\n\n"); idx != -1 {
		if bp := searchStart + idx + 2; bp > minEnd {
			return bp
		}
	}

	best := -1
	for _, ender := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if idx := strings.LastIndex(window, ender); idx != -1 {
			if end := idx + len(ender); end > best {
				best = end
			}
		}
	}
	if best > 0 {
		if bp := searchStart + best; bp > minEnd {
			return bp
		}
	}

	if idx := strings.LastIndex(window, " "); idx != -1 {
		if bp := searchStart + idx + 1; bp > minEnd {
			return bp
		}
	}

	return maxEnd
}
