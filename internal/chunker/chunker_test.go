package chunker

import (
	"errors"
	"strings"
	"testing"
)

func TestNew_RejectsBadParameters(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 1000, 200, false},
		{"zero_overlap", 100, 0, false},
		{"zero_size", 0, 0, true},
		{"overlap_equals_size", 100, 100, true},
		{"overlap_exceeds_size", 100, 150, true},
		{"negative_overlap", 100, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d, %d) error=%v, wantErr=%v", tt.size, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestProcess_UnsupportedExtension(t *testing.T) {
	c, _ := New(1000, 200)

	for _, name := range []string{"file.xyz", "file.docx", "file", "archive.tar.gz"} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Process(strings.NewReader("content"), name)
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("expected ErrUnsupportedFormat, got %v", err)
			}
		})
	}
}

func TestProcess_ExtensionCaseInsensitive(t *testing.T) {
	c, _ := New(1000, 200)
	chunks, err := c.Process(strings.NewReader("Some content."), "NOTES.TXT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestProcess_EmptyContent(t *testing.T) {
	c, _ := New(1000, 200)

	_, err := c.Process(strings.NewReader(""), "empty.txt")
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}

	_, err = c.Process(strings.NewReader("   \n\t  "), "blank.txt")
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent for whitespace-only file, got %v", err)
	}
}

func TestProcess_TextFileMetadata(t *testing.T) {
	c, _ := New(1000, 200)

	chunks, err := c.Process(strings.NewReader("This is test content for the RAG system."), "test.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}

	for i, chunk := range chunks {
		if chunk.Metadata["source"] != "test.txt" {
			t.Errorf("chunk %d: expected source=test.txt, got %v", i, chunk.Metadata["source"])
		}
		if idx, ok := chunk.Metadata["chunk_index"].(int64); !ok || idx != int64(i) {
			t.Errorf("chunk %d: expected chunk_index=%d, got %v", i, i, chunk.Metadata["chunk_index"])
		}
	}
}

func TestProcess_LongTextSplitsWithOverlap(t *testing.T) {
	c, _ := New(100, 20)

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog. ")
	}

	chunks, err := c.Process(strings.NewReader(b.String()), "long.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk.Content) > 100 {
			t.Errorf("chunk %d exceeds max size: %d chars", i, len(chunk.Content))
		}
		if chunk.Content == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

func TestSplit_PrefersSentenceBoundaries(t *testing.T) {
	c, _ := New(60, 10)

	text := "First sentence here. Second sentence follows. Third one closes it out completely."
	pieces := c.split(text)

	if len(pieces) < 2 {
		t.Fatalf("expected a split, got %d pieces", len(pieces))
	}
	// The first window should end at a sentence boundary, not mid-word.
	if !strings.HasSuffix(pieces[0], ".") {
		t.Errorf("expected first piece to end at sentence boundary, got %q", pieces[0])
	}
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	c, _ := New(60, 10)

	text := "Short opening paragraph sits here first.\n\nThe second paragraph continues with more detail afterwards."
	pieces := c.split(text)

	if len(pieces) < 2 {
		t.Fatalf("expected a split, got %d pieces", len(pieces))
	}
	if strings.Contains(pieces[0], "second paragraph") {
		t.Errorf("first piece crossed a paragraph boundary: %q", pieces[0])
	}
}

func TestSplit_LargeOverlapStillAdvances(t *testing.T) {
	// Overlap past half the chunk size once turned every sentence boundary
	// into a one-character advance, emitting near-duplicate windows.
	c, _ := New(100, 70)

	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("Short sentences keep the boundary finder busy. ")
	}
	text := strings.TrimSpace(b.String())

	pieces := c.split(text)
	if len(pieces) < 2 {
		t.Fatalf("expected a split, got %d pieces", len(pieces))
	}
	for i := 1; i < len(pieces); i++ {
		if pieces[i] == pieces[i-1] {
			t.Fatalf("window %d did not advance: %q", i, pieces[i])
		}
	}
	// Each window advances by at least (size-overlap)/2 characters, which
	// bounds the total count.
	maxPieces := len(text)/((100-70)/2) + 2
	if len(pieces) > maxPieces {
		t.Errorf("too many windows: %d > %d", len(pieces), maxPieces)
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	c, _ := New(1000, 200)
	pieces := c.split("tiny")
	if len(pieces) != 1 || pieces[0] != "tiny" {
		t.Errorf("expected single untouched piece, got %v", pieces)
	}
}

func TestProcess_CSVFlattensRows(t *testing.T) {
	c, _ := New(1000, 200)

	csvData := "name,role\nAda,engineer\nGrace,admiral\n"
	chunks, err := c.Process(strings.NewReader(csvData), "people.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}

	content := chunks[0].Content
	if !strings.Contains(content, "name: Ada") || !strings.Contains(content, "role: engineer") {
		t.Errorf("expected header-prefixed cells, got %q", content)
	}
	if !strings.Contains(content, "name: Grace") {
		t.Errorf("expected second row flattened, got %q", content)
	}
}

func TestProcess_CSVHeaderOnly(t *testing.T) {
	c, _ := New(1000, 200)
	_, err := c.Process(strings.NewReader("col_a,col_b\n"), "empty.csv")
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("header-only csv should yield ErrEmptyContent, got %v", err)
	}
}

func TestProcess_InvalidPDF(t *testing.T) {
	c, _ := New(1000, 200)
	_, err := c.Process(strings.NewReader("definitely not a pdf"), "bad.pdf")
	if err == nil {
		t.Fatal("expected error for malformed pdf")
	}
	if errors.Is(err, ErrUnsupportedFormat) {
		t.Error("malformed pdf must not be reported as unsupported format")
	}
}
