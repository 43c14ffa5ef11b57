package vector

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
)

func TestPayloadRoundTrip_NestedMetadata(t *testing.T) {
	in := Chunk{
		Content: "This is test content for the RAG system.",
		Metadata: map[string]any{
			"source":      "test.txt",
			"chunk_index": int64(0),
		},
	}

	out := chunkFromPayload(buildPayload(in))

	if out.Content != in.Content {
		t.Errorf("content mismatch: got %q", out.Content)
	}
	if out.Source() != "test.txt" {
		t.Errorf("expected source=test.txt, got %q", out.Source())
	}
	if idx, ok := out.Metadata["chunk_index"].(int64); !ok || idx != 0 {
		t.Errorf("expected chunk_index=0, got %v", out.Metadata["chunk_index"])
	}
}

func TestChunkFromPayload_FlatMetadata(t *testing.T) {
	payload := map[string]*pb.Value{
		"content": {Kind: &pb.Value_StringValue{StringValue: "flat content"}},
		"source":  {Kind: &pb.Value_StringValue{StringValue: "flat.txt"}},
		"page":    {Kind: &pb.Value_IntegerValue{IntegerValue: 3}},
	}

	out := chunkFromPayload(payload)

	if out.Content != "flat content" {
		t.Errorf("content mismatch: got %q", out.Content)
	}
	if out.Source() != "flat.txt" {
		t.Errorf("expected source=flat.txt, got %q", out.Source())
	}
	if _, exists := out.Metadata["content"]; exists {
		t.Error("content key must not leak into metadata")
	}
}

func TestChunkFromPayload_LangchainShape(t *testing.T) {
	// Data written by a langchain stack stores text under "page_content"
	// with metadata nested.
	payload := map[string]*pb.Value{
		"page_content": {Kind: &pb.Value_StringValue{StringValue: "lc content"}},
		"metadata": {Kind: &pb.Value_StructValue{StructValue: &pb.Struct{
			Fields: map[string]*pb.Value{
				"source": {Kind: &pb.Value_StringValue{StringValue: "lc.pdf"}},
			},
		}}},
	}

	out := chunkFromPayload(payload)
	if out.Content != "lc content" {
		t.Errorf("content mismatch: got %q", out.Content)
	}
	if out.Source() != "lc.pdf" {
		t.Errorf("expected source=lc.pdf, got %q", out.Source())
	}
}

func TestChunkFromPayload_Empty(t *testing.T) {
	out := chunkFromPayload(map[string]*pb.Value{})
	if out.Content != "" {
		t.Errorf("expected empty content, got %q", out.Content)
	}
	if len(out.Metadata) != 0 {
		t.Errorf("expected empty metadata, got %v", out.Metadata)
	}
}

func TestValueConversion(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"string", "x", "x"},
		{"bool", true, true},
		{"int", 7, int64(7)},
		{"int64", int64(9), int64(9)},
		{"float", 1.5, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fromValue(toValue(tt.in)); got != tt.want {
				t.Errorf("round trip got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestValueConversion_NestedMap(t *testing.T) {
	in := map[string]any{"a": "b", "n": int64(1)}
	got, ok := fromValue(toValue(in)).(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", fromValue(toValue(in)))
	}
	if got["a"] != "b" || got["n"] != int64(1) {
		t.Errorf("nested map mismatch: %v", got)
	}
}

func TestChunkSource_Missing(t *testing.T) {
	c := Chunk{Content: "x", Metadata: map[string]any{}}
	if c.Source() != "" {
		t.Errorf("expected empty source, got %q", c.Source())
	}
}
