package vector

import (
	pb "github.com/qdrant/go-client/qdrant"
)

// Writes standardize on a nested "metadata" key next to "content". Reads
// additionally tolerate flattened payloads and langchain-style
// "page_content" keys written by other stacks against the same collection.

func buildPayload(c Chunk) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"content": {Kind: &pb.Value_StringValue{StringValue: c.Content}},
	}
	if len(c.Metadata) > 0 {
		fields := make(map[string]*pb.Value, len(c.Metadata))
		for k, v := range c.Metadata {
			fields[k] = toValue(v)
		}
		payload["metadata"] = &pb.Value{
			Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}},
		}
	}
	return payload
}

func chunkFromPayload(payload map[string]*pb.Value) Chunk {
	content := ""
	for _, key := range []string{"content", "page_content", "text"} {
		if v, ok := payload[key]; ok {
			if s := v.GetStringValue(); s != "" {
				content = s
				break
			}
		}
	}

	metadata := map[string]any{}
	if meta, ok := payload["metadata"]; ok {
		if s := meta.GetStructValue(); s != nil {
			for k, v := range s.GetFields() {
				metadata[k] = fromValue(v)
			}
			return Chunk{Content: content, Metadata: metadata}
		}
	}

	// Flat shape: everything except the content keys is metadata.
	for k, v := range payload {
		switch k {
		case "content", "page_content", "text":
			continue
		}
		metadata[k] = fromValue(v)
	}
	return Chunk{Content: content, Metadata: metadata}
}

func toValue(v any) *pb.Value {
	switch t := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: t}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: t}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(t)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: t}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: t}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(t)}}
	case map[string]any:
		fields := make(map[string]*pb.Value, len(t))
		for k, v := range t {
			fields[k] = toValue(v)
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
	default:
		return &pb.Value{Kind: &pb.Value_NullValue{}}
	}
}

func fromValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_StructValue:
		out := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, f := range kind.StructValue.GetFields() {
			out[k] = fromValue(f)
		}
		return out
	case *pb.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, len(values))
		for i, f := range values {
			out[i] = fromValue(f)
		}
		return out
	default:
		return nil
	}
}
