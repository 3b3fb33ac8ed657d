package mutter

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Codec defines the deserialization contract for documents loaded into a
// store or decoded as Config. Implement it for formats like TOML or HCL.
type Codec interface {
	// Unmarshal deserializes bytes into a value.
	Unmarshal(data []byte, v any) error

	// ContentType returns the MIME type for observability and debugging.
	ContentType() string
}

// JSONCodec implements Codec using encoding/json.
type JSONCodec struct{}

// Unmarshal deserializes JSON bytes into v.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// ContentType returns the JSON MIME type.
func (JSONCodec) ContentType() string {
	return "application/json"
}

// Ensure JSONCodec implements Codec.
var _ Codec = JSONCodec{}

// YAMLCodec implements Codec using gopkg.in/yaml.v3.
type YAMLCodec struct{}

// Unmarshal deserializes YAML bytes into v.
func (YAMLCodec) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

// ContentType returns the YAML MIME type.
func (YAMLCodec) ContentType() string {
	return "application/x-yaml"
}

// Ensure YAMLCodec implements Codec.
var _ Codec = YAMLCodec{}

// DecodeTree decodes raw into a tree the runtime can wrap: records become
// map[string]any and sequences []any at every depth. The document root must
// be a record or a sequence.
func DecodeTree(codec Codec, raw []byte) (any, error) {
	var doc any
	if err := codec.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal failed: %w", err)
	}
	tree, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	if !isContainer(tree) {
		return nil, structuralError("decode", "", fmt.Sprintf("document root must be a record or a sequence, got %T", tree))
	}
	return tree, nil
}

// DecodeValue is DecodeTree for values that may also be scalars.
func DecodeValue(codec Codec, raw []byte) (any, error) {
	var doc any
	if err := codec.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal failed: %w", err)
	}
	return normalize(doc)
}

func normalize(v any) (any, error) {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return v, nil
	}
}
