package mutter

import (
	"errors"
	"reflect"
	"testing"
)

func TestCodec_ContentType(t *testing.T) {
	if ct := (JSONCodec{}).ContentType(); ct != "application/json" {
		t.Errorf("expected 'application/json', got %q", ct)
	}
	if ct := (YAMLCodec{}).ContentType(); ct != "application/x-yaml" {
		t.Errorf("expected 'application/x-yaml', got %q", ct)
	}
}

func TestDecodeTree(t *testing.T) {
	want := map[string]any{
		"name": "test",
		"tags": []any{"a", "b"},
		"nested": map[string]any{
			"enabled": true,
		},
	}

	tests := []struct {
		name  string
		codec Codec
		raw   string
	}{
		{"json", JSONCodec{}, `{"name":"test","tags":["a","b"],"nested":{"enabled":true}}`},
		{"yaml", YAMLCodec{}, "name: test\ntags: [a, b]\nnested:\n  enabled: true\n"},
		{"yaml accepts json", YAMLCodec{}, `{"name":"test","tags":["a","b"],"nested":{"enabled":true}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTree(tt.codec, []byte(tt.raw))
			if err != nil {
				t.Fatalf("DecodeTree failed: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("expected %v, got %v", want, got)
			}
		})
	}
}

func TestDecodeTree_List(t *testing.T) {
	got, err := DecodeTree(JSONCodec{}, []byte(`[1, {"a": 2}]`))
	if err != nil {
		t.Fatalf("DecodeTree failed: %v", err)
	}
	list, ok := got.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("expected list of 2, got %v", got)
	}
	if _, ok := list[1].(map[string]any); !ok {
		t.Errorf("expected nested record, got %T", list[1])
	}
}

func TestDecodeTree_NormalizesYAMLKeys(t *testing.T) {
	got, err := DecodeTree(YAMLCodec{}, []byte("1: one\ntrue: yes\n"))
	if err != nil {
		t.Fatalf("DecodeTree failed: %v", err)
	}
	record := got.(map[string]any)
	if record["1"] != "one" {
		t.Errorf("expected key '1', got %v", record)
	}
}

func TestDecodeTree_ScalarRoot(t *testing.T) {
	_, err := DecodeTree(JSONCodec{}, []byte(`42`))
	if !errors.Is(err, ErrStructural) {
		t.Errorf("expected structural error, got %v", err)
	}
}

func TestDecodeTree_Invalid(t *testing.T) {
	if _, err := DecodeTree(JSONCodec{}, []byte(`{not valid json}`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := DecodeTree(YAMLCodec{}, []byte("key: [unclosed")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestDecodeValue_Scalar(t *testing.T) {
	got, err := DecodeValue(YAMLCodec{}, []byte("hello"))
	if err != nil {
		t.Fatalf("DecodeValue failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("expected 'hello', got %v", got)
	}
}
