package spendlogs

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSanitizeRequestBody_TruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("a", 1500)
	body := map[string]any{"image": long}

	out := sanitizeRequestBody(body, nil)

	got, ok := out["image"].(string)
	if !ok {
		t.Fatalf("image = %T, want string", out["image"])
	}
	wantSuffix := "... (truncated 500 chars)"
	if !strings.HasSuffix(got, wantSuffix) {
		t.Fatalf("truncated string = %q, want suffix %q", got[len(got)-40:], wantSuffix)
	}
	if len(got) != 1000+len(wantSuffix) {
		t.Errorf("truncated length = %d, want %d", len(got), 1000+len(wantSuffix))
	}
	if !strings.HasPrefix(got, strings.Repeat("a", 1000)) {
		t.Error("truncated string does not keep the first 1000 chars")
	}
}

func TestSanitizeRequestBody_ShortValuesUntouched(t *testing.T) {
	body := map[string]any{
		"model":       "gpt-4o",
		"temperature": 0.7,
		"stream":      true,
		"n":           nil,
	}

	out := sanitizeRequestBody(body, nil)

	if out["model"] != "gpt-4o" || out["temperature"] != 0.7 || out["stream"] != true || out["n"] != nil {
		t.Errorf("sanitize altered pass-through values: %v", out)
	}
}

func TestSanitizeRequestBody_RecursesNestedStructures(t *testing.T) {
	long := strings.Repeat("b", 1200)
	body := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": long},
			"plain",
		},
	}

	out := sanitizeRequestBody(body, nil)

	messages, ok := out["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %v, want 2-element slice", out["messages"])
	}
	first, ok := messages[0].(map[string]any)
	if !ok {
		t.Fatalf("messages[0] = %T, want map", messages[0])
	}
	content := first["content"].(string)
	if !strings.HasSuffix(content, "... (truncated 200 chars)") {
		t.Errorf("nested content not truncated: %q", content[len(content)-40:])
	}
	if messages[1] != "plain" {
		t.Errorf("messages[1] = %v, want %q", messages[1], "plain")
	}
}

func TestSanitizeRequestBody_SelfReferenceTerminates(t *testing.T) {
	body := map[string]any{"key": "value"}
	body["self"] = body

	out := sanitizeRequestBody(body, nil)

	self, ok := out["self"].(map[string]any)
	if !ok {
		t.Fatalf("self = %T, want map", out["self"])
	}
	if len(self) != 0 {
		t.Errorf("cyclic branch = %v, want empty map", self)
	}
	if out["key"] != "value" {
		t.Errorf("key = %v, want %q", out["key"], "value")
	}
}

func TestProxyServerRequest_PolicyGating(t *testing.T) {
	req := &ProxyServerRequest{
		Method: "POST",
		URL:    "/v1/chat/completions",
		Body:   map[string]any{"model": "gpt-4o", "user": "u-1"},
	}

	t.Run("withheld when policy off", func(t *testing.T) {
		b := testBuilder(Settings{StorePromptsInSpendLogs: false})
		payload, err := b.Build(&CallContext{Params: CallParams{ProxyServerRequest: req}})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if payload.ProxyServerRequest != "{}" {
			t.Errorf("ProxyServerRequest = %q, want %q", payload.ProxyServerRequest, "{}")
		}
	})

	t.Run("stored sanitized when policy on", func(t *testing.T) {
		b := testBuilder(Settings{StorePromptsInSpendLogs: true})
		payload, err := b.Build(&CallContext{Params: CallParams{ProxyServerRequest: req}})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		var body map[string]any
		if err := json.Unmarshal([]byte(payload.ProxyServerRequest), &body); err != nil {
			t.Fatalf("stored body is not valid JSON: %v", err)
		}
		if body["model"] != "gpt-4o" {
			t.Errorf("stored body = %v, want original fields", body)
		}
	})
}

func TestResponse_PolicyGating(t *testing.T) {
	std := &StandardLogPayload{Response: map[string]any{"id": "chatcmpl-abc", "choices": []any{}}}

	t.Run("withheld when policy off", func(t *testing.T) {
		b := testBuilder(Settings{StorePromptsInSpendLogs: false})
		payload, err := b.Build(&CallContext{Standard: std})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if payload.Response != "{}" {
			t.Errorf("Response = %q, want %q", payload.Response, "{}")
		}
	})

	t.Run("stored when policy on", func(t *testing.T) {
		b := testBuilder(Settings{StorePromptsInSpendLogs: true})
		payload, err := b.Build(&CallContext{Standard: std})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		var resp map[string]any
		if err := json.Unmarshal([]byte(payload.Response), &resp); err != nil {
			t.Fatalf("stored response is not valid JSON: %v", err)
		}
		if resp["id"] != "chatcmpl-abc" {
			t.Errorf("stored response = %v, want original fields", resp)
		}
	})
}

func TestVectorStoreText_AlwaysRedacted(t *testing.T) {
	std := &StandardLogPayload{
		Metadata: StandardLogMetadata{
			VectorStoreRequestMetadata: []VectorStoreRequest{{
				VectorStoreID: "vs-1",
				Query:         "what is the capital",
				SearchResponse: &VectorStoreSearchResponse{
					Data: []VectorStoreResult{{
						FileID: "file-1",
						Score:  0.92,
						Content: []VectorStoreContent{
							{Type: "text", Text: "Paris is the capital of France."},
							{Type: "text", Text: "More retrieved context."},
						},
					}},
				},
			}},
		},
	}

	// Redaction applies under both policy settings.
	for _, storePrompts := range []bool{false, true} {
		b := testBuilder(Settings{StorePromptsInSpendLogs: storePrompts})
		payload, err := b.Build(&CallContext{Standard: std})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		var meta Metadata
		if err := json.Unmarshal([]byte(payload.Metadata), &meta); err != nil {
			t.Fatalf("metadata is not valid JSON: %v", err)
		}
		if len(meta.VectorStoreRequestMetadata) != 1 {
			t.Fatalf("vector store metadata = %v, want 1 entry", meta.VectorStoreRequestMetadata)
		}
		for _, result := range meta.VectorStoreRequestMetadata[0].SearchResponse.Data {
			for _, content := range result.Content {
				if content.Text != RedactionMarker {
					t.Errorf("store_prompts=%v: text = %q, want %q", storePrompts, content.Text, RedactionMarker)
				}
			}
		}
	}

	// The caller's structure must not be mutated.
	original := std.Metadata.VectorStoreRequestMetadata[0].SearchResponse.Data[0].Content[0].Text
	if original != "Paris is the capital of France." {
		t.Errorf("redaction mutated the input: %q", original)
	}
}
