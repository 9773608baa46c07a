package spendlogs

import (
	"fmt"
	"reflect"
)

// maxStringLength bounds string values stored in the proxy request
// column; longer values (typically base64 payloads) are truncated.
const maxStringLength = 1000

// RedactionMarker replaces vector store result text before storage.
// Vector store content is never stored verbatim, independent of the
// store-prompts policy.
const RedactionMarker = "redacted-by-spendgate"

// emptyJSONObject is the placeholder stored when a body is withheld.
const emptyJSONObject = "{}"

// sanitizeRequestBody rewrites a decoded JSON body for storage:
// oversized strings are truncated with a suffix stating how many
// characters were cut, nested maps recurse, slices sanitize element-wise,
// and everything else passes through. A map reached twice (self
// reference) comes back empty rather than recursing forever.
func sanitizeRequestBody(body map[string]any, visited map[uintptr]struct{}) map[string]any {
	if body == nil {
		return nil
	}
	if visited == nil {
		visited = make(map[uintptr]struct{})
	}
	id := reflect.ValueOf(body).Pointer()
	if _, seen := visited[id]; seen {
		return map[string]any{}
	}
	visited[id] = struct{}{}

	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = sanitizeValue(v, visited)
	}
	return out
}

func sanitizeValue(value any, visited map[uintptr]struct{}) any {
	switch v := value.(type) {
	case map[string]any:
		return sanitizeRequestBody(v, visited)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item, visited)
		}
		return out
	case string:
		return truncateString(v)
	default:
		return value
	}
}

func truncateString(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStringLength {
		return s
	}
	return fmt.Sprintf("%s... (truncated %d chars)", string(runes[:maxStringLength]), len(runes)-maxStringLength)
}

// redactVectorStoreRequests returns a copy of the vector store request
// metadata with every search-result text chunk replaced by the fixed
// redaction marker. The input is not modified.
func redactVectorStoreRequests(requests []VectorStoreRequest) []VectorStoreRequest {
	if requests == nil {
		return nil
	}
	out := make([]VectorStoreRequest, len(requests))
	for i, req := range requests {
		out[i] = req
		if req.SearchResponse == nil {
			continue
		}
		resp := VectorStoreSearchResponse{Data: make([]VectorStoreResult, len(req.SearchResponse.Data))}
		for j, result := range req.SearchResponse.Data {
			resp.Data[j] = result
			resp.Data[j].Content = make([]VectorStoreContent, len(result.Content))
			for k, content := range result.Content {
				resp.Data[j].Content[k] = content
				resp.Data[j].Content[k].Text = RedactionMarker
			}
		}
		out[i].SearchResponse = &resp
	}
	return out
}
