// Package spendlogs builds normalized spend accounting records from
// per-call gateway context: identifiers, token usage, cost, and a
// redaction-aware metadata projection.
package spendlogs

import "time"

// Call types that influence request id derivation. Batch retrieval and
// file creation responses carry ids that collide across calls, so their
// spend logs are keyed by a content hash instead.
const (
	CallTypeCompletion    = "completion"
	CallTypeRetrieveBatch = "retrieve_batch"
	CallTypeCreateFile    = "create_file"
	CallTypeMCPCall       = "mcp_call"
)

// Status is the terminal outcome recorded for a call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Payload is one spend_logs row, fully normalized and ready for insertion.
// Nested structures (metadata, tags, bodies) are serialized JSON strings
// consumed by the store as opaque text columns. A Payload is never mutated
// after Build returns it.
type Payload struct {
	RequestID             string    `json:"request_id" db:"request_id"`
	CallType              string    `json:"call_type" db:"call_type"`
	APIKey                string    `json:"api_key" db:"api_key"`
	CacheHit              string    `json:"cache_hit" db:"cache_hit"`
	StartTime             time.Time `json:"start_time" db:"start_time"`
	EndTime               time.Time `json:"end_time" db:"end_time"`
	CompletionStartTime   time.Time `json:"completion_start_time" db:"completion_start_time"`
	Model                 string    `json:"model" db:"model"`
	User                  string    `json:"user" db:"user_id"`
	TeamID                string    `json:"team_id" db:"team_id"`
	Metadata              string    `json:"metadata" db:"metadata"`
	CacheKey              string    `json:"cache_key" db:"cache_key"`
	Spend                 float64   `json:"spend" db:"spend"`
	TotalTokens           int       `json:"total_tokens" db:"total_tokens"`
	PromptTokens          int       `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens      int       `json:"completion_tokens" db:"completion_tokens"`
	RequestTags           string    `json:"request_tags" db:"request_tags"`
	EndUser               string    `json:"end_user" db:"end_user"`
	APIBase               string    `json:"api_base" db:"api_base"`
	ModelGroup            string    `json:"model_group" db:"model_group"`
	ModelID               string    `json:"model_id" db:"model_id"`
	MCPNamespacedToolName string    `json:"mcp_namespaced_tool_name" db:"mcp_namespaced_tool_name"`
	RequesterIPAddress    string    `json:"requester_ip_address" db:"requester_ip_address"`
	Provider              string    `json:"provider" db:"provider"`
	Messages              string    `json:"messages" db:"messages"`
	Response              string    `json:"response" db:"response"`
	ProxyServerRequest    string    `json:"proxy_server_request" db:"proxy_server_request"`
	SessionID             string    `json:"session_id" db:"session_id"`
	Status                Status    `json:"status" db:"status"`
}

// Metadata is the constrained sub-object stored in the metadata column.
// It holds the allow-listed request metadata fields plus the overlay
// fields sourced from the standard logging payload. Every key serializes
// even when null so consumers see a stable key set.
type Metadata struct {
	UserAPIKey                 *string              `json:"user_api_key"`
	UserAPIKeyAlias            *string              `json:"user_api_key_alias"`
	UserAPIKeyTeamID           *string              `json:"user_api_key_team_id"`
	UserAPIKeyOrgID            *string              `json:"user_api_key_org_id"`
	UserAPIKeyUserID           *string              `json:"user_api_key_user_id"`
	UserAPIKeyTeamAlias        *string              `json:"user_api_key_team_alias"`
	SpendLogsMetadata          map[string]any       `json:"spend_logs_metadata"`
	RequesterIPAddress         *string              `json:"requester_ip_address"`
	AdditionalUsageValues      map[string]any       `json:"additional_usage_values"`
	AppliedGuardrails          []string             `json:"applied_guardrails"`
	Status                     *string              `json:"status"`
	ErrorInformation           *ErrorInformation    `json:"error_information"`
	ProxyServerRequest         map[string]any       `json:"proxy_server_request"`
	BatchModels                []string             `json:"batch_models"`
	MCPToolCallMetadata        *MCPToolCall         `json:"mcp_tool_call_metadata"`
	VectorStoreRequestMetadata []VectorStoreRequest `json:"vector_store_request_metadata"`
	ModelMapInformation        *ModelMapInformation `json:"model_map_information"`
	UsageObject                map[string]any       `json:"usage_object"`
	GuardrailInformation       *GuardrailInformation `json:"guardrail_information"`
}

// ErrorInformation describes the failure recorded for an unsuccessful call.
type ErrorInformation struct {
	ErrorCode    string `json:"error_code"`
	ErrorClass   string `json:"error_class"`
	ErrorMessage string `json:"error_message"`
	LLMProvider  string `json:"llm_provider"`
}

// MCPToolCall captures metadata about an MCP tool invocation routed
// through the gateway.
type MCPToolCall struct {
	Name               string         `json:"name"`
	NamespacedToolName string         `json:"namespaced_tool_name"`
	ServerName         string         `json:"server_name"`
	Arguments          map[string]any `json:"arguments,omitempty"`
}

// VectorStoreRequest records a vector store search performed during the
// call, including the search response whose text content is redacted
// before storage.
type VectorStoreRequest struct {
	VectorStoreID  string                     `json:"vector_store_id"`
	Query          string                     `json:"query"`
	SearchResponse *VectorStoreSearchResponse `json:"vector_store_search_response"`
}

// VectorStoreSearchResponse is the result set returned by a vector store.
type VectorStoreSearchResponse struct {
	Data []VectorStoreResult `json:"data"`
}

// VectorStoreResult is a single scored search hit.
type VectorStoreResult struct {
	FileID  string               `json:"file_id"`
	Score   float64              `json:"score"`
	Content []VectorStoreContent `json:"content"`
}

// VectorStoreContent is one content chunk inside a search hit.
type VectorStoreContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ModelMapInformation describes the deployment a model group resolved to.
type ModelMapInformation struct {
	ModelMapKey   string         `json:"model_map_key"`
	ModelMapValue map[string]any `json:"model_map_value"`
}

// GuardrailInformation describes a guardrail evaluation applied to the call.
type GuardrailInformation struct {
	GuardrailName   string         `json:"guardrail_name"`
	GuardrailMode   string         `json:"guardrail_mode"`
	GuardrailStatus string         `json:"guardrail_status"`
	GuardrailResponse map[string]any `json:"guardrail_response,omitempty"`
	DurationSeconds float64        `json:"duration_seconds,omitempty"`
}
