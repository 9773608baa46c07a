package spendlogs

import "time"

// CallContext is everything the gateway knows about a completed (or
// failed) call. It is supplied per call, read-only to the builder, and
// carries no state between calls.
type CallContext struct {
	// CallType selects id derivation rules; empty means completion.
	CallType string `json:"call_type"`
	// CallID is the gateway-assigned call id, used when the response
	// carries no natural id.
	CallID string `json:"call_id"`
	// TraceID is a caller-supplied session/trace id.
	TraceID string `json:"trace_id"`
	Model   string `json:"model"`
	// Provider is the upstream LLM provider that served the call.
	Provider string `json:"provider"`
	CacheHit bool   `json:"cache_hit"`
	CacheKey string `json:"cache_key"`
	// ResponseCost is the computed spend for the call, in dollars.
	ResponseCost float64 `json:"response_cost"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	// CompletionStartTime is when the first completion token arrived.
	// Zero means unknown and defaults to EndTime.
	CompletionStartTime time.Time `json:"completion_start_time"`

	// Response is the provider response in decoded JSON form. May be nil.
	Response map[string]any `json:"response"`

	Params   CallParams       `json:"params"`
	Metadata *RequestMetadata `json:"metadata"`

	// Standard is the pre-computed standard logging payload, a richer
	// secondary source of truth for the same call. May be nil.
	Standard *StandardLogPayload `json:"standard_logging_payload"`
}

// CallParams are the gateway-level call parameters relevant to spend
// accounting.
type CallParams struct {
	APIBase            string              `json:"api_base"`
	ProxyServerRequest *ProxyServerRequest `json:"proxy_server_request"`
}

// ProxyServerRequest is the inbound HTTP request as received by the
// gateway front door.
type ProxyServerRequest struct {
	Method string         `json:"method"`
	URL    string         `json:"url"`
	Body   map[string]any `json:"body"`
}

// RequestMetadata is the per-request metadata bag, modeled as a closed
// record so the spend-log projection is a typed copy instead of a
// runtime key scan.
type RequestMetadata struct {
	UserAPIKey          string         `json:"user_api_key"`
	UserAPIKeyAlias     string         `json:"user_api_key_alias"`
	UserAPIKeyTeamID    string         `json:"user_api_key_team_id"`
	UserAPIKeyOrgID     string         `json:"user_api_key_org_id"`
	UserAPIKeyUserID    string         `json:"user_api_key_user_id"`
	UserAPIKeyTeamAlias string         `json:"user_api_key_team_alias"`
	UserAPIKeyEndUserID string         `json:"user_api_key_end_user_id"`
	SpendLogsMetadata   map[string]any `json:"spend_logs_metadata"`
	RequesterIPAddress  string         `json:"requester_ip_address"`
	// Status marks the call outcome; only the literal "failure" makes
	// the record a failure.
	Status           string            `json:"status"`
	ErrorInformation *ErrorInformation `json:"error_information"`
	Tags             []string          `json:"tags"`
	ModelGroup       string            `json:"model_group"`
	ModelInfo        ModelInfo         `json:"model_info"`
}

// ModelInfo identifies the concrete deployment that served the call.
type ModelInfo struct {
	ID string `json:"id"`
}

// StandardLogPayload is the already-normalized logging payload computed
// upstream. When present it is preferred over raw call fields.
type StandardLogPayload struct {
	TraceID          string              `json:"trace_id"`
	PromptTokens     int                 `json:"prompt_tokens"`
	CompletionTokens int                 `json:"completion_tokens"`
	TotalTokens      int                 `json:"total_tokens"`
	RequestTags      []string            `json:"request_tags"`
	Response         map[string]any      `json:"response"`
	Metadata         StandardLogMetadata `json:"metadata"`
	HiddenParams     HiddenParams        `json:"hidden_params"`
	ModelMapInformation  *ModelMapInformation  `json:"model_map_information"`
	GuardrailInformation *GuardrailInformation `json:"guardrail_information"`
}

// StandardLogMetadata is the metadata sub-object of the standard payload.
type StandardLogMetadata struct {
	UserAPIKeyHash             string               `json:"user_api_key_hash"`
	UserAPIKeyEndUserID        string               `json:"user_api_key_end_user_id"`
	AppliedGuardrails          []string             `json:"applied_guardrails"`
	MCPToolCallMetadata        *MCPToolCall         `json:"mcp_tool_call_metadata"`
	VectorStoreRequestMetadata []VectorStoreRequest `json:"vector_store_request_metadata"`
	UsageObject                map[string]any       `json:"usage_object"`
}

// HiddenParams carries fields computed by the gateway that are not part
// of the caller-visible response.
type HiddenParams struct {
	BatchModels []string `json:"batch_models"`
}

// endUserID resolves the end-user identifier for cost attribution:
// the "user" param from the inbound request body wins, then the key's
// configured end-user id.
func (c *CallContext) endUserID() string {
	if c.Params.ProxyServerRequest != nil {
		if user, ok := c.Params.ProxyServerRequest.Body["user"].(string); ok && user != "" {
			return user
		}
	}
	if c.Metadata != nil && c.Metadata.UserAPIKeyEndUserID != "" {
		return c.Metadata.UserAPIKeyEndUserID
	}
	return ""
}
