package spendlogs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// cacheKeyOff is stored when the gateway ran without a response cache.
const cacheKeyOff = "Cache OFF"

// usage fields extracted into dedicated columns; everything else in the
// usage object lands in additional_usage_values.
var specialUsageFields = map[string]struct{}{
	"prompt_tokens":     {},
	"completion_tokens": {},
	"total_tokens":      {},
}

// Settings is the configuration the builder depends on, injected at
// construction so a Builder is a pure function of its inputs.
type Settings struct {
	// MasterKey is the configured master credential. Empty disables
	// master-key classification.
	MasterKey string
	// DisableMasterKeyStorage stores the MasterKeyAlias sentinel instead
	// of the master key's hash.
	DisableMasterKeyStorage bool
	// StorePromptsInSpendLogs gates storage of request and response
	// bodies. When false both columns hold the "{}" placeholder.
	StorePromptsInSpendLogs bool
}

// Builder assembles spend log payloads. It is stateless apart from its
// settings and safe for concurrent use.
type Builder struct {
	settings Settings
	logger   *slog.Logger

	// overridable for tests
	now          func() time.Time
	newSessionID func() string
}

// NewBuilder creates a Builder with the given settings. A nil logger
// falls back to slog.Default().
func NewBuilder(settings Settings, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		settings:     settings,
		logger:       logger,
		now:          time.Now,
		newSessionID: func() string { return uuid.New().String() },
	}
}

// Build produces the spend log payload for one completed or failed call.
// Missing inputs are never an error: every absent field has an explicit
// default. A failure to assemble the record is logged and returned, never
// swallowed; no partial record is produced.
func (b *Builder) Build(call *CallContext) (*Payload, error) {
	if call == nil {
		call = &CallContext{}
	}

	payload, err := b.build(call)
	if err != nil {
		b.logger.Error("failed to build spend log payload",
			slog.String("call_type", call.CallType),
			slog.String("call_id", call.CallID),
			slog.String("model", call.Model),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	b.logger.Debug("spend log payload assembled",
		slog.String("request_id", payload.RequestID),
		slog.String("call_type", payload.CallType),
		slog.String("model", payload.Model),
		slog.Float64("spend", payload.Spend),
		slog.String("status", string(payload.Status)),
	)
	return payload, nil
}

func (b *Builder) build(call *CallContext) (*Payload, error) {
	meta := call.Metadata
	usage := usageFromResponse(call.Response)

	requestID := b.resolveRequestID(call)

	apiKey := b.resolveAPIKey(call)

	cleanMetadata := b.distillMetadata(call, usage)
	metadataJSON, err := json.Marshal(cleanMetadata)
	if err != nil {
		return nil, fmt.Errorf("serializing spend log metadata: %w", err)
	}

	tagsJSON, err := json.Marshal(requestTags(call))
	if err != nil {
		return nil, fmt.Errorf("serializing request tags: %w", err)
	}

	responseJSON, err := b.responseForPayload(call.Standard)
	if err != nil {
		return nil, fmt.Errorf("serializing response: %w", err)
	}

	proxyRequestJSON, err := b.proxyServerRequestForPayload(call.Params.ProxyServerRequest)
	if err != nil {
		return nil, fmt.Errorf("serializing proxy server request: %w", err)
	}

	cacheKey := call.CacheKey
	if cacheKey == "" {
		cacheKey = cacheKeyOff
	}

	completionStart := call.CompletionStartTime
	if completionStart.IsZero() {
		completionStart = call.EndTime
	}

	mcpToolName := ""
	if cleanMetadata.MCPToolCallMetadata != nil {
		mcpToolName = cleanMetadata.MCPToolCallMetadata.NamespacedToolName
	}

	requesterIP := ""
	if cleanMetadata.RequesterIPAddress != nil {
		requesterIP = *cleanMetadata.RequesterIPAddress
	}

	endUser := call.endUserID()
	if endUser == "" && call.Standard != nil {
		endUser = call.Standard.Metadata.UserAPIKeyEndUserID
	}

	var user, teamID, modelGroup, modelID string
	if meta != nil {
		user = meta.UserAPIKeyUserID
		teamID = meta.UserAPIKeyTeamID
		modelGroup = meta.ModelGroup
		modelID = meta.ModelInfo.ID
	}

	return &Payload{
		RequestID:             requestID,
		CallType:              call.CallType,
		APIKey:                apiKey,
		CacheHit:              strconv.FormatBool(call.CacheHit),
		StartTime:             call.StartTime.UTC(),
		EndTime:               call.EndTime.UTC(),
		CompletionStartTime:   completionStart.UTC(),
		Model:                 call.Model,
		User:                  user,
		TeamID:                teamID,
		Metadata:              string(metadataJSON),
		CacheKey:              cacheKey,
		Spend:                 call.ResponseCost,
		TotalTokens:           tokenCount(usage, "total_tokens", call.Standard),
		PromptTokens:          tokenCount(usage, "prompt_tokens", call.Standard),
		CompletionTokens:      tokenCount(usage, "completion_tokens", call.Standard),
		RequestTags:           string(tagsJSON),
		EndUser:               endUser,
		APIBase:               call.Params.APIBase,
		ModelGroup:            modelGroup,
		ModelID:               modelID,
		MCPNamespacedToolName: mcpToolName,
		RequesterIPAddress:    requesterIP,
		Provider:              call.Provider,
		Messages:              emptyJSONObject,
		Response:              responseJSON,
		ProxyServerRequest:    proxyRequestJSON,
		SessionID:             b.resolveSessionID(call),
		Status:                statusForCall(meta),
	}, nil
}

// resolveRequestID derives the record's unique id. Batch retrieval and
// file creation always key on the response content hash; other calls use
// the response's natural id, then the gateway call id, then the content
// hash as a last resort. Cache-hit replays get a time-suffixed id so the
// store's uniqueness constraint holds.
func (b *Builder) resolveRequestID(call *CallContext) string {
	var id string
	switch call.CallType {
	case CallTypeRetrieveBatch, CallTypeCreateFile:
		id = hashFromResponse(call.Response)
	default:
		if natural, ok := call.Response["id"].(string); ok && natural != "" {
			id = natural
		} else if call.CallID != "" {
			id = call.CallID
		} else {
			id = hashFromResponse(call.Response)
		}
	}
	if call.CacheHit {
		id = fmt.Sprintf("%s_cache_hit%d", id, b.now().UnixNano())
	}
	return id
}

// resolveAPIKey normalizes the presented credential for storage. Raw
// publishable keys are hashed; the master key is replaced by its alias
// when so configured. Without a standard logging payload the key column
// is stored empty.
func (b *Builder) resolveAPIKey(call *CallContext) string {
	apiKey := ""
	if call.Metadata != nil {
		apiKey = call.Metadata.UserAPIKey
	}
	apiKey = normalizeAPIKey(apiKey, b.settings.MasterKey, b.settings.DisableMasterKeyStorage)

	if call.Standard == nil {
		return ""
	}
	if apiKey == "" {
		apiKey = call.Standard.Metadata.UserAPIKeyHash
	}
	// The hash sourced from the standard payload may itself be the
	// master key's hash.
	return normalizeAPIKey(apiKey, b.settings.MasterKey, b.settings.DisableMasterKeyStorage)
}

// resolveSessionID guarantees a non-empty session id: the standard
// payload's trace id, then the caller-supplied trace id, then a fresh
// random id.
func (b *Builder) resolveSessionID(call *CallContext) string {
	if call.Standard != nil && call.Standard.TraceID != "" {
		return call.Standard.TraceID
	}
	if call.TraceID != "" {
		return call.TraceID
	}
	return b.newSessionID()
}

// distillMetadata projects the allow-listed request metadata fields and
// overlays the standard-payload-sourced fields. Vector store request
// metadata is redacted before it lands in the record.
func (b *Builder) distillMetadata(call *CallContext, usage map[string]any) *Metadata {
	clean := &Metadata{}
	if meta := call.Metadata; meta != nil {
		clean.UserAPIKey = optional(meta.UserAPIKey)
		clean.UserAPIKeyAlias = optional(meta.UserAPIKeyAlias)
		clean.UserAPIKeyTeamID = optional(meta.UserAPIKeyTeamID)
		clean.UserAPIKeyOrgID = optional(meta.UserAPIKeyOrgID)
		clean.UserAPIKeyUserID = optional(meta.UserAPIKeyUserID)
		clean.UserAPIKeyTeamAlias = optional(meta.UserAPIKeyTeamAlias)
		clean.SpendLogsMetadata = meta.SpendLogsMetadata
		clean.RequesterIPAddress = optional(meta.RequesterIPAddress)
		clean.Status = optional(meta.Status)
		clean.ErrorInformation = meta.ErrorInformation
	}

	if std := call.Standard; std != nil {
		clean.AppliedGuardrails = std.Metadata.AppliedGuardrails
		clean.BatchModels = std.HiddenParams.BatchModels
		clean.MCPToolCallMetadata = std.Metadata.MCPToolCallMetadata
		clean.VectorStoreRequestMetadata = redactVectorStoreRequests(std.Metadata.VectorStoreRequestMetadata)
		clean.UsageObject = std.Metadata.UsageObject
		clean.ModelMapInformation = std.ModelMapInformation
		clean.GuardrailInformation = std.GuardrailInformation
	}

	clean.AdditionalUsageValues = additionalUsageValues(usage)
	return clean
}

// responseForPayload serializes the response body, gated by the
// store-prompts policy.
func (b *Builder) responseForPayload(std *StandardLogPayload) (string, error) {
	if std == nil || !b.settings.StorePromptsInSpendLogs {
		return emptyJSONObject, nil
	}
	if std.Response == nil {
		return emptyJSONObject, nil
	}
	data, err := json.Marshal(std.Response)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// proxyServerRequestForPayload serializes the sanitized inbound request
// body, gated by the store-prompts policy.
func (b *Builder) proxyServerRequestForPayload(req *ProxyServerRequest) (string, error) {
	if !b.settings.StorePromptsInSpendLogs || req == nil {
		return emptyJSONObject, nil
	}
	body := sanitizeRequestBody(req.Body, nil)
	if body == nil {
		return emptyJSONObject, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// usageFromResponse pulls the usage object out of a decoded response.
func usageFromResponse(response map[string]any) map[string]any {
	if response == nil {
		return nil
	}
	if usage, ok := response["usage"].(map[string]any); ok {
		return usage
	}
	return nil
}

// tokenCount reads a token counter from the usage object, falling back
// to the standard logging payload only when the usage object does not
// carry the field at all, and to zero otherwise.
func tokenCount(usage map[string]any, field string, std *StandardLogPayload) int {
	if v, ok := usage[field]; ok {
		return intValue(v)
	}
	if std == nil {
		return 0
	}
	switch field {
	case "prompt_tokens":
		return std.PromptTokens
	case "completion_tokens":
		return std.CompletionTokens
	case "total_tokens":
		return std.TotalTokens
	}
	return 0
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// additionalUsageValues collects non-standard usage fields, flattening
// structured values to plain maps via a JSON round trip.
func additionalUsageValues(usage map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range usage {
		if _, special := specialUsageFields[k]; special {
			continue
		}
		out[k] = flattenValue(v)
	}
	return out
}

func flattenValue(v any) any {
	switch v.(type) {
	case nil, bool, string, int, int64, float64, json.Number, map[string]any, []any:
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var flat any
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return flat
}

// requestTags picks the tag list for the record: the standard payload's
// tags win over the request metadata's.
func requestTags(call *CallContext) []string {
	if call.Standard != nil && call.Standard.RequestTags != nil {
		return call.Standard.RequestTags
	}
	if call.Metadata != nil && call.Metadata.Tags != nil {
		return call.Metadata.Tags
	}
	return []string{}
}

// statusForCall is deliberately default-optimistic: only an explicit
// failure marker makes the record a failure.
func statusForCall(meta *RequestMetadata) Status {
	if meta != nil && meta.Status == string(StatusFailure) {
		return StatusFailure
	}
	return StatusSuccess
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
