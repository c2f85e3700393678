package core

import (
	"strings"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Route
// -----------------------------------------------------------------------------

// Route identifies the handler category assigned to a request.
type Route string

const (
	RouteKnowledge Route = "knowledge"
	RouteSupport   Route = "support"
	RouteCustom    Route = "custom"
	RouteHandoff   Route = "handoff"
	RouteRedirect  Route = "redirect"
)

// ParseRoute maps a free-form label onto a known route, defaulting to custom.
func ParseRoute(value string) (Route, bool) {
	switch Route(strings.ToLower(strings.TrimSpace(value))) {
	case RouteKnowledge:
		return RouteKnowledge, true
	case RouteSupport:
		return RouteSupport, true
	case RouteCustom:
		return RouteCustom, true
	case RouteHandoff:
		return RouteHandoff, true
	case RouteRedirect:
		return RouteRedirect, true
	default:
		return RouteCustom, false
	}
}

// -----------------------------------------------------------------------------
// Request envelope
// -----------------------------------------------------------------------------

// RequestEnvelope carries one inbound chat request through the core.
// Immutable once created.
type RequestEnvelope struct {
	Message       string
	UserID        string
	Metadata      map[string]any
	CorrelationID string
}

// NewRequestEnvelope builds an envelope, generating a correlation ID when the
// caller did not supply one.
func NewRequestEnvelope(message, userID string, metadata map[string]any, correlationID string) *RequestEnvelope {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return &RequestEnvelope{
		Message:       message,
		UserID:        userID,
		Metadata:      metadata,
		CorrelationID: correlationID,
	}
}

// MetadataString returns a string metadata value, or "" when absent.
func (e *RequestEnvelope) MetadataString(key string) string {
	if e == nil || e.Metadata == nil {
		return ""
	}
	if value, ok := e.Metadata[key].(string); ok {
		return value
	}
	return ""
}

// -----------------------------------------------------------------------------
// Response contract
// -----------------------------------------------------------------------------

// Citation points at a source document grounding a generated answer.
type Citation struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	SourceType string `json:"source_type"`
}

// AgentResponse is the uniform outcome of every core operation.
type AgentResponse struct {
	Agent     string         `json:"agent"`
	Content   string         `json:"content"`
	Citations []Citation     `json:"citations"`
	Meta      map[string]any `json:"meta"`
}

// NewAgentResponse builds a response with a non-nil citations slice and meta map.
func NewAgentResponse(agent, content string) *AgentResponse {
	return &AgentResponse{
		Agent:     agent,
		Content:   content,
		Citations: []Citation{},
		Meta:      map[string]any{},
	}
}

// -----------------------------------------------------------------------------
// IDs
// -----------------------------------------------------------------------------

// NewCorrelationID returns a fresh request correlation identifier.
func NewCorrelationID() string {
	return uuid.NewString()
}

// NewToken returns an unguessable, single-use confirmation token.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
