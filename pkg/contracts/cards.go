package contracts

// PrincipalType classifies the identity behind a source or destination.
type PrincipalType string

const (
	PrincipalMethod   PrincipalType = "method"
	PrincipalTool     PrincipalType = "tool"
	PrincipalModel    PrincipalType = "model"
	PrincipalAgent    PrincipalType = "agent"
	PrincipalService  PrincipalType = "service"
	PrincipalUser     PrincipalType = "user"
	PrincipalExternal PrincipalType = "external"
)

// Valid reports whether t is a known principal type.
func (t PrincipalType) Valid() bool {
	switch t {
	case PrincipalMethod, PrincipalTool, PrincipalModel, PrincipalAgent,
		PrincipalService, PrincipalUser, PrincipalExternal:
		return true
	}
	return false
}

// RegistryRef locates a principal in the routing registry.
type RegistryRef struct {
	LookupKey string `json:"lookupKey"`
}

// ExecutionContext correlates an envelope with the pipeline run that
// produced it.
type ExecutionContext struct {
	PipelineID    string `json:"pipelineId,omitempty"`
	TenantID      string `json:"tenantId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// SourceCard identifies the producer of an envelope.
type SourceCard struct {
	ID           string            `json:"id"`
	Type         PrincipalType     `json:"type"`
	Name         string            `json:"name,omitempty"`
	Version      string            `json:"version,omitempty"`
	RegistryRef  *RegistryRef      `json:"registryRef,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Context      *ExecutionContext `json:"context,omitempty"`
}

// RetryPolicy is carried to the transport layer; the routing registry
// passes it through without interpreting it.
type RetryPolicy struct {
	MaxAttempts    int `json:"maxAttempts"`
	BackoffSeconds int `json:"backoffSeconds"`
}

// ResponseExpectation declares what the producer expects back.
type ResponseExpectation string

const (
	ExpectNone    ResponseExpectation = "none"
	ExpectAck     ResponseExpectation = "ack"
	ExpectPayload ResponseExpectation = "payload"
)

// DestinationCard identifies the intended consumer plus delivery hints.
type DestinationCard struct {
	ID           string            `json:"id"`
	Type         PrincipalType     `json:"type"`
	Name         string            `json:"name,omitempty"`
	Version      string            `json:"version,omitempty"`
	RegistryRef  *RegistryRef      `json:"registryRef,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Context      *ExecutionContext `json:"context,omitempty"`

	RoutingKey  string              `json:"routingKey,omitempty"`
	Priority    int                 `json:"priority,omitempty"`
	TTLSeconds  int                 `json:"ttlSeconds,omitempty"`
	Retry       *RetryPolicy        `json:"retry,omitempty"`
	Expectation ResponseExpectation `json:"expectation,omitempty"`
}
