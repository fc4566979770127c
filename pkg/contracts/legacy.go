package contracts

import "time"

// Prior-generation gateway message shapes, kept as migration inputs only.
// envelope.MigrateInbound and envelope.MigrateOutbound map them onto the
// current Envelope; nothing else consumes them.

// LegacyInbound was the client-to-gateway message of the v1 wire format.
type LegacyInbound struct {
	MessageID       string                 `json:"message_id"`
	SessionID       string                 `json:"session_id"`
	ConnectionID    string                 `json:"connection_id"`
	TenantID        string                 `json:"tenant_id"`
	SecurityContext map[string]interface{} `json:"security_context"`
	Protocol        string                 `json:"protocol"`
	ProtocolVersion string                 `json:"protocol_version"`
	Payload         []byte                 `json:"payload"`
	ReceivedAt      time.Time              `json:"received_at"`
}

// LegacyOutbound was the service-to-client message of the v1 wire format.
// SeqNum/IsPartial/IsFinal carried the pre-UEP streaming state.
type LegacyOutbound struct {
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id"`
	Payload   []byte `json:"payload"`
	SeqNum    int64  `json:"seq_num"`
	IsPartial bool   `json:"is_partial"`
	IsFinal   bool   `json:"is_final"`
}
