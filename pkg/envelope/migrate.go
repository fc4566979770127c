package envelope

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/radiant-labs/uep/pkg/contracts"
)

// Migration from the v1 gateway wire format. Both functions are pure
// mappings with no shared state; the golden-pair tests pin the exact
// output shapes.

// MigrateInbound maps a v1 client message onto a method.input envelope.
// The opaque v1 payload is carried as base64 inline content.
func MigrateInbound(in contracts.LegacyInbound) (*contracts.Envelope, error) {
	if in.MessageID == "" {
		return nil, errors.New("envelope: legacy inbound missing message_id")
	}
	if in.SessionID == "" {
		return nil, errors.New("envelope: legacy inbound missing session_id")
	}

	ts := in.ReceivedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	size := int64(len(in.Payload))
	data, err := json.Marshal(base64.StdEncoding.EncodeToString(in.Payload))
	if err != nil {
		return nil, err
	}

	return &contracts.Envelope{
		EnvelopeID:  in.MessageID,
		SpecVersion: contracts.SpecVersion,
		Type:        contracts.TypeMethodInput,
		Source: contracts.SourceCard{
			ID:   in.ConnectionID,
			Type: contracts.PrincipalUser,
			Context: &contracts.ExecutionContext{
				TenantID:      in.TenantID,
				CorrelationID: in.SessionID,
			},
		},
		Timestamp: ts,
		Payload: contracts.Payload{
			ContentType:     "application/octet-stream",
			Delivery:        contracts.DeliveryInline,
			ContentEncoding: contracts.EncodingBase64,
			SizeBytes:       &size,
			Data:            data,
		},
	}, nil
}

// MigrateOutbound maps a v1 service message onto the current format.
// seq_num/is_partial/is_final become streaming metadata: partial messages
// are stream chunks keyed by session, the final message closes the
// stream, and a lone non-partial message is a plain method.output.
func MigrateOutbound(out contracts.LegacyOutbound, tenantID string) (*contracts.Envelope, error) {
	if out.MessageID == "" {
		return nil, errors.New("envelope: legacy outbound missing message_id")
	}
	if out.SessionID == "" {
		return nil, errors.New("envelope: legacy outbound missing session_id")
	}

	size := int64(len(out.Payload))
	data, err := json.Marshal(base64.StdEncoding.EncodeToString(out.Payload))
	if err != nil {
		return nil, err
	}

	env := &contracts.Envelope{
		EnvelopeID:  out.MessageID,
		SpecVersion: contracts.SpecVersion,
		Type:        contracts.TypeMethodOutput,
		Source: contracts.SourceCard{
			ID:   out.SessionID,
			Type: contracts.PrincipalService,
			Context: &contracts.ExecutionContext{
				TenantID:      tenantID,
				CorrelationID: out.SessionID,
			},
		},
		Timestamp: time.Now().UTC(),
		Payload: contracts.Payload{
			ContentType:     "application/octet-stream",
			Delivery:        contracts.DeliveryInline,
			ContentEncoding: contracts.EncodingBase64,
			SizeBytes:       &size,
			Data:            data,
		},
	}

	if out.IsPartial || out.IsFinal {
		env.Type = contracts.TypeStreamChunk
		seq := contracts.SequenceInfo{
			Current: out.SeqNum,
			IsFirst: out.SeqNum == 1,
			IsLast:  out.IsFinal,
		}
		if out.IsFinal {
			env.Type = contracts.TypeStreamEnd
			// v1 carried no declared total; the closing sequence number
			// is the total by definition.
			total := out.SeqNum
			seq.Total = &total
		}
		env.Streaming = &contracts.StreamingInfo{
			StreamID:  out.SessionID,
			Sequence:  seq,
			Resumable: false,
		}
	}

	return env, nil
}
