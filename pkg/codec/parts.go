package codec

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/radiant-labs/uep/pkg/contracts"
)

// PartInput is one element handed to EncodeParts, in delivery order.
type PartInput struct {
	ContentType string
	Data        []byte
}

// EncodeParts builds an ordered multi-part payload. Each part is
// independently encoded under the same policy as Encode: structured or
// text parts under the threshold go inline, everything else is uploaded
// and referenced. Part order is preserved. The compliance gate runs per
// part; one sensitive part refuses the whole payload.
func (c *Codec) EncodeParts(ctx context.Context, parts []PartInput) (*contracts.Payload, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("codec: multipart payload needs at least one part")
	}

	out := &contracts.Payload{
		ContentType: "multipart/mixed",
		Delivery:    contracts.DeliveryInline,
	}
	var total int64
	for i, in := range parts {
		delivery := contracts.DeliveryReference
		if textual(in.ContentType) && int64(len(in.Data)) <= c.policy.InlineMaxBytes {
			delivery = contracts.DeliveryInline
		}
		if err := c.gate(ctx, in.ContentType, in.Data, delivery); err != nil {
			return nil, fmt.Errorf("codec: part %d: %w", i, err)
		}
		part, err := c.encodePart(ctx, in, delivery)
		if err != nil {
			return nil, fmt.Errorf("codec: part %d: %w", i, err)
		}
		total += int64(len(in.Data))
		out.Parts = append(out.Parts, *part)
	}
	out.SizeBytes = &total
	return out, nil
}

func (c *Codec) encodePart(ctx context.Context, in PartInput, delivery contracts.DeliveryMode) (*contracts.PayloadPart, error) {
	hash, err := c.contentHash(in.ContentType, in.Data)
	if err != nil {
		return nil, err
	}
	size := int64(len(in.Data))
	part := &contracts.PayloadPart{
		ContentType: in.ContentType,
		Hash:        hash,
		SizeBytes:   &size,
	}

	if delivery == contracts.DeliveryReference {
		ref, err := c.upload(ctx, in.Data)
		if err != nil {
			return nil, err
		}
		part.Reference = ref
		return part, nil
	}

	switch {
	case isJSON(in.ContentType):
		if !json.Valid(in.Data) {
			return nil, fmt.Errorf("content-type %s but data is not valid JSON", in.ContentType)
		}
		part.Data = json.RawMessage(in.Data)
	case textual(in.ContentType):
		quoted, err := json.Marshal(string(in.Data))
		if err != nil {
			return nil, fmt.Errorf("quote text content: %w", err)
		}
		part.Data = quoted
	default:
		encoded, err := json.Marshal(base64.StdEncoding.EncodeToString(in.Data))
		if err != nil {
			return nil, fmt.Errorf("base64 content: %w", err)
		}
		part.ContentEncoding = contracts.EncodingBase64
		part.Data = encoded
	}
	return part, nil
}
