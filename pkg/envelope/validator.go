// Package envelope provides construction, structural validation, wire
// schema validation, and legacy migration for UEP envelopes.
//
// Validation is pure and fail-closed: a candidate either satisfies every
// structural invariant or is rejected with typed errors naming the
// offending fields. No partially valid envelope proceeds downstream.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/radiant-labs/uep/pkg/contracts"
)

// ValidationError identifies a single failed structural check.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Code)
}

// ValidationResult is the outcome of Validate. Errors preserve check
// order, so Errors[0] names the first failing field.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Err returns the first validation error, or nil when valid.
func (r *ValidationResult) Err() error {
	if r.Valid || len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// Validator validates envelopes for structural correctness. It holds no
// mutable state and is safe for concurrent use.
type Validator struct {
	clock func() time.Time
}

// NewValidator creates an envelope validator.
func NewValidator() *Validator {
	return &Validator{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (v *Validator) WithClock(clock func() time.Time) *Validator {
	v.clock = clock
	return v
}

// specConstraint accepts the protocol major version this module speaks.
var specConstraint = func() *semver.Constraints {
	c, err := semver.NewConstraint("~2")
	if err != nil {
		panic(err)
	}
	return c
}()

// Validate performs full structural validation of an envelope.
func (v *Validator) Validate(env *contracts.Envelope) *ValidationResult {
	result := &ValidationResult{Valid: true}
	if env == nil {
		v.addError(result, "envelope", "REQUIRED", "envelope is nil")
		return result
	}

	v.requireNonEmpty(result, "envelopeId", env.EnvelopeID)
	v.validateSpecVersion(result, env.SpecVersion)
	v.validateType(result, env)
	v.validateCard(result, "source", env.Source.ID, env.Source.Type, true)
	if env.Destination != nil {
		v.validateCard(result, "destination", env.Destination.ID, env.Destination.Type, true)
	}

	if env.Timestamp.IsZero() {
		v.addError(result, "timestamp", "REQUIRED", "timestamp is required")
	}

	v.validatePayload(result, &env.Payload)
	v.validateStreaming(result, env)

	if env.Confidence != nil && (*env.Confidence < 0 || *env.Confidence > 1) {
		v.addError(result, "confidence", "OUT_OF_RANGE",
			fmt.Sprintf("confidence %v outside [0,1]", *env.Confidence))
	}

	return result
}

func (v *Validator) validateSpecVersion(result *ValidationResult, version string) {
	if version == "" {
		v.addError(result, "specversion", "REQUIRED", "specversion is required")
		return
	}
	parsed, err := semver.NewVersion(version)
	if err != nil {
		v.addError(result, "specversion", "INVALID_VALUE",
			fmt.Sprintf("unparseable specversion %q", version))
		return
	}
	if !specConstraint.Check(parsed) {
		v.addError(result, "specversion", "UNSUPPORTED_VERSION",
			fmt.Sprintf("specversion %q is outside the supported 2.x range", version))
	}
}

func (v *Validator) validateType(result *ValidationResult, env *contracts.Envelope) {
	if env.Type == "" {
		v.addError(result, "type", "REQUIRED", "type is required")
		return
	}
	if !env.Type.Valid() {
		v.addError(result, "type", "UNKNOWN_TYPE",
			fmt.Sprintf("%q is not a member of the envelope type set", env.Type))
	}
}

func (v *Validator) validateCard(result *ValidationResult, field, id string, typ contracts.PrincipalType, required bool) {
	if id == "" {
		if required {
			v.addError(result, field+".id", "REQUIRED", field+" id is required")
		}
		return
	}
	if !typ.Valid() {
		v.addError(result, field+".type", "INVALID_VALUE",
			fmt.Sprintf("invalid principal type %q", typ))
	}
}

func (v *Validator) validatePayload(result *ValidationResult, p *contracts.Payload) {
	if p.ContentType == "" {
		v.addError(result, "payload.contentType", "REQUIRED", "payload contentType is required")
	}
	if !p.Delivery.Valid() {
		v.addError(result, "payload.delivery", "INVALID_VALUE",
			fmt.Sprintf("invalid delivery mode %q", p.Delivery))
		return
	}

	hasData := len(p.Data) > 0
	hasRef := p.Reference != nil
	hasParts := len(p.Parts) > 0

	branches := 0
	for _, b := range []bool{hasData, hasRef, hasParts} {
		if b {
			branches++
		}
	}

	switch p.Delivery {
	case contracts.DeliveryInline:
		if branches != 1 || hasRef {
			v.addError(result, "payload", "DELIVERY_MISMATCH",
				"inline delivery requires exactly one of data or parts")
			return
		}
		if hasData {
			v.validateInlineSize(result, "payload", p.ContentEncoding, p.Data, p.SizeBytes)
		}
		for i, part := range p.Parts {
			v.validatePart(result, i, part)
		}
	case contracts.DeliveryReference:
		if !hasRef || hasData || hasParts {
			v.addError(result, "payload.reference", "DELIVERY_MISMATCH",
				"reference delivery requires a reference and no inline data or parts")
			return
		}
		if p.Reference.URI == "" {
			v.addError(result, "payload.reference.uri", "REQUIRED", "reference uri is required")
		}
	case contracts.DeliveryChunked:
		if branches != 0 {
			v.addError(result, "payload", "DELIVERY_MISMATCH",
				"chunked delivery carries no inline data, reference, or parts")
		}
	}
}

func (v *Validator) validatePart(result *ValidationResult, i int, part contracts.PayloadPart) {
	field := fmt.Sprintf("payload.parts[%d]", i)
	if part.ContentType == "" {
		v.addError(result, field+".contentType", "REQUIRED", "part contentType is required")
	}
	hasData := len(part.Data) > 0
	hasRef := part.Reference != nil
	if hasData == hasRef {
		v.addError(result, field, "DELIVERY_MISMATCH",
			"part requires exactly one of data or reference")
		return
	}
	if hasData {
		v.validateInlineSize(result, field, part.ContentEncoding, part.Data, part.SizeBytes)
	} else if part.Reference.URI == "" {
		v.addError(result, field+".reference.uri", "REQUIRED", "part reference uri is required")
	}
}

// validateInlineSize checks a declared sizeBytes against the actual
// content size: the decoded length for base64 content, the raw JSON
// length otherwise.
func (v *Validator) validateInlineSize(result *ValidationResult, field, encoding string, data []byte, size *int64) {
	if size == nil {
		return
	}
	actual := int64(len(data))
	if encoding == contracts.EncodingBase64 {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
				actual = int64(len(decoded))
			}
		}
	}
	if *size != actual {
		v.addError(result, field+".sizeBytes", "SIZE_MISMATCH",
			fmt.Sprintf("declared %d bytes, actual %d", *size, actual))
	}
}

func (v *Validator) validateStreaming(result *ValidationResult, env *contracts.Envelope) {
	streaming := env.Type.IsStreaming()

	if env.Streaming == nil {
		if streaming {
			v.addError(result, "streaming", "REQUIRED",
				fmt.Sprintf("envelope type %q requires streaming info", env.Type))
		}
		return
	}

	s := env.Streaming
	if s.StreamID == "" {
		v.addError(result, "streaming.streamId", "REQUIRED", "streamId is required")
	}

	seq := s.Sequence
	if seq.Current < 1 {
		v.addError(result, "streaming.sequence.current", "INVALID_VALUE",
			"sequence.current must be a positive integer")
	}
	if seq.Total != nil {
		if *seq.Total < 1 {
			v.addError(result, "streaming.sequence.total", "INVALID_VALUE",
				"sequence.total must be a positive integer when known")
		} else if seq.Current > *seq.Total {
			v.addError(result, "streaming.sequence.current", "OUT_OF_RANGE",
				fmt.Sprintf("sequence.current %d exceeds total %d", seq.Current, *seq.Total))
		}
	}
	// isLast with an unknown total is contradictory: a producer that knows
	// it is emitting the last chunk knows the total.
	if seq.IsLast && seq.Total == nil {
		v.addError(result, "streaming.sequence.isLast", "INCONSISTENT",
			"isLast=true requires a known sequence.total")
	}
	if env.Type == contracts.TypeStreamStart {
		if !seq.IsFirst || seq.Current != 1 {
			v.addError(result, "streaming.sequence", "INCONSISTENT",
				"stream.start must carry sequence.current=1 with isFirst=true")
		}
	}
	if s.Progress != nil && (*s.Progress < 0 || *s.Progress > 1) {
		v.addError(result, "streaming.progress", "OUT_OF_RANGE",
			fmt.Sprintf("progress %v outside [0,1]", *s.Progress))
	}
}

func (v *Validator) requireNonEmpty(result *ValidationResult, field, value string) {
	if value == "" {
		v.addError(result, field, "REQUIRED", fmt.Sprintf("%s is required", field))
	}
}

func (v *Validator) addError(result *ValidationResult, field, code, message string) {
	result.Valid = false
	result.Errors = append(result.Errors, ValidationError{Field: field, Code: code, Message: message})
}
