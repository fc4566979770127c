// Package routing resolves envelope destinations. Subsystems register
// under an address prefix ("mlpipe://", "scribe://"); the registry
// parses a destination's routing key, looks the target up in the
// subsystem's directory, and gates the match on capabilities and
// version before handing back delivery hints.
package routing

import (
	"fmt"
	"strings"
)

// Routing error codes, stable strings surfaced on control.nack.
const (
	CodeMalformedAddress   = "MALFORMED_ADDRESS"
	CodeUnknownPrefix      = "UNKNOWN_PREFIX"
	CodeTargetNotFound     = "TARGET_NOT_FOUND"
	CodeCapabilityMismatch = "CAPABILITY_MISMATCH"
	CodeVersionMismatch    = "VERSION_MISMATCH"
)

// RoutingError is the typed failure of a resolution attempt. Prefix and
// LookupKey identify what was being resolved so the producer can
// correct its destination card.
type RoutingError struct {
	Code      string
	Prefix    string
	LookupKey string
	Message   string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing %s: %s", e.Code, e.Message)
}

func routeErr(code, prefix, key, format string, args ...interface{}) *RoutingError {
	return &RoutingError{
		Code:      code,
		Prefix:    prefix,
		LookupKey: key,
		Message:   fmt.Sprintf(format, args...),
	}
}

// Address is a parsed routing key of the form
// "subsystem://resource/path".
type Address struct {
	Prefix   string
	Resource string
}

// ParseAddress splits a routing key into its subsystem prefix and
// resource path.
func ParseAddress(routingKey string) (Address, error) {
	prefix, resource, ok := strings.Cut(routingKey, "://")
	if !ok || prefix == "" || resource == "" {
		return Address{}, routeErr(CodeMalformedAddress, "", routingKey,
			"routing key %q is not of the form subsystem://resource", routingKey)
	}
	return Address{Prefix: prefix, Resource: resource}, nil
}

// Target is one routable endpoint registered in a subsystem directory.
type Target struct {
	Key          string
	Subsystem    string
	Endpoint     string
	Version      string
	Capabilities []string
	Metadata     map[string]string
}

// HasCapabilities reports whether the target advertises every required
// capability, and returns the ones it lacks.
func (t *Target) HasCapabilities(required []string) (bool, []string) {
	have := make(map[string]bool, len(t.Capabilities))
	for _, c := range t.Capabilities {
		have[c] = true
	}
	var missing []string
	for _, c := range required {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return len(missing) == 0, missing
}
