package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-labs/uep/pkg/contracts"
)

func wireBytes(t *testing.T, env *contracts.Envelope) []byte {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func TestValidateWireAcceptsMinimalEnvelope(t *testing.T) {
	raw := wireBytes(t, minimalEnvelope(contracts.TypeMethodInput))
	assert.NoError(t, ValidateWire(raw))
}

func TestValidateWireAcceptsStreamingEnvelope(t *testing.T) {
	raw := wireBytes(t, minimalEnvelope(contracts.TypeStreamStart))
	assert.NoError(t, ValidateWire(raw))
}

func TestValidateWireRejectsMissingRequired(t *testing.T) {
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(wireBytes(t, minimalEnvelope(contracts.TypeMethodInput)), &doc))
	delete(doc, "source")
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Error(t, ValidateWire(raw))
}

func TestValidateWireRejectsUnknownType(t *testing.T) {
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(wireBytes(t, minimalEnvelope(contracts.TypeMethodInput)), &doc))
	doc["type"] = "mystery.kind"
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Error(t, ValidateWire(raw))
}

func TestValidateWireRejectsStreamTypeWithoutStreaming(t *testing.T) {
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(wireBytes(t, minimalEnvelope(contracts.TypeStreamChunk)), &doc))
	delete(doc, "streaming")
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Error(t, ValidateWire(raw))
}

func TestValidateWireRejectsGarbage(t *testing.T) {
	assert.Error(t, ValidateWire([]byte(`{"not": "an envelope"`)))
	assert.Error(t, ValidateWire([]byte(`[]`)))
}
