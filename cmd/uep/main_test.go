package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-labs/uep/pkg/codec"
	"github.com/radiant-labs/uep/pkg/contracts"
	"github.com/radiant-labs/uep/pkg/envelope"
)

func writeEnvelope(t *testing.T) string {
	t.Helper()
	c := codec.New(codec.DefaultPolicy(), nil)
	payload, err := c.Encode(context.Background(), []byte(`{"greeting":"hello"}`), "application/json")
	require.NoError(t, err)

	env, err := envelope.New(contracts.TypeMethodOutput, contracts.SourceCard{
		ID:   "svc-demo",
		Type: contracts.PrincipalService,
	}, *payload)
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "envelope.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestValidateCommand(t *testing.T) {
	path := writeEnvelope(t)
	var stdout, stderr bytes.Buffer

	code := Run([]string{"uep", "validate", "-f", path}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "valid")
}

func TestValidateRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"nope"}`), 0o600))
	var stdout, stderr bytes.Buffer

	code := Run([]string{"uep", "validate", "-f", path}, &stdout, &stderr)
	assert.Equal(t, 1, code)
}

func TestInspectCommand(t *testing.T) {
	path := writeEnvelope(t)
	var stdout, stderr bytes.Buffer

	code := Run([]string{"uep", "inspect", "-f", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "method.output")
	assert.Contains(t, stdout.String(), "svc-demo")
}

func TestSignThenVerify(t *testing.T) {
	path := writeEnvelope(t)
	keystore := filepath.Join(t.TempDir(), "keys.json")

	var signed, stderr bytes.Buffer
	code := Run([]string{"uep", "sign", "-f", path, "-keystore", keystore}, &signed, &stderr)
	require.Equal(t, 0, code, stderr.String())

	signedPath := filepath.Join(t.TempDir(), "signed.json")
	require.NoError(t, os.WriteFile(signedPath, signed.Bytes(), 0o600))

	var stdout bytes.Buffer
	code = Run([]string{"uep", "verify", "-f", signedPath, "-keystore", keystore}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "signature valid")
}

func TestKeysRotate(t *testing.T) {
	keystore := filepath.Join(t.TempDir(), "keys.json")
	var stdout, stderr bytes.Buffer

	code := Run([]string{"uep", "keys", "-keystore", keystore, "-tenant", "acme"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "v1")

	stdout.Reset()
	code = Run([]string{"uep", "keys", "-keystore", keystore, "-tenant", "acme", "-rotate"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "v2")
}

func TestUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, Run([]string{"uep", "frobnicate"}, &stdout, &stderr))
}
