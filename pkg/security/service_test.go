package security

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-labs/uep/pkg/compliance"
	"github.com/radiant-labs/uep/pkg/contracts"
)

func testEnvelope() *contracts.Envelope {
	return &contracts.Envelope{
		EnvelopeID:  "0190a8b0-0000-7000-8000-00000000ffff",
		SpecVersion: "2.0",
		Type:        contracts.TypeMethodOutput,
		Source: contracts.SourceCard{
			ID:   "svc-scribe",
			Type: contracts.PrincipalService,
			Context: &contracts.ExecutionContext{
				TenantID: "tenant-7",
			},
		},
		Timestamp: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		Payload: contracts.Payload{
			ContentType: "application/json",
			Delivery:    contracts.DeliveryInline,
			Data:        json.RawMessage(`{"answer":42}`),
		},
	}
}

func testKeystore(t *testing.T) (*Keystore, *Signer) {
	t.Helper()
	ks, err := NewKeystore(filepath.Join(t.TempDir(), "keys.json"))
	require.NoError(t, err)
	ref, err := ks.Provision("tenant-7")
	require.NoError(t, err)
	signer, err := ks.Signer("tenant-7", ref)
	require.NoError(t, err)
	return ks, signer
}

func TestSignVerifyRoundTrip(t *testing.T) {
	ks, signer := testKeystore(t)
	svc := NewService()
	env := testEnvelope()

	sec, err := svc.Sign(env, signer)
	require.NoError(t, err)
	assert.Equal(t, contracts.SigAlgEd25519, sec.SignatureAlgorithm)
	assert.NotEmpty(t, sec.Signature)

	// Attaching the security envelope must not break verification; the
	// signature covers the envelope minus its security section.
	env.Security = sec
	assert.NoError(t, svc.Verify(context.Background(), env, sec, ks))
}

func TestVerifyDetectsTamper(t *testing.T) {
	ks, signer := testKeystore(t)
	svc := NewService()
	env := testEnvelope()

	sec, err := svc.Sign(env, signer)
	require.NoError(t, err)

	env.Payload.Data = json.RawMessage(`{"answer":43}`)
	err = svc.Verify(context.Background(), env, sec, ks)
	require.Error(t, err)

	var serr *SecurityError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, CodeInvalidSignature, serr.Code)
}

func TestVerifyUnknownKey(t *testing.T) {
	ks, _ := testKeystore(t)
	svc := NewService()
	env := testEnvelope()

	_, other, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sec, err := svc.Sign(env, NewSigner("v99", other))
	require.NoError(t, err)

	err = svc.Verify(context.Background(), env, sec, ks)
	var serr *SecurityError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, CodeUnknownKey, serr.Code)
}

func TestVerifyMissingSignature(t *testing.T) {
	ks, _ := testKeystore(t)
	err := NewService().Verify(context.Background(), testEnvelope(), nil, ks)
	var serr *SecurityError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, CodeInvalidSignature, serr.Code)
}

func TestEncryptDecryptPayload(t *testing.T) {
	for _, alg := range []string{contracts.EncAlgAESGCM, contracts.EncAlgChaCha20} {
		t.Run(alg, func(t *testing.T) {
			ks, _ := testKeystore(t)
			svc := NewService()
			ctx := context.Background()

			original := &testEnvelope().Payload
			enc, err := svc.EncryptPayload(ctx, original, alg, "tenant-7", "v1", ks)
			require.NoError(t, err)
			assert.Equal(t, alg, enc.Algorithm)
			assert.NotEmpty(t, enc.Ciphertext)
			assert.NotEmpty(t, enc.IV)
			assert.NotEmpty(t, enc.AuthTag)

			dec, err := svc.DecryptPayload(ctx, enc, "tenant-7", ks)
			require.NoError(t, err)
			assert.Equal(t, original.ContentType, dec.ContentType)
			assert.JSONEq(t, string(original.Data), string(dec.Data))
		})
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	ks, _ := testKeystore(t)
	svc := NewService()
	ctx := context.Background()

	enc, err := svc.EncryptPayload(ctx, &testEnvelope().Payload, contracts.EncAlgAESGCM, "tenant-7", "v1", ks)
	require.NoError(t, err)

	enc.AuthTag = enc.IV // wrong tag
	_, err = svc.DecryptPayload(ctx, enc, "tenant-7", ks)
	var serr *SecurityError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, CodeDecryptFailed, serr.Code)
}

func TestKeystoreRotationKeepsOldVersions(t *testing.T) {
	ks, _ := testKeystore(t)
	svc := NewService()
	ctx := context.Background()

	enc, err := svc.EncryptPayload(ctx, &testEnvelope().Payload, "", "tenant-7", "v1", ks)
	require.NoError(t, err)

	ref, err := ks.Rotate("tenant-7")
	require.NoError(t, err)
	assert.Equal(t, "v2", ref)

	// Data sealed under v1 still decrypts after rotation.
	_, err = svc.DecryptPayload(ctx, enc, "tenant-7", ks)
	assert.NoError(t, err)
}

func TestKeystoreSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")

	ks, err := NewKeystore(path)
	require.NoError(t, err)
	_, err = ks.Provision("tenant-7")
	require.NoError(t, err)
	sig1, err := ks.Signer("tenant-7", "v1")
	require.NoError(t, err)

	reloaded, err := NewKeystore(path)
	require.NoError(t, err)
	sig2, err := reloaded.Signer("tenant-7", "v1")
	require.NoError(t, err)
	assert.Equal(t, sig1.Public(), sig2.Public())
}

func TestMandatoryEncryptionPolicy(t *testing.T) {
	p := NewPolicyEnforcer()

	phi := compliance.Report{Classification: compliance.ClassInternal, ContainsPHI: true}
	err := p.CheckPlaintextDelivery(phi, contracts.DeliveryInline)
	var serr *SecurityError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, CodePolicyViolation, serr.Code)

	err = p.CheckPlaintextDelivery(phi, contracts.DeliveryReference)
	assert.Error(t, err)

	public := compliance.Report{Classification: compliance.ClassPublic}
	assert.NoError(t, p.CheckPlaintextDelivery(public, contracts.DeliveryInline))

	restricted := compliance.Report{Classification: compliance.ClassRestricted}
	assert.Error(t, p.CheckPlaintextDelivery(restricted, contracts.DeliveryInline))
}
