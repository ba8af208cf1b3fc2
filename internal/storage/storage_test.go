package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decet2025-sketch/cert-api/pkg/logger"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewFilesystemStore(t.TempDir(), logger.NewLogger(nil))
	require.NoError(t, err)
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fileID, err := store.Put(ctx, []byte("%PDF-1.4 payload"), "certificate_Ada_Lovelace.pdf")
	require.NoError(t, err)
	assert.Contains(t, fileID, "certificate_Ada_Lovelace.pdf")

	data, name, err := store.Get(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 payload"), data)
	assert.Equal(t, "certificate_Ada_Lovelace.pdf", name, "download name drops the uuid prefix")

	exists, err := store.Exists(ctx, fileID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPutSanitizesFilename(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fileID, err := store.Put(ctx, []byte("data"), "../../etc/pass wd?.pdf")
	require.NoError(t, err)
	assert.NotContains(t, fileID, "..")
	assert.NotContains(t, fileID, "/")

	_, name, err := store.Get(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, "pass_wd_.pdf", name)
}

func TestGetRejectsTraversal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, fileID := range []string{"", "../secret", "a/b", `a\b`} {
		_, _, err := store.Get(ctx, fileID)
		assert.Error(t, err, "file id %q must be rejected", fileID)
	}
}

func TestExistsMissingArtifact(t *testing.T) {
	store := newTestStore(t)

	exists, err := store.Exists(context.Background(), "nope_certificate.pdf")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSignerRoundTrip(t *testing.T) {
	signer := NewSigner("download-secret", time.Hour)

	token, err := signer.Sign("file-1_certificate.pdf", "ada@acme.example")
	require.NoError(t, err)

	fileID, email, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "file-1_certificate.pdf", fileID)
	assert.Equal(t, "ada@acme.example", email)
}

func TestSignerRejectsExpiredToken(t *testing.T) {
	signer := NewSigner("download-secret", -time.Minute)

	token, err := signer.Sign("file-1", "ada@acme.example")
	require.NoError(t, err)

	_, _, err = signer.Verify(token)
	assert.Error(t, err)
}

func TestSignerRejectsWrongSecret(t *testing.T) {
	token, err := NewSigner("secret-a", time.Hour).Sign("file-1", "ada@acme.example")
	require.NoError(t, err)

	_, _, err = NewSigner("secret-b", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestSignerRejectsGarbage(t *testing.T) {
	_, _, err := NewSigner("secret", time.Hour).Verify("not.a.token")
	assert.Error(t, err)
}
