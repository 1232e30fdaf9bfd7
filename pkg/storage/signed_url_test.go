package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("job-1", "reports/file.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", claims.JobID)
	assert.Equal(t, "reports/file.csv", claims.Path)
	assert.Equal(t, expiresAt, claims.ExpiresAt)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("job-1", "reports/file.csv")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = signer.Parse(token, false)
	require.ErrorIs(t, err, ErrTokenExpired)

	claims, err := signer.Parse(token, true)
	require.NoError(t, err)
	assert.Equal(t, "job-1", claims.JobID)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("job-1", "reports/file.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "job-2"
	_, err = signer.Parse(strings.Join(parts, "."), false)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = NewSignedURLSigner("other", time.Hour).Parse(token, false)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = signer.Parse("garbage", false)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	size, err := store.Save("reports/a.csv", []byte("x,y\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)

	rc, n, err := store.Open("reports/a.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, rc.Close())

	_, err = store.Save("../escape.csv", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)

	store.now = func() time.Time { return time.Now().Add(time.Hour) }
	deleted, err := store.CleanupOlderThan(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"reports/a.csv"}, deleted)

	require.NoError(t, store.Delete("reports/a.csv"))
}
