package gcs

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	blob "github.com/joseph-ayodele/faxintake/internal/storage"
)

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil, "fax1.pdf"))

	err := mapErr(storage.ErrObjectNotExist, "fax1.pdf")
	assert.ErrorIs(t, err, blob.ErrNotFound)
	assert.Contains(t, err.Error(), "gs object fax1.pdf")

	wrapped := mapErr(errors.Join(errors.New("get"), storage.ErrObjectNotExist), "fax1/fax1.pdf")
	assert.ErrorIs(t, wrapped, blob.ErrNotFound)

	other := errors.New("googleapi: Error 403: forbidden")
	err = mapErr(other, "fax2.tiff")
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, blob.ErrNotFound)
	assert.Equal(t, "gcs fax2.tiff: googleapi: Error 403: forbidden", err.Error())
}

func TestCopyStatus_UnknownCopy(t *testing.T) {
	s := New(nil, "faxes", nil)
	assert.Equal(t, "faxes", s.Bucket())

	_, err := s.CopyStatus(context.Background(), "fax1/fax1.pdf")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

// TestStore_Emulator runs against fake-gcs-server or the official emulator when STORAGE_EMULATOR_HOST is set.
func TestStore_Emulator(t *testing.T) {
	if os.Getenv("STORAGE_EMULATOR_HOST") == "" {
		t.Skip("STORAGE_EMULATOR_HOST not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := NewClient(ctx, "")
	require.NoError(t, err)
	defer client.Close()

	bucket := "faxintake-test-" + time.Now().UTC().Format("20060102150405")
	require.NoError(t, client.Bucket(bucket).Create(ctx, "faxintake-test", nil))

	w := client.Bucket(bucket).Object("fax1.pdf").NewWriter(ctx)
	_, err = w.Write([]byte("%PDF-1.4 fax"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	s := New(client, bucket, zap.NewNop())
	assert.ErrorIs(t, s.StartCopy(ctx, "missing.pdf", "missing/missing.pdf"), blob.ErrNotFound)

	require.NoError(t, s.StartCopy(ctx, "fax1.pdf", "fax1/fax1.pdf"))
	var st blob.CopyStatus
	require.Eventually(t, func() bool {
		st, err = s.CopyStatus(ctx, "fax1/fax1.pdf")
		return err == nil && st.State != blob.CopyPending
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, blob.CopySuccess, st.State)

	require.NoError(t, s.Delete(ctx, "fax1.pdf"))
	_, err = s.Open(ctx, "fax1.pdf")
	assert.ErrorIs(t, err, blob.ErrNotFound)

	rc, err := s.Open(ctx, "fax1/fax1.pdf")
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fax", string(b))
}
