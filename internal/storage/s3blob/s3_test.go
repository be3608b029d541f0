package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/faxintake/internal/storage"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	copyErr error
	sources []string
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, aws.ToString(in.CopySource))
	if f.copyErr != nil {
		return nil, f.copyErr
	}
	src, _ := url.PathUnescape(aws.ToString(in.CopySource))
	f.objects[aws.ToString(in.Key)] = f.objects[strings.TrimPrefix(src, "faxes/")]
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(b)))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func settle(t *testing.T, s *Store, dst string) storage.CopyStatus {
	t.Helper()
	var st storage.CopyStatus
	require.Eventually(t, func() bool {
		var err error
		st, err = s.CopyStatus(context.Background(), dst)
		require.NoError(t, err)
		return st.State != storage.CopyPending
	}, time.Second, 5*time.Millisecond)
	return st
}

func TestStore_Copy(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{"fax1.pdf": []byte("pdf")}}
	s := New(api, "faxes", nil)

	require.NoError(t, s.StartCopy(context.Background(), "fax1.pdf", "fax1/fax1.pdf"))
	assert.Equal(t, storage.CopySuccess, settle(t, s, "fax1/fax1.pdf").State)
	assert.Equal(t, []string{"faxes/fax1.pdf"}, api.sources)

	rc, err := s.Open(context.Background(), "fax1/fax1.pdf")
	require.NoError(t, err)
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "pdf", string(b))
}

func TestEscapeKey(t *testing.T) {
	assert.Equal(t, "fax%201/fax%201.pdf", escapeKey("fax 1/fax 1.pdf"))
}

func TestStore_CopyFailure(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{"fax1.pdf": []byte("pdf")}, copyErr: errors.New("access denied")}
	s := New(api, "faxes", nil)

	require.NoError(t, s.StartCopy(context.Background(), "fax1.pdf", "fax1/fax1.pdf"))
	st := settle(t, s, "fax1/fax1.pdf")
	assert.Equal(t, storage.CopyFailed, st.State)
	assert.Contains(t, st.Detail, "access denied")
}

func TestStore_NotFound(t *testing.T) {
	s := New(&fakeS3{objects: map[string][]byte{}}, "faxes", nil)

	assert.ErrorIs(t, s.StartCopy(context.Background(), "nope.pdf", "nope/nope.pdf"), storage.ErrNotFound)
	_, err := s.Open(context.Background(), "nope.pdf")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
