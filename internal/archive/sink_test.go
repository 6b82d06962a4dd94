package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

func TestFileSinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sink := FileSink{Dir: dir}

	_, err := sink.Get(ctx, ArtifactKey("T1", 2024))
	require.ErrorIs(t, err, ErrArtifactNotFound)

	require.NoError(t, sink.Put(ctx, ArtifactKey("T1", 2024), []byte(`{"year":2024}`)))
	require.NoError(t, sink.Put(ctx, ArtifactKey("T1", 2024), []byte(`{"year":2024,"v":2}`)))

	data, err := sink.Get(ctx, ArtifactKey("T1", 2024))
	require.NoError(t, err)
	require.Equal(t, `{"year":2024,"v":2}`, string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "archives", "T1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileSinkRejectsEscapingKeys(t *testing.T) {
	sink := FileSink{Dir: t.TempDir()}
	require.ErrorIs(t, sink.Put(context.Background(), "../outside.json", []byte("x")), ErrInvalidKey)
	_, err := sink.Get(context.Background(), "/etc/passwd")
	require.ErrorIs(t, err, ErrInvalidKey)
}

type fakeS3 struct {
	objects map[string][]byte
	getErr  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func TestS3Sink(t *testing.T) {
	ctx := context.Background()
	client := &fakeS3{objects: map[string][]byte{}}
	sink := NewS3Sink(client, "invix-archive", "prod")

	_, err := sink.Get(ctx, ArtifactKey("T1", 2024))
	require.ErrorIs(t, err, ErrArtifactNotFound)

	require.NoError(t, sink.Put(ctx, ArtifactKey("T1", 2024), []byte("payload")))
	require.Contains(t, client.objects, "invix-archive/prod/archives/T1/2024.json")

	data, err := sink.Get(ctx, ArtifactKey("T1", 2024))
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))

	client.getErr = errors.New("throttled")
	_, err = sink.Get(ctx, ArtifactKey("T1", 2024))
	require.ErrorContains(t, err, "throttled")
	require.NotErrorIs(t, err, ErrArtifactNotFound)
}
