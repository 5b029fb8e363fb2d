package common

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory bucket that pages List results.
type fakeS3 struct {
	objects  map[string][]byte
	pageSize int
	lastPut  *s3.PutObjectInput
	putErr   error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), pageSize: 2}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.lastPut = in
	b, _ := io.ReadAll(in.Body)
	f.objects[*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := min(start+f.pageSize, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func mustNewS3(t *testing.T, api s3API) *S3 {
	t.Helper()
	s, err := NewS3WithClient(api, "bucket")
	require.NoError(t, err)
	return s
}

func TestNewS3WithClient_Validation(t *testing.T) {
	_, err := NewS3WithClient(nil, "b")
	require.Error(t, err)
	_, err = NewS3WithClient(newFakeS3(), "")
	require.Error(t, err)
}

func TestS3_PutGetDelete(t *testing.T) {
	api := newFakeS3()
	s := mustNewS3(t, api)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "in/input-1.jsonl", []byte("line\n"), "application/jsonl"))
	require.Equal(t, "application/jsonl", aws.ToString(api.lastPut.ContentType))
	require.Equal(t, "bucket", aws.ToString(api.lastPut.Bucket))

	got, err := s.Get(ctx, "in/input-1.jsonl")
	require.NoError(t, err)
	require.Equal(t, "line\n", string(got))

	ok, err := s.Exists(ctx, "in/input-1.jsonl")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Delete(ctx, "in/input-1.jsonl"))
	ok, err = s.Exists(ctx, "in/input-1.jsonl")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Get(ctx, "in/input-1.jsonl")
	require.ErrorContains(t, err, "NoSuchKey")
}

func TestS3_PutError(t *testing.T) {
	api := newFakeS3()
	api.putErr = errors.New("denied")
	s := mustNewS3(t, api)
	err := s.Put(context.Background(), "k", nil, "")
	require.ErrorContains(t, err, "s3: Put k")
	require.ErrorContains(t, err, "denied")
}

func TestS3_ListFollowsContinuation(t *testing.T) {
	api := newFakeS3()
	for _, k := range []string{"out/a", "out/b", "out/c", "out/d", "out/e", "other/x"} {
		api.objects[k] = []byte("x")
	}
	s := mustNewS3(t, api)

	keys, err := s.List(context.Background(), "out/")
	require.NoError(t, err)
	require.Equal(t, []string{"out/a", "out/b", "out/c", "out/d", "out/e"}, keys)
}

func TestS3_URI(t *testing.T) {
	s := mustNewS3(t, newFakeS3())
	require.Equal(t, "s3://bucket/in/input-1.jsonl", s.URI("in/input-1.jsonl"))
}
