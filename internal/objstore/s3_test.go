package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// fakeS3Client is an in-memory stand-in for s3API, letting the
// conditional-write and listing logic be exercised without a real bucket.
type fakeS3Client struct {
	objects map[string][]byte
}

func newFakeS3Client() *fakeS3Client {
	return &fakeS3Client{objects: make(map[string][]byte)}
}

func (f *fakeS3Client) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := *in.Key
	_, exists := f.objects[key]

	if in.IfNoneMatch != nil && *in.IfNoneMatch == "*" && exists {
		return nil, newPreconditionFailedError("object exists")
	}
	if in.IfMatch != nil {
		current, ok := f.objects[key]
		if !ok || etagFor(current) != *in.IfMatch {
			return nil, newPreconditionFailedError("etag mismatch")
		}
	}

	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = body
	etag := etagFor(body)
	return &s3.PutObjectOutput{ETag: &etag}, nil
}

func (f *fakeS3Client) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{Message: awsString("no such key")}
	}
	etag := etagFor(body)
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(body)),
		ETag: &etag,
	}, nil
}

func (f *fakeS3Client) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3Client) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if in.Prefix == nil || bytes.HasPrefix([]byte(k), []byte(*in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var contents []types.Object
	for _, k := range keys {
		k := k
		contents = append(contents, types.Object{Key: &k})
	}
	notTruncated := false
	return &s3.ListObjectsV2Output{Contents: contents, IsTruncated: &notTruncated}, nil
}

func newPreconditionFailedError(msg string) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusPreconditionFailed}},
		Err:      errors.New(msg),
	}
}

func TestS3Store_PutGet_RoundTrips(t *testing.T) {
	// Given a store backed by a fake client
	s := newS3StoreWithClient(newFakeS3Client(), "bucket", "prefix")
	ctx := context.Background()

	// When an object is written and read back
	etag, err := s.Put(ctx, "obj", []byte("value"), nil)
	require.NoError(t, err)
	obj, err := s.Get(ctx, "obj")

	// Then the bytes and etag round trip
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), obj.Value)
	assert.Equal(t, etag, obj.ETag)
}

func TestS3Store_Get_MissingTranslatesToNotFound(t *testing.T) {
	// Given an empty fake bucket
	s := newS3StoreWithClient(newFakeS3Client(), "bucket", "")

	// When reading an absent key
	_, err := s.Get(context.Background(), "absent")

	// Then the error is NotFound
	assert.True(t, xerrors.IsNotFound(err))
}

func TestS3Store_Put_PreconditionFailureTranslatesToConflict(t *testing.T) {
	// Given a store with one object
	s := newS3StoreWithClient(newFakeS3Client(), "bucket", "")
	ctx := context.Background()
	_, err := s.Put(ctx, "k", []byte("v1"), nil)
	require.NoError(t, err)

	// When a create-only put targets the same key
	_, err = s.Put(ctx, "k", []byte("v2"), &PutOptions{IfNoneMatch: "*"})

	// Then it surfaces as a Conflict
	assert.True(t, xerrors.IsConflict(err))
}

func TestS3Store_List_StripsConfiguredPrefix(t *testing.T) {
	// Given a store with a bucket-level prefix and two objects
	s := newS3StoreWithClient(newFakeS3Client(), "bucket", "root")
	ctx := context.Background()
	_, err := s.Put(ctx, "a", []byte("1"), nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, "b", []byte("2"), nil)
	require.NoError(t, err)

	// When listing with an empty relative prefix
	var seen []string
	err = s.List(ctx, "", func(path string) bool {
		seen = append(seen, path)
		return true
	})

	// Then paths come back relative to the store's own prefix
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, seen)
}

func TestS3Store_IsCloudStorage_IsTrue(t *testing.T) {
	s := newS3StoreWithClient(newFakeS3Client(), "bucket", "")
	assert.True(t, s.IsCloudStorage())
}
