package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// s3API is the subset of *s3.Client this backend uses, so tests can
// substitute a fake without standing up a real bucket — the same seam
// dolthub-dolt's nbs table persister draws around its blob client.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store is the cloud-blob Store backend: latency-bound, so
// IsCloudStorage is true and every write from the engine routes through
// the C4 coalescing write buffer before it ever reaches this type.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Store builds an S3Store from the default AWS credential chain.
func NewS3Store(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.IO, "load aws config", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

// newS3StoreWithClient is used by tests to inject a fake s3API.
func newS3StoreWithClient(client s3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + path
}

// Put implements Store. S3's conditional-write headers (If-Match /
// If-None-Match) map directly onto spec's precondition semantics.
func (s *S3Store) Put(ctx context.Context, path string, value []byte, opts *PutOptions) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    awsString(s.key(path)),
		Body:   bytes.NewReader(value),
	}
	if opts != nil {
		if opts.IfMatch != "" {
			in.IfMatch = awsString(opts.IfMatch)
		}
		if opts.IfNoneMatch != "" {
			in.IfNoneMatch = awsString(opts.IfNoneMatch)
		}
	}

	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		return "", translateS3Error(err)
	}
	etag := ""
	if out.ETag != nil {
		etag = strings.Trim(*out.ETag, `"`)
	}
	return etag, nil
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, path string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    awsString(s.key(path)),
	})
	if err != nil {
		return nil, translateS3Error(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.IO, "read s3 body", err)
	}
	etag := ""
	if out.ETag != nil {
		etag = strings.Trim(*out.ETag, `"`)
	}
	return &Object{Value: data, ETag: etag}, nil
}

// Delete implements Store; S3 DeleteObject is already idempotent.
func (s *S3Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    awsString(s.key(path)),
	})
	if err != nil {
		return translateS3Error(err)
	}
	return nil
}

// List implements Store via paginated ListObjectsV2.
func (s *S3Store) List(ctx context.Context, prefix string, fn func(path string) bool) error {
	fullPrefix := s.key(prefix)
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &fullPrefix,
			ContinuationToken: token,
		})
		if err != nil {
			return translateS3Error(err)
		}
		for _, obj := range out.Contents {
			if obj.Key == nil {
				continue
			}
			rel := *obj.Key
			if s.prefix != "" {
				rel = strings.TrimPrefix(rel, strings.TrimSuffix(s.prefix, "/")+"/")
			}
			if !fn(rel) {
				return nil
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			return nil
		}
		token = out.NextContinuationToken
	}
}

// BatchDelete implements Store.
func (s *S3Store) BatchDelete(ctx context.Context, paths []string, opts BatchDeleteOptions) error {
	return batchDelete(ctx, paths, opts, s.Delete)
}

// BatchRead implements Store.
func (s *S3Store) BatchRead(ctx context.Context, paths []string) (map[string]*Object, error) {
	return batchRead(ctx, paths, s.Get)
}

// IsCloudStorage implements Store; S3 is the canonical cloud backend.
func (s *S3Store) IsCloudStorage() bool { return true }

// Close implements Store; the AWS SDK client has no handles to release.
func (s *S3Store) Close() error { return nil }

var _ Store = (*S3Store)(nil)

func awsString(s string) *string { return &s }

// translateS3Error maps S3 responses onto the store's Kind taxonomy.
// S3 doesn't model precondition failures as a typed exception the way it
// does NoSuchKey; a failed If-Match/If-None-Match surfaces as a generic
// response with HTTP 412, so that case is matched on status code via
// smithy's ResponseError rather than a concrete error type.
func translateS3Error(err error) error {
	var nfe *types.NoSuchKey
	if errors.As(err, &nfe) {
		return xerrors.Wrap(xerrors.NotFound, "object not found", err)
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusPreconditionFailed, http.StatusConflict:
			return xerrors.Wrap(xerrors.Conflict, "precondition failed", err)
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return xerrors.Wrap(xerrors.Throttled, "s3 request throttled", err)
		}
	}
	if isThrottleError(err) {
		return xerrors.Wrap(xerrors.Throttled, "s3 request throttled", err)
	}
	return xerrors.Wrap(xerrors.IO, "s3 request failed", err)
}

func isThrottleError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SlowDown") ||
		strings.Contains(msg, "TooManyRequests") ||
		strings.Contains(msg, "RequestLimitExceeded") ||
		strings.Contains(msg, "ThrottlingException")
}
