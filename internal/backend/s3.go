// Package backend: S3 driver.
//
// S3Backend exposes the Backend capability against an upstream S3-compatible
// bucket (AWS S3, MinIO, or any S3-compatible local store) via aws-sdk-go-v2
// native V4 signing.
package backend

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sourcegw/gateway/internal/apierror"
)

// AuthTag names a data connection's authentication strategy, per spec.md
// §4.C. Anything other than these three is rejected with UnsupportedAuthMethod.
const (
	AuthS3AccessKey   = "s3_access_key"
	AuthS3ECSTaskRole = "s3_ecs_task_role"
	AuthS3Local       = "s3_local"
)

// s3LocalEndpoint is the fixed endpoint override for the s3_local auth tag.
const s3LocalEndpoint = "http://localhost:5050"

// S3API defines the subset of the AWS S3 client interface the driver uses.
// Mockable for tests.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config carries the data-connection-derived parameters needed to build an
// S3Backend. It intentionally holds only primitives, not a controlplane
// type, so this package never imports controlplane.
type S3Config struct {
	AuthTag         string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BasePrefix      string
}

// S3Backend implements Backend by translating calls to the S3 REST API.
type S3Backend struct {
	bucket     string
	basePrefix string
	client     S3API
}

// NewS3Backend builds an S3Backend from a data connection's auth tag and
// credentials, selecting the credential source per spec.md §4.C.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	var endpoint string

	switch cfg.AuthTag {
	case AuthS3AccessKey:
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
		endpoint = regionEndpoint(cfg.Region)
	case AuthS3ECSTaskRole:
		// The container credential chain is discovered automatically by
		// LoadDefaultConfig from the container's environment
		// (AWS_CONTAINER_CREDENTIALS_RELATIVE_URI); no explicit provider needed.
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		endpoint = regionEndpoint(cfg.Region)
	case AuthS3Local:
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		endpoint = s3LocalEndpoint
	default:
		return nil, apierror.UnsupportedAuthMethod(fmt.Sprintf("unknown connection auth tag %q", cfg.AuthTag))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		if cfg.AuthTag == AuthS3Local {
			o.UsePathStyle = true
		}
	})

	return &S3Backend{bucket: cfg.Bucket, basePrefix: cfg.BasePrefix, client: client}, nil
}

// NewS3BackendWithClient builds an S3Backend around a pre-configured client,
// for test injection.
func NewS3BackendWithClient(bucket, basePrefix string, client S3API) *S3Backend {
	return &S3Backend{bucket: bucket, basePrefix: basePrefix, client: client}
}

// regionEndpoint composes the custom region endpoint per spec.md §4.C:
// https://s3.<region>.amazonaws.com.
func regionEndpoint(region string) string {
	return fmt.Sprintf("https://s3.%s.amazonaws.com", region)
}

func (b *S3Backend) key(key string) string {
	return RewriteKey(b.basePrefix, key)
}

// GetObject issues a HEAD first (per spec.md §4.C) so metadata headers are
// available even though the body arrives as a separate stream, then a GET.
func (b *S3Backend) GetObject(ctx context.Context, key string, byteRange string) (*GetObjectOutput, error) {
	s3key := b.key(key)

	meta, err := b.HeadObject(ctx, key)
	if err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(s3key),
	}
	if byteRange != "" {
		input.Range = aws.String(byteRange)
	}

	resp, err := b.client.GetObject(ctx, input)
	if err != nil {
		return nil, mapS3Error(err, key)
	}

	return &GetObjectOutput{ObjectMetadata: *meta, Body: resp.Body}, nil
}

// HeadObject retrieves object metadata without a body.
func (b *S3Backend) HeadObject(ctx context.Context, key string) (*ObjectMetadata, error) {
	s3key := b.key(key)

	resp, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(s3key),
	})
	if err != nil {
		return nil, mapS3Error(err, key)
	}

	meta := &ObjectMetadata{
		ContentType: aws.ToString(resp.ContentType),
		ETag:        aws.ToString(resp.ETag),
	}
	if resp.ContentLength != nil {
		meta.ContentLength = *resp.ContentLength
	}
	if resp.LastModified != nil {
		meta.LastModified = *resp.LastModified
	}
	if len(resp.Metadata) > 0 {
		meta.UserMetadata = make(map[string]string, len(resp.Metadata))
		for k, v := range resp.Metadata {
			meta.UserMetadata[strings.ToLower(k)] = v
		}
	}
	return meta, nil
}

// PutObject uploads a whole object, computing MD5 locally so the ETag stays
// consistent regardless of upstream server-side transforms.
func (b *S3Backend) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string, userMetadata map[string]string) (*ObjectMetadata, error) {
	s3key := b.key(key)

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading object data: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(s3key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if len(userMetadata) > 0 {
		input.Metadata = userMetadata
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return nil, apierror.S3Error(err.Error())
	}

	h := md5.Sum(data)
	etag := fmt.Sprintf(`"%x"`, h)

	return &ObjectMetadata{
		ContentLength: int64(len(data)),
		ContentType:   contentType,
		ETag:          etag,
		LastModified:  time.Now().UTC(),
		UserMetadata:  userMetadata,
	}, nil
}

// CreateMultipartUpload initiates a native S3 multipart upload.
func (b *S3Backend) CreateMultipartUpload(ctx context.Context, key, contentType string) (*CreateMultipartUploadOutput, error) {
	s3key := b.key(key)

	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(s3key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	resp, err := b.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, apierror.S3Error(err.Error())
	}

	return &CreateMultipartUploadOutput{
		Key:      key,
		UploadID: aws.ToString(resp.UploadId),
	}, nil
}

// UploadPart uploads one part of a multipart upload directly to S3.
func (b *S3Backend) UploadPart(ctx context.Context, key, uploadID string, partNumber int, body io.Reader, size int64) (*UploadPartOutput, error) {
	s3key := b.key(key)

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading part data: %w", err)
	}

	resp, err := b.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(s3key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(int32(partNumber)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return nil, apierror.S3Error(err.Error())
	}

	return &UploadPartOutput{ETag: aws.ToString(resp.ETag)}, nil
}

// CompleteMultipartUpload assembles the native S3 multipart upload.
func (b *S3Backend) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) (*CompleteMultipartUploadOutput, error) {
	s3key := b.key(key)

	var completed []types.CompletedPart
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(int32(p.PartNumber)),
		})
	}

	resp, err := b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(s3key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return nil, apierror.S3Error(err.Error())
	}

	return &CompleteMultipartUploadOutput{
		Location: aws.ToString(resp.Location),
		Key:      key,
		ETag:     strings.Trim(aws.ToString(resp.ETag), `"`),
	}, nil
}

// AbortMultipartUpload cancels an in-progress native S3 multipart upload.
func (b *S3Backend) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	s3key := b.key(key)

	_, err := b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(s3key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return apierror.S3Error(err.Error())
	}
	return nil
}

// DeleteObject removes an object. Idempotent: S3 does not error on missing keys.
func (b *S3Backend) DeleteObject(ctx context.Context, key string) error {
	s3key := b.key(key)

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(s3key),
	})
	if err != nil {
		return apierror.S3Error(err.Error())
	}
	return nil
}

// CopyObject performs a server-side copy within this backend's bucket.
// sourceIdentifier is a repository-relative key, rewritten the same way
// destinationKey is; cross-backend copies are not supported.
func (b *S3Backend) CopyObject(ctx context.Context, sourceIdentifier, destinationKey string, byteRange string) (*ObjectMetadata, error) {
	dstKey := b.key(destinationKey)
	copySource := b.bucket + "/" + url.QueryEscape(b.key(sourceIdentifier))

	resp, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource),
	})
	if err != nil {
		return nil, mapS3Error(err, destinationKey)
	}

	meta := &ObjectMetadata{}
	if resp.CopyObjectResult != nil {
		meta.ETag = strings.Trim(aws.ToString(resp.CopyObjectResult.ETag), `"`)
		if resp.CopyObjectResult.LastModified != nil {
			meta.LastModified = *resp.CopyObjectResult.LastModified
		}
	}
	return meta, nil
}

// ListObjectsV2 lists objects under a prefix, rewriting the listing's keys
// and common prefixes back to repository-relative form via the caller
// (UnrewriteKey is applied by the gateway handler, which knows repositoryID;
// this driver returns backend-relative keys unchanged).
func (b *S3Backend) ListObjectsV2(ctx context.Context, in ListObjectsV2Input) (*ListObjectsV2Output, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(b.key(in.Prefix)),
		MaxKeys: aws.Int32(int32(in.MaxKeys)),
	}
	if in.Delimiter != "" {
		input.Delimiter = aws.String(in.Delimiter)
	}
	if in.ContinuationToken != "" {
		input.ContinuationToken = aws.String(in.ContinuationToken)
	}

	resp, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		if isS3NoSuchBucket(err) {
			return nil, apierror.RepositoryNotFound("", "")
		}
		return nil, apierror.S3Error(err.Error())
	}

	out := &ListObjectsV2Output{
		IsTruncated:           aws.ToBool(resp.IsTruncated),
		NextContinuationToken: aws.ToString(resp.NextContinuationToken),
	}
	for _, obj := range resp.Contents {
		o := Object{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
			StorageClass: string(obj.StorageClass),
		}
		if obj.LastModified != nil {
			o.LastModified = *obj.LastModified
		}
		out.Contents = append(out.Contents, o)
	}
	for _, cp := range resp.CommonPrefixes {
		out.CommonPrefixes = append(out.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	return out, nil
}

// mapS3Error implements the error-mapping table from spec.md §4.C: NoSuchKey
// (or any other not-found/404 response) becomes ObjectNotFound, anything
// else an S3Error.
func mapS3Error(err error, key string) error {
	if isS3NotFound(err) {
		return apierror.ObjectNotFound("", "", key)
	}
	return apierror.S3Error(err.Error())
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}

func isS3NoSuchBucket(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NoSuchBucket"
	}
	return false
}

// Ensure S3Backend implements Backend at compile time.
var _ Backend = (*S3Backend)(nil)
