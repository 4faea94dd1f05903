// Package backend defines the object-store capability contract shared by the
// S3 and Azure drivers, and the key-rewriting rules that let either driver
// sit behind a single S3-compatible gateway surface.
package backend

import (
	"context"
	"io"
	"strings"
	"time"
)

// ObjectMetadata describes an object without its body.
type ObjectMetadata struct {
	ContentLength int64
	ContentType   string
	ETag          string
	LastModified  time.Time
	UserMetadata  map[string]string
}

// GetObjectOutput is the result of a GetObject call: metadata plus a lazy
// body the caller must close.
type GetObjectOutput struct {
	ObjectMetadata
	Body io.ReadCloser
}

// CreateMultipartUploadOutput reports the key and upload ID of a newly
// initiated multipart upload. The drivers leave Bucket empty; the gateway
// handler reports the account_id as the bucket, for client opacity.
type CreateMultipartUploadOutput struct {
	Bucket   string
	Key      string
	UploadID string
}

// UploadPartOutput reports the ETag assigned to a single uploaded part.
type UploadPartOutput struct {
	ETag string
}

// CompletedPart identifies one part of a multipart upload by its number and
// the ETag returned when it was uploaded. Parts must be ordered by
// PartNumber before being passed to CompleteMultipartUpload.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// CompleteMultipartUploadOutput is the result of assembling a multipart
// upload into a single object.
type CompleteMultipartUploadOutput struct {
	Location string
	Bucket   string
	Key      string
	ETag     string
}

// Object is a single entry in a ListObjectsV2 result.
type Object struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	StorageClass string
}

// ListObjectsV2Input parameters mirror the S3 ListObjectsV2 call.
type ListObjectsV2Input struct {
	Prefix            string
	Delimiter         string
	ContinuationToken string
	MaxKeys           int
}

// ListObjectsV2Output is the result of a LIST call. Keys and common prefixes
// are the backend's own, still carrying base_prefix; the caller substitutes
// the repository_id for it with UnrewriteKey.
type ListObjectsV2Output struct {
	Contents              []Object
	CommonPrefixes        []string
	IsTruncated           bool
	NextContinuationToken string
}

// Backend is the uniform object-store capability every driver (S3, Azure)
// implements. Keys passed in are repository-relative; each driver prefixes
// them with its base_prefix (RewriteKey below). Keys returned by
// ListObjectsV2 still carry base_prefix; callers undo it with UnrewriteKey.
type Backend interface {
	GetObject(ctx context.Context, key string, byteRange string) (*GetObjectOutput, error)
	HeadObject(ctx context.Context, key string) (*ObjectMetadata, error)
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string, userMetadata map[string]string) (*ObjectMetadata, error)
	CreateMultipartUpload(ctx context.Context, key, contentType string) (*CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, key, uploadID string, partNumber int, body io.Reader, size int64) (*UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) (*CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	DeleteObject(ctx context.Context, key string) error
	ListObjectsV2(ctx context.Context, in ListObjectsV2Input) (*ListObjectsV2Output, error)
	// CopyObject performs a server-side copy within this backend. Both
	// sourceIdentifier and destinationKey are repository-relative keys,
	// rewritten with the same base_prefix; cross-backend copies are not
	// supported (spec.md §9's copy_object open question).
	CopyObject(ctx context.Context, sourceIdentifier, destinationKey string, byteRange string) (*ObjectMetadata, error)
}

// BasePrefix joins a data connection's base_prefix and a mirror's prefix,
// trimming any trailing slash, per spec.md §4.B's key-rewriting invariant.
func BasePrefix(connectionBasePrefix, mirrorPrefix string) string {
	joined := strings.TrimSuffix(connectionBasePrefix, "/") + "/" + strings.TrimPrefix(mirrorPrefix, "/")
	return strings.TrimSuffix(joined, "/")
}

// RewriteKey composes the backend-local key for an object key relative to a
// repository, as base_prefix + "/" + key.
func RewriteKey(basePrefix, key string) string {
	if basePrefix == "" {
		return key
	}
	return basePrefix + "/" + key
}

// UnrewriteKey substitutes repositoryID for a leading basePrefix occurrence
// in a backend-reported key or common prefix, so S3 clients see a virtual
// hierarchy rooted at account/repository/ instead of the backend's own
// storage layout.
func UnrewriteKey(basePrefix, repositoryID, backendKey string) string {
	if basePrefix == "" {
		return backendKey
	}
	prefix := basePrefix + "/"
	if strings.HasPrefix(backendKey, prefix) {
		return repositoryID + "/" + strings.TrimPrefix(backendKey, prefix)
	}
	return backendKey
}
