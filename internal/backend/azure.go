// Package backend: Azure driver.
//
// AzureBackend exposes the Backend capability against Azure Blob Storage with
// anonymous credentials only (current scope, per spec.md §4.D). Containers
// are read-only mirrors: every write operation returns UnsupportedOperation.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/sourcegw/gateway/internal/apierror"
)

// AzureBackend implements Backend against one anonymous Azure Blob
// container. GetObject's body comes from a direct HTTPS GET rather than the
// SDK, per spec.md §4.D.
type AzureBackend struct {
	accountURL string
	container  string
	basePrefix string
	client     *azblob.Client
	httpClient *http.Client
}

// AzureConfig carries the data-connection-derived parameters needed to build
// an AzureBackend.
type AzureConfig struct {
	AccountName string
	Container   string
	BasePrefix  string
}

// NewAzureBackend builds an AzureBackend using anonymous (no-credential)
// access, the only auth mode spec.md §4.D allows.
func NewAzureBackend(cfg AzureConfig) (*AzureBackend, error) {
	accountURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)

	client, err := azblob.NewClientWithNoCredential(accountURL, nil)
	if err != nil {
		return nil, fmt.Errorf("constructing anonymous Azure client: %w", err)
	}

	return &AzureBackend{
		accountURL: accountURL,
		container:  cfg.Container,
		basePrefix: cfg.BasePrefix,
		client:     client,
		httpClient: http.DefaultClient,
	}, nil
}

func (b *AzureBackend) blobName(key string) string {
	return RewriteKey(b.basePrefix, key)
}

func (b *AzureBackend) blobURL(blobName string) string {
	return fmt.Sprintf("%s/%s/%s", b.accountURL, b.container, blobName)
}

// HeadObject returns blob properties directly.
func (b *AzureBackend) HeadObject(ctx context.Context, key string) (*ObjectMetadata, error) {
	blobName := b.blobName(key)

	props, err := b.client.ServiceClient().NewContainerClient(b.container).NewBlobClient(blobName).GetProperties(ctx, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, apierror.ObjectNotFound("", "", key)
		}
		return nil, apierror.AzureError(err.Error())
	}

	meta := &ObjectMetadata{
		ContentType: strOrEmpty(props.ContentType),
		ETag:        strOrEmpty((*string)(props.ETag)),
	}
	if props.ContentLength != nil {
		meta.ContentLength = *props.ContentLength
	}
	if props.LastModified != nil {
		meta.LastModified = *props.LastModified
	}
	if len(props.Metadata) > 0 {
		meta.UserMetadata = make(map[string]string, len(props.Metadata))
		for k, v := range props.Metadata {
			meta.UserMetadata[strings.ToLower(k)] = strOrEmpty(v)
		}
	}
	return meta, nil
}

// GetObject first retrieves blob properties via the Azure SDK for metadata,
// then issues a direct HTTPS GET against the blob's public URL to obtain a
// streaming body, optionally Range-qualified, per spec.md §4.D.
func (b *AzureBackend) GetObject(ctx context.Context, key string, byteRange string) (*GetObjectOutput, error) {
	meta, err := b.HeadObject(ctx, key)
	if err != nil {
		return nil, err
	}

	blobName := b.blobName(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.blobURL(blobName), nil)
	if err != nil {
		return nil, fmt.Errorf("building blob GET request: %w", err)
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, apierror.AzureError(err.Error())
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, apierror.ObjectNotFound("", "", key)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, apierror.AzureError(fmt.Sprintf("blob GET returned %d", resp.StatusCode))
	}

	return &GetObjectOutput{ObjectMetadata: *meta, Body: resp.Body}, nil
}

// ListObjectsV2 lists blobs by hierarchy, taking exactly one page per call
// and translating between the S3 continuation-token convention and Azure's
// own marker convention.
func (b *AzureBackend) ListObjectsV2(ctx context.Context, in ListObjectsV2Input) (*ListObjectsV2Output, error) {
	delimiter := in.Delimiter
	opts := &container.ListBlobsHierarchyOptions{
		Prefix:     toPtr(b.key(in.Prefix)),
		MaxResults: toInt32Ptr(in.MaxKeys),
	}
	if in.ContinuationToken != "" {
		opts.Marker = toPtr(in.ContinuationToken)
	}

	pager := b.client.ServiceClient().NewContainerClient(b.container).NewListBlobsHierarchyPager(delimiter, opts)
	if !pager.More() {
		return &ListObjectsV2Output{}, nil
	}

	page, err := pager.NextPage(ctx)
	if err != nil {
		return nil, apierror.AzureError(err.Error())
	}

	out := &ListObjectsV2Output{}
	for _, item := range page.Segment.BlobItems {
		if item.Name == nil {
			continue
		}
		o := Object{Key: *item.Name}
		if item.Properties != nil {
			if item.Properties.ContentLength != nil {
				o.Size = *item.Properties.ContentLength
			}
			if item.Properties.ETag != nil {
				o.ETag = strings.Trim(string(*item.Properties.ETag), `"`)
			}
			if item.Properties.LastModified != nil {
				o.LastModified = *item.Properties.LastModified
			}
		}
		out.Contents = append(out.Contents, o)
	}
	for _, prefix := range page.Segment.BlobPrefixes {
		if prefix.Name != nil {
			out.CommonPrefixes = append(out.CommonPrefixes, *prefix.Name)
		}
	}
	if page.NextMarker != nil && *page.NextMarker != "" {
		out.IsTruncated = true
		out.NextContinuationToken = *page.NextMarker
	}
	return out, nil
}

// key applies the base_prefix rewrite for list operations.
func (b *AzureBackend) key(prefix string) string {
	return RewriteKey(b.basePrefix, prefix)
}

// PutObject is unsupported: Azure containers are read-only mirrors.
func (b *AzureBackend) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string, userMetadata map[string]string) (*ObjectMetadata, error) {
	return nil, apierror.UnsupportedOperation("PUT is not supported on the Azure driver: containers are read-only mirrors")
}

// CreateMultipartUpload is unsupported: Azure containers are read-only mirrors.
func (b *AzureBackend) CreateMultipartUpload(ctx context.Context, key, contentType string) (*CreateMultipartUploadOutput, error) {
	return nil, apierror.UnsupportedOperation("multipart upload is not supported on the Azure driver: containers are read-only mirrors")
}

// UploadPart is unsupported: Azure containers are read-only mirrors.
func (b *AzureBackend) UploadPart(ctx context.Context, key, uploadID string, partNumber int, body io.Reader, size int64) (*UploadPartOutput, error) {
	return nil, apierror.UnsupportedOperation("multipart upload is not supported on the Azure driver: containers are read-only mirrors")
}

// CompleteMultipartUpload is unsupported: Azure containers are read-only mirrors.
func (b *AzureBackend) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) (*CompleteMultipartUploadOutput, error) {
	return nil, apierror.UnsupportedOperation("multipart upload is not supported on the Azure driver: containers are read-only mirrors")
}

// AbortMultipartUpload is unsupported: Azure containers are read-only mirrors.
func (b *AzureBackend) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	return apierror.UnsupportedOperation("multipart upload is not supported on the Azure driver: containers are read-only mirrors")
}

// DeleteObject is unsupported: Azure containers are read-only mirrors.
func (b *AzureBackend) DeleteObject(ctx context.Context, key string) error {
	return apierror.UnsupportedOperation("DELETE is not supported on the Azure driver: containers are read-only mirrors")
}

// CopyObject is unsupported: Azure containers are read-only mirrors.
func (b *AzureBackend) CopyObject(ctx context.Context, sourceIdentifier, destinationKey string, byteRange string) (*ObjectMetadata, error) {
	return nil, apierror.UnsupportedOperation("copy is not supported on the Azure driver: containers are read-only mirrors")
}

func isAzureNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound)
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toInt32Ptr(n int) *int32 {
	if n <= 0 {
		return nil
	}
	v := int32(n)
	return &v
}

// Ensure AzureBackend implements Backend at compile time.
var _ Backend = (*AzureBackend)(nil)
