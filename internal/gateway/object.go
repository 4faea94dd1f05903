package gateway

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sourcegw/gateway/internal/apierror"
	"github.com/sourcegw/gateway/internal/backend"
	"github.com/sourcegw/gateway/internal/controlplane"
	"github.com/sourcegw/gateway/internal/reqcontext"
	"github.com/sourcegw/gateway/internal/xmlutil"
)

// quoteETag wraps an ETag in double quotes if it is not already, matching
// how S3 always renders the header.
func quoteETag(etag string) string {
	if etag == "" {
		return etag
	}
	if strings.HasPrefix(etag, `"`) {
		return etag
	}
	return `"` + etag + `"`
}

func setObjectResponseHeaders(w http.ResponseWriter, meta *backend.ObjectMetadata) {
	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	w.Header().Set("ETag", quoteETag(meta.ETag))
	w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(meta.LastModified))
	w.Header().Set("Accept-Ranges", "bytes")
	for k, v := range meta.UserMetadata {
		w.Header().Set("x-amz-meta-"+k, v)
	}
}

// GetObject serves GET /{account}/{repo}/{key...}, per spec.md §4.G.
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context) {
	ctx := r.Context()
	if err := h.cp.AssertAuthorized(ctx, rc.Identity, rc.AccountID, rc.RepositoryID, controlplane.PermissionRead); err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	meta, err := rc.Backend.Backend.HeadObject(ctx, rc.Key)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	if status, skip := checkConditionalHeaders(r, meta.ETag, meta.LastModified); skip {
		w.Header().Set("ETag", quoteETag(meta.ETag))
		w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(meta.LastModified))
		w.WriteHeader(status)
		return
	}

	byteRange := ""
	start, end := int64(0), meta.ContentLength-1
	partial := false
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		s, e, rangeErr := parseRange(rangeHeader, meta.ContentLength)
		if rangeErr != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", meta.ContentLength))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		start, end = s, e
		byteRange = fmt.Sprintf("bytes=%d-%d", start, end)
		partial = true
	}

	out, err := rc.Backend.Backend.GetObject(ctx, rc.Key, byteRange)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}
	defer out.Body.Close()

	setObjectResponseHeaders(w, &out.ObjectMetadata)
	if partial {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, meta.ContentLength))
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.ContentLength, 10))
		w.WriteHeader(http.StatusOK)
	}
	io.Copy(w, out.Body)
}

// HeadObject serves HEAD /{account}/{repo}/{key...}: the response headers
// with a zero-body sentinel whose declared Content-Length equals the real
// object size, per spec.md §4.G.
func (h *Handler) HeadObject(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context) {
	ctx := r.Context()
	if err := h.cp.AssertAuthorized(ctx, rc.Identity, rc.AccountID, rc.RepositoryID, controlplane.PermissionRead); err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	meta, err := rc.Backend.Backend.HeadObject(ctx, rc.Key)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	if status, skip := checkConditionalHeaders(r, meta.ETag, meta.LastModified); skip {
		w.Header().Set("ETag", quoteETag(meta.ETag))
		w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(meta.LastModified))
		w.WriteHeader(status)
		return
	}

	setObjectResponseHeaders(w, meta)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.ContentLength, 10))
	w.WriteHeader(http.StatusOK)
}

// PutObject serves whole-object PUT, dispatched by dispatchPut per spec.md
// §4.G; upload-part and server-side-copy PUTs go to UploadPart and
// CopyObject instead.
func (h *Handler) PutObject(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context) {
	ctx := r.Context()
	if err := h.cp.AssertAuthorized(ctx, rc.Identity, rc.AccountID, rc.RepositoryID, controlplane.PermissionWrite); err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	if r.ContentLength > h.maxRequestBytes {
		xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest(fmt.Sprintf("request body of %d bytes exceeds the %d byte limit", r.ContentLength, h.maxRequestBytes)))
		return
	}

	contentType := r.Header.Get("Content-Type")
	userMetadata := extractUserMetadata(r)

	meta, err := rc.Backend.Backend.PutObject(ctx, rc.Key, r.Body, r.ContentLength, contentType, userMetadata)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	w.Header().Set("ETag", quoteETag(meta.ETag))
	w.WriteHeader(http.StatusOK)
}

// DeleteObject serves DELETE /{account}/{repo}/{key...} without uploadId,
// per spec.md §4.G.
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context) {
	ctx := r.Context()
	if err := h.cp.AssertAuthorized(ctx, rc.Identity, rc.AccountID, rc.RepositoryID, controlplane.PermissionWrite); err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	if err := rc.Backend.Backend.DeleteObject(ctx, rc.Key); err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CopyObject serves PUT with an X-Amz-Copy-Source header: a server-side
// copy within the destination repository's backend.
func (h *Handler) CopyObject(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context, copySourceHeader string) {
	ctx := r.Context()
	if err := h.cp.AssertAuthorized(ctx, rc.Identity, rc.AccountID, rc.RepositoryID, controlplane.PermissionWrite); err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	sourceRepositoryID, sourceKey, ok := parseCopySource(copySourceHeader)
	if !ok {
		xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest("malformed x-amz-copy-source header"))
		return
	}
	if sourceRepositoryID != rc.RepositoryID {
		xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest("copy source must be in the same repository as the destination"))
		return
	}

	srcMeta, err := rc.Backend.Backend.HeadObject(ctx, sourceKey)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}
	if !checkCopySourceConditionals(r, srcMeta.ETag, srcMeta.LastModified) {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	meta, err := rc.Backend.Backend.CopyObject(ctx, sourceKey, rc.Key, "")
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	xmlutil.RenderCopyObject(w, &xmlutil.CopyObjectResult{
		LastModified: xmlutil.FormatTimeS3(meta.LastModified),
		ETag:         quoteETag(meta.ETag),
	})
}

// toAPIError unwraps an apierror.Error, falling back to UnexpectedApiError.
func toAPIError(err error) *apierror.Error {
	if apiErr, ok := err.(*apierror.Error); ok {
		return apiErr
	}
	return apierror.UnexpectedApiError(err.Error())
}
