package gateway

import (
	"fmt"
	"net/http"

	"github.com/sourcegw/gateway/internal/apierror"
	"github.com/sourcegw/gateway/internal/backend"
	"github.com/sourcegw/gateway/internal/controlplane"
	"github.com/sourcegw/gateway/internal/reqcontext"
	"github.com/sourcegw/gateway/internal/xmlutil"
)

// CreateMultipartUpload serves POST ...?uploads, per spec.md §4.G.
func (h *Handler) CreateMultipartUpload(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context) {
	ctx := r.Context()
	if err := h.cp.AssertAuthorized(ctx, rc.Identity, rc.AccountID, rc.RepositoryID, controlplane.PermissionWrite); err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	out, err := rc.Backend.Backend.CreateMultipartUpload(ctx, rc.Key, r.Header.Get("Content-Type"))
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	xmlutil.RenderInitiateMultipartUpload(w, &xmlutil.InitiateMultipartUploadResult{
		Bucket:   rc.AccountID,
		Key:      out.Key,
		UploadID: out.UploadID,
	})
}

// UploadPart serves PUT ...?partNumber=&uploadId=, per spec.md §4.G.
func (h *Handler) UploadPart(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context, partNumber int, uploadID string) {
	ctx := r.Context()
	if err := h.cp.AssertAuthorized(ctx, rc.Identity, rc.AccountID, rc.RepositoryID, controlplane.PermissionWrite); err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	if r.ContentLength > h.maxRequestBytes {
		xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest(fmt.Sprintf("part of %d bytes exceeds the %d byte limit", r.ContentLength, h.maxRequestBytes)))
		return
	}

	out, err := rc.Backend.Backend.UploadPart(ctx, rc.Key, uploadID, partNumber, r.Body, r.ContentLength)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	w.Header().Set("ETag", quoteETag(out.ETag))
	w.WriteHeader(http.StatusOK)
}

// CompleteMultipartUpload serves POST ...?uploadId=, per spec.md §4.G. Part
// ordering is validated here; the backend's own native multipart completion
// enforces the invariants this gateway has no local state to check (part
// existence, part sizes, the 5 MiB minimum-part-size rule).
func (h *Handler) CompleteMultipartUpload(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context, uploadID string) {
	ctx := r.Context()
	if err := h.cp.AssertAuthorized(ctx, rc.Identity, rc.AccountID, rc.RepositoryID, controlplane.PermissionWrite); err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	clientParts, err := parseCompleteMultipartXML(r.Body)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest(err.Error()))
		return
	}
	if len(clientParts) == 0 {
		xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest("CompleteMultipartUpload requires at least one part"))
		return
	}
	for i := 1; i < len(clientParts); i++ {
		if clientParts[i].PartNumber <= clientParts[i-1].PartNumber {
			xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest("parts must be listed in strictly ascending PartNumber order"))
			return
		}
	}

	parts := make([]backend.CompletedPart, len(clientParts))
	for i, p := range clientParts {
		parts[i] = backend.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	out, err := rc.Backend.Backend.CompleteMultipartUpload(ctx, rc.Key, uploadID, parts)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	xmlutil.RenderCompleteMultipartUpload(w, &xmlutil.CompleteMultipartUploadResult{
		Location: out.Location,
		Bucket:   rc.AccountID,
		Key:      out.Key,
		ETag:     quoteETag(out.ETag),
	})
}

// AbortMultipartUpload serves DELETE ...?uploadId=, per spec.md §4.G.
func (h *Handler) AbortMultipartUpload(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context, uploadID string) {
	ctx := r.Context()
	if err := h.cp.AssertAuthorized(ctx, rc.Identity, rc.AccountID, rc.RepositoryID, controlplane.PermissionWrite); err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	if err := rc.Backend.Backend.AbortMultipartUpload(ctx, rc.Key, uploadID); err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
