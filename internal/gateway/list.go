package gateway

import (
	"net/http"
	"strconv"

	"github.com/sourcegw/gateway/internal/apierror"
	"github.com/sourcegw/gateway/internal/backend"
	"github.com/sourcegw/gateway/internal/controlplane"
	"github.com/sourcegw/gateway/internal/reqcontext"
	"github.com/sourcegw/gateway/internal/xmlutil"
)

// defaultMaxKeys is the default page size for LIST requests, per spec.md §4.G.
const defaultMaxKeys = 1000

// ListAccount serves GET /{account}[?prefix=...], per spec.md §4.G: an
// empty prefix lists the account's repositories, a non-empty one (already
// split by reqcontext.Middleware into RepositoryID/Key) lists objects
// within one repository.
func (h *Handler) ListAccount(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context) {
	if r.Method != http.MethodGet {
		xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest("method not allowed on /{account}"))
		return
	}

	if rc.RepositoryID == "" {
		h.listRepositories(w, r, rc)
		return
	}
	h.listObjects(w, r, rc)
}

// listRepositories implements the account-listing branch: the repository
// IDs visible to the identity, reported as CommonPrefixes, per Testable
// Property S4.
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context) {
	acct, err := h.cp.GetAccount(r.Context(), rc.AccountID, rc.Identity)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	prefixes := make([]xmlutil.CommonPrefix, 0, len(acct.RepositoryIDs))
	for _, repoID := range acct.RepositoryIDs {
		prefixes = append(prefixes, xmlutil.CommonPrefix{Prefix: repoID + "/"})
	}

	xmlutil.RenderListObjects(w, &xmlutil.ListBucketResult{
		Name:           rc.AccountID,
		MaxKeys:        defaultMaxKeys,
		IsTruncated:    acct.Next != "",
		NextMarker:     acct.Next,
		CommonPrefixes: prefixes,
	})
}

// listObjects implements the repository-listing branch: authorize Read,
// then call the resolved backend's ListObjectsV2 and reverse-substitute
// base_prefix back to repository_id in every returned key and common
// prefix, per spec.md §4.B's key-rewriting invariant and Testable
// Property #4.
func (h *Handler) listObjects(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context) {
	ctx := r.Context()
	if err := h.cp.AssertAuthorized(ctx, rc.Identity, rc.AccountID, rc.RepositoryID, controlplane.PermissionRead); err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	q := r.URL.Query()
	maxKeys := defaultMaxKeys
	if v := q.Get("max-keys"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxKeys = n
		}
	}

	in := backend.ListObjectsV2Input{
		Prefix:            rc.Key,
		Delimiter:         q.Get("delimiter"),
		ContinuationToken: q.Get("continuation-token"),
		MaxKeys:           maxKeys,
	}

	out, err := rc.Backend.Backend.ListObjectsV2(ctx, in)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, toAPIError(err))
		return
	}

	basePrefix := rc.Backend.BasePrefix
	repositoryID := rc.Backend.RepositoryID

	contents := make([]xmlutil.Object, 0, len(out.Contents))
	for _, obj := range out.Contents {
		contents = append(contents, xmlutil.Object{
			Key:          backend.UnrewriteKey(basePrefix, repositoryID, obj.Key),
			LastModified: xmlutil.FormatTimeS3(obj.LastModified),
			ETag:         quoteETag(obj.ETag),
			Size:         obj.Size,
			StorageClass: obj.StorageClass,
		})
	}

	commonPrefixes := make([]xmlutil.CommonPrefix, 0, len(out.CommonPrefixes))
	for _, p := range out.CommonPrefixes {
		commonPrefixes = append(commonPrefixes, xmlutil.CommonPrefix{
			Prefix: backend.UnrewriteKey(basePrefix, repositoryID, p),
		})
	}

	xmlutil.RenderListObjectsV2(w, &xmlutil.ListBucketV2Result{
		Name:                  rc.AccountID,
		Prefix:                q.Get("prefix"),
		ContinuationToken:     q.Get("continuation-token"),
		NextContinuationToken: out.NextContinuationToken,
		KeyCount:              len(contents),
		MaxKeys:               maxKeys,
		Delimiter:             q.Get("delimiter"),
		IsTruncated:           out.IsTruncated,
		Contents:              contents,
		CommonPrefixes:        commonPrefixes,
	})
}
