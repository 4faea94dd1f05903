package gateway

import (
	"net/http"
	"strconv"

	"github.com/sourcegw/gateway/internal/apierror"
	"github.com/sourcegw/gateway/internal/controlplane"
	"github.com/sourcegw/gateway/internal/reqcontext"
	"github.com/sourcegw/gateway/internal/xmlutil"
)

// version is reported on GET / and as the X-Version response header.
const version = "1.0.0"

// Handler implements the S3 protocol surface (Component G) as an
// http.Handler: it reads the reqcontext.Context attached by Component F's
// middleware and dispatches to the operation the method/query names, per
// spec.md §4.G's route table.
type Handler struct {
	cp              *controlplane.Client
	maxRequestBytes int64
}

// New builds a Handler. maxRequestBytes bounds any single PUT/UploadPart
// body, per spec.md §6.
func New(cp *controlplane.Client, maxRequestBytes int64) *Handler {
	return &Handler{cp: cp, maxRequestBytes: maxRequestBytes}
}

// ServeHTTP dispatches on the resolved reqcontext.Context's path shape and
// the request method, per spec.md §4.G's route table.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc, ok := reqcontext.From(r.Context())
	if !ok {
		xmlutil.WriteErrorResponse(w, r, apierror.UnexpectedApiError("request context missing"))
		return
	}

	w.Header().Set("X-Version", version)

	switch {
	case rc.AccountID == "":
		h.Version(w, r)
	case rc.IsListRoute:
		h.ListAccount(w, r, rc)
	default:
		h.dispatchObjectRoute(w, r, rc)
	}
}

// Version serves GET /, per spec.md §4.G.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest("method not allowed on /"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(version))
}

// dispatchObjectRoute implements the PUT/POST/DELETE operation
// disambiguation of spec.md §4.G for a request naming a repository and key.
func (h *Handler) dispatchObjectRoute(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context) {
	if rc.Key == "" {
		xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest("object key is required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.GetObject(w, r, rc)
	case http.MethodHead:
		h.HeadObject(w, r, rc)
	case http.MethodPut:
		h.dispatchPut(w, r, rc)
	case http.MethodPost:
		h.dispatchPost(w, r, rc)
	case http.MethodDelete:
		h.dispatchDelete(w, r, rc)
	default:
		xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest("method not allowed"))
	}
}

// dispatchPut implements spec.md §4.G's PUT disambiguation: copy source
// header takes priority, then partNumber+uploadId, else a whole-object PUT.
func (h *Handler) dispatchPut(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context) {
	if copySource := r.Header.Get("X-Amz-Copy-Source"); copySource != "" {
		h.CopyObject(w, r, rc, copySource)
		return
	}

	q := r.URL.Query()
	partNumberStr := q.Get("partNumber")
	uploadID := q.Get("uploadId")
	switch {
	case partNumberStr != "" && uploadID != "":
		partNumber, err := strconv.Atoi(partNumberStr)
		if err != nil || partNumber < 1 {
			xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest("invalid partNumber"))
			return
		}
		h.UploadPart(w, r, rc, partNumber, uploadID)
	case partNumberStr == "" && uploadID == "":
		h.PutObject(w, r, rc)
	default:
		xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest("partNumber and uploadId must both be present or both absent"))
	}
}

// dispatchPost implements spec.md §4.G's POST disambiguation: the uploads
// flag initiates a multipart upload, uploadId completes one.
func (h *Handler) dispatchPost(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context) {
	q := r.URL.Query()
	if _, ok := q["uploads"]; ok {
		h.CreateMultipartUpload(w, r, rc)
		return
	}
	if uploadID := q.Get("uploadId"); uploadID != "" {
		h.CompleteMultipartUpload(w, r, rc, uploadID)
		return
	}
	xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest("POST requires either uploads or uploadId"))
}

// dispatchDelete implements spec.md §4.G's DELETE disambiguation: uploadId
// aborts a multipart upload, its absence deletes the object.
func (h *Handler) dispatchDelete(w http.ResponseWriter, r *http.Request, rc *reqcontext.Context) {
	if uploadID := r.URL.Query().Get("uploadId"); uploadID != "" {
		h.AbortMultipartUpload(w, r, rc, uploadID)
		return
	}
	h.DeleteObject(w, r, rc)
}
