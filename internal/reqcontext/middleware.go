package reqcontext

import (
	"net/http"
	"strings"

	"github.com/sourcegw/gateway/internal/apierror"
	"github.com/sourcegw/gateway/internal/controlplane"
	"github.com/sourcegw/gateway/internal/sigv4"
	"github.com/sourcegw/gateway/internal/xmlutil"
)

// Middleware buffers the request body, verifies any SigV4 signature,
// parses the path (and prefix= override) into (account_id, repository_id,
// key), and resolves a backend.Backend when a repository is named. Grounded
// on the teacher's internal/auth/middleware.go buffer-then-verify shape,
// generalized from a single bucket/key split to the three-segment
// account/repository/key model.
func Middleware(cp *controlplane.Client, verifier *sigv4.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := sigv4.ReadAndRestore(r)
			if err != nil {
				xmlutil.WriteErrorResponse(w, r, apierror.InvalidRequest("could not read request body"))
				return
			}

			identity, err := verifier.Verify(r, body)
			if err != nil {
				xmlutil.WriteErrorResponse(w, r, toAPIError(err))
				return
			}

			accountID, repositoryID, key := parsePath(r.URL.Path)
			isListRoute := repositoryID == ""
			if prefix := r.URL.Query().Get("prefix"); isListRoute && prefix != "" {
				repositoryID, key = splitPrefix(prefix)
			}

			rc := &Context{
				AccountID:       accountID,
				RepositoryID:    repositoryID,
				Key:             key,
				IsListRoute:     isListRoute,
				Body:            body,
				Identity:        identity,
				IsVirtualObject: strings.HasPrefix(key, virtualObjectPrefix),
			}

			if repositoryID != "" {
				handle, err := cp.BuildBackend(r.Context(), accountID, repositoryID)
				if err != nil {
					xmlutil.WriteErrorResponse(w, r, toAPIError(err))
					return
				}
				rc.Backend = handle
			}

			next.ServeHTTP(w, r.WithContext(withContext(r.Context(), rc)))
		})
	}
}

// toAPIError unwraps an apierror.Error, falling back to UnexpectedApiError
// for anything that did not originate from controlplane or backend (this
// should not happen in practice; every error path in those packages already
// returns *apierror.Error).
func toAPIError(err error) *apierror.Error {
	if apiErr, ok := err.(*apierror.Error); ok {
		return apiErr
	}
	return apierror.UnexpectedApiError(err.Error())
}
