// Package reqcontext resolves the three things every object-route handler
// needs before it can do any work: which (account, repository, key) the
// request names, who is making it, and which backend.Backend serves that
// repository. It is Component F of spec.md §2: body buffering, SigV4
// verification, path parsing, and backend resolution happen exactly once,
// at the edge. Downstream handlers still call the control plane for
// authorization and account listing, and read the restored request body.
package reqcontext

import (
	"context"
	"strings"

	"github.com/sourcegw/gateway/internal/controlplane"
)

// virtualObjectPrefix marks keys the gateway treats as internal bookkeeping
// rather than user data (spec.md §3). The flag is carried through; nothing
// in this package special-cases it beyond setting it.
const virtualObjectPrefix = ".source/"

// Context is the resolved state of one request, attached to its
// context.Context by Middleware and read back by gateway handlers.
type Context struct {
	AccountID    string
	RepositoryID string
	Key          string

	// IsListRoute is true for GET /{account}[?prefix=...] requests: the URL
	// path itself named only an account, with no repository segment. A
	// prefix= query parameter may still populate RepositoryID/Key for the
	// repository-listing branch (spec.md §4.G), but that never turns the
	// request into an object route.
	IsListRoute bool

	// Body is the request body, buffered once so SigV4 verification and
	// the eventual handler can both read it.
	Body []byte

	// Identity is the resolved API key, the zero value when the request
	// is anonymous or its signature did not verify.
	Identity controlplane.APIKey

	// Backend is non-nil whenever RepositoryID is non-empty: every
	// object and repository-listing route resolves one.
	Backend *controlplane.BackendHandle

	// IsVirtualObject is true when Key starts with ".source/".
	IsVirtualObject bool
}

type contextKey struct{}

var requestContextKey = contextKey{}

// From retrieves the Context attached by Middleware. Callers in gateway
// handlers may assume ok is always true: Middleware runs on every route
// that reaches them.
func From(ctx context.Context) (*Context, bool) {
	rc, ok := ctx.Value(requestContextKey).(*Context)
	return rc, ok
}

func withContext(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// parsePath splits a request path into (account_id, repository_id, key) on
// "/", per spec.md §4.F. Any of the three may come back empty depending on
// how many segments the path carries.
func parsePath(path string) (accountID, repositoryID, key string) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "", "", ""
	}
	segments := strings.SplitN(path, "/", 3)
	accountID = segments[0]
	if len(segments) > 1 {
		repositoryID = segments[1]
	}
	if len(segments) > 2 {
		key = segments[2]
	}
	return accountID, repositoryID, key
}

// splitPrefix splits a LIST request's prefix= query value into
// (repository_id, key) at the first "/", per spec.md §4.G: a repository
// with no sub-prefix (a bare repository ID, no trailing slash) lists the
// whole repository with an empty key.
func splitPrefix(prefix string) (repositoryID, key string) {
	idx := strings.IndexByte(prefix, '/')
	if idx < 0 {
		return prefix, ""
	}
	return prefix[:idx], prefix[idx+1:]
}
