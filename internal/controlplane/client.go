package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sourcegw/gateway/internal/apierror"
	"github.com/sourcegw/gateway/internal/backend"
)

// userAgent is the fixed User-Agent every control-plane request carries.
const userAgent = "source-proxy/1.0"

// Config carries the parameters needed to construct a Client, sourced from
// internal/config's environment-variable carrier.
type Config struct {
	// BaseURL is the control plane's base URL (SOURCE_API_URL).
	BaseURL string
	// ServiceKey authenticates credential/permission lookups (SOURCE_KEY).
	ServiceKey string
	// ProxyURL optionally routes outbound requests through an HTTP proxy
	// (SOURCE_API_PROXY_URL).
	ProxyURL string
}

// Client is the gateway's control-plane API client: Component D. Every
// read-side method is fronted by a 60s TTL cache.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client

	repoCache   *ttlCache[*Repository]
	connCache   *ttlCache[*DataConnection]
	apiKeyCache *ttlCache[APIKey]
	permCache   *ttlCache[PermissionSet]
}

// New builds a Client. Built on net/http directly: the teacher's dependency
// graph has no REST client library for talking to an external JSON API, and
// its own internal/storage/azure.go streams blob bodies via direct net/http
// GETs against Azure's REST endpoint, the precedent this client follows.
func New(cfg Config) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing SOURCE_API_PROXY_URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		serviceKey:  cfg.ServiceKey,
		httpClient:  &http.Client{Transport: transport},
		repoCache:   newTTLCache[*Repository](ttlCacheTTL),
		connCache:   newTTLCache[*DataConnection](ttlCacheTTL),
		apiKeyCache: newTTLCache[APIKey](ttlCacheTTL),
		permCache:   newTTLCache[PermissionSet](ttlCacheTTL),
	}, nil
}

// GetRepository fetches (and caches) a repository record.
func (c *Client) GetRepository(ctx context.Context, accountID, repositoryID string) (*Repository, error) {
	cacheKey := accountID + "/" + repositoryID
	if v, ok := c.repoCache.get(cacheKey); ok {
		return v, nil
	}

	reqURL := fmt.Sprintf("%s/api/v1/products/%s/%s", c.baseURL, accountID, repositoryID)
	var repo Repository
	if err := c.getJSON(ctx, reqURL, false, &repo); err != nil {
		if _, ok := err.(*notFoundMarker); ok {
			return nil, apierror.RepositoryNotFound(accountID, repositoryID)
		}
		return nil, err
	}

	c.repoCache.set(cacheKey, &repo)
	return &repo, nil
}

// GetDataConnection fetches (and caches) a data connection record. This is a
// credential-fetching call, so it carries the service key.
func (c *Client) GetDataConnection(ctx context.Context, connectionID string) (*DataConnection, error) {
	if v, ok := c.connCache.get(connectionID); ok {
		return v, nil
	}

	reqURL := fmt.Sprintf("%s/api/v1/data-connections/%s", c.baseURL, connectionID)
	var conn DataConnection
	if err := c.getJSON(ctx, reqURL, true, &conn); err != nil {
		if _, ok := err.(*notFoundMarker); ok {
			return nil, apierror.DataConnectionNotFound(connectionID)
		}
		return nil, err
	}

	c.connCache.set(connectionID, &conn)
	return &conn, nil
}

// GetAPIKey fetches (and caches) the secret for an access key ID. The
// empty-string access key ID, and any access key ID the control plane does
// not know (a 404), resolve to the sentinel anonymous key, which is cached
// to suppress repeated control-plane probes for it.
func (c *Client) GetAPIKey(ctx context.Context, accessKeyID string) (APIKey, error) {
	if v, ok := c.apiKeyCache.get(accessKeyID); ok {
		return v, nil
	}

	if accessKeyID == "" {
		key := APIKey{}
		c.apiKeyCache.set(accessKeyID, key)
		return key, nil
	}

	reqURL := fmt.Sprintf("%s/api/v1/api-keys/%s/auth", c.baseURL, accessKeyID)
	var key APIKey
	if err := c.getJSON(ctx, reqURL, true, &key); err != nil {
		if _, ok := err.(*notFoundMarker); ok {
			c.apiKeyCache.set(accessKeyID, APIKey{})
			return APIKey{}, nil
		}
		return APIKey{}, err
	}

	c.apiKeyCache.set(accessKeyID, key)
	return key, nil
}

// GetPermissions fetches (and caches) the permission set for an identity on
// a repository. Anonymous identities are cached under "{account}/{repo}";
// authenticated identities under "{account}/{repo}/{access_key_id}".
func (c *Client) GetPermissions(ctx context.Context, identity APIKey, accountID, repositoryID string) (PermissionSet, error) {
	cacheKey := accountID + "/" + repositoryID
	if !identity.IsAnonymous() {
		cacheKey += "/" + identity.AccessKeyID
	}
	if v, ok := c.permCache.get(cacheKey); ok {
		return v, nil
	}

	reqURL := fmt.Sprintf("%s/api/v1/products/%s/%s/permissions", c.baseURL, accountID, repositoryID)
	var perms []string
	if err := c.getJSON(ctx, reqURL, true, &perms); err != nil {
		if _, ok := err.(*notFoundMarker); ok {
			return nil, apierror.RepositoryPermissionsNotFound(accountID, repositoryID)
		}
		return nil, err
	}

	set := NewPermissionSet(perms)
	c.permCache.set(cacheKey, set)
	return set, nil
}

// GetAccount lists the repository IDs visible to an identity under an
// account. Not TTL-cached: spec.md §4.E names only repository, data
// connection, access key, and permissions as cached; account listing is
// read fresh each call, consistent with LIST being a live-view operation.
func (c *Client) GetAccount(ctx context.Context, accountID string, identity APIKey) (*Account, error) {
	reqURL := fmt.Sprintf("%s/api/v1/products/%s", c.baseURL, accountID)
	var acct Account
	if err := c.getJSON(ctx, reqURL, !identity.IsAnonymous(), &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// BackendHandle pairs a resolved backend.Backend with the repository-
// relative bookkeeping the gateway needs to rewrite keys back to S3-visible
// form.
type BackendHandle struct {
	Backend      backend.Backend
	AccountID    string
	RepositoryID string
	BasePrefix   string
}

// BuildBackend resolves repository -> primary mirror -> data connection and
// constructs either an S3 or Azure driver instance parameterized by the
// connection, per spec.md §4.E.
func (c *Client) BuildBackend(ctx context.Context, accountID, repositoryID string) (*BackendHandle, error) {
	repo, err := c.GetRepository(ctx, accountID, repositoryID)
	if err != nil {
		return nil, err
	}

	mirror, ok := repo.PrimaryMirror()
	if !ok {
		return nil, apierror.SourceRepositoryMissingPrimaryMirror(accountID, repositoryID)
	}

	conn, err := c.GetDataConnection(ctx, mirror.ConnectionID)
	if err != nil {
		return nil, err
	}

	basePrefix := backend.BasePrefix(conn.BasePrefix, mirror.Prefix)

	var drv backend.Backend
	switch conn.ProviderTag {
	case ProviderS3:
		drv, err = backend.NewS3Backend(ctx, backend.S3Config{
			AuthTag:         conn.Auth.Tag,
			Bucket:          conn.Bucket,
			Region:          conn.Region,
			AccessKeyID:     conn.Auth.AccessKeyID,
			SecretAccessKey: conn.Auth.SecretAccessKey,
			BasePrefix:      basePrefix,
		})
	case ProviderAzure:
		drv, err = backend.NewAzureBackend(backend.AzureConfig{
			AccountName: conn.AccountName,
			Container:   conn.Container,
			BasePrefix:  basePrefix,
		})
	default:
		return nil, apierror.UnexpectedDataConnectionProvider(conn.ProviderTag)
	}
	if err != nil {
		return nil, err
	}

	return &BackendHandle{
		Backend:      drv,
		AccountID:    accountID,
		RepositoryID: repositoryID,
		BasePrefix:   basePrefix,
	}, nil
}

// IsAuthorized reports whether identity holds permission on the repository.
func (c *Client) IsAuthorized(ctx context.Context, identity APIKey, accountID, repositoryID string, permission Permission) (bool, error) {
	perms, err := c.GetPermissions(ctx, identity, accountID, repositoryID)
	if err != nil {
		return false, err
	}
	return perms.Has(permission), nil
}

// AssertAuthorized returns apierror.Unauthorized if identity lacks permission.
func (c *Client) AssertAuthorized(ctx context.Context, identity APIKey, accountID, repositoryID string, permission Permission) error {
	ok, err := c.IsAuthorized(ctx, identity, accountID, repositoryID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return apierror.Unauthorized(fmt.Sprintf("missing %s permission on %s/%s", permission, accountID, repositoryID))
	}
	return nil
}

// notFoundMarker signals a 404 response to getJSON's callers, who translate
// it into their own typed not-found error.
type notFoundMarker struct{}

func (*notFoundMarker) Error() string { return "not found" }

// getJSON performs a GET against url, decoding a 200 JSON body into out.
// withAuth adds the service-key Authorization header, used for mutating or
// credential-fetching calls per spec.md §4.E.
func (c *Client) getJSON(ctx context.Context, reqURL string, withAuth bool, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("building control-plane request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if withAuth {
		req.Header.Set("Authorization", c.serviceKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierror.TransportError(reqURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierror.TransportError(reqURL, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &notFoundMarker{}
	case resp.StatusCode >= 500:
		return apierror.ApiServerError(reqURL, resp.StatusCode, string(body))
	case resp.StatusCode >= 400:
		return apierror.ApiClientError(reqURL, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apierror.JsonParseError(reqURL)
	}
	return nil
}
