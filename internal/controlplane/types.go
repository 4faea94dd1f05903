// Package controlplane implements the gateway's client for the external
// control-plane HTTP API: the source of truth for repositories, data
// connections, API keys, and permissions (spec.md §4.E).
package controlplane

// Mirror is a physical replica of a repository on one backend.
type Mirror struct {
	StorageKind  string `json:"storage_kind"`
	ConnectionID string `json:"connection_id"`
	Prefix       string `json:"prefix"`
}

// Repository (Product in the control plane's own vocabulary) is the
// immutable-per-TTL record identified by (account_id, repository_id).
type Repository struct {
	AccountID               string            `json:"account_id"`
	RepositoryID            string            `json:"repository_id"`
	PrimaryMirrorIdentifier string            `json:"primary_mirror_identifier"`
	Mirrors                 map[string]Mirror `json:"mirrors"`
	Tags                    []string          `json:"tags"`
	Roles                   []string          `json:"roles"`
}

// PrimaryMirror returns the repository's primary Mirror, with ok false if the
// primary_mirror_identifier is not a key in the mirrors map (spec.md §3's
// invariant); callers turn that into SourceRepositoryMissingPrimaryMirror.
func (r *Repository) PrimaryMirror() (Mirror, bool) {
	m, ok := r.Mirrors[r.PrimaryMirrorIdentifier]
	return m, ok
}

// AuthDescriptor names a data connection's authentication strategy and any
// static credentials it carries.
type AuthDescriptor struct {
	Tag             string `json:"tag"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
}

// DataConnection holds credentials and location for one physical backend
// endpoint.
type DataConnection struct {
	ConnectionID string         `json:"connection_id"`
	ProviderTag  string         `json:"provider"`
	Region       string         `json:"region"`
	Bucket       string         `json:"bucket"`
	Container    string         `json:"container"`
	BasePrefix   string         `json:"base_prefix"`
	AccountName  string         `json:"account_name"`
	Auth         AuthDescriptor `json:"auth"`
}

// Provider tags a DataConnection may carry.
const (
	ProviderS3    = "s3"
	ProviderAzure = "az"
)

// APIKey is an (access_key_id, secret_access_key) pair. The empty
// access_key_id maps to the sentinel empty key (anonymous).
type APIKey struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// IsAnonymous reports whether this key is the sentinel anonymous identity.
func (k APIKey) IsAnonymous() bool {
	return k.AccessKeyID == ""
}

// Permission drawn from {Read, Write}; absence of Write is absence, there is
// no explicit deny.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// PermissionSet is the set of permissions an identity holds on a repository.
type PermissionSet map[Permission]struct{}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// NewPermissionSet builds a PermissionSet from a list of permission strings
// as returned by the control plane's permissions endpoint.
func NewPermissionSet(perms []string) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[Permission(p)] = struct{}{}
	}
	return s
}

// Account lists the repository IDs an identity can see under an account.
type Account struct {
	AccountID     string   `json:"account_id"`
	RepositoryIDs []string `json:"products"`
	Next          string   `json:"next,omitempty"`
}
