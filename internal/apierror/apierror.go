// Package apierror defines the gateway's error taxonomy: a single error type
// with one constructor per failure variant, each carrying the HTTP status
// and log level the variant renders at.
package apierror

import (
	"fmt"
	"log/slog"
)

// category distinguishes errors whose message is safe to return to the
// client verbatim from those that must be masked behind a generic message.
type category int

const (
	// categoryClient errors render their own message to the caller.
	categoryClient category = iota
	// categoryServer errors render "Internal Server Error: <message>".
	categoryServer
)

// Error is the gateway's single error type. Every failure mode named in the
// error taxonomy is a package-level constructor that returns one of these.
type Error struct {
	// Variant is the taxonomy name (e.g. "ObjectNotFound", "S3Error").
	Variant string
	// Message is a human-readable description.
	Message string
	// HTTPStatus is the status code this variant maps to.
	HTTPStatus int
	// LogLevel is the level server operators should log this at.
	LogLevel slog.Level

	category category
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Variant, e.Message)
}

// Body returns the text rendered to the client: the message verbatim for
// client-category errors, or a masked message for server-category errors.
func (e *Error) Body() string {
	if e.category == categoryServer {
		return "Internal Server Error: " + e.Message
	}
	return e.Message
}

func client(variant, msg string, status int, level slog.Level) *Error {
	return &Error{Variant: variant, Message: msg, HTTPStatus: status, LogLevel: level, category: categoryClient}
}

func server(variant, msg string, status int, level slog.Level) *Error {
	return &Error{Variant: variant, Message: msg, HTTPStatus: status, LogLevel: level, category: categoryServer}
}

// InvalidRequest covers generally malformed requests (bad query params,
// unsupported Transfer-Encoding, malformed XML body).
func InvalidRequest(msg string) *Error {
	return client("InvalidRequest", msg, 400, slog.LevelInfo)
}

// UnsupportedAuthMethod is returned when a data connection names an auth
// tag this gateway does not know how to satisfy.
func UnsupportedAuthMethod(msg string) *Error {
	return client("UnsupportedAuthMethod", msg, 400, slog.LevelWarn)
}

// UnsupportedOperation is returned for operations a backend driver declines
// to perform (e.g. any write against the Azure driver).
func UnsupportedOperation(msg string) *Error {
	return client("UnsupportedOperation", msg, 400, slog.LevelInfo)
}

// Unauthorized is returned when an identity lacks the required permission.
func Unauthorized(msg string) *Error {
	return client("Unauthorized", msg, 401, slog.LevelInfo)
}

// RepositoryNotFound is returned when the control plane has no record of
// the requested (account_id, repository_id) pair.
func RepositoryNotFound(accountID, repositoryID string) *Error {
	return client("RepositoryNotFound", fmt.Sprintf("no such repository %s/%s", accountID, repositoryID), 404, slog.LevelInfo)
}

// SourceRepositoryMissingPrimaryMirror is returned when a repository's
// primary_mirror_identifier is absent from its own mirrors map.
func SourceRepositoryMissingPrimaryMirror(accountID, repositoryID string) *Error {
	return client("SourceRepositoryMissingPrimaryMirror",
		fmt.Sprintf("repository %s/%s has no primary mirror entry", accountID, repositoryID), 404, slog.LevelWarn)
}

// ObjectNotFound is returned when a backend driver reports the key does
// not exist.
func ObjectNotFound(accountID, repositoryID, key string) *Error {
	return client("ObjectNotFound", fmt.Sprintf("no such object %s/%s/%s", accountID, repositoryID, key), 404, slog.LevelInfo)
}

// ApiKeyNotFound is returned when the control plane has no record of an
// access key ID.
func ApiKeyNotFound(accessKeyID string) *Error {
	return client("ApiKeyNotFound", fmt.Sprintf("no such access key %s", accessKeyID), 404, slog.LevelInfo)
}

// DataConnectionNotFound is returned when the control plane has no record
// of a connection_id.
func DataConnectionNotFound(connectionID string) *Error {
	return client("DataConnectionNotFound", fmt.Sprintf("no such data connection %s", connectionID), 404, slog.LevelInfo)
}

// TransportError wraps a transport-level failure talking to the control
// plane (the Go analogue of the taxonomy's ReqwestError variant).
func TransportError(url string, err error) *Error {
	return server("TransportError", fmt.Sprintf("request to %s failed: %v", url, err), 502, slog.LevelError)
}

// ApiServerError is returned when the control plane responds with a 5xx.
func ApiServerError(url string, status int, body string) *Error {
	return server("ApiServerError", fmt.Sprintf("%s returned %d: %s", url, status, body), 502, slog.LevelError)
}

// ApiClientError is returned when the control plane responds with a 4xx
// other than 404.
func ApiClientError(url string, status int, body string) *Error {
	return client("ApiClientError", fmt.Sprintf("%s returned %d: %s", url, status, body), 502, slog.LevelWarn)
}

// RepositoryPermissionsNotFound is returned when the control plane's
// permissions endpoint itself 404s (distinct from an authenticated
// identity simply lacking a permission).
func RepositoryPermissionsNotFound(accountID, repositoryID string) *Error {
	return server("RepositoryPermissionsNotFound",
		fmt.Sprintf("no permissions record for %s/%s", accountID, repositoryID), 502, slog.LevelWarn)
}

// AzureError wraps a non-404 failure from the Azure backend driver.
func AzureError(msg string) *Error {
	return server("AzureError", msg, 502, slog.LevelError)
}

// S3Error wraps a non-404 failure from the S3 backend driver. The name
// collides with the taxonomy's own variant name by design (spec parity);
// the Go type holding it is apierror.Error, not S3Error.
func S3Error(msg string) *Error {
	return server("S3Error", msg, 502, slog.LevelError)
}

// JsonParseError is returned when a control-plane response body fails to
// decode as JSON.
func JsonParseError(url string) *Error {
	return server("JsonParseError", fmt.Sprintf("could not parse JSON response from %s", url), 500, slog.LevelError)
}

// XmlParseError is for an XML document that fails to parse. A malformed
// request body (e.g. CompleteMultipartUpload) is reported as InvalidRequest
// instead.
func XmlParseError(msg string) *Error {
	return server("XmlParseError", msg, 500, slog.LevelError)
}

// UnexpectedDataConnectionProvider is returned when a data connection names
// a provider tag other than "s3" or "az".
func UnexpectedDataConnectionProvider(provider string) *Error {
	return server("UnexpectedDataConnectionProvider", fmt.Sprintf("unexpected provider %q", provider), 500, slog.LevelError)
}

// UnexpectedApiError is the catch-all for failures that do not fit any
// other variant.
func UnexpectedApiError(msg string) *Error {
	return server("UnexpectedApiError", msg, 500, slog.LevelError)
}
