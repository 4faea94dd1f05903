package metrics

import (
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/docs", "/docs"},
		{"/docs/", "/docs"},
		{"/docs/something", "/docs"},
		{"/metrics", "/metrics"},
		{"/openapi.json", "/openapi.json"},
		{"/", "/"},
		{"", "/"},
		{"/alice", "/{account}"},
		{"/alice/", "/{account}"}, // trailing slash, no repository
		{"/alice/photos", "/{account}/{repo}"},
		{"/alice/photos/my-key", "/{account}/{repo}/{key}"},
		{"/alice/photos/path/to/object", "/{account}/{repo}/{key}"},
		{"/test-account", "/{account}"},
		{"/a/b/c/d", "/{account}/{repo}/{key}"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := NormalizePath(tt.path)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMetricsRegistered(t *testing.T) {
	// Register metrics explicitly (replaces former init() auto-registration).
	Register()

	// Verify that calling Inc/Set on metrics does not panic.
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "200").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/health").Observe(0.001)
	HTTPRequestSize.WithLabelValues("PUT", "/{account}/{repo}/{key}").Observe(1024)
	HTTPResponseSize.WithLabelValues("GET", "/{account}/{repo}/{key}").Observe(2048)
	S3OperationsTotal.WithLabelValues("GetObject", "success").Inc()
	ControlPlaneRequestsTotal.WithLabelValues("get_repository", "success").Inc()
	BytesReceivedTotal.Add(1024)
	BytesSentTotal.Add(2048)
}
