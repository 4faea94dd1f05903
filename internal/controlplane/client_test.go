package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestGetRepositoryFetchesAndCaches(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/api/v1/products/alice/photos" {
			t.Errorf("path = %s, want /api/v1/products/alice/photos", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Repository{
			AccountID:               "alice",
			RepositoryID:            "photos",
			PrimaryMirrorIdentifier: "m1",
			Mirrors: map[string]Mirror{
				"m1": {StorageKind: "s3", ConnectionID: "conn1", Prefix: "photos"},
			},
		})
	}))
	defer ts.Close()

	c, err := New(Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	repo, err := c.GetRepository(context.Background(), "alice", "photos")
	if err != nil {
		t.Fatalf("GetRepository() error = %v", err)
	}
	if repo.RepositoryID != "photos" {
		t.Errorf("RepositoryID = %q, want %q", repo.RepositoryID, "photos")
	}

	if _, err := c.GetRepository(context.Background(), "alice", "photos"); err != nil {
		t.Fatalf("second GetRepository() error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server was called %d times, want 1 (second call should hit the TTL cache)", got)
	}
}

func TestGetRepositoryNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c, err := New(Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.GetRepository(context.Background(), "alice", "missing")
	if err == nil {
		t.Fatal("GetRepository() error = nil, want RepositoryNotFound")
	}
	if got := err.Error(); got[:18] != "RepositoryNotFound" {
		t.Errorf("error = %q, want RepositoryNotFound variant", got)
	}
}

func TestGetAPIKeyAnonymousShortCircuitsWithoutNetworkCall(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	c, err := New(Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key, err := c.GetAPIKey(context.Background(), "")
	if err != nil {
		t.Fatalf("GetAPIKey(\"\") error = %v", err)
	}
	if !key.IsAnonymous() {
		t.Errorf("GetAPIKey(\"\") = %+v, want anonymous", key)
	}
	if called {
		t.Error("GetAPIKey(\"\") should not hit the control plane")
	}
}

func TestGetAPIKeySendsServiceKeyAuthorization(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(APIKey{AccessKeyID: "AKID", SecretAccessKey: "shh"})
	}))
	defer ts.Close()

	c, err := New(Config{BaseURL: ts.URL, ServiceKey: "service-secret"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key, err := c.GetAPIKey(context.Background(), "AKID")
	if err != nil {
		t.Fatalf("GetAPIKey() error = %v", err)
	}
	if key.SecretAccessKey != "shh" {
		t.Errorf("SecretAccessKey = %q, want %q", key.SecretAccessKey, "shh")
	}
	if gotAuth != "service-secret" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "service-secret")
	}
}

func TestGetAccountIsNotCached(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(Account{AccountID: "alice", RepositoryIDs: []string{"photos"}})
	}))
	defer ts.Close()

	c, err := New(Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := c.GetAccount(context.Background(), "alice", APIKey{}); err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if _, err := c.GetAccount(context.Background(), "alice", APIKey{}); err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server was called %d times, want 2 (account listing is never cached)", got)
	}
}

func TestAssertAuthorizedDeniesWithoutPermission(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]string{"read"})
	}))
	defer ts.Close()

	c, err := New(Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := c.AssertAuthorized(context.Background(), APIKey{}, "alice", "photos", PermissionRead); err != nil {
		t.Errorf("AssertAuthorized(read) error = %v, want nil", err)
	}
	if err := c.AssertAuthorized(context.Background(), APIKey{}, "alice", "photos", PermissionWrite); err == nil {
		t.Error("AssertAuthorized(write) error = nil, want Unauthorized")
	}
}

func TestGetDataConnectionNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c, err := New(Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.GetDataConnection(context.Background(), "conn1")
	if err == nil {
		t.Fatal("GetDataConnection() error = nil, want DataConnectionNotFound")
	}
}

func TestGetJSONMapsServerErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer ts.Close()

	c, err := New(Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.GetRepository(context.Background(), "alice", "photos")
	if err == nil {
		t.Fatal("GetRepository() error = nil, want an ApiServerError")
	}
}
