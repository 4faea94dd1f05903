package sigv4

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sourcegw/gateway/internal/controlplane"
)

// fakeKeySource is a minimal APIKeySource for unit testing Verify without a
// live controlplane.Client.
type fakeKeySource struct {
	keys map[string]controlplane.APIKey
	err  error
}

func (f *fakeKeySource) GetAPIKey(ctx context.Context, accessKeyID string) (controlplane.APIKey, error) {
	if f.err != nil {
		return controlplane.APIKey{}, f.err
	}
	if key, ok := f.keys[accessKeyID]; ok {
		return key, nil
	}
	return controlplane.APIKey{}, nil
}

// signRequest signs r with the given credentials at signTime, attaching a
// valid AWS4-HMAC-SHA256 Authorization header, X-Amz-Date, and
// X-Amz-Content-Sha256, the inverse of what Verify checks.
func signRequest(r *http.Request, accessKey, secretKey, region string, body []byte, signTime time.Time) {
	amzDate := signTime.Format(amzDateFormat)
	dateStr := amzDate[:8]
	contentSHA256 := HashBody(body)

	r.Header.Set("X-Amz-Date", amzDate)
	r.Header.Set("X-Amz-Content-Sha256", contentSHA256)
	if r.Header.Get("Host") == "" {
		r.Host = "example.com"
	}

	signedHeaders := []string{"host", "x-amz-date", "x-amz-content-sha256"}
	canonicalRequest := buildCanonicalRequest(r, signedHeaders, contentSHA256, body)
	scope := dateStr + "/" + region + "/s3/" + scopeTerminator
	stringToSign := buildStringToSign(amzDate, scope, canonicalRequest)
	signingKey := deriveSigningKey(secretKey, dateStr, region, "s3")
	signature := hmacSHA256FromHex(signingKey, stringToSign)

	authHeader := algorithm + " Credential=" + accessKey + "/" + scope +
		", SignedHeaders=" + joinHeaders(signedHeaders) +
		", Signature=" + signature
	r.Header.Set("Authorization", authHeader)
}

func hmacSHA256FromHex(key []byte, data string) string {
	sum := hmacSHA256(key, data)
	const hextable = "0123456789abcdef"
	out := make([]byte, len(sum)*2)
	for i, b := range sum {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

func joinHeaders(headers []string) string {
	s := ""
	for i, h := range headers {
		if i > 0 {
			s += ";"
		}
		s += h
	}
	return s
}

func newVerifierWithKey(accessKey, secretKey string) *Verifier {
	return NewVerifier(&fakeKeySource{
		keys: map[string]controlplane.APIKey{
			accessKey: {AccessKeyID: accessKey, SecretAccessKey: secretKey},
		},
	}, "us-east-1")
}

func TestVerifyNoAuthorizationHeader(t *testing.T) {
	v := newVerifierWithKey("AKID", "secret")
	r := httptest.NewRequest(http.MethodGet, "/alice/photos/key", nil)

	key, err := v.Verify(r, nil)
	if err != nil {
		t.Fatalf("Verify() error = %v, want nil", err)
	}
	if !key.IsAnonymous() {
		t.Errorf("Verify() = %+v, want anonymous", key)
	}
}

func TestVerifyMalformedAuthorizationHeader(t *testing.T) {
	v := newVerifierWithKey("AKID", "secret")
	r := httptest.NewRequest(http.MethodGet, "/alice/photos/key", nil)
	r.Header.Set("Authorization", "Bearer not-sigv4-at-all")

	key, err := v.Verify(r, nil)
	if err != nil {
		t.Fatalf("Verify() error = %v, want nil", err)
	}
	if !key.IsAnonymous() {
		t.Errorf("Verify() = %+v, want anonymous", key)
	}
}

func TestVerifyIncompleteCredentialScope(t *testing.T) {
	v := newVerifierWithKey("AKID", "secret")
	r := httptest.NewRequest(http.MethodGet, "/alice/photos/key", nil)
	r.Header.Set("Authorization", algorithm+" Credential=AKID/20250101/us-east-1, SignedHeaders=host, Signature=deadbeef")

	key, err := v.Verify(r, nil)
	if err != nil {
		t.Fatalf("Verify() error = %v, want nil", err)
	}
	if !key.IsAnonymous() {
		t.Errorf("Verify() = %+v, want anonymous", key)
	}
}

func TestVerifyMissingDateOrContentSHA256(t *testing.T) {
	v := newVerifierWithKey("AKID", "secret")
	body := []byte("hello")
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	r := httptest.NewRequest(http.MethodGet, "/alice/photos/key", nil)
	signRequest(r, "AKID", "secret", "us-east-1", body, now)
	r.Header.Del("X-Amz-Date")

	key, err := v.Verify(r, body)
	if err != nil {
		t.Fatalf("Verify() error = %v, want nil", err)
	}
	if !key.IsAnonymous() {
		t.Errorf("Verify() = %+v, want anonymous when X-Amz-Date missing", key)
	}
}

func TestVerifyClockSkewBeyondTolerance(t *testing.T) {
	v := newVerifierWithKey("AKID", "secret")
	body := []byte("hello")
	stale := time.Now().Add(-1 * time.Hour)

	r := httptest.NewRequest(http.MethodGet, "/alice/photos/key", nil)
	signRequest(r, "AKID", "secret", "us-east-1", body, stale)

	key, err := v.Verify(r, body)
	if err != nil {
		t.Fatalf("Verify() error = %v, want nil", err)
	}
	if !key.IsAnonymous() {
		t.Errorf("Verify() = %+v, want anonymous for stale clock", key)
	}
}

func TestVerifyUnknownAccessKeyFallsBackToAnonymous(t *testing.T) {
	v := newVerifierWithKey("AKID", "secret")
	body := []byte("hello")
	now := time.Now()

	r := httptest.NewRequest(http.MethodGet, "/alice/photos/key", nil)
	signRequest(r, "UNKNOWN", "whatever-secret", "us-east-1", body, now)

	key, err := v.Verify(r, body)
	if err != nil {
		t.Fatalf("Verify() error = %v, want nil", err)
	}
	if !key.IsAnonymous() {
		t.Errorf("Verify() = %+v, want anonymous for unknown access key", key)
	}
}

func TestVerifyKeySourceErrorPropagates(t *testing.T) {
	wantErr := errors.New("control plane unreachable")
	v := NewVerifier(&fakeKeySource{err: wantErr}, "us-east-1")
	body := []byte("hello")
	now := time.Now()

	r := httptest.NewRequest(http.MethodGet, "/alice/photos/key", nil)
	signRequest(r, "AKID", "secret", "us-east-1", body, now)

	_, err := v.Verify(r, body)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Verify() error = %v, want %v", err, wantErr)
	}
}

func TestVerifyWrongSecretFallsBackToAnonymous(t *testing.T) {
	v := newVerifierWithKey("AKID", "correct-secret")
	body := []byte("hello")
	now := time.Now()

	r := httptest.NewRequest(http.MethodGet, "/alice/photos/key", nil)
	signRequest(r, "AKID", "wrong-secret", "us-east-1", body, now)

	key, err := v.Verify(r, body)
	if err != nil {
		t.Fatalf("Verify() error = %v, want nil", err)
	}
	if !key.IsAnonymous() {
		t.Errorf("Verify() = %+v, want anonymous for bad signature", key)
	}
}

func TestVerifyValidSignatureRoundTrip(t *testing.T) {
	v := newVerifierWithKey("AKID", "correct-secret")
	body := []byte("hello world")
	now := time.Now()

	r := httptest.NewRequest(http.MethodPut, "/alice/photos/my-key", nil)
	signRequest(r, "AKID", "correct-secret", "us-east-1", body, now)

	key, err := v.Verify(r, body)
	if err != nil {
		t.Fatalf("Verify() error = %v, want nil", err)
	}
	if key.IsAnonymous() {
		t.Fatal("Verify() = anonymous, want the signed identity")
	}
	if key.AccessKeyID != "AKID" {
		t.Errorf("Verify() AccessKeyID = %q, want %q", key.AccessKeyID, "AKID")
	}
}

func TestVerifyTamperedBodyFallsBackToAnonymous(t *testing.T) {
	v := newVerifierWithKey("AKID", "correct-secret")
	body := []byte("hello world")
	now := time.Now()

	r := httptest.NewRequest(http.MethodPut, "/alice/photos/my-key", nil)
	signRequest(r, "AKID", "correct-secret", "us-east-1", body, now)

	// The request carries a signature and X-Amz-Content-Sha256 computed over
	// the original body, but Verify is handed a different body (as if the
	// bytes were swapped in transit while the headers were replayed as-is).
	tampered := []byte("goodbye world")
	key, err := v.Verify(r, tampered)
	if err != nil {
		t.Fatalf("Verify() error = %v, want nil", err)
	}
	if !key.IsAnonymous() {
		t.Errorf("Verify() = %+v, want anonymous: the canonical request must hash the actual body, not trust X-Amz-Content-Sha256", key)
	}
}

func TestURIEncode(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		encodeSlash bool
		want        string
	}{
		{"unreserved", "abcXYZ012-_.~", false, "abcXYZ012-_.~"},
		{"space", "a b", false, "a%20b"},
		{"slash preserved", "a/b", false, "a/b"},
		{"slash encoded", "a/b", true, "a%2Fb"},
		{"special chars", "a+b=c", false, "a%2Bb%3Dc"},
		{"unicode", "résumé", false, "r%C3%A9sum%C3%A9"},
		{"empty", "", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := URIEncode(tt.input, tt.encodeSlash)
			if got != tt.want {
				t.Errorf("URIEncode(%q, %v) = %q, want %q", tt.input, tt.encodeSlash, got, tt.want)
			}
		})
	}
}

func TestHmacSHA256KnownVector(t *testing.T) {
	got := hmacSHA256FromHex([]byte("key"), "message")
	want := "6e9ef29b75fffc5b7abae527d58fdadb2fe42e7219011976917343065f58ed4a"
	if got != want {
		t.Errorf("hmacSHA256(%q, %q) = %s, want %s", "key", "message", got, want)
	}
}

func TestDeriveSigningKeyMatchesRawHMACChain(t *testing.T) {
	secretKey := "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY"
	got := deriveSigningKey(secretKey, "20120215", "us-east-1", "iam")

	dateKey := hmacSHA256([]byte("AWS4"+secretKey), "20120215")
	regionKey := hmacSHA256(dateKey, "us-east-1")
	serviceKey := hmacSHA256(regionKey, "iam")
	want := hmacSHA256(serviceKey, "aws4_request")

	if string(got) != string(want) {
		t.Errorf("deriveSigningKey produced a different key than the raw HMAC chain")
	}
}

func TestCanonicalURI(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/bucket/key", "/bucket/key"},
		{"/bucket/a b", "/bucket/a%20b"},
		{"/bucket/a/b/c", "/bucket/a/b/c"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := canonicalURI(tt.path)
			if got != tt.want {
				t.Errorf("canonicalURI(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestHashBodyEmptyIsWellKnownHash(t *testing.T) {
	got := HashBody(nil)
	if got != emptySHA256 {
		t.Errorf("HashBody(nil) = %s, want %s", got, emptySHA256)
	}
	if got := HashBody([]byte{}); got != emptySHA256 {
		t.Errorf("HashBody([]byte{}) = %s, want %s", got, emptySHA256)
	}
}
