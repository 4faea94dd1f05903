// Package sigv4 implements AWS Signature Version 4 request verification:
// canonical-request construction, string-to-sign, and the HMAC signing-key
// chain, kept as a pure, side-effect-free computation fed by an injected
// credential source (spec.md §4.F, §9's "SigV4 is synchronous pure
// computation" design note).
package sigv4

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegw/gateway/internal/controlplane"
)

const (
	// algorithm is the signing algorithm identifier.
	algorithm = "AWS4-HMAC-SHA256"
	// scopeTerminator is the fixed suffix of the credential scope.
	scopeTerminator = "aws4_request"
	// unsignedPayload is the constant used when payload verification is skipped.
	unsignedPayload = "UNSIGNED-PAYLOAD"
	// emptySHA256 is the SHA-256 hash of an empty string.
	emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	// clockSkewTolerance is the maximum allowed clock skew for header-based auth.
	clockSkewTolerance = 15 * time.Minute
	// amzDateFormat is the format for x-amz-date values.
	amzDateFormat = "20060102T150405Z"
	// signingKeyTTL is the TTL for cached derived signing keys.
	signingKeyTTL = 24 * time.Hour
	// maxCacheEntries bounds each cache's size; exceeding it clears the map
	// rather than evicting individually, matching the teacher's policy.
	maxCacheEntries = 1000
)

// APIKeySource resolves an access key ID to its secret, satisfied by
// controlplane.Client. Kept as an interface (rather than depending on the
// concrete client type) so the verifier stays unit-testable with a fake key
// source, per spec.md §9's design note.
type APIKeySource interface {
	GetAPIKey(ctx context.Context, accessKeyID string) (controlplane.APIKey, error)
}

type signingKeyCacheEntry struct {
	key       []byte
	expiresAt time.Time
}

// Verifier verifies AWS Signature Version 4 signed requests against
// credentials resolved through an APIKeySource.
type Verifier struct {
	Keys   APIKeySource
	Region string

	signingKeyMu sync.Mutex
	signingKeys  map[string]signingKeyCacheEntry
}

// NewVerifier builds a Verifier backed by the given credential source.
func NewVerifier(keys APIKeySource, region string) *Verifier {
	return &Verifier{
		Keys:        keys,
		Region:      region,
		signingKeys: make(map[string]signingKeyCacheEntry),
	}
}

func (v *Verifier) cachedDeriveSigningKey(secretKey, dateStr, region, service string) []byte {
	cacheKey := secretKey + "\x00" + dateStr + "\x00" + region + "\x00" + service
	now := time.Now()

	v.signingKeyMu.Lock()
	defer v.signingKeyMu.Unlock()

	if entry, ok := v.signingKeys[cacheKey]; ok && now.Before(entry.expiresAt) {
		return entry.key
	}

	key := deriveSigningKey(secretKey, dateStr, region, service)
	if len(v.signingKeys) >= maxCacheEntries {
		v.signingKeys = make(map[string]signingKeyCacheEntry)
	}
	v.signingKeys[cacheKey] = signingKeyCacheEntry{key: key, expiresAt: now.Add(signingKeyTTL)}
	return key
}

// parsedAuth holds the parsed components of an Authorization header.
type parsedAuth struct {
	AccessKeyID   string
	DateStr       string
	Region        string
	Service       string
	SignedHeaders []string
	Signature     string
}

// parseAuthorizationHeader parses the AWS SigV4 Authorization header:
// "AWS4-HMAC-SHA256 Credential=AKID/date/region/service/aws4_request,
// SignedHeaders=h1;h2, Signature=hex".
func parseAuthorizationHeader(header string) (*parsedAuth, bool) {
	if !strings.HasPrefix(header, algorithm+" ") {
		return nil, false
	}
	rest := strings.TrimPrefix(header, algorithm+" ")

	parts := make(map[string]string)
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		idx := strings.IndexByte(part, '=')
		if idx < 0 {
			continue
		}
		parts[strings.TrimSpace(part[:idx])] = strings.TrimSpace(part[idx+1:])
	}

	credential, ok := parts["Credential"]
	if !ok || credential == "" {
		return nil, false
	}
	signedHeadersStr, ok := parts["SignedHeaders"]
	if !ok || signedHeadersStr == "" {
		return nil, false
	}
	signature, ok := parts["Signature"]
	if !ok || signature == "" {
		return nil, false
	}

	credParts := strings.SplitN(credential, "/", 5)
	if len(credParts) != 5 || credParts[4] != scopeTerminator {
		return nil, false
	}

	return &parsedAuth{
		AccessKeyID:   credParts[0],
		DateStr:       credParts[1],
		Region:        credParts[2],
		Service:       credParts[3],
		SignedHeaders: strings.Split(signedHeadersStr, ";"),
		Signature:     signature,
	}, true
}

// Verify runs the SigV4 verification steps of spec.md §4.F against r. It
// never fails the request outright for a malformed, missing, mismatched, or
// unknown-key signature — per spec.md §9's resolved Open Question (a), every
// such case falls back to the anonymous identity (controlplane.APIKey{}).
// The returned error is non-nil only for a genuine failure resolving
// credentials from the APIKeySource (a control-plane infrastructure error,
// not a signature problem).
func (v *Verifier) Verify(r *http.Request, bufferedBody []byte) (controlplane.APIKey, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return controlplane.APIKey{}, nil
	}

	parsed, ok := parseAuthorizationHeader(authHeader)
	if !ok {
		return controlplane.APIKey{}, nil
	}

	amzDate := r.Header.Get("X-Amz-Date")
	contentSHA256 := r.Header.Get("X-Amz-Content-Sha256")
	if amzDate == "" || contentSHA256 == "" {
		return controlplane.APIKey{}, nil
	}

	requestTime, err := time.Parse(amzDateFormat, amzDate)
	if err != nil {
		return controlplane.APIKey{}, nil
	}
	if skew := time.Since(requestTime); skew > clockSkewTolerance || skew < -clockSkewTolerance {
		return controlplane.APIKey{}, nil
	}
	if parsed.DateStr != amzDate[:8] {
		return controlplane.APIKey{}, nil
	}

	cred, err := v.Keys.GetAPIKey(r.Context(), parsed.AccessKeyID)
	if err != nil {
		return controlplane.APIKey{}, err
	}
	if cred.IsAnonymous() {
		return controlplane.APIKey{}, nil
	}

	canonicalRequest := buildCanonicalRequest(r, parsed.SignedHeaders, contentSHA256, bufferedBody)
	scope := parsed.DateStr + "/" + parsed.Region + "/" + parsed.Service + "/" + scopeTerminator
	stringToSign := buildStringToSign(amzDate, scope, canonicalRequest)

	signingKey := v.cachedDeriveSigningKey(cred.SecretAccessKey, parsed.DateStr, parsed.Region, parsed.Service)
	expected := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(parsed.Signature)) != 1 {
		return controlplane.APIKey{}, nil
	}

	return cred, nil
}

// buildCanonicalRequest builds the canonical request string per spec.md
// §4.F step 4.
func buildCanonicalRequest(r *http.Request, signedHeaders []string, contentSHA256 string, body []byte) string {
	var sb strings.Builder

	sb.WriteString(r.Method)
	sb.WriteByte('\n')
	sb.WriteString(canonicalURI(r.URL.Path))
	sb.WriteByte('\n')
	sb.WriteString(canonicalQueryString(r.URL.Query()))
	sb.WriteByte('\n')
	sb.WriteString(canonicalHeaders(r, signedHeaders))
	sb.WriteByte('\n')
	sb.WriteString(strings.Join(signedHeaders, ";"))
	sb.WriteByte('\n')

	if contentSHA256 == unsignedPayload {
		sb.WriteString(unsignedPayload)
	} else {
		hash := sha256.Sum256(body)
		sb.WriteString(hex.EncodeToString(hash[:]))
	}

	return sb.String()
}

// buildStringToSign builds the string to sign per spec.md §4.F step 5.
func buildStringToSign(amzDate, scope, canonicalRequest string) string {
	hash := sha256.Sum256([]byte(canonicalRequest))
	return algorithm + "\n" + amzDate + "\n" + scope + "\n" + hex.EncodeToString(hash[:])
}

// deriveSigningKey derives the SigV4 signing key via the HMAC chain of
// spec.md §4.F step 6.
func deriveSigningKey(secretKey, dateStr, region, service string) []byte {
	dateKey := hmacSHA256([]byte("AWS4"+secretKey), dateStr)
	regionKey := hmacSHA256(dateKey, region)
	serviceKey := hmacSHA256(regionKey, service)
	return hmacSHA256(serviceKey, scopeTerminator)
}

// canonicalURI URI-encodes each path segment, preserving '/'.
func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = URIEncode(seg, false)
	}
	return strings.Join(segments, "/")
}

// canonicalQueryString URI-encodes (including '/') and sorts query
// parameters lexicographically by encoded key.
func canonicalQueryString(values url.Values) string {
	if len(values) == 0 {
		return ""
	}

	var pairs []string
	for key, vals := range values {
		encodedKey := URIEncode(key, true)
		if len(vals) == 0 {
			pairs = append(pairs, encodedKey+"=")
			continue
		}
		for _, val := range vals {
			pairs = append(pairs, encodedKey+"="+URIEncode(val, true))
		}
	}

	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// canonicalHeaders emits "lower(name):trim(value)\n" for each signed header,
// joining repeated values with ",".
func canonicalHeaders(r *http.Request, signedHeaders []string) string {
	var sb strings.Builder
	for _, name := range signedHeaders {
		name = strings.ToLower(name)
		var values []string
		if name == "host" {
			host := r.Host
			if host == "" {
				host = r.Header.Get("Host")
			}
			values = []string{host}
		} else {
			values = r.Header.Values(http.CanonicalHeaderKey(name))
		}
		joined := strings.TrimSpace(strings.Join(values, ","))
		for strings.Contains(joined, "  ") {
			joined = strings.ReplaceAll(joined, "  ", " ")
		}
		sb.WriteString(name)
		sb.WriteByte(':')
		sb.WriteString(joined)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// URIEncode encodes a string per S3/SigV4 URI encoding rules: A-Z, a-z, 0-9,
// '-', '_', '.', '~' are left literal; '/' is left literal unless
// encodeSlash; everything else is percent-encoded with uppercase hex.
func URIEncode(s string, encodeSlash bool) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isURIUnreserved(c) || (!encodeSlash && c == '/') {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('%')
			sb.WriteByte(hexDigit(c >> 4))
			sb.WriteByte(hexDigit(c & 0x0f))
		}
	}
	return sb.String()
}

func isURIUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

func hexDigit(b byte) byte {
	if b < 10 {
		return '0' + b
	}
	return 'A' + b - 10
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// HashBody returns the hex-lowercase SHA-256 of body, or the well-known
// empty-string hash for a nil/empty body. Exposed for callers that need to
// populate X-Amz-Content-Sha256 themselves, such as a request signer.
func HashBody(body []byte) string {
	if len(body) == 0 {
		return emptySHA256
	}
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}

// ReadAndRestore reads r.Body fully and replaces it with a fresh reader over
// the same bytes, so downstream handlers can still consume the body after
// Verify (which itself never reads r.Body directly) has run.
func ReadAndRestore(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// HasHeaderAuth reports whether r carries a SigV4 Authorization header
// (as opposed to being anonymous).
func HasHeaderAuth(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Authorization"), algorithm)
}
