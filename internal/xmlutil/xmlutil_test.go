package xmlutil

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sourcegw/gateway/internal/apierror"
)

func TestRenderErrorIncludesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("x-amz-request-id", "req-123")
	r := httptest.NewRequest("GET", "/alice/photos/cat.png", nil)

	RenderError(w, r, apierror.ObjectNotFound("alice", "photos", "cat.png"), "/alice/photos/cat.png")

	body := w.Body.String()
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(body, "<RequestId>req-123</RequestId>") {
		t.Errorf("body missing RequestId: %s", body)
	}
	if !strings.Contains(body, "<Code>ObjectNotFound</Code>") {
		t.Errorf("body missing Code: %s", body)
	}
	if !strings.Contains(body, "<Resource>/alice/photos/cat.png</Resource>") {
		t.Errorf("body missing Resource: %s", body)
	}
	if strings.Contains(body, `xmlns=`) {
		t.Errorf("error XML should not carry a namespace: %s", body)
	}
}

func TestWriteErrorResponseUsesRequestPath(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/alice/photos/missing.png", nil)

	WriteErrorResponse(w, r, apierror.ObjectNotFound("alice", "photos", "missing.png"))

	body := w.Body.String()
	if !strings.Contains(body, "<Resource>/alice/photos/missing.png</Resource>") {
		t.Errorf("body missing resource from request path: %s", body)
	}
}

func TestRenderListObjectsProducesNamespacedRoot(t *testing.T) {
	w := httptest.NewRecorder()
	RenderListObjects(w, &ListBucketResult{
		Name:    "photos",
		Prefix:  "",
		MaxKeys: 1000,
		Contents: []Object{
			{Key: "cat.png", ETag: `"abc"`, Size: 42},
		},
	})

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, xmlHeader) {
		t.Errorf("body should start with the XML declaration: %s", body)
	}
	if !strings.Contains(body, `<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`) {
		t.Errorf("body missing namespaced root element: %s", body)
	}
	if !strings.Contains(body, "<Key>cat.png</Key>") {
		t.Errorf("body missing object key: %s", body)
	}
	if w.Header().Get("Content-Type") != "application/xml" {
		t.Errorf("Content-Type = %q, want application/xml", w.Header().Get("Content-Type"))
	}
}

func TestRenderListObjectsV2ProducesSameRootNameAsV1(t *testing.T) {
	w := httptest.NewRecorder()
	RenderListObjectsV2(w, &ListBucketV2Result{
		Name:     "photos",
		KeyCount: 0,
		MaxKeys:  1000,
	})

	body := w.Body.String()
	if !strings.Contains(body, "<ListBucketResult") {
		t.Errorf("ListObjectsV2 should render a ListBucketResult root per the S3 wire format: %s", body)
	}
}

func TestRenderCopyObject(t *testing.T) {
	w := httptest.NewRecorder()
	RenderCopyObject(w, &CopyObjectResult{ETag: `"xyz"`, LastModified: "2026-01-01T00:00:00.000Z"})

	body := w.Body.String()
	if !strings.Contains(body, "<CopyObjectResult") || !strings.Contains(body, `<ETag>&#34;xyz&#34;</ETag>`) {
		t.Errorf("unexpected CopyObjectResult body: %s", body)
	}
}

func TestRenderInitiateMultipartUpload(t *testing.T) {
	w := httptest.NewRecorder()
	RenderInitiateMultipartUpload(w, &InitiateMultipartUploadResult{
		Bucket:   "photos",
		Key:      "cat.png",
		UploadID: "upload-1",
	})

	body := w.Body.String()
	if !strings.Contains(body, "<UploadId>upload-1</UploadId>") {
		t.Errorf("body missing UploadId: %s", body)
	}
}

func TestRenderListParts(t *testing.T) {
	w := httptest.NewRecorder()
	RenderListParts(w, &ListPartsResult{
		Bucket:   "photos",
		Key:      "cat.png",
		UploadID: "upload-1",
		Parts: []Part{
			{PartNumber: 1, ETag: `"a"`, Size: 5},
		},
	})

	body := w.Body.String()
	if !strings.Contains(body, "<PartNumber>1</PartNumber>") {
		t.Errorf("body missing part number: %s", body)
	}
}

func TestFormatTimeS3(t *testing.T) {
	tm := time.Date(2026, 3, 5, 13, 4, 5, 123000000, time.UTC)
	got := FormatTimeS3(tm)
	want := "2026-03-05T13:04:05.123Z"
	if got != want {
		t.Errorf("FormatTimeS3() = %q, want %q", got, want)
	}
}

func TestFormatTimeHTTP(t *testing.T) {
	tm := time.Date(2026, 3, 5, 13, 4, 5, 0, time.UTC)
	got := FormatTimeHTTP(tm)
	want := "Thu, 05 Mar 2026 13:04:05 GMT"
	if got != want {
		t.Errorf("FormatTimeHTTP() = %q, want %q", got, want)
	}
}

func TestFormatTimeS3ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	tm := time.Date(2026, 3, 5, 8, 4, 5, 0, loc)
	got := FormatTimeS3(tm)
	want := "2026-03-05T13:04:05.000Z"
	if got != want {
		t.Errorf("FormatTimeS3() = %q, want %q (should normalize to UTC)", got, want)
	}
}

func TestEncodeKeyURL(t *testing.T) {
	if got := EncodeKeyURL("a b/c.png", ""); got != "a b/c.png" {
		t.Errorf("EncodeKeyURL with no encoding type = %q, want unchanged", got)
	}
	if got := EncodeKeyURL("a b", "url"); got != "a+b" {
		t.Errorf("EncodeKeyURL(url) = %q, want %q", got, "a+b")
	}
}
