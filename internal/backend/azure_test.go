package backend

import (
	"context"
	"strings"
	"testing"
)

func newTestAzureBackend() *AzureBackend {
	return &AzureBackend{
		accountURL: "https://example.blob.core.windows.net",
		container:  "photos",
		basePrefix: "mirror",
	}
}

func TestAzureBackendBlobNameAppliesBasePrefix(t *testing.T) {
	b := newTestAzureBackend()
	if got := b.blobName("cat.png"); got != "mirror/cat.png" {
		t.Errorf("blobName() = %q, want %q", got, "mirror/cat.png")
	}
}

func TestAzureBackendBlobURL(t *testing.T) {
	b := newTestAzureBackend()
	got := b.blobURL("mirror/cat.png")
	want := "https://example.blob.core.windows.net/photos/mirror/cat.png"
	if got != want {
		t.Errorf("blobURL() = %q, want %q", got, want)
	}
}

func TestAzureBackendWritesAreUnsupported(t *testing.T) {
	b := newTestAzureBackend()
	ctx := context.Background()

	if _, err := b.PutObject(ctx, "cat.png", nil, 0, "", nil); !isUnsupportedOperation(err) {
		t.Errorf("PutObject() error = %v, want UnsupportedOperation", err)
	}
	if _, err := b.CreateMultipartUpload(ctx, "cat.png", ""); !isUnsupportedOperation(err) {
		t.Errorf("CreateMultipartUpload() error = %v, want UnsupportedOperation", err)
	}
	if _, err := b.UploadPart(ctx, "cat.png", "upload-1", 1, nil, 0); !isUnsupportedOperation(err) {
		t.Errorf("UploadPart() error = %v, want UnsupportedOperation", err)
	}
	if _, err := b.CompleteMultipartUpload(ctx, "cat.png", "upload-1", nil); !isUnsupportedOperation(err) {
		t.Errorf("CompleteMultipartUpload() error = %v, want UnsupportedOperation", err)
	}
	if err := b.AbortMultipartUpload(ctx, "cat.png", "upload-1"); !isUnsupportedOperation(err) {
		t.Errorf("AbortMultipartUpload() error = %v, want UnsupportedOperation", err)
	}
	if err := b.DeleteObject(ctx, "cat.png"); !isUnsupportedOperation(err) {
		t.Errorf("DeleteObject() error = %v, want UnsupportedOperation", err)
	}
	if _, err := b.CopyObject(ctx, "photos/cat.png", "dog.png", ""); !isUnsupportedOperation(err) {
		t.Errorf("CopyObject() error = %v, want UnsupportedOperation", err)
	}
}

func isUnsupportedOperation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UnsupportedOperation")
}

func TestStrOrEmpty(t *testing.T) {
	if got := strOrEmpty(nil); got != "" {
		t.Errorf("strOrEmpty(nil) = %q, want empty", got)
	}
	s := "value"
	if got := strOrEmpty(&s); got != "value" {
		t.Errorf("strOrEmpty(&s) = %q, want %q", got, "value")
	}
}

func TestToPtr(t *testing.T) {
	if toPtr("") != nil {
		t.Error("toPtr(\"\") should be nil")
	}
	p := toPtr("abc")
	if p == nil || *p != "abc" {
		t.Errorf("toPtr(\"abc\") = %v, want pointer to \"abc\"", p)
	}
}

func TestToInt32Ptr(t *testing.T) {
	if toInt32Ptr(0) != nil {
		t.Error("toInt32Ptr(0) should be nil")
	}
	if toInt32Ptr(-1) != nil {
		t.Error("toInt32Ptr(-1) should be nil")
	}
	p := toInt32Ptr(5)
	if p == nil || *p != 5 {
		t.Errorf("toInt32Ptr(5) = %v, want pointer to 5", p)
	}
}
