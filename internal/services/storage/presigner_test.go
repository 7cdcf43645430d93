package storage_test

import (
	"net/url"
	"strings"
	"testing"

	"dubber/internal/config"
	"dubber/internal/services/storage"
)

func newTestPresigner(t *testing.T) *storage.Presigner {
	t.Helper()
	presigner, err := storage.New(config.Storage{
		Region:          "us-east-1",
		Bucket:          "dubber-media",
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
		UploadPrefix:    "uploads",
	})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	return presigner
}

func TestSignUploadProducesSignedURL(t *testing.T) {
	presigner := newTestPresigner(t)

	upload, err := presigner.SignUpload("movie.mp4")
	if err != nil {
		t.Fatalf("SignUpload failed: %v", err)
	}
	if !strings.HasPrefix(upload.Key, "uploads/") || !strings.HasSuffix(upload.Key, "-movie.mp4") {
		t.Fatalf("unexpected key %q", upload.Key)
	}

	parsed, err := url.Parse(upload.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if !strings.Contains(parsed.Host, "dubber-media") && !strings.Contains(parsed.Path, "dubber-media") {
		t.Fatalf("url missing bucket: %s", upload.URL)
	}
	if parsed.Query().Get("X-Amz-Signature") == "" {
		t.Fatalf("url not signed: %s", upload.URL)
	}
}

func TestSignUploadStripsDirectories(t *testing.T) {
	presigner := newTestPresigner(t)

	upload, err := presigner.SignUpload("../../etc/passwd")
	if err != nil {
		t.Fatalf("SignUpload failed: %v", err)
	}
	if strings.Contains(upload.Key, "..") {
		t.Fatalf("key retains traversal: %q", upload.Key)
	}
	if !strings.HasSuffix(upload.Key, "-passwd") {
		t.Fatalf("unexpected key %q", upload.Key)
	}
}

func TestSignUploadUniqueKeys(t *testing.T) {
	presigner := newTestPresigner(t)

	first, err := presigner.SignUpload("a.mp4")
	if err != nil {
		t.Fatalf("SignUpload failed: %v", err)
	}
	second, err := presigner.SignUpload("a.mp4")
	if err != nil {
		t.Fatalf("SignUpload failed: %v", err)
	}
	if first.Key == second.Key {
		t.Fatalf("expected unique keys, both %q", first.Key)
	}
}

func TestSignDownloadRequiresKey(t *testing.T) {
	presigner := newTestPresigner(t)

	if _, err := presigner.SignDownload("  "); err == nil {
		t.Fatal("expected error without key")
	}

	signed, err := presigner.SignDownload("outputs/final.mp4")
	if err != nil {
		t.Fatalf("SignDownload failed: %v", err)
	}
	if !strings.Contains(signed, "outputs/final.mp4") {
		t.Fatalf("url missing key: %s", signed)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := storage.New(config.Storage{Region: "us-east-1"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}
