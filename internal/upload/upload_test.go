package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/blogfeed/internal/middleware"
	"example.com/blogfeed/internal/models"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir(), "/images/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return fs
}

type formFile struct {
	name        string
	contentType string
	data        string
}

func multipartBody(t *testing.T, file *formFile, oldPath string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if oldPath != "" {
		if err := mw.WriteField("oldPath", oldPath); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if file != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, file.name))
		h.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		part.Write([]byte(file.data))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func sendUpload(t *testing.T, h http.Handler, id models.Identity, file *formFile, oldPath string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	body, ct := multipartBody(t, file, oldPath)
	req := httptest.NewRequest(http.MethodPut, "/post-image", body)
	req.Header.Set("Content-Type", ct)
	req = req.WithContext(middleware.WithIdentity(req.Context(), id))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var resp map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	return rr, resp
}

var user = models.Authenticated("u1", "almaz@example.com")

func TestUpload_StoresPNG(t *testing.T) {
	fs := newStore(t)
	h := NewHandler(fs, 1<<20)

	rr, resp := sendUpload(t, h, user, &formFile{"cat.png", "image/png", "png-bytes"}, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp["message"] != "File stored" {
		t.Fatalf("unexpected message %q", resp["message"])
	}

	path := resp["filePath"]
	if !strings.HasPrefix(path, "images/") || !strings.HasSuffix(path, "cat.png") {
		t.Fatalf("unexpected filePath %q", path)
	}
	data, err := os.ReadFile(filepath.Join(fs.Dir(), filepath.Base(path)))
	if err != nil || string(data) != "png-bytes" {
		t.Fatalf("stored file mismatch: %q err=%v", data, err)
	}
}

func TestUpload_GifTreatedAsAbsent(t *testing.T) {
	fs := newStore(t)
	h := NewHandler(fs, 1<<20)

	rr, resp := sendUpload(t, h, user, &formFile{"anim.gif", "image/gif", "gif-bytes"}, "")
	if rr.Code != http.StatusOK || resp["message"] != "No file provided" {
		t.Fatalf("expected 200 No file provided, got %d %v", rr.Code, resp)
	}

	entries, _ := os.ReadDir(fs.Dir())
	if len(entries) != 0 {
		t.Fatalf("gif must not be stored, found %d files", len(entries))
	}
}

func TestUpload_NoFile(t *testing.T) {
	h := NewHandler(newStore(t), 1<<20)

	rr, resp := sendUpload(t, h, user, nil, "")
	if rr.Code != http.StatusOK || resp["message"] != "No file provided" {
		t.Fatalf("expected 200 No file provided, got %d %v", rr.Code, resp)
	}

	req := httptest.NewRequest(http.MethodPut, "/post-image", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithIdentity(req.Context(), user))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("non-multipart body should count as no file, got %d", rr.Code)
	}
}

func TestUpload_ReplacesOldImage(t *testing.T) {
	fs := newStore(t)
	h := NewHandler(fs, 1<<20)

	_, first := sendUpload(t, h, user, &formFile{"a.jpg", "image/jpeg", "first"}, "")
	oldPath := first["filePath"]

	rr, second := sendUpload(t, h, user, &formFile{"b.jpg", "image/jpg", "second"}, oldPath)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}

	if _, err := os.Stat(filepath.Join(fs.Dir(), filepath.Base(oldPath))); !os.IsNotExist(err) {
		t.Fatalf("old image should be removed, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(fs.Dir(), filepath.Base(second["filePath"]))); err != nil {
		t.Fatalf("new image missing: %v", err)
	}
}

type ownerMap map[string]string

func (o ownerMap) OwnsImage(ctx context.Context, userID, path string) (bool, error) {
	return o[path] == userID, nil
}

func TestUpload_KeepsImagesOfOtherUsers(t *testing.T) {
	fs := newStore(t)
	h := NewHandler(fs, 1<<20)
	owners := ownerMap{}
	h.SetImageOwners(owners)

	other := models.Authenticated("u2", "nur@example.com")
	_, theirs := sendUpload(t, h, other, &formFile{"theirs.png", "image/png", "x"}, "")
	owners[theirs["filePath"]] = "u2"

	_, mine := sendUpload(t, h, user, &formFile{"mine.png", "image/png", "y"}, "")
	owners[mine["filePath"]] = "u1"

	// someone else's image survives
	rr, _ := sendUpload(t, h, user, &formFile{"new.png", "image/png", "z"}, theirs["filePath"])
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if _, err := os.Stat(filepath.Join(fs.Dir(), filepath.Base(theirs["filePath"]))); err != nil {
		t.Fatalf("foreign image must be kept: %v", err)
	}

	// own image is replaced
	sendUpload(t, h, user, &formFile{"newer.png", "image/png", "w"}, mine["filePath"])
	if _, err := os.Stat(filepath.Join(fs.Dir(), filepath.Base(mine["filePath"]))); !os.IsNotExist(err) {
		t.Fatalf("own old image should be removed, stat err=%v", err)
	}
}

func TestUpload_OldPathFailureIsNotSurfaced(t *testing.T) {
	h := NewHandler(newStore(t), 1<<20)

	rr, _ := sendUpload(t, h, user, &formFile{"c.png", "image/png", "x"}, "images/does-not-exist.png")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 despite failed cleanup, got %d", rr.Code)
	}
}

func TestUpload_RequiresAuthentication(t *testing.T) {
	h := NewHandler(newStore(t), 1<<20)

	rr, resp := sendUpload(t, h, models.Anonymous, &formFile{"c.png", "image/png", "x"}, "")
	if rr.Code != http.StatusUnauthorized || resp["message"] != "Not authenticated" {
		t.Fatalf("expected 401, got %d %v", rr.Code, resp)
	}
}

func TestUpload_TooLarge(t *testing.T) {
	fs := newStore(t)
	h := NewHandler(fs, 512)

	rr, _ := sendUpload(t, h, user, &formFile{"big.png", "image/png", strings.Repeat("x", 4096)}, "")
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	entries, _ := os.ReadDir(fs.Dir())
	if len(entries) != 0 {
		t.Fatalf("partial file left behind")
	}
}

func TestFileStore_RemoveStaysInsideDir(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "images")
	fs, err := NewFileStore(dir, "/images/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	outside := filepath.Join(parent, "secret.txt")
	os.WriteFile(outside, []byte("keep"), 0o644)

	if err := fs.Remove("images/../secret.txt"); err == nil {
		t.Fatalf("expected error for file outside the store")
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("file outside the store was touched: %v", err)
	}

	if err := fs.Remove("no-url"); err != ErrNotLocal {
		t.Fatalf("expected ErrNotLocal, got %v", err)
	}
}

func TestFileStore_Handler(t *testing.T) {
	fs := newStore(t)
	path, err := fs.Save("dog.png", strings.NewReader("woof"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	srv := http.StripPrefix("/images", fs.Handler())

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/"+path, nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "woof" {
		t.Fatalf("expected stored image, got %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/images/", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("directory listing must be disabled, got %d", rr.Code)
	}
}
