package upload

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotLocal is returned for paths that do not point into the store.
var ErrNotLocal = errors.New("upload: path is not a stored image")

// FileStore keeps uploaded images in one flat directory.
type FileStore struct {
	dir    string
	prefix string // public path prefix, e.g. "images/"
}

// NewFileStore creates dir if needed. urlPrefix is the path images are
// served under, e.g. "/images/".
func NewFileStore(dir, urlPrefix string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	prefix := strings.Trim(urlPrefix, "/")
	if prefix == "" {
		prefix = "images"
	}
	return &FileStore{dir: dir, prefix: prefix + "/"}, nil
}

func (fs *FileStore) Dir() string {
	return fs.dir
}

// Save writes r under a random numeric prefix plus the base of original
// and returns the public path, e.g. "images/48213977cat.png".
func (fs *FileStore) Save(original string, r io.Reader) (string, error) {
	base := filepath.Base(original)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "image"
	}

	name := strconv.FormatInt(rand.Int63n(1e9), 10) + base
	full := filepath.Join(fs.dir, name)

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("close image file: %w", err)
	}

	return fs.prefix + name, nil
}

// IsLocal reports whether path names an image served by this store.
func (fs *FileStore) IsLocal(path string) bool {
	return strings.HasPrefix(strings.TrimPrefix(path, "/"), fs.prefix)
}

// Remove deletes the stored file that path refers to. Only the base name
// is used, so path cannot escape the images directory.
func (fs *FileStore) Remove(path string) error {
	if !fs.IsLocal(path) {
		return ErrNotLocal
	}
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) || base == strings.TrimSuffix(fs.prefix, "/") {
		return ErrNotLocal
	}
	if err := os.Remove(filepath.Join(fs.dir, base)); err != nil {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// Handler serves stored images read-only, without directory listings.
func (fs *FileStore) Handler() http.Handler {
	files := http.FileServer(http.Dir(fs.dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		files.ServeHTTP(w, r)
	})
}
