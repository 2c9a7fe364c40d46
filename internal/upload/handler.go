package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"example.com/blogfeed/internal/logger"
	"example.com/blogfeed/internal/middleware"
)

var logg = logger.New()

const (
	imageField   = "image"
	oldPathField = "oldPath"
	maxFieldSize = 4 << 10
)

var acceptedTypes = map[string]bool{
	"image/png":  true,
	"image/jpg":  true,
	"image/jpeg": true,
}

// ImageOwners reports whether path is the image of a post created by userID.
type ImageOwners interface {
	OwnsImage(ctx context.Context, userID, path string) (bool, error)
}

type Handler struct {
	files    *FileStore
	maxBytes int64
	owners   ImageOwners
}

func NewHandler(files *FileStore, maxBytes int64) *Handler {
	return &Handler{files: files, maxBytes: maxBytes}
}

// SetImageOwners restricts oldPath removal to images of the caller's own
// posts. Without it any stored image named by oldPath is removed.
func (h *Handler) SetImageOwners(o ImageOwners) {
	h.owners = o
}

// ServeHTTP stores the multipart "image" field and removes the file named
// by "oldPath" once the new one is saved. Images of any other type are
// ignored as if no file had been sent.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		w.Header().Set("Allow", "PUT, POST")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method not allowed"})
		return
	}

	id := middleware.IdentityFromContext(r.Context())
	if !id.IsAuthenticated() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Not authenticated"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	defer r.Body.Close()

	stored, oldPath, err := h.readParts(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"message": "File too large"})
			return
		}
		logg.Error("upload", "Failed to store image for user_id="+id.UserID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Oops, something went wrong"})
		return
	}

	if stored == "" {
		writeJSON(w, http.StatusOK, map[string]string{"message": "No file provided"})
		return
	}

	if oldPath != "" {
		h.removeOld(r.Context(), id.UserID, oldPath)
	}

	logg.Info("upload", "Image stored by user_id="+id.UserID+" at "+stored)
	writeJSON(w, http.StatusCreated, map[string]string{
		"message":  "File stored",
		"filePath": stored,
	})
}

// removeOld is best effort: failures and foreign images are only logged.
func (h *Handler) removeOld(ctx context.Context, userID, oldPath string) {
	if h.owners != nil {
		owned, err := h.owners.OwnsImage(ctx, userID, oldPath)
		if err != nil {
			logg.Warn("upload", "Failed to check owner of old image "+oldPath, err)
			return
		}
		if !owned {
			logg.Info("upload", "Keeping old image "+oldPath+" not owned by user_id="+userID)
			return
		}
	}
	if err := h.files.Remove(oldPath); err != nil {
		logg.Warn("upload", "Failed to remove old image "+oldPath, err)
	}
}

// readParts streams the multipart body. Non-multipart bodies carry no file.
func (h *Handler) readParts(r *http.Request) (stored, oldPath string, err error) {
	mr, err := r.MultipartReader()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return "", "", nil
		}
		return "", "", err
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if stored != "" {
				_ = h.files.Remove(stored)
			}
			return "", "", err
		}

		switch part.FormName() {
		case imageField:
			if stored != "" || part.FileName() == "" || !acceptedImage(part.Header.Get("Content-Type")) {
				break
			}
			stored, err = h.files.Save(part.FileName(), part)
			if err != nil {
				part.Close()
				return "", "", err
			}
		case oldPathField:
			b, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
			if err != nil {
				part.Close()
				return "", "", err
			}
			oldPath = strings.TrimSpace(string(b))
		}
		part.Close()
	}

	return stored, oldPath, nil
}

func acceptedImage(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return acceptedTypes[strings.ToLower(mt)]
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("upload", "Failed to encode response", err)
	}
}
