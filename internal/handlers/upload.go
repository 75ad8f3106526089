package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/lehigh-university-libraries/portfolio/internal/catalog"
)

const (
	// MaxUploadFiles bounds how many files one request may carry
	MaxUploadFiles = 20
	// formOverhead covers multipart headers and form fields
	formOverhead = 64 << 10
)

// formBlob exposes an uploaded multipart part as a catalog blob
type formBlob struct {
	header *multipart.FileHeader
	limit  int64
}

func (b formBlob) Name() string        { return b.header.Filename }
func (b formBlob) Size() int64         { return b.header.Size }
func (b formBlob) ContentType() string { return b.header.Header.Get("Content-Type") }

func (b formBlob) Open() (io.ReadCloser, error) {
	if b.header.Size > b.limit {
		return nil, fmt.Errorf("file too large (max %d bytes)", b.limit)
	}
	return b.header.Open()
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload*MaxUploadFiles+formOverhead)

	// parts above this stay on disk until RemoveAll
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, fmt.Sprintf("Upload too large (max %d files of %d bytes)", MaxUploadFiles, h.maxUpload), http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(w, "Failed to parse upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		h.writeError(w, "No files provided", http.StatusBadRequest)
		return
	}

	blobs := make([]catalog.Blob, 0, len(headers))
	for _, header := range headers {
		blobs = append(blobs, formBlob{header: header, limit: h.maxUpload})
	}

	report, err := h.catalog.Upload(r.Context(), blobs, r.FormValue("category"))
	if report == nil {
		h.writeError(w, "Upload failed: "+err.Error(), statusFor(err))
		return
	}
	warning, err := persistWarning(err)
	if err != nil {
		h.writeError(w, "Upload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]any{
		"added":   report.Added,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}
	if warning != "" {
		response["warning"] = warning
	}
	h.writeJSON(w, response)
}
