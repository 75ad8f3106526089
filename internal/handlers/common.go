package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/portfolio/internal/catalog"
	"github.com/lehigh-university-libraries/portfolio/internal/models"
)

// MaxUploadBytes is the per-file upload limit
const MaxUploadBytes = 10 * 1024 * 1024

type Handler struct {
	catalog   *catalog.Manager
	staticDir string
	maxUpload int64
}

type Option func(*Handler)

// WithStaticDir sets the directory served at /
func WithStaticDir(dir string) Option {
	return func(h *Handler) { h.staticDir = dir }
}

// WithMaxUpload overrides the per-file upload limit
func WithMaxUpload(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

func New(manager *catalog.Manager, opts ...Option) *Handler {
	h := &Handler{
		catalog:   manager,
		staticDir: "static",
		maxUpload: MaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers every endpoint on a new mux
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/images", h.HandleImages)
	mux.HandleFunc("/api/images/", h.HandleImageDetail)
	mux.HandleFunc("/api/upload", h.HandleUpload)
	mux.HandleFunc("/healthcheck", h.HandleHealthcheck)
	mux.HandleFunc("/", h.HandleStatic)
	return mux
}

func (h *Handler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Unable to write healthcheck", "err", err)
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Debug(message, "code", code)
	}
	http.Error(w, message, code)
}

// persistWarning turns a store failure into a message for the client.
// Any other error is returned unchanged.
func persistWarning(err error) (string, error) {
	if err == nil {
		return "", nil
	}
	if errors.Is(err, catalog.ErrNotPersisted) {
		return "Changes are kept in memory only and will be lost on restart", nil
	}
	return "", err
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidCategory):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
