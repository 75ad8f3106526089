package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/portfolio/internal/datauri"
)

func (h *Handler) HandleImages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		records, err := h.catalog.ListByCategory(r.URL.Query().Get("category"))
		if err != nil {
			h.writeError(w, err.Error(), statusFor(err))
			return
		}
		h.writeJSON(w, records)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleImageDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/images/")
	if raw, ok := strings.CutSuffix(id, "/raw"); ok {
		h.handleRaw(w, r, raw)
		return
	}
	if id == "" || strings.Contains(id, "/") {
		h.writeError(w, "Image not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case "GET":
		record, err := h.catalog.Get(id)
		if err != nil {
			h.writeError(w, err.Error(), statusFor(err))
			return
		}
		h.writeJSON(w, record)
	case "DELETE":
		removed, err := h.catalog.Remove(id)
		warning, err := persistWarning(err)
		if err != nil {
			h.writeError(w, "Failed to remove image: "+err.Error(), http.StatusInternalServerError)
			return
		}
		response := map[string]any{
			"id":      id,
			"removed": removed,
		}
		if warning != "" {
			response["warning"] = warning
		}
		h.writeJSON(w, response)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRaw(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != "GET" && r.Method != "HEAD" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	record, err := h.catalog.Get(id)
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}
	if !datauri.IsDataURI(record.URL) {
		http.Redirect(w, r, record.URL, http.StatusFound)
		return
	}

	mediaType, data, err := datauri.Decode(record.URL)
	if err != nil {
		h.writeError(w, "Stored image is corrupt: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if mediaType == "" {
		mediaType = record.Type
	}

	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if r.Method == "HEAD" {
		return
	}
	_, _ = w.Write(data)
}
