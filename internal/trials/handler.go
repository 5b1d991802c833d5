package trials

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/trialmatch-ai/platform/pkg/logging"
)

// Handler exposes the trial registry over HTTP.
type Handler struct {
	registry *RegistryClient
	logger   *logging.Logger
}

func NewHandler(registry *RegistryClient, logger *logging.Logger) *Handler {
	if registry == nil {
		panic("trials: registry client is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{registry: registry, logger: logger}
}

// Search handles GET /trials/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	params := SearchParams{
		Condition: strings.TrimSpace(r.URL.Query().Get("condition")),
		Location:  strings.TrimSpace(r.URL.Query().Get("location")),
		Status:    splitCSV(r.URL.Query().Get("status")),
	}
	if params.Condition == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "condition query parameter is required"})
		return
	}
	if raw := r.URL.Query().Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "max_results must be a positive integer"})
			return
		}
		params.MaxResults = n
	}

	results, err := h.registry.Search(r.Context(), params)
	if err != nil {
		h.logger.Error("trial search failed", "error", err, "condition", params.Condition)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "trial registry unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trials": results,
		"count":  len(results),
	})
}

// Get handles GET /trials/{nctID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	nctID := strings.TrimSpace(chi.URLParam(r, "nctID"))
	if nctID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "trial id is required"})
		return
	}

	trial, err := h.registry.Get(r.Context(), nctID)
	if err != nil {
		h.logger.Error("trial lookup failed", "error", err, "nct_id", nctID)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "trial registry unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, trial)
}

// splitCSV splits a comma-separated query value, dropping empty entries.
func splitCSV(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	return values
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
