package conversation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trialmatch-ai/platform/internal/transcribe"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

// maxAudioBytes caps uploaded voice messages at 25 MB, the Whisper limit.
const maxAudioBytes = 25 << 20

// Handler wires HTTP requests to the conversation service.
type Handler struct {
	service     *Service
	transcriber transcribe.Transcriber
	logger      *logging.Logger
}

// NewHandler creates a conversation handler. The transcriber is optional;
// without one the transcription endpoint reports the feature unavailable.
func NewHandler(service *Service, transcriber transcribe.Transcriber, logger *logging.Logger) *Handler {
	if service == nil {
		panic("conversation: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service:     service,
		transcriber: transcriber,
		logger:      logger,
	}
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode chat request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.ProcessTurn(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to process turn", "session_id", req.SessionID, "error", err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetSession handles GET /session/{sessionID}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	info, err := h.service.Session(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load session", "session_id", sessionID, "error", err)
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, info)
}

// DeleteSession handles DELETE /session/{sessionID}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.service.DeleteSession(r.Context(), sessionID); err != nil {
		h.logger.Error("failed to delete session", "session_id", sessionID, "error", err)
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Transcribe handles POST /transcribe with a multipart "audio" file.
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if h.transcriber == nil {
		http.Error(w, "Transcription is not configured", http.StatusServiceUnavailable)
		return
	}

	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "audio file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxAudioBytes))
	if err != nil {
		http.Error(w, "Failed to read audio", http.StatusBadRequest)
		return
	}

	text, err := h.transcriber.Transcribe(r.Context(), header.Filename, audio)
	if err != nil {
		h.logger.Error("failed to transcribe audio", "filename", header.Filename, "error", err)
		http.Error(w, "Failed to transcribe audio", http.StatusBadGateway)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
