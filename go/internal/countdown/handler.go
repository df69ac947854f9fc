package countdown

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Handler serves the plain HTTP API used by browsers and the admin page.
type Handler struct {
	app TimerApp
}

// NewHandler creates a new HTTP handler
func NewHandler(app TimerApp) *Handler {
	return &Handler{app: app}
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleStart handles POST /start. With ?wait=true the response is delayed
// until the pre-countdown has committed.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	wait := false
	if v := r.URL.Query().Get("wait"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "wait must be a boolean"})
			return
		}
		wait = parsed
	}

	res, err := h.app.Start(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	if wait {
		if err := awaitCommit(r.Context(), res); err != nil {
			h.writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: string(res.Outcome)})
}

// HandleReset handles POST /reset
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Reset(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: ResetMessage})
}

// HandleGetTimer handles GET /timer
func (h *Handler) HandleGetTimer(w http.ResponseWriter, r *http.Request) {
	view, err := h.app.Current(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, view)
}

// RegisterRoutes registers the timer routes. admin wraps the mutating
// routes (rate limiting in the server).
func (h *Handler) RegisterRoutes(mux *http.ServeMux, admin ...func(http.Handler) http.Handler) {
	wrap := func(hf http.HandlerFunc) http.Handler {
		var handler http.Handler = hf
		for i := len(admin) - 1; i >= 0; i-- {
			handler = admin[i](handler)
		}
		return handler
	}

	mux.Handle("POST /start", wrap(h.HandleStart))
	mux.Handle("POST /reset", wrap(h.HandleReset))
	mux.HandleFunc("GET /timer", h.HandleGetTimer)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrStorageUnavailable):
		log.Error().Err(err).Msg("timer store unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: ErrStorageUnavailable.Error()})
	case errors.Is(err, ErrCancelled):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		log.Error().Err(err).Msg("timer request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
