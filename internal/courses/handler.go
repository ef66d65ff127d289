package courses

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/course-studio/backend/internal/logger"
	"github.com/course-studio/backend/internal/middleware"
	"github.com/course-studio/backend/internal/models"
)

type Handler struct {
	service *Service
	log     *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{service: service, log: log}
}

// RegisterRoutes mounts the generation endpoints on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/outline", h.GenerateOutline).Methods("POST")
	r.HandleFunc("/lesson-cards", h.GenerateLessonCards).Methods("POST")
	r.HandleFunc("/lesson-cards/single", h.GenerateSingleCard).Methods("POST")
}

func (h *Handler) GenerateOutline(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	var in models.OutlineInput
	if err := decodeRequest(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	resp, err := h.service.GenerateOutline(r.Context(), in)
	if err != nil {
		h.log.Error("[handler] outline generation failed", "error", err.Error(), "subject", middleware.Subject(r.Context()))
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GenerateLessonCards(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	var in models.LessonCardsInput
	if err := decodeRequest(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	resp, err := h.service.GenerateLessonCards(r.Context(), in)
	if err != nil {
		h.log.Error("[handler] lesson cards generation failed", "error", err.Error(), "subject", middleware.Subject(r.Context()))
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GenerateSingleCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	var in models.LessonCardsInput
	if err := decodeRequest(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	resp, err := h.service.GenerateSingleCard(r.Context(), in)
	if err != nil {
		h.log.Error("[handler] single card generation failed", "error", err.Error(), "subject", middleware.Subject(r.Context()))
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeRequest merges query parameters and the JSON body into v. Query
// values are applied first so that the body wins on conflict. An empty body
// is allowed.
func decodeRequest(r *http.Request, v any) error {
	if err := mergeQuery(r.URL.Query(), v); err != nil {
		return err
	}
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// mergeQuery copies query parameters into v through JSON so they land in
// the same fields as body properties. Values that cannot take a field's
// shape are skipped.
func mergeQuery(q url.Values, v any) error {
	for k, vals := range q {
		if len(vals) == 0 {
			continue
		}
		var val any = vals[len(vals)-1]
		if k == "existingTitles" {
			val = vals
		}
		data, err := json.Marshal(map[string]any{k: val})
		if err != nil {
			return err
		}
		_ = json.Unmarshal(data, v)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
