package timeline

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/chronica-ai/platform/pkg/common/logger"
	"github.com/chronica-ai/platform/pkg/common/models"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	service *Service
	repo    *Repository
	maxBody int64
}

func NewHTTPHandler(service *Service, repo *Repository, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, repo: repo, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/events", h.handleIngestEvent).Methods(http.MethodPost)
	router.HandleFunc("/events/{id}", h.handleGetEvent).Methods(http.MethodGet)
	router.HandleFunc("/variables", h.handleIngestVariable).Methods(http.MethodPost)
	router.HandleFunc("/variables/{id}", h.handleGetVariable).Methods(http.MethodGet)
	router.HandleFunc("/patients/{id}/events", h.handleQueryRange).Methods(http.MethodGet)
	router.HandleFunc("/patients/{id}/context", h.handleContext).Methods(http.MethodGet)
	router.HandleFunc("/patients/{id}/milestones/nearest", h.handleNearestMilestone).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req models.IngestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid event payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.IngestEvent(r.Context(), req)
	if err != nil {
		if IsValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, ErrDuplicateID) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		logger.Log.WithError(err).Error("failed to ingest event")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}

func (h *HTTPHandler) handleIngestVariable(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req models.IngestVariableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid variable payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	variable, err := h.service.IngestVariable(r.Context(), req)
	if err != nil {
		if IsValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Log.WithError(err).Error("failed to ingest variable")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(variable)
}

func (h *HTTPHandler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.repo.GetEvent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "event not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch event")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(event)
}

func (h *HTTPHandler) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	variable, err := h.repo.GetVariable(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "variable not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch variable")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(variable)
}

func (h *HTTPHandler) handleQueryRange(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]

	start, err := parseQueryDate(r.URL.Query().Get("start"), time.Time{})
	if err != nil {
		http.Error(w, "invalid start date", http.StatusBadRequest)
		return
	}
	end, err := parseQueryDate(r.URL.Query().Get("end"), time.Now().UTC())
	if err != nil {
		http.Error(w, "invalid end date", http.StatusBadRequest)
		return
	}

	filters := QueryFilters{ActiveOnly: r.URL.Query().Get("include_inactive") != "true"}
	if eventType := r.URL.Query().Get("event_type"); eventType != "" {
		filters.EventTypes = []string{eventType}
	}
	filters.Category = r.URL.Query().Get("category")

	events, err := h.repo.QueryRange(r.Context(), patientID, start, end, filters)
	if err != nil {
		logger.Log.WithError(err).Error("failed to query range")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"patient_id": patientID,
		"events":     events,
		"count":      len(events),
	})
}

func (h *HTTPHandler) handleContext(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]

	anchor, err := parseQueryDate(r.URL.Query().Get("anchor"), time.Now().UTC())
	if err != nil {
		http.Error(w, "invalid anchor date", http.StatusBadRequest)
		return
	}

	result, err := h.service.Context(r.Context(), patientID, anchor)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to build context")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *HTTPHandler) handleNearestMilestone(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]

	asOf, err := parseQueryDate(r.URL.Query().Get("as_of"), time.Now().UTC())
	if err != nil {
		http.Error(w, "invalid as_of date", http.StatusBadRequest)
		return
	}
	milestoneType := r.URL.Query().Get("type")
	if milestoneType == "" {
		http.Error(w, "type is required", http.StatusBadRequest)
		return
	}
	direction := r.URL.Query().Get("direction")

	milestone, err := h.repo.NearestMilestone(r.Context(), patientID, asOf, milestoneType, direction)
	if err != nil {
		logger.Log.WithError(err).Error("failed to look up milestone")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if milestone == nil {
		http.Error(w, "no milestone found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(milestone)
}

func parseQueryDate(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	date, err := ParseClinicalDate(raw, "")
	if err != nil {
		return time.Time{}, err
	}
	return date.Time, nil
}
