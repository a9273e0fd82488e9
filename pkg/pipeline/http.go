package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/chronica-ai/platform/pkg/common/logger"
	"github.com/chronica-ai/platform/pkg/detect"
	"github.com/chronica-ai/platform/pkg/qa"
	"github.com/chronica-ai/platform/pkg/timeline"
)

type HTTPHandler struct {
	service    *Service
	runner     *Runner
	detections *detect.Repository
	maxBody    int64
}

func NewHTTPHandler(service *Service, runner *Runner, detections *detect.Repository, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, runner: runner, detections: detections, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/patients/{id}/process", h.handleProcess).Methods(http.MethodPost)
	router.HandleFunc("/patients/{id}/report", h.handleReport).Methods(http.MethodGet)
	router.HandleFunc("/patients/{id}/inconsistencies", h.handleListInconsistencies).Methods(http.MethodGet)
	router.HandleFunc("/inconsistencies/{id}/override", h.handleOverride).Methods(http.MethodPost)
	router.HandleFunc("/inconsistencies/{id}/attempts", h.handleListAttempts).Methods(http.MethodGet)
	router.HandleFunc("/reports/needing-review", h.handleReviewQueue).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleProcess(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	if patientID == "" {
		http.Error(w, "patient id is required", http.StatusBadRequest)
		return
	}

	if !h.runner.Enqueue(patientID) {
		http.Error(w, "patient already queued", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"patient_id": patientID,
		"status":     "queued",
	})
}

func (h *HTTPHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Report(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, qa.ErrNotFound) {
			http.Error(w, "no report for patient", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch qa report")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (h *HTTPHandler) handleListInconsistencies(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	records, err := h.detections.ListByPatient(r.Context(), patientID)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list inconsistencies")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"patient_id":      patientID,
		"inconsistencies": records,
		"count":           len(records),
	})
}

func (h *HTTPHandler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	inconsistencyID := mux.Vars(r)["id"]
	attempts, err := h.service.Attempts(r.Context(), inconsistencyID)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list resolution attempts")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"inconsistency_id": inconsistencyID,
		"attempts":         attempts,
		"count":            len(attempts),
	})
}

func (h *HTTPHandler) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	patients, err := h.service.ReviewQueue(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list review queue")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"patients": patients,
		"count":    len(patients),
	})
}

func (h *HTTPHandler) handleOverride(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req struct {
		Action    string `json:"action"`
		Rationale string `json:"rationale"`
		Actor     string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Override(r.Context(), mux.Vars(r)["id"], req.Action, req.Rationale, req.Actor)
	if err != nil {
		if errors.Is(err, detect.ErrNotFound) {
			http.Error(w, "inconsistency not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, timeline.ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to apply override")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
