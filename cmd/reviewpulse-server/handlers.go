package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"

	"reviewpulse"
	"reviewpulse/internal/collector"
)

// defaultCollectLimit applies when a collect request omits the limit.
const defaultCollectLimit = 100

// App store ids are numeric; anything else is rejected before it can reach
// a feed URL.
var appIDPattern = regexp.MustCompile(`^\d+$`)

// handlers holds dependencies for all HTTP handler methods.
type handlers struct {
	engine *reviewpulse.Engine
}

type collectRequest struct {
	AppID string `json:"app_id"`
	Limit int    `json:"limit"`
}

type analyzeRequest struct {
	AppID string `json:"app_id"`
}

type exportResponse struct {
	AppID   string               `json:"app_id"`
	Total   int                  `json:"total"`
	Reviews []reviewpulse.Review `json:"reviews"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("reviewpulse-server: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *handlers) handleCollect(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !appIDPattern.MatchString(req.AppID) {
		writeError(w, http.StatusBadRequest, "app_id must be numeric")
		return
	}
	if req.Limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be positive")
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultCollectLimit
	}

	result, err := h.engine.CollectReviews(r.Context(), r.PathValue("source"), req.AppID, req.Limit)
	if err != nil {
		if errors.Is(err, collector.ErrUnknown) {
			writeError(w, http.StatusBadRequest, "unknown review source")
			return
		}
		log.Printf("reviewpulse-server: collect failed for app %s: %v", req.AppID, err)
		writeError(w, http.StatusInternalServerError, "collection failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !appIDPattern.MatchString(req.AppID) {
		writeError(w, http.StatusBadRequest, "app_id must be numeric")
		return
	}

	result, err := h.engine.AnalyzeReviews(r.Context(), req.AppID)
	if err != nil {
		if errors.Is(err, reviewpulse.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no reviews found for app")
			return
		}
		log.Printf("reviewpulse-server: analysis failed for app %s: %v", req.AppID, err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	appID := r.URL.Query().Get("app_id")
	if !appIDPattern.MatchString(appID) {
		writeError(w, http.StatusBadRequest, "app_id must be numeric")
		return
	}

	metrics, err := h.engine.AppMetrics(appID)
	if err != nil {
		if errors.Is(err, reviewpulse.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no analyzed reviews for app")
			return
		}
		log.Printf("reviewpulse-server: metrics failed for app %s: %v", appID, err)
		writeError(w, http.StatusInternalServerError, "metrics failed")
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}

func (h *handlers) handleExport(w http.ResponseWriter, r *http.Request) {
	appID := r.URL.Query().Get("app_id")
	if !appIDPattern.MatchString(appID) {
		writeError(w, http.StatusBadRequest, "app_id must be numeric")
		return
	}

	reviews, err := h.engine.ExportReviews(appID)
	if err != nil {
		if errors.Is(err, reviewpulse.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no reviews found for app")
			return
		}
		log.Printf("reviewpulse-server: export failed for app %s: %v", appID, err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	writeJSON(w, http.StatusOK, exportResponse{
		AppID:   appID,
		Total:   len(reviews),
		Reviews: reviews,
	})
}
