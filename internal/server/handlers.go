package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"holders-backend/internal/cadence"
	"holders-backend/internal/history"
	"holders-backend/internal/models"
	"holders-backend/internal/utils"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SeriesResponse is the body of GET /api/series
type SeriesResponse struct {
	Subject string          `json:"subject"`
	Cadence string          `json:"cadence"`
	Data    []models.Sample `json:"data"`
}

type subjectRequest struct {
	Subject string `json:"subject"`
}

type cadenceRequest struct {
	Cadence string `json:"cadence"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"clients": s.hub.GetClientCount(),
		"queue":   s.hub.Stats(),
		"subject": s.tracker.Subject(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Status())
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	data := s.tracker.Snapshot()
	if data == nil {
		data = []models.Sample{}
	}
	writeJSON(w, http.StatusOK, SeriesResponse{
		Subject: s.tracker.Subject(),
		Cadence: s.tracker.Cadence(),
		Data:    data,
	})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Metadata())
}

func (s *Server) handleCadences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"options": cadence.Options,
		"default": cadence.Default,
	})
}

func (s *Server) handleGetSubject(w http.ResponseWriter, r *http.Request) {
	subject := s.tracker.Subject()
	writeJSON(w, http.StatusOK, map[string]string{
		"subject":      subject,
		"shortSubject": utils.ShortAddress(subject),
	})
}

func (s *Server) handleSetSubject(w http.ResponseWriter, r *http.Request) {
	var req subjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := s.tracker.SetSubject(req.Subject); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.Status())
}

func (s *Server) handleGetCadence(w http.ResponseWriter, r *http.Request) {
	c := s.tracker.Cadence()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cadence":    c,
		"intervalMs": cadence.Interval(c).Milliseconds(),
	})
}

func (s *Server) handleSetCadence(w http.ResponseWriter, r *http.Request) {
	var req cadenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := s.tracker.SetCadence(strings.TrimSpace(req.Cadence)); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.Status())
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	h := s.tracker.History()
	if h == nil {
		writeJSON(w, http.StatusOK, []history.Entry{})
		return
	}
	writeJSON(w, http.StatusOK, h.List())
}

func (s *Server) handleAddHistory(w http.ResponseWriter, r *http.Request) {
	h := s.tracker.History()
	if h == nil {
		writeError(w, http.StatusNotFound, "history is disabled", nil)
		return
	}

	var md models.TokenMetadata
	if err := json.NewDecoder(r.Body).Decode(&md); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	md.ID = strings.TrimSpace(md.ID)
	if md.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}
	if md.Name == "" {
		md.Name = models.PlaceholderName
	}
	if md.Logo == "" {
		md.Logo = models.PlaceholderLogo
	}

	entries, err := h.Add(r.Context(), md)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entries)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	h := s.tracker.History()
	if h == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.Clear(r.Context()); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeAppError maps the error taxonomy onto HTTP statuses
func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch utils.GetErrorType(err) {
	case utils.ErrorTypeValidation:
		status = http.StatusBadRequest
	case utils.ErrorTypeNetwork, utils.ErrorTypeProvider, utils.ErrorTypeTimeout:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		utils.LogError(err, utils.ServerLogger, "Request failed")
	}

	writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Code:    utils.GetErrorCode(err),
		Details: detailsOf(err),
	})
}

func detailsOf(err error) string {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return ""
}
