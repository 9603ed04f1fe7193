package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"trendseer/internal/trends"
)

type analyzeRequest struct {
	Topic      string   `json:"topic"`
	Industries []string `json:"industries"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req analyzeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.log.Warn(ctx, "bad trend analysis body", "error", err)
		writeError(w, http.StatusInternalServerError, msgRequestFailed)
		return
	}

	analysis, err := s.deps.Analyzer.Analyze(ctx, req.Topic, req.Industries)
	var perr *trends.ParseError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, analysis)
	case errors.Is(err, trends.ErrTopicRequired):
		writeError(w, http.StatusBadRequest, "Topic is required")
	case errors.As(err, &perr):
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to parse trend analysis",
			"rawText": perr.RawText,
		})
	default:
		s.log.Error(ctx, "error in trend analysis route", "error", err)
		writeError(w, http.StatusInternalServerError, msgRequestFailed)
	}
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Topics == nil {
		writeJSON(w, http.StatusOK, trends.Snapshot{Topics: []string{}, Industries: []string{}})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Topics.Topics())
}
