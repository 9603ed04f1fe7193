package server

import (
	"errors"
	"net/http"
	"strconv"

	"trendseer/internal/memory"
	"trendseer/internal/store"
)

type profileResponse struct {
	UserID         string             `json:"userId"`
	Profile        memory.ProfileData `json:"profile"`
	MemoryCount    int                `json:"memoryCount"`
	DatabaseStatus string             `json:"databaseStatus"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := queryUserID(r)
	if writeUserIDError(w, userID, err) {
		s.log.Warn(ctx, "profile request without usable user id", "error", err)
		return
	}

	if s.cfg.IsPreview() || s.cfg.IsDevelopment() {
		s.log.Warn(ctx, "skipping database query in preview/development")
		writeJSON(w, http.StatusOK, profileResponse{
			UserID:         userID,
			Profile:        memory.ProfileData{Industries: []string{}, Trends: []string{}},
			DatabaseStatus: "skipped_build",
		})
		return
	}

	p, err := s.deps.Memory.Profile(ctx, userID)
	switch {
	case errors.Is(err, store.ErrSchemaMissing):
		s.log.Error(ctx, "profile: tables missing, likely setup issue", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:         "Database not set up properly. Please run the schema.sql script in your Supabase project.",
			SetupRequired: true,
		})
		return
	case err != nil:
		s.log.Error(ctx, "profile: query error", "error", err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		UserID:         userID,
		Profile:        p.Profile,
		MemoryCount:    p.MemoryCount,
		DatabaseStatus: "ready",
	})
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := queryUserID(r)
	if writeUserIDError(w, userID, err) {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}
	limit := s.cfg.MaxMemories
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	matches := s.deps.Memory.SearchSimilarMemories(ctx, userID, q, limit)
	writeJSON(w, http.StatusOK, map[string]any{"memories": matches})
}
