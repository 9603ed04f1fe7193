package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"

	"trendseer/internal/auth"
	"trendseer/internal/chat"
	"trendseer/internal/store"
)

const (
	msgRequestFailed  = "An error occurred during the request"
	msgUserIDRequired = "User ID is required"
	msgForbidden      = "Forbidden"
	defaultHistory    = 100
	maxHistory        = 500
)

// errForeignUser means a signed-in caller named another user.
var errForeignUser = errors.New("server: userId does not match the session")

func decodeTurn(r *http.Request) (chat.TurnRequest, error) {
	var req chat.TurnRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		return req, err
	}
	id, err := resolveUserID(r, req.UserID)
	req.UserID = id
	return req, err
}

// resolveUserID picks the user a request acts for. With a session the
// signed-in user wins and any other explicit ID is refused; without one
// (auth disabled) the explicit ID is used as is.
func resolveUserID(r *http.Request, explicit string) (string, error) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		return explicit, nil
	}
	if explicit != "" && explicit != u.ID {
		return "", errForeignUser
	}
	return u.ID, nil
}

func queryUserID(r *http.Request) (string, error) {
	return resolveUserID(r, r.URL.Query().Get("userId"))
}

// writeUserIDError answers a failed user resolution and reports whether it
// did. An empty ID is a 400, a foreign one a 403.
func writeUserIDError(w http.ResponseWriter, userID string, err error) bool {
	switch {
	case errors.Is(err, errForeignUser):
		writeError(w, http.StatusForbidden, msgForbidden)
	case userID == "":
		writeError(w, http.StatusBadRequest, msgUserIDRequired)
	default:
		return false
	}
	return true
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrUserIDRequired):
		return msgUserIDRequired
	case errors.Is(err, chat.ErrNoMessages):
		return "Messages are required"
	case errors.Is(err, chat.ErrEmptyMessage):
		return "Last message is empty"
	default:
		return "Invalid request"
	}
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decodeTurn(r)
	if errors.Is(err, errForeignUser) {
		writeError(w, http.StatusForbidden, msgForbidden)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	stream := newEventStream(w)
	reply, err := s.deps.Chat.Turn(ctx, req, stream.delta)
	switch {
	case err == nil:
		stream.done()
		s.log.Debug(ctx, "chat stream finished", "reply_len", len(reply))
	case chat.IsValidation(err):
		writeError(w, http.StatusBadRequest, validationMessage(err))
	case !stream.started():
		s.log.Error(ctx, "error in chat route", "error", err)
		writeError(w, http.StatusInternalServerError, msgRequestFailed)
	default:
		s.log.Error(ctx, "chat stream failed mid-response", "error", err)
		stream.fail(msgRequestFailed)
	}
}

func (s *Server) handleChatSimple(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decodeTurn(r)
	if errors.Is(err, errForeignUser) {
		writeError(w, http.StatusForbidden, msgForbidden)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: msgRequestFailed, Details: err.Error()})
		return
	}

	reply, err := s.deps.Chat.Turn(ctx, req, nil)
	var genErr *chat.GenerationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"role": "assistant", "content": reply})
	case chat.IsValidation(err):
		writeError(w, http.StatusBadRequest, validationMessage(err))
	case errors.As(err, &genErr):
		s.log.Error(ctx, "error generating content", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to generate response", Details: genErr.Err.Error()})
	default:
		s.log.Error(ctx, "error in simple chat route", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: msgRequestFailed, Details: err.Error()})
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := queryUserID(r)
	if writeUserIDError(w, userID, err) {
		return
	}
	limit := defaultHistory
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxHistory)
	}

	entries, err := s.deps.History.ListChats(ctx, userID, limit)
	if err != nil {
		s.log.Error(ctx, "error fetching chat history", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch chat history")
		return
	}
	// stored newest first, shown oldest first
	slices.Reverse(entries)
	if entries == nil {
		entries = []store.ChatEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chatHistory": entries})
}
