package server

import (
	"errors"
	"net/http"
	"strings"

	"trendscribe/internal/util"
	"trendscribe/pkg/chat"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req chat.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reply, err := s.chat.Send(r.Context(), userID, req)
	if err != nil {
		writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	items, err := s.chat.List(r.Context(), userID, limit)
	if err != nil {
		writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// /api/chat/conversations/{id}
func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request, userID string) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/chat/conversations/"), "/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		conv, err := s.chat.Get(r.Context(), userID, id)
		if err != nil {
			writeChatError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	case http.MethodDelete:
		if err := s.chat.Delete(r.Context(), userID, id); err != nil {
			writeChatError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		genErr     *chat.GenerationError
		storageErr *chat.StorageError
	)
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		notFound(w, "conversation not found")
	case errors.As(err, &genErr):
		writeError(w, http.StatusBadGateway, "failed to generate response")
	case errors.As(err, &storageErr):
		util.LoggerFromContext(r.Context()).Error("storage failure", "op", storageErr.Op, "err", storageErr.Err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
	default:
		util.LoggerFromContext(r.Context()).Error("chat request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
