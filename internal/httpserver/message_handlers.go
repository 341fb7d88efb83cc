package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/service"
)

type messageCreateRequest struct {
	RoomID      string   `json:"room_id"`
	Content     string   `json:"content"`
	IsAnonymous bool     `json:"is_anonymous"`
	ReplyToID   *string  `json:"reply_to_id"`
	Attachments []string `json:"attachments"`
}

func handleCreateMessage(messages *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
			return
		}
		sender := CurrentPrincipal(r)

		msg, err := messages.Send(r.Context(), *sender, service.MessageCreateInput{
			RoomID:      req.RoomID,
			Content:     req.Content,
			IsAnonymous: req.IsAnonymous,
			ReplyToID:   req.ReplyToID,
			Attachments: req.Attachments,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleListMessages(messages *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentPrincipal(r)
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		views, err := messages.List(r.Context(), chi.URLParam(r, "roomID"), *viewer, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

type moderateRequest struct {
	State  domain.ModerationState `json:"state"`
	Reason string                 `json:"reason"`
}

func handleModerateMessage(messages *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moderateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
			return
		}
		caller := CurrentPrincipal(r)
		if err := messages.Moderate(r.Context(), *caller, chi.URLParam(r, "messageID"), req.State, req.Reason); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "moderated"})
	}
}
