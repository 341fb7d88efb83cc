package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/service"
)

type roomCreateRequest struct {
	Name             *string                        `json:"name"`
	Type             domain.RoomType                `json:"type"`
	ParticipantIDs   []string                       `json:"participant_ids"`
	IdentitySettings *domain.IdentityRevealSettings `json:"identity_settings"`
}

func handleCreateRoom(rooms *service.RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roomCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
			return
		}
		creator := CurrentPrincipal(r)

		room, err := rooms.Create(r.Context(), *creator, service.RoomCreateInput{
			Name:             req.Name,
			Type:             req.Type,
			ParticipantIDs:   req.ParticipantIDs,
			IdentitySettings: req.IdentitySettings,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, room)
	}
}

func handleListRooms(rooms *service.RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentPrincipal(r)
		views, err := rooms.ListForViewer(r.Context(), *viewer)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetRoom(rooms *service.RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentPrincipal(r)
		view, err := rooms.Get(r.Context(), chi.URLParam(r, "roomID"), *viewer)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func handleUpdateIdentitySettings(rooms *service.RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var settings domain.IdentityRevealSettings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
			return
		}
		caller := CurrentPrincipal(r)
		if err := rooms.UpdateIdentitySettings(r.Context(), chi.URLParam(r, "roomID"), *caller, settings); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleMarkRoomRead(rooms *service.RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentPrincipal(r)
		if err := rooms.MarkRead(r.Context(), chi.URLParam(r, "roomID"), *viewer); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
