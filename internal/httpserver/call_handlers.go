package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/service"
)

type callInitiateRequest struct {
	TargetID string          `json:"target_id"`
	RoomID   string          `json:"room_id"`
	CallType domain.CallType `json:"call_type"`
}

func handleInitiateCall(calls *service.CallService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req callInitiateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
			return
		}
		caller := CurrentPrincipal(r)

		session, err := calls.Initiate(r.Context(), *caller, req.TargetID, req.RoomID, req.CallType)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	}
}

type callJoinRequest struct {
	Capabilities map[string]any `json:"capabilities"`
}

func handleJoinCall(calls *service.CallService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req callJoinRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		user := CurrentPrincipal(r)

		session, descriptor, err := calls.Join(r.Context(), chi.URLParam(r, "sessionID"), *user, req.Capabilities)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session":    session,
			"connection": descriptor,
		})
	}
}

func handleEndCall(calls *service.CallService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentPrincipal(r)
		session, err := calls.End(r.Context(), chi.URLParam(r, "sessionID"), *user)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func handleCallStatus(calls *service.CallService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentPrincipal(r)
		view, err := calls.Status(r.Context(), chi.URLParam(r, "sessionID"), *viewer)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type mediaOpRequest struct {
	Params map[string]any `json:"params"`
}

type mediaOp func(r *http.Request, sessionID string, user domain.Principal, params map[string]any) (map[string]any, error)

func handleMediaOp(op mediaOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mediaOpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
			return
		}
		user := CurrentPrincipal(r)

		result, err := op(r, chi.URLParam(r, "sessionID"), *user, req.Params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleCreateTransport(calls *service.CallService) http.HandlerFunc {
	return handleMediaOp(func(r *http.Request, sessionID string, user domain.Principal, params map[string]any) (map[string]any, error) {
		return calls.CreateTransport(r.Context(), sessionID, user, params)
	})
}

func handleProduce(calls *service.CallService) http.HandlerFunc {
	return handleMediaOp(func(r *http.Request, sessionID string, user domain.Principal, params map[string]any) (map[string]any, error) {
		return calls.Produce(r.Context(), sessionID, user, params)
	})
}

func handleConsume(calls *service.CallService) http.HandlerFunc {
	return handleMediaOp(func(r *http.Request, sessionID string, user domain.Principal, params map[string]any) (map[string]any, error) {
		return calls.Consume(r.Context(), sessionID, user, params)
	})
}
