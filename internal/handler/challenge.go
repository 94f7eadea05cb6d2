package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/wellpoints/internal/auth"
	"github.com/dukerupert/wellpoints/internal/engine"
	"github.com/dukerupert/wellpoints/internal/model"
	"github.com/dukerupert/wellpoints/internal/websocket"
)

type ChallengeHandler struct {
	engine *engine.Engine
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewChallengeHandler(e *engine.Engine, hub *websocket.Hub, logger *slog.Logger) *ChallengeHandler {
	return &ChallengeHandler{engine: e, hub: hub, logger: logger}
}

// challengeRequest carries the challenge reference. Clients send it as
// "challengeId"; "challenge" is accepted too.
type challengeRequest struct {
	ChallengeID *model.ChallengeRef `json:"challengeId"`
	Challenge   *model.ChallengeRef `json:"challenge"`
}

func (req challengeRequest) ref() (model.ChallengeRef, error) {
	switch {
	case req.ChallengeID != nil:
		return *req.ChallengeID, nil
	case req.Challenge != nil:
		return *req.Challenge, nil
	}
	return model.ChallengeRef{}, model.ErrEmptyChallengeRef
}

func (h *ChallengeHandler) readRef(w http.ResponseWriter, r *http.Request) (model.ChallengeRef, bool) {
	var req challengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return model.ChallengeRef{}, false
	}
	ref, err := req.ref()
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "challengeId is required")
		return model.ChallengeRef{}, false
	}
	return ref, true
}

func currentUser(r *http.Request) engine.User {
	ac, _ := auth.FromContext(r.Context())
	return engine.User{ID: ac.UserID, DisplayName: ac.DisplayName}
}

func (h *ChallengeHandler) broadcastCompletion(user engine.User, res *engine.CompletionResult) {
	if h.hub == nil || res == nil {
		return
	}
	h.hub.Broadcast(websocket.ChallengeCompleted(user.ID, user.DisplayName,
		res.Completion.ChallengeKey, res.PointsAwarded, res.NewTotal))
	h.hub.Broadcast(websocket.LeaderboardUpdated())
}

func (h *ChallengeHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListChallenges(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ChallengeHandler) Start(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.readRef(w, r)
	if !ok {
		return
	}

	res, err := h.engine.StartChallenge(r.Context(), currentUser(r), ref)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	status := http.StatusCreated
	if res.AlreadyActive {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (h *ChallengeHandler) Progress(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.readRef(w, r)
	if !ok {
		return
	}

	user := currentUser(r)
	res, err := h.engine.RecordProgress(r.Context(), user.ID, ref.Key)
	if err != nil {
		// The day was recorded even if the automatic completion was refused.
		if res != nil && errors.Is(err, engine.ErrCooldownActive) {
			h.logger.Info("progress recorded, completion deferred by cooldown",
				"user_id", user.ID, "challenge_key", ref.Key)
		}
		writeError(w, h.logger, err)
		return
	}

	h.broadcastCompletion(user, res.Completion)
	writeJSON(w, http.StatusOK, res)
}

func (h *ChallengeHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.readRef(w, r)
	if !ok {
		return
	}

	user := currentUser(r)
	res, err := h.engine.CompleteChallenge(r.Context(), user, ref)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcastCompletion(user, res)
	writeJSON(w, http.StatusOK, res)
}

func (h *ChallengeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.readRef(w, r)
	if !ok {
		return
	}

	if err := h.engine.CancelChallenge(r.Context(), auth.UserID(r.Context()), ref.Key); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChallengeHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.Profile(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ChallengeHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	board, err := h.engine.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *ChallengeHandler) Rank(w http.ResponseWriter, r *http.Request) {
	rank, err := h.engine.Rank(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rank)
}
