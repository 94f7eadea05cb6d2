package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/wellpoints/internal/engine"
	"github.com/dukerupert/wellpoints/internal/model"
	"github.com/dukerupert/wellpoints/internal/store"
	"github.com/dukerupert/wellpoints/internal/websocket"
)

type AdminHandler struct {
	catalog *store.CatalogStore
	engine  *engine.Engine
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewAdminHandler(cs *store.CatalogStore, e *engine.Engine, hub *websocket.Hub, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{catalog: cs, engine: e, hub: hub, logger: logger}
}

type createChallengeRequest struct {
	Key           string `json:"key" validate:"required,max=128"`
	Title         string `json:"title" validate:"required,max=200"`
	Description   string `json:"description" validate:"max=2000"`
	Points        int    `json:"points" validate:"gte=0,lte=100000"`
	Category      string `json:"category" validate:"omitempty,oneof=physical mental"`
	RequiredDays  int    `json:"required_days" validate:"gte=1,lte=365"`
	CooldownHours int    `json:"cooldown_hours" validate:"gte=0"`
	Active        *bool  `json:"active"`
}

func (h *AdminHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req createChallengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	req.Key = strings.TrimSpace(req.Key)
	req.Title = strings.TrimSpace(req.Title)
	if err := model.Validator().Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	existing, err := h.catalog.GetByKey(r.Context(), req.Key)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if existing != nil {
		writeMessage(w, http.StatusConflict, "challenge key already exists")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	def, err := h.catalog.Create(r.Context(), model.ChallengeDefinition{
		Key:           req.Key,
		Title:         req.Title,
		Description:   req.Description,
		Points:        req.Points,
		Category:      req.Category,
		RequiredDays:  req.RequiredDays,
		CooldownHours: req.CooldownHours,
		Active:        active,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("challenge created", "challenge_key", def.Key, "points", def.Points)
	writeJSON(w, http.StatusCreated, def)
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *AdminHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := model.Validator().Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	key := r.PathValue("key")
	def, err := h.catalog.SetActive(r.Context(), key, *req.Active)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if def == nil {
		writeError(w, h.logger, engine.ErrChallengeNotFound)
		return
	}

	h.logger.Info("challenge availability changed", "challenge_key", key, "active", def.Active)
	writeJSON(w, http.StatusOK, def)
}

func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.Reconcile(r.Context(), r.PathValue("user_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.Status(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	clients := 0
	if h.hub != nil {
		clients = h.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            s,
		"websocket_clients": clients,
	})
}
