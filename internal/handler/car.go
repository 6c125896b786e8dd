package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lukasschreiber/wimc/internal/auth"
	"github.com/lukasschreiber/wimc/internal/email"
	"github.com/lukasschreiber/wimc/internal/model"
	"github.com/lukasschreiber/wimc/internal/store"
	"github.com/lukasschreiber/wimc/internal/websocket"
)

type CarHandler struct {
	carStore      *store.CarStore
	keyStore      *store.KeyStore
	positionStore *store.PositionStore
	userStore     *store.UserStore
	emailClient   *email.Client
	hub           *websocket.Hub
	logger        *slog.Logger
}

func NewCarHandler(
	cs *store.CarStore,
	ks *store.KeyStore,
	ps *store.PositionStore,
	us *store.UserStore,
	ec *email.Client,
	hub *websocket.Hub,
	logger *slog.Logger,
) *CarHandler {
	return &CarHandler{
		carStore:      cs,
		keyStore:      ks,
		positionStore: ps,
		userStore:     us,
		emailClient:   ec,
		hub:           hub,
		logger:        logger,
	}
}

// carView is a car with its keys and position history. Positions are oldest
// first, so the last entry is where the car currently stands.
type carView struct {
	License   string           `json:"license"`
	Name      string           `json:"name"`
	Keys      []model.Key      `json:"keys"`
	Positions []model.Position `json:"positions"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (h *CarHandler) buildView(car *model.Car) (*carView, error) {
	keys, err := h.keyStore.ListByCar(car.ID)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []model.Key{}
	}
	positions, err := h.positionStore.ListByCar(car.ID)
	if err != nil {
		return nil, err
	}
	if positions == nil {
		positions = []model.Position{}
	}
	return &carView{
		License:   car.License,
		Name:      car.Name,
		Keys:      keys,
		Positions: positions,
		CreatedAt: car.CreatedAt,
		UpdatedAt: car.UpdatedAt,
	}, nil
}

type carRequest struct {
	License string `json:"license"`
	Name    string `json:"name"`
}

// Create registers a car and makes the caller its first owner.
func (h *CarHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req carRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.License = strings.TrimSpace(req.License)
	req.Name = strings.TrimSpace(req.Name)
	if req.License == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "license is required"})
		return
	}

	existing, err := h.carStore.GetByLicense(req.License)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "license already registered"})
		return
	}

	car, err := h.carStore.Create(req.License, req.Name, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage("car", "created", car.License, nil))
	view, err := h.buildView(car)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// List returns every car the caller is a confirmed owner of, each with its
// keys and position history.
func (h *CarHandler) List(w http.ResponseWriter, r *http.Request) {
	cars, err := h.carStore.ListForUser(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := []carView{}
	for i := range cars {
		view, err := h.buildView(&cars[i])
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		views = append(views, *view)
	}
	writeJSON(w, http.StatusOK, views)
}

// requireCar checks that the caller is a confirmed owner of the car named in
// the path and returns it. On failure it has already written the response.
func (h *CarHandler) requireCar(w http.ResponseWriter, r *http.Request) *model.Car {
	license := r.PathValue("license")

	ok, err := h.carStore.HasRights(auth.UserID(r.Context()), license)
	if err != nil {
		writeError(w, h.logger, err)
		return nil
	}
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "no rights to this car"})
		return nil
	}

	car, err := h.carStore.GetByLicense(license)
	if err != nil {
		writeError(w, h.logger, err)
		return nil
	}
	if car == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "car not found"})
		return nil
	}
	return car
}

func (h *CarHandler) Get(w http.ResponseWriter, r *http.Request) {
	car := h.requireCar(w, r)
	if car == nil {
		return
	}

	view, err := h.buildView(car)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *CarHandler) Update(w http.ResponseWriter, r *http.Request) {
	car := h.requireCar(w, r)
	if car == nil {
		return
	}

	var req carRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	car, err := h.carStore.UpdateName(car.License, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage("car", "updated", car.License, nil))
	view, err := h.buildView(car)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Delete removes the car together with its ownerships, invitations, keys, and
// positions.
func (h *CarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	car := h.requireCar(w, r)
	if car == nil {
		return
	}

	if err := h.carStore.Delete(car.License); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage("car", "deleted", car.License, nil))
	w.WriteHeader(http.StatusNoContent)
}

type inviteRequest struct {
	Email string `json:"email"`
}

// Invite emails a registered user an invitation code to co-own the car.
// Re-inviting the same user replaces any earlier code.
func (h *CarHandler) Invite(w http.ResponseWriter, r *http.Request) {
	car := h.requireCar(w, r)
	if car == nil {
		return
	}

	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}

	invitee, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if invitee == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}

	membership, err := h.carStore.GetMembership(invitee.ID, car.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if membership != nil && membership.Active {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "user already owns this car"})
		return
	}

	code, err := h.carStore.Invite(invitee.ID, car.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.emailClient.SendCode(invitee.Email, code, "invite", car.Name); err != nil {
		h.logger.Error("send invitation email", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to send invitation email"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "invitation sent"})
}

type acceptRequest struct {
	Code string `json:"code"`
}

// Accept confirms the caller's pending invitation to the car.
func (h *CarHandler) Accept(w http.ResponseWriter, r *http.Request) {
	license := r.PathValue("license")

	car, err := h.carStore.GetByLicense(license)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if car == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "car not found"})
		return
	}

	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code is required"})
		return
	}

	if err := h.carStore.AcceptInvitation(auth.UserID(r.Context()), car.ID, req.Code); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "invitation accepted"})
}

type positionRequest struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Number *int64   `json:"number"`
}

// StorePosition appends a new parking position to the car's history.
func (h *CarHandler) StorePosition(w http.ResponseWriter, r *http.Request) {
	car := h.requireCar(w, r)
	if car == nil {
		return
	}

	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.X == nil || req.Y == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "x and y are required"})
		return
	}

	pos, err := h.positionStore.Append(car.ID, *req.X, *req.Y, req.Number)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage("position", "created", car.License, map[string]any{
		"x": pos.X,
		"y": pos.Y,
	}))
	w.WriteHeader(http.StatusNoContent)
}
