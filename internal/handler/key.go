package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lukasschreiber/wimc/internal/auth"
	"github.com/lukasschreiber/wimc/internal/model"
	"github.com/lukasschreiber/wimc/internal/store"
	"github.com/lukasschreiber/wimc/internal/websocket"
)

type KeyHandler struct {
	keyStore *store.KeyStore
	carStore *store.CarStore
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewKeyHandler(ks *store.KeyStore, cs *store.CarStore, hub *websocket.Hub, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{keyStore: ks, carStore: cs, hub: hub, logger: logger}
}

type keyRequest struct {
	License string `json:"license"`
	Name    string `json:"name"`
}

// Create registers a key for a car the caller owns.
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
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
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	ok, err := h.carStore.HasRights(auth.UserID(r.Context()), req.License)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "no rights to this car"})
		return
	}

	car, err := h.carStore.GetByLicense(req.License)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if car == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "car not found"})
		return
	}

	key, err := h.keyStore.Create(car.ID, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage("key", "created", car.License, nil))
	writeJSON(w, http.StatusCreated, key)
}

// requireKey loads the key named in the path and checks that the caller owns
// its car. On failure it has already written the response.
func (h *KeyHandler) requireKey(w http.ResponseWriter, r *http.Request) *model.Key {
	key, err := h.keyStore.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return nil
	}
	if key == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "key not found"})
		return nil
	}

	membership, err := h.carStore.GetMembership(auth.UserID(r.Context()), key.CarID)
	if err != nil {
		writeError(w, h.logger, err)
		return nil
	}
	if membership == nil || !membership.Active {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "no rights to this key"})
		return nil
	}
	return key
}

func (h *KeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := h.requireKey(w, r)
	if key == nil {
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (h *KeyHandler) Update(w http.ResponseWriter, r *http.Request) {
	key := h.requireKey(w, r)
	if key == nil {
		return
	}

	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	key, err := h.keyStore.UpdateName(key.UUID, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcastForCar(key.CarID, "updated")
	writeJSON(w, http.StatusOK, key)
}

// Delete removes a key. Deleting an unknown identifier succeeds, so retrying
// a delete is harmless.
func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, err := h.keyStore.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if key == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	membership, err := h.carStore.GetMembership(auth.UserID(r.Context()), key.CarID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if membership == nil || !membership.Active {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "no rights to this key"})
		return
	}

	if err := h.keyStore.Delete(key.UUID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcastForCar(key.CarID, "deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *KeyHandler) broadcastForCar(carID int64, action string) {
	car, err := h.carStore.GetByID(carID)
	if err != nil || car == nil {
		return
	}
	h.hub.Broadcast(websocket.NewMessage("key", action, car.License, nil))
}
