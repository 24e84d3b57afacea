package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/almacen-erp/api/internal/database"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// UnitStore defines the database methods needed by unit handlers.
type UnitStore interface {
	ListUnits(ctx context.Context) ([]database.Unit, error)
	GetUnit(ctx context.Context, id uuid.UUID) (database.Unit, error)
	CreateUnit(ctx context.Context, arg database.CreateUnitParams) (database.Unit, error)
	UpdateUnit(ctx context.Context, arg database.UpdateUnitParams) (database.Unit, error)
	SoftDeleteUnit(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	CountLiveProductsByUnit(ctx context.Context, unitID uuid.UUID) (int64, error)
}

// UnitHandler handles measurement unit CRUD endpoints.
type UnitHandler struct {
	store UnitStore
}

// NewUnitHandler creates a new UnitHandler.
func NewUnitHandler(store UnitStore) *UnitHandler {
	return &UnitHandler{store: store}
}

// RegisterRoutes registers unit CRUD endpoints on the given Chi router.
func (h *UnitHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})
}

// --- Request / Response types ---

type unitRequest struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type unitResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUnitResponse(u database.Unit) unitResponse {
	return unitResponse{
		ID:        u.ID,
		Name:      u.Name,
		Symbol:    u.Symbol,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// --- Handlers ---

// List returns all live units.
func (h *UnitHandler) List(w http.ResponseWriter, r *http.Request) {
	units, err := h.store.ListUnits(r.Context())
	if err != nil {
		log.Printf("ERROR: list units: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]unitResponse, len(units))
	for i, u := range units {
		resp[i] = toUnitResponse(u)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single unit by ID.
func (h *UnitHandler) Get(w http.ResponseWriter, r *http.Request) {
	unitID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid unit ID"})
		return
	}

	unit, err := h.store.GetUnit(r.Context(), unitID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unit not found"})
			return
		}
		log.Printf("ERROR: get unit: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toUnitResponse(unit))
}

// Create adds a new unit.
func (h *UnitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req unitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" || req.Symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and symbol are required"})
		return
	}

	unit, err := h.store.CreateUnit(r.Context(), database.CreateUnitParams{
		Name:   req.Name,
		Symbol: req.Symbol,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "unit symbol already exists"})
			return
		}
		log.Printf("ERROR: create unit: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toUnitResponse(unit))
}

// Update modifies an existing unit.
func (h *UnitHandler) Update(w http.ResponseWriter, r *http.Request) {
	unitID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid unit ID"})
		return
	}

	var req unitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" || req.Symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and symbol are required"})
		return
	}

	unit, err := h.store.UpdateUnit(r.Context(), database.UpdateUnitParams{
		ID:     unitID,
		Name:   req.Name,
		Symbol: req.Symbol,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unit not found"})
			return
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "unit symbol already exists"})
			return
		}
		log.Printf("ERROR: update unit: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toUnitResponse(unit))
}

// Delete soft-deletes a unit. Refused while live products still point at it.
func (h *UnitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	unitID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid unit ID"})
		return
	}

	count, err := h.store.CountLiveProductsByUnit(r.Context(), unitID)
	if err != nil {
		log.Printf("ERROR: count products for unit: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if count > 0 {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "unit has products assigned"})
		return
	}

	if _, err := h.store.SoftDeleteUnit(r.Context(), unitID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unit not found"})
			return
		}
		log.Printf("ERROR: delete unit: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
