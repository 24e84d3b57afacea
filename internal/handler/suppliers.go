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
	"github.com/jackc/pgx/v5/pgtype"
)

// SupplierStore defines the database methods needed by supplier handlers.
type SupplierStore interface {
	ListSuppliers(ctx context.Context) ([]database.Supplier, error)
	GetSupplier(ctx context.Context, id uuid.UUID) (database.Supplier, error)
	CreateSupplier(ctx context.Context, arg database.CreateSupplierParams) (database.Supplier, error)
	UpdateSupplier(ctx context.Context, arg database.UpdateSupplierParams) (database.Supplier, error)
	SoftDeleteSupplier(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	GetSupplierBalance(ctx context.Context, supplierID uuid.UUID) (pgtype.Numeric, error)
	CountOpenPurchaseOrdersBySupplier(ctx context.Context, supplierID uuid.UUID) (int64, error)
	CountLiveProductsBySupplier(ctx context.Context, supplierID uuid.UUID) (int64, error)
}

// SupplierHandler handles supplier CRUD endpoints.
type SupplierHandler struct {
	store SupplierStore
}

// NewSupplierHandler creates a new SupplierHandler.
func NewSupplierHandler(store SupplierStore) *SupplierHandler {
	return &SupplierHandler{store: store}
}

// RegisterRoutes registers supplier CRUD endpoints on the given Chi router.
func (h *SupplierHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/balance", h.Balance)
	})
}

// --- Request / Response types ---

type supplierRequest struct {
	Name        string `json:"name"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Notes       string `json:"notes"`
}

type supplierResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	ContactName *string   `json:"contact_name"`
	Email       *string   `json:"email"`
	Phone       *string   `json:"phone"`
	Address     *string   `json:"address"`
	Notes       *string   `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type supplierBalanceResponse struct {
	SupplierID uuid.UUID `json:"supplier_id"`
	Balance    string    `json:"balance"`
}

func toSupplierResponse(s database.Supplier) supplierResponse {
	resp := supplierResponse{
		ID:        s.ID,
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.ContactName.Valid {
		resp.ContactName = &s.ContactName.String
	}
	if s.Email.Valid {
		resp.Email = &s.Email.String
	}
	if s.Phone.Valid {
		resp.Phone = &s.Phone.String
	}
	if s.Address.Valid {
		resp.Address = &s.Address.String
	}
	if s.Notes.Valid {
		resp.Notes = &s.Notes.String
	}
	return resp
}

// --- Handlers ---

// List returns all live suppliers.
func (h *SupplierHandler) List(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.store.ListSuppliers(r.Context())
	if err != nil {
		log.Printf("ERROR: list suppliers: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]supplierResponse, len(suppliers))
	for i, s := range suppliers {
		resp[i] = toSupplierResponse(s)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single supplier by ID.
func (h *SupplierHandler) Get(w http.ResponseWriter, r *http.Request) {
	supplierID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid supplier ID"})
		return
	}

	supplier, err := h.store.GetSupplier(r.Context(), supplierID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "supplier not found"})
			return
		}
		log.Printf("ERROR: get supplier: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toSupplierResponse(supplier))
}

// Create adds a new supplier.
func (h *SupplierHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	supplier, err := h.store.CreateSupplier(r.Context(), database.CreateSupplierParams{
		Name:        req.Name,
		ContactName: optionalText(req.ContactName),
		Email:       optionalText(req.Email),
		Phone:       optionalText(req.Phone),
		Address:     optionalText(req.Address),
		Notes:       optionalText(req.Notes),
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "supplier name already exists"})
			return
		}
		log.Printf("ERROR: create supplier: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toSupplierResponse(supplier))
}

// Update modifies an existing supplier.
func (h *SupplierHandler) Update(w http.ResponseWriter, r *http.Request) {
	supplierID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid supplier ID"})
		return
	}

	var req supplierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	supplier, err := h.store.UpdateSupplier(r.Context(), database.UpdateSupplierParams{
		ID:          supplierID,
		Name:        req.Name,
		ContactName: optionalText(req.ContactName),
		Email:       optionalText(req.Email),
		Phone:       optionalText(req.Phone),
		Address:     optionalText(req.Address),
		Notes:       optionalText(req.Notes),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "supplier not found"})
			return
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "supplier name already exists"})
			return
		}
		log.Printf("ERROR: update supplier: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toSupplierResponse(supplier))
}

// Delete soft-deletes a supplier. Refused while the supplier has open
// purchase orders or live products assigned.
func (h *SupplierHandler) Delete(w http.ResponseWriter, r *http.Request) {
	supplierID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid supplier ID"})
		return
	}

	openPOs, err := h.store.CountOpenPurchaseOrdersBySupplier(r.Context(), supplierID)
	if err != nil {
		log.Printf("ERROR: count open purchase orders for supplier: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if openPOs > 0 {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "supplier has open purchase orders"})
		return
	}

	products, err := h.store.CountLiveProductsBySupplier(r.Context(), supplierID)
	if err != nil {
		log.Printf("ERROR: count products for supplier: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if products > 0 {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "supplier has products assigned"})
		return
	}

	if _, err := h.store.SoftDeleteSupplier(r.Context(), supplierID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "supplier not found"})
			return
		}
		log.Printf("ERROR: delete supplier: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Balance returns the supplier's derived payable balance.
func (h *SupplierHandler) Balance(w http.ResponseWriter, r *http.Request) {
	supplierID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid supplier ID"})
		return
	}

	// Verify supplier exists
	if _, err := h.store.GetSupplier(r.Context(), supplierID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "supplier not found"})
			return
		}
		log.Printf("ERROR: get supplier for balance: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	balance, err := h.store.GetSupplierBalance(r.Context(), supplierID)
	if err != nil {
		log.Printf("ERROR: get supplier balance: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, supplierBalanceResponse{
		SupplierID: supplierID,
		Balance:    numericToString(balance),
	})
}
