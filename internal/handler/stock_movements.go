package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/almacen-erp/api/internal/database"
	"github.com/almacen-erp/api/internal/enum"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// StockMovementStore defines the database methods needed by the stock
// movement handler. Satisfied by *database.Queries.
type StockMovementStore interface {
	ListStockMovements(ctx context.Context, arg database.ListStockMovementsParams) ([]database.StockMovement, error)
}

// StockMovementHandler exposes the read-only stock movement ledger.
type StockMovementHandler struct {
	store StockMovementStore
}

// NewStockMovementHandler creates a new StockMovementHandler.
func NewStockMovementHandler(store StockMovementStore) *StockMovementHandler {
	return &StockMovementHandler{store: store}
}

// RegisterRoutes registers stock movement endpoints on the given Chi router.
func (h *StockMovementHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
}

type stockMovementResponse struct {
	ID            uuid.UUID `json:"id"`
	ProductID     uuid.UUID `json:"product_id"`
	Type          string    `json:"type"`
	Quantity      int32     `json:"quantity"`
	ReferenceType *string   `json:"reference_type"`
	ReferenceID   *string   `json:"reference_id"`
	Notes         *string   `json:"notes"`
	CreatedBy     *string   `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

type stockMovementListResponse struct {
	Movements []stockMovementResponse `json:"movements"`
	Limit     int                     `json:"limit"`
	Offset    int                     `json:"offset"`
}

func toStockMovementResponse(m database.StockMovement) stockMovementResponse {
	resp := stockMovementResponse{
		ID:        m.ID,
		ProductID: m.ProductID,
		Type:      m.Type,
		Quantity:  m.Quantity,
		CreatedAt: m.CreatedAt,
	}
	if m.ReferenceType.Valid {
		resp.ReferenceType = &m.ReferenceType.String
	}
	if m.ReferenceID.Valid {
		s := uuid.UUID(m.ReferenceID.Bytes).String()
		resp.ReferenceID = &s
	}
	if m.Notes.Valid {
		resp.Notes = &m.Notes.String
	}
	if m.CreatedBy.Valid {
		s := uuid.UUID(m.CreatedBy.Bytes).String()
		resp.CreatedBy = &s
	}
	return resp
}

// List handles GET /stock-movements.
func (h *StockMovementHandler) List(w http.ResponseWriter, r *http.Request) {
	// Parse pagination
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListStockMovementsParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}

	if s := r.URL.Query().Get("product_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product_id"})
			return
		}
		params.ProductID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if s := r.URL.Query().Get("type"); s != "" {
		if !isValidMovementType(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid type"})
			return
		}
		params.Type = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start_date format, use YYYY-MM-DD"})
			return
		}
		params.StartDate = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end_date format, use YYYY-MM-DD"})
			return
		}
		params.EndDate = pgtype.Timestamptz{Time: t, Valid: true}
	}

	movements, err := h.store.ListStockMovements(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list stock movements: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]stockMovementResponse, len(movements))
	for i, m := range movements {
		resp[i] = toStockMovementResponse(m)
	}

	writeJSON(w, http.StatusOK, stockMovementListResponse{
		Movements: resp,
		Limit:     limit,
		Offset:    offset,
	})
}

func isValidMovementType(s string) bool {
	switch s {
	case enum.MovementTypeIn,
		enum.MovementTypeOut,
		enum.MovementTypeAdjustment,
		enum.MovementTypeSale,
		enum.MovementTypePurchase,
		enum.MovementTypeReturn,
		enum.MovementTypeLoss:
		return true
	}
	return false
}
