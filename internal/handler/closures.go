package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/almacen-erp/api/internal/database"
	"github.com/almacen-erp/api/internal/enum"
	"github.com/almacen-erp/api/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// ClosureStore defines the database methods needed by register closure
// handlers. Satisfied by *database.Queries.
type ClosureStore interface {
	CreateRegisterClosure(ctx context.Context, arg database.CreateRegisterClosureParams) (database.RegisterClosure, error)
	GetRegisterClosure(ctx context.Context, id uuid.UUID) (database.RegisterClosure, error)
	ListRegisterClosures(ctx context.Context, arg database.ListRegisterClosuresParams) ([]database.RegisterClosure, error)
	DeleteRegisterClosure(ctx context.Context, id uuid.UUID) (int64, error)
	GetDailySalesTotal(ctx context.Context, day pgtype.Date) (pgtype.Numeric, error)
	ListDailyPaymentTotalsByMethod(ctx context.Context, day pgtype.Date) ([]database.DailyMethodTotal, error)
	CountOrdersForDay(ctx context.Context, day pgtype.Date) (int64, error)
}

// ClosureHandler handles register closure endpoints.
type ClosureHandler struct {
	store ClosureStore
}

// NewClosureHandler creates a new ClosureHandler.
func NewClosureHandler(store ClosureStore) *ClosureHandler {
	return &ClosureHandler{store: store}
}

// RegisterRoutes registers closure endpoints on the given Chi router.
func (h *ClosureHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.With(middleware.RequireRole(enum.UserRoleAdmin)).Delete("/", h.Delete)
	})
}

// --- Request / Response types ---

type createClosureRequest struct {
	ClosureDate string `json:"closure_date"`
	Notes       string `json:"notes"`
}

// closureDetails is the snapshot stored in the closure's details column.
type closureDetails struct {
	OrderCount int64                 `json:"order_count"`
	ByMethod   []closureMethodDetail `json:"by_method"`
}

type closureMethodDetail struct {
	PaymentMethod string `json:"payment_method"`
	Count         int64  `json:"count"`
	Total         string `json:"total"`
}

type closureResponse struct {
	ID          uuid.UUID       `json:"id"`
	ClosureDate string          `json:"closure_date"`
	TotalSales  string          `json:"total_sales"`
	Details     json.RawMessage `json:"details"`
	UserID      uuid.UUID       `json:"user_id"`
	Notes       *string         `json:"notes"`
	ClosedAt    time.Time       `json:"closed_at"`
}

type closureListResponse struct {
	Closures []closureResponse `json:"closures"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func toClosureResponse(c database.RegisterClosure) closureResponse {
	resp := closureResponse{
		ID:         c.ID,
		TotalSales: numericToString(c.TotalSales),
		Details:    json.RawMessage(c.Details),
		UserID:     c.UserID,
		ClosedAt:   c.ClosedAt,
	}
	if c.ClosureDate.Valid {
		resp.ClosureDate = c.ClosureDate.Time.Format("2006-01-02")
	}
	if c.Notes.Valid {
		resp.Notes = &c.Notes.String
	}
	return resp
}

// --- Handlers ---

// Create handles POST /closures. The day's totals are computed from completed
// payments at closing time and frozen into the row. Defaults to today when no
// closure_date is given.
func (h *ClosureHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createClosureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	day := time.Now()
	if req.ClosureDate != "" {
		t, err := time.Parse("2006-01-02", req.ClosureDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid closure_date format, use YYYY-MM-DD"})
			return
		}
		day = t
	}
	closureDate := pgtype.Date{Time: day, Valid: true}

	totalSales, err := h.store.GetDailySalesTotal(r.Context(), closureDate)
	if err != nil {
		log.Printf("ERROR: get daily sales total: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	methodTotals, err := h.store.ListDailyPaymentTotalsByMethod(r.Context(), closureDate)
	if err != nil {
		log.Printf("ERROR: list daily payment totals: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	orderCount, err := h.store.CountOrdersForDay(r.Context(), closureDate)
	if err != nil {
		log.Printf("ERROR: count orders for day: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	details := closureDetails{
		OrderCount: orderCount,
		ByMethod:   make([]closureMethodDetail, len(methodTotals)),
	}
	for i, t := range methodTotals {
		details.ByMethod[i] = closureMethodDetail{
			PaymentMethod: t.PaymentMethod,
			Count:         t.Count,
			Total:         numericToString(t.Total),
		}
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		log.Printf("ERROR: marshal closure details: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	closure, err := h.store.CreateRegisterClosure(r.Context(), database.CreateRegisterClosureParams{
		ClosureDate: closureDate,
		TotalSales:  totalSales,
		Details:     detailsJSON,
		UserID:      claims.UserID,
		Notes:       optionalText(req.Notes),
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a closure already exists for this date"})
			return
		}
		log.Printf("ERROR: create register closure: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toClosureResponse(closure))
}

// List handles GET /closures.
func (h *ClosureHandler) List(w http.ResponseWriter, r *http.Request) {
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

	params := database.ListRegisterClosuresParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start_date format, use YYYY-MM-DD"})
			return
		}
		params.StartDate = pgtype.Date{Time: t, Valid: true}
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end_date format, use YYYY-MM-DD"})
			return
		}
		params.EndDate = pgtype.Date{Time: t, Valid: true}
	}

	closures, err := h.store.ListRegisterClosures(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list register closures: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]closureResponse, len(closures))
	for i, c := range closures {
		resp[i] = toClosureResponse(c)
	}

	writeJSON(w, http.StatusOK, closureListResponse{
		Closures: resp,
		Limit:    limit,
		Offset:   offset,
	})
}

// Get handles GET /closures/{id}.
func (h *ClosureHandler) Get(w http.ResponseWriter, r *http.Request) {
	closureID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid closure ID"})
		return
	}

	closure, err := h.store.GetRegisterClosure(r.Context(), closureID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "closure not found"})
			return
		}
		log.Printf("ERROR: get register closure: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toClosureResponse(closure))
}

// Delete handles DELETE /closures/{id}.
func (h *ClosureHandler) Delete(w http.ResponseWriter, r *http.Request) {
	closureID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid closure ID"})
		return
	}

	affected, err := h.store.DeleteRegisterClosure(r.Context(), closureID)
	if err != nil {
		log.Printf("ERROR: delete register closure: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if affected == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "closure not found"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
