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
	"github.com/almacen-erp/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ProductStore defines the database methods needed by product handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ProductStore interface {
	ListProducts(ctx context.Context, arg database.ListProductsParams) ([]database.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.Product, error)
	SoftDeleteProduct(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	AdjustStock(ctx context.Context, arg database.AdjustStockParams) (int32, error)
	CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error)
}

// NewProductStore creates a ProductStore from a DBTX (pool or tx).
type NewProductStore func(db database.DBTX) ProductStore

// ProductHandler handles product endpoints.
type ProductHandler struct {
	store    ProductStore
	pool     service.TxBeginner
	newStore NewProductStore
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(store ProductStore, pool service.TxBeginner, newStore NewProductStore) *ProductHandler {
	return &ProductHandler{store: store, pool: pool, newStore: newStore}
}

// RegisterRoutes registers product endpoints on the given Chi router.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/adjust-stock", h.AdjustStock)
	})
}

// --- Request / Response types ---

type productRequest struct {
	Sku         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Cost        string `json:"cost"`
	Stock       int32  `json:"stock"`
	MinStock    int32  `json:"min_stock"`
	CategoryID  string `json:"category_id"`
	UnitID      string `json:"unit_id"`
	SupplierID  string `json:"supplier_id"`
	Status      string `json:"status"`
}

type adjustStockRequest struct {
	Delta int32  `json:"delta"`
	Notes string `json:"notes"`
}

type productResponse struct {
	ID          uuid.UUID `json:"id"`
	Sku         string    `json:"sku"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Price       string    `json:"price"`
	Cost        string    `json:"cost"`
	Stock       int32     `json:"stock"`
	MinStock    int32     `json:"min_stock"`
	CategoryID  uuid.UUID `json:"category_id"`
	UnitID      *string   `json:"unit_id"`
	SupplierID  *string   `json:"supplier_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProductResponse(p database.Product) productResponse {
	resp := productResponse{
		ID:         p.ID,
		Sku:        p.Sku,
		Name:       p.Name,
		Price:      numericToString(p.Price),
		Cost:       numericToString(p.Cost),
		Stock:      p.Stock,
		MinStock:   p.MinStock,
		CategoryID: p.CategoryID,
		Status:     p.Status,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.Description.Valid {
		resp.Description = &p.Description.String
	}
	if p.UnitID.Valid {
		s := uuid.UUID(p.UnitID.Bytes).String()
		resp.UnitID = &s
	}
	if p.SupplierID.Valid {
		s := uuid.UUID(p.SupplierID.Bytes).String()
		resp.SupplierID = &s
	}
	return resp
}

// --- Handlers ---

// List returns products with optional filters.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
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

	params := database.ListProductsParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}

	if s := r.URL.Query().Get("category_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid category_id"})
			return
		}
		params.CategoryID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if s := r.URL.Query().Get("supplier_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid supplier_id"})
			return
		}
		params.SupplierID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if s := r.URL.Query().Get("status"); s != "" {
		if !isValidProductStatus(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("search"); s != "" {
		params.Search = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("low_stock"); s == "true" {
		params.LowStock = true
	}

	products, err := h.store.ListProducts(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single product by ID.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	product, err := h.store.GetProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// Create adds a new product. Initial stock is recorded as an "in" movement.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params, errMsg := buildProductParams(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}
	if req.Stock < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "stock must be >= 0"})
		return
	}

	createParams := database.CreateProductParams{
		Sku:         params.Sku,
		Name:        params.Name,
		Description: params.Description,
		Price:       params.Price,
		Cost:        params.Cost,
		Stock:       req.Stock,
		MinStock:    params.MinStock,
		CategoryID:  params.CategoryID,
		UnitID:      params.UnitID,
		SupplierID:  params.SupplierID,
		Status:      params.Status,
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		log.Printf("ERROR: begin tx for create product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context())

	txStore := h.newStore(tx)

	product, err := txStore.CreateProduct(r.Context(), createParams)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "sku already exists"})
				return
			}
			if pgErr.Code == "23503" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "referenced category, unit or supplier does not exist"})
				return
			}
		}
		log.Printf("ERROR: create product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if req.Stock > 0 {
		if _, err := txStore.CreateStockMovement(r.Context(), database.CreateStockMovementParams{
			ProductID: product.ID,
			Type:      enum.MovementTypeIn,
			Quantity:  req.Stock,
			Notes:     pgtype.Text{String: "initial stock", Valid: true},
			CreatedBy: pgtype.UUID{Bytes: claims.UserID, Valid: true},
		}); err != nil {
			log.Printf("ERROR: create initial stock movement: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
	}

	if err := tx.Commit(r.Context()); err != nil {
		log.Printf("ERROR: commit tx for create product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

// Update modifies an existing product. Stock is never touched here.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params, errMsg := buildProductParams(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	product, err := h.store.UpdateProduct(r.Context(), database.UpdateProductParams{
		ID:          productID,
		Sku:         params.Sku,
		Name:        params.Name,
		Description: params.Description,
		Price:       params.Price,
		Cost:        params.Cost,
		MinStock:    params.MinStock,
		CategoryID:  params.CategoryID,
		UnitID:      params.UnitID,
		SupplierID:  params.SupplierID,
		Status:      params.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "sku already exists"})
				return
			}
			if pgErr.Code == "23503" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "referenced category, unit or supplier does not exist"})
				return
			}
		}
		log.Printf("ERROR: update product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// Delete soft-deletes a product.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	if _, err := h.store.SoftDeleteProduct(r.Context(), productID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: delete product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AdjustStock applies a signed manual correction to a product's stock and
// records an adjustment movement, atomically.
func (h *ProductHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Delta == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "delta must be non-zero"})
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		log.Printf("ERROR: begin tx for adjust stock: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context())

	txStore := h.newStore(tx)

	newStock, err := txStore.AdjustStock(r.Context(), database.AdjustStockParams{
		ID:    productID,
		Delta: req.Delta,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No rows means the product is missing or the delta would
			// take stock negative. Fetch to give a better error.
			if _, getErr := h.store.GetProduct(r.Context(), productID); getErr != nil {
				if errors.Is(getErr, pgx.ErrNoRows) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
					return
				}
				log.Printf("ERROR: get product for adjust stock: %v", getErr)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				return
			}
			writeJSON(w, http.StatusConflict, map[string]string{"error": "adjustment would make stock negative"})
			return
		}
		log.Printf("ERROR: adjust stock: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if _, err := txStore.CreateStockMovement(r.Context(), database.CreateStockMovementParams{
		ProductID:     productID,
		Type:          enum.MovementTypeAdjustment,
		Quantity:      req.Delta,
		ReferenceType: pgtype.Text{String: enum.ReferenceTypeAdjustment, Valid: true},
		Notes:         optionalText(req.Notes),
		CreatedBy:     pgtype.UUID{Bytes: claims.UserID, Valid: true},
	}); err != nil {
		log.Printf("ERROR: create adjustment movement: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		log.Printf("ERROR: commit tx for adjust stock: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"product_id": productID,
		"stock":      newStock,
	})
}

// --- Helpers ---

// builtProductParams carries the validated, converted fields shared by
// create and update.
type builtProductParams struct {
	Sku         string
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	Cost        pgtype.Numeric
	MinStock    int32
	CategoryID  uuid.UUID
	UnitID      pgtype.UUID
	SupplierID  pgtype.UUID
	Status      string
}

func buildProductParams(req productRequest) (builtProductParams, string) {
	var p builtProductParams

	if req.Sku == "" {
		return p, "sku is required"
	}
	if req.Name == "" {
		return p, "name is required"
	}
	if req.Price == "" {
		return p, "price is required"
	}
	if req.CategoryID == "" {
		return p, "category_id is required"
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return p, "price must be a non-negative number"
	}

	cost := decimal.Zero
	if req.Cost != "" {
		cost, err = decimal.NewFromString(req.Cost)
		if err != nil || cost.IsNegative() {
			return p, "cost must be a non-negative number"
		}
	}

	if req.MinStock < 0 {
		return p, "min_stock must be >= 0"
	}

	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		return p, "invalid category_id"
	}

	var unitID pgtype.UUID
	if req.UnitID != "" {
		id, err := uuid.Parse(req.UnitID)
		if err != nil {
			return p, "invalid unit_id"
		}
		unitID = pgtype.UUID{Bytes: id, Valid: true}
	}

	var supplierID pgtype.UUID
	if req.SupplierID != "" {
		id, err := uuid.Parse(req.SupplierID)
		if err != nil {
			return p, "invalid supplier_id"
		}
		supplierID = pgtype.UUID{Bytes: id, Valid: true}
	}

	status := req.Status
	if status == "" {
		status = enum.ProductStatusActive
	}
	if !isValidProductStatus(status) {
		return p, "invalid status"
	}

	p.Sku = req.Sku
	p.Name = req.Name
	p.Description = optionalText(req.Description)
	p.Price = decimalToNumeric(price)
	p.Cost = decimalToNumeric(cost)
	p.MinStock = req.MinStock
	p.CategoryID = categoryID
	p.UnitID = unitID
	p.SupplierID = supplierID
	p.Status = status
	return p, ""
}

func isValidProductStatus(s string) bool {
	switch s {
	case enum.ProductStatusActive, enum.ProductStatusInactive:
		return true
	}
	return false
}
