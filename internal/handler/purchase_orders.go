package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

// PurchaseOrderStore defines the database methods needed by purchase order
// handlers. Satisfied by *database.Queries; narrow interface for testability.
type PurchaseOrderStore interface {
	NextPurchaseOrderNumber(ctx context.Context) (int64, error)
	CreatePurchaseOrder(ctx context.Context, arg database.CreatePurchaseOrderParams) (database.PurchaseOrder, error)
	CreatePurchaseOrderItem(ctx context.Context, arg database.CreatePurchaseOrderItemParams) (database.PurchaseOrderItem, error)
	GetPurchaseOrder(ctx context.Context, id uuid.UUID) (database.PurchaseOrder, error)
	GetPurchaseOrderForUpdate(ctx context.Context, id uuid.UUID) (database.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, arg database.ListPurchaseOrdersParams) ([]database.PurchaseOrder, error)
	ListPurchaseOrderItems(ctx context.Context, purchaseOrderID uuid.UUID) ([]database.PurchaseOrderItem, error)
	ListPurchaseOrderItemsForUpdate(ctx context.Context, purchaseOrderID uuid.UUID) ([]database.PurchaseOrderItem, error)
	UpdatePurchaseOrderStatus(ctx context.Context, arg database.UpdatePurchaseOrderStatusParams) (database.PurchaseOrder, error)
	MarkPurchaseOrderReceived(ctx context.Context, id uuid.UUID) (database.PurchaseOrder, error)
	SetPurchaseOrderItemReceived(ctx context.Context, arg database.SetPurchaseOrderItemReceivedParams) error
	IncrementStock(ctx context.Context, arg database.IncrementStockParams) (int32, error)
	CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error)
}

// NewPurchaseOrderStore creates a PurchaseOrderStore from a DBTX (pool or tx).
type NewPurchaseOrderStore func(db database.DBTX) PurchaseOrderStore

// PurchaseOrderHandler handles purchase order endpoints.
type PurchaseOrderHandler struct {
	store    PurchaseOrderStore
	pool     service.TxBeginner
	newStore NewPurchaseOrderStore
}

// NewPurchaseOrderHandler creates a new PurchaseOrderHandler.
func NewPurchaseOrderHandler(store PurchaseOrderStore, pool service.TxBeginner, newStore NewPurchaseOrderStore) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{store: store, pool: pool, newStore: newStore}
}

// RegisterRoutes registers purchase order endpoints on the given Chi router.
func (h *PurchaseOrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/status", h.UpdateStatus)
		r.Post("/receive", h.Receive)
	})
}

// --- Request / Response types ---

type createPurchaseOrderRequest struct {
	SupplierID string                           `json:"supplier_id"`
	Notes      string                           `json:"notes"`
	Items      []createPurchaseOrderItemRequest `json:"items"`
}

type createPurchaseOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	UnitCost  string `json:"unit_cost"`
}

type receivePurchaseOrderRequest struct {
	Items []receiveItemRequest `json:"items"`
}

type receiveItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type purchaseOrderResponse struct {
	ID         uuid.UUID                   `json:"id"`
	PoNumber   string                      `json:"po_number"`
	SupplierID uuid.UUID                   `json:"supplier_id"`
	Status     string                      `json:"status"`
	Total      string                      `json:"total"`
	Notes      *string                     `json:"notes"`
	CreatedBy  uuid.UUID                   `json:"created_by"`
	ReceivedAt *time.Time                  `json:"received_at"`
	CreatedAt  time.Time                   `json:"created_at"`
	UpdatedAt  time.Time                   `json:"updated_at"`
	Items      []purchaseOrderItemResponse `json:"items,omitempty"`
}

type purchaseOrderItemResponse struct {
	ID               uuid.UUID `json:"id"`
	ProductID        uuid.UUID `json:"product_id"`
	Quantity         int32     `json:"quantity"`
	UnitCost         string    `json:"unit_cost"`
	Total            string    `json:"total"`
	ReceivedQuantity int32     `json:"received_quantity"`
}

type purchaseOrderListResponse struct {
	PurchaseOrders []purchaseOrderResponse `json:"purchase_orders"`
	Limit          int                     `json:"limit"`
	Offset         int                     `json:"offset"`
}

func toPurchaseOrderResponse(po database.PurchaseOrder) purchaseOrderResponse {
	resp := purchaseOrderResponse{
		ID:         po.ID,
		PoNumber:   po.PoNumber,
		SupplierID: po.SupplierID,
		Status:     po.Status,
		Total:      numericToString(po.Total),
		CreatedBy:  po.CreatedBy,
		CreatedAt:  po.CreatedAt,
		UpdatedAt:  po.UpdatedAt,
	}
	if po.Notes.Valid {
		resp.Notes = &po.Notes.String
	}
	if po.ReceivedAt.Valid {
		t := po.ReceivedAt.Time
		resp.ReceivedAt = &t
	}
	return resp
}

func toPurchaseOrderItemResponse(item database.PurchaseOrderItem) purchaseOrderItemResponse {
	return purchaseOrderItemResponse{
		ID:               item.ID,
		ProductID:        item.ProductID,
		Quantity:         item.Quantity,
		UnitCost:         numericToString(item.UnitCost),
		Total:            numericToString(item.Total),
		ReceivedQuantity: item.ReceivedQuantity,
	}
}

// --- Handlers ---

// Create handles POST /purchase-orders. The header and all lines are written
// in one transaction.
func (h *PurchaseOrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createPurchaseOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid supplier_id"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}

	type poLine struct {
		productID uuid.UUID
		quantity  int32
		unitCost  decimal.Decimal
		total     decimal.Decimal
	}

	total := decimal.Zero
	lines := make([]poLine, 0, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("items[%d]: quantity must be > 0", i),
			})
			return
		}
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("items[%d]: invalid product_id", i),
			})
			return
		}
		unitCost, err := decimal.NewFromString(item.UnitCost)
		if err != nil || unitCost.IsNegative() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("items[%d]: invalid unit_cost", i),
			})
			return
		}
		lineTotal := unitCost.Mul(decimal.NewFromInt32(item.Quantity))
		total = total.Add(lineTotal)
		lines = append(lines, poLine{
			productID: productID,
			quantity:  item.Quantity,
			unitCost:  unitCost,
			total:     lineTotal,
		})
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		log.Printf("ERROR: begin tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck

	txStore := h.newStore(tx)

	nextNum, err := txStore.NextPurchaseOrderNumber(r.Context())
	if err != nil {
		log.Printf("ERROR: next purchase order number: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	po, err := txStore.CreatePurchaseOrder(r.Context(), database.CreatePurchaseOrderParams{
		PoNumber:   fmt.Sprintf("PO-%03d", nextNum),
		SupplierID: supplierID,
		Total:      decimalToNumeric(total),
		Notes:      optionalText(req.Notes),
		CreatedBy:  claims.UserID,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "referenced supplier does not exist"})
			return
		}
		log.Printf("ERROR: create purchase order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	itemResps := make([]purchaseOrderItemResponse, 0, len(lines))
	for _, line := range lines {
		item, err := txStore.CreatePurchaseOrderItem(r.Context(), database.CreatePurchaseOrderItemParams{
			PurchaseOrderID: po.ID,
			ProductID:       line.productID,
			Quantity:        line.quantity,
			UnitCost:        decimalToNumeric(line.unitCost),
			Total:           decimalToNumeric(line.total),
		})
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "referenced product does not exist"})
				return
			}
			log.Printf("ERROR: create purchase order item: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		itemResps = append(itemResps, toPurchaseOrderItemResponse(item))
	}

	if err := tx.Commit(r.Context()); err != nil {
		log.Printf("ERROR: commit tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := toPurchaseOrderResponse(po)
	resp.Items = itemResps
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /purchase-orders.
func (h *PurchaseOrderHandler) List(w http.ResponseWriter, r *http.Request) {
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

	params := database.ListPurchaseOrdersParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		if !isValidPurchaseOrderStatus(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("supplier_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid supplier_id"})
			return
		}
		params.SupplierID = pgtype.UUID{Bytes: id, Valid: true}
	}

	orders, err := h.store.ListPurchaseOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list purchase orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]purchaseOrderResponse, len(orders))
	for i, po := range orders {
		resp[i] = toPurchaseOrderResponse(po)
	}

	writeJSON(w, http.StatusOK, purchaseOrderListResponse{
		PurchaseOrders: resp,
		Limit:          limit,
		Offset:         offset,
	})
}

// Get handles GET /purchase-orders/{id}.
func (h *PurchaseOrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	poID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid purchase order ID"})
		return
	}

	po, err := h.store.GetPurchaseOrder(r.Context(), poID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "purchase order not found"})
			return
		}
		log.Printf("ERROR: get purchase order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListPurchaseOrderItems(r.Context(), poID)
	if err != nil {
		log.Printf("ERROR: list purchase order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := toPurchaseOrderResponse(po)
	resp.Items = make([]purchaseOrderItemResponse, len(items))
	for i, item := range items {
		resp.Items[i] = toPurchaseOrderItemResponse(item)
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus handles PATCH /purchase-orders/{id}/status.
func (h *PurchaseOrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	poID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid purchase order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}
	if !isValidPurchaseOrderStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	// Transitioning into received credits stock; run the receive flow
	// for everything outstanding.
	if req.Status == enum.PurchaseOrderStatusReceived {
		h.receive(w, r, poID, nil)
		return
	}

	current, err := h.store.GetPurchaseOrder(r.Context(), poID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "purchase order not found"})
			return
		}
		log.Printf("ERROR: get purchase order for status update: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := validatePurchaseOrderTransition(current.Status, req.Status); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	po, err := h.store.UpdatePurchaseOrderStatus(r.Context(), database.UpdatePurchaseOrderStatusParams{
		ID:         poID,
		Status:     req.Status,
		PrevStatus: current.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "purchase order status changed, please retry"})
			return
		}
		log.Printf("ERROR: update purchase order status: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toPurchaseOrderResponse(po))
}

// Receive handles POST /purchase-orders/{id}/receive. Each submitted line is
// credited at most up to its outstanding quantity, so replaying the same
// request is harmless. Stock is incremented and a purchase movement recorded
// per credited line, all in one transaction. An empty items list receives
// everything outstanding.
func (h *PurchaseOrderHandler) Receive(w http.ResponseWriter, r *http.Request) {
	poID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid purchase order ID"})
		return
	}

	var req receivePurchaseOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	requested := make(map[uuid.UUID]int32, len(req.Items))
	for i, item := range req.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("items[%d]: invalid product_id", i),
			})
			return
		}
		if item.Quantity <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("items[%d]: quantity must be > 0", i),
			})
			return
		}
		requested[productID] += item.Quantity
	}

	h.receive(w, r, poID, requested)
}

// receive credits outstanding quantities in one transaction. A nil or empty
// requested map receives everything outstanding; otherwise each line is
// capped at min(requested, outstanding). Shared by POST /receive and by
// PATCH status=received.
func (h *PurchaseOrderHandler) receive(w http.ResponseWriter, r *http.Request, poID uuid.UUID, requested map[uuid.UUID]int32) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		log.Printf("ERROR: begin tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck

	txStore := h.newStore(tx)

	po, err := txStore.GetPurchaseOrderForUpdate(r.Context(), poID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "purchase order not found"})
			return
		}
		log.Printf("ERROR: lock purchase order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if po.Status == enum.PurchaseOrderStatusCancelled {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cannot receive a cancelled purchase order"})
		return
	}
	if po.Status == enum.PurchaseOrderStatusReceived {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "purchase order already fully received"})
		return
	}

	items, err := txStore.ListPurchaseOrderItemsForUpdate(r.Context(), poID)
	if err != nil {
		log.Printf("ERROR: lock purchase order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	allReceived := true
	for _, item := range items {
		outstanding := item.Quantity - item.ReceivedQuantity
		if outstanding <= 0 {
			continue
		}

		delta := outstanding
		if len(requested) > 0 {
			want, ok := requested[item.ProductID]
			if !ok {
				allReceived = false
				continue
			}
			if want < delta {
				delta = want
			}
		}

		if _, err := txStore.IncrementStock(r.Context(), database.IncrementStockParams{
			ID:       item.ProductID,
			Quantity: delta,
		}); err != nil {
			log.Printf("ERROR: increment stock: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}

		if _, err := txStore.CreateStockMovement(r.Context(), database.CreateStockMovementParams{
			ProductID:     item.ProductID,
			Type:          enum.MovementTypePurchase,
			Quantity:      delta,
			ReferenceType: pgtype.Text{String: enum.ReferenceTypePurchaseOrder, Valid: true},
			ReferenceID:   pgtype.UUID{Bytes: po.ID, Valid: true},
			CreatedBy:     pgtype.UUID{Bytes: claims.UserID, Valid: true},
		}); err != nil {
			log.Printf("ERROR: create stock movement: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}

		newReceived := item.ReceivedQuantity + delta
		if err := txStore.SetPurchaseOrderItemReceived(r.Context(), database.SetPurchaseOrderItemReceivedParams{
			ID:               item.ID,
			ReceivedQuantity: newReceived,
		}); err != nil {
			log.Printf("ERROR: set item received quantity: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		if newReceived < item.Quantity {
			allReceived = false
		}
	}

	if allReceived {
		po, err = txStore.MarkPurchaseOrderReceived(r.Context(), poID)
		if err != nil {
			log.Printf("ERROR: mark purchase order received: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
	}

	if err := tx.Commit(r.Context()); err != nil {
		log.Printf("ERROR: commit tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	updatedItems, err := h.store.ListPurchaseOrderItems(r.Context(), poID)
	if err != nil {
		log.Printf("ERROR: list purchase order items after receive: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := toPurchaseOrderResponse(po)
	resp.Items = make([]purchaseOrderItemResponse, len(updatedItems))
	for i, item := range updatedItems {
		resp.Items[i] = toPurchaseOrderItemResponse(item)
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func isValidPurchaseOrderStatus(s string) bool {
	switch s {
	case enum.PurchaseOrderStatusPending,
		enum.PurchaseOrderStatusOrdered,
		enum.PurchaseOrderStatusReceived,
		enum.PurchaseOrderStatusCancelled:
		return true
	}
	return false
}

// purchaseOrderTransitions excludes received, which the receive flow sets.
var purchaseOrderTransitions = map[string][]string{
	enum.PurchaseOrderStatusPending: {enum.PurchaseOrderStatusOrdered, enum.PurchaseOrderStatusCancelled},
	enum.PurchaseOrderStatusOrdered: {enum.PurchaseOrderStatusCancelled},
}

func validatePurchaseOrderTransition(current, next string) error {
	allowed, ok := purchaseOrderTransitions[current]
	if !ok {
		return fmt.Errorf("cannot transition from %s", current)
	}
	for _, s := range allowed {
		if s == next {
			return nil
		}
	}
	return fmt.Errorf("cannot transition from %s to %s", current, next)
}
