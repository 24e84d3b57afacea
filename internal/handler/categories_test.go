package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/almacen-erp/api/internal/database"
	"github.com/almacen-erp/api/internal/handler"
	"github.com/almacen-erp/api/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- Mock CategoryStore ---

type mockCategoryStore struct {
	listCategoriesFn              func(ctx context.Context) ([]database.Category, error)
	getCategoryFn                 func(ctx context.Context, id uuid.UUID) (database.Category, error)
	createCategoryFn              func(ctx context.Context, arg database.CreateCategoryParams) (database.Category, error)
	updateCategoryFn              func(ctx context.Context, arg database.UpdateCategoryParams) (database.Category, error)
	softDeleteCategoryFn          func(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	countLiveProductsByCategoryFn func(ctx context.Context, categoryID uuid.UUID) (int64, error)
}

func (m *mockCategoryStore) ListCategories(ctx context.Context) ([]database.Category, error) {
	if m.listCategoriesFn != nil {
		return m.listCategoriesFn(ctx)
	}
	return []database.Category{}, nil
}

func (m *mockCategoryStore) GetCategory(ctx context.Context, id uuid.UUID) (database.Category, error) {
	if m.getCategoryFn != nil {
		return m.getCategoryFn(ctx, id)
	}
	return database.Category{}, pgx.ErrNoRows
}

func (m *mockCategoryStore) CreateCategory(ctx context.Context, arg database.CreateCategoryParams) (database.Category, error) {
	if m.createCategoryFn != nil {
		return m.createCategoryFn(ctx, arg)
	}
	return database.Category{}, pgx.ErrNoRows
}

func (m *mockCategoryStore) UpdateCategory(ctx context.Context, arg database.UpdateCategoryParams) (database.Category, error) {
	if m.updateCategoryFn != nil {
		return m.updateCategoryFn(ctx, arg)
	}
	return database.Category{}, pgx.ErrNoRows
}

func (m *mockCategoryStore) SoftDeleteCategory(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	if m.softDeleteCategoryFn != nil {
		return m.softDeleteCategoryFn(ctx, id)
	}
	return uuid.Nil, pgx.ErrNoRows
}

func (m *mockCategoryStore) CountLiveProductsByCategory(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	if m.countLiveProductsByCategoryFn != nil {
		return m.countLiveProductsByCategoryFn(ctx, categoryID)
	}
	return 0, nil
}

func setupCategoryRouter(store *mockCategoryStore) *chi.Mux {
	h := handler.NewCategoryHandler(store)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/categories", h.RegisterRoutes)
	return r
}

func testCategory() database.Category {
	now := time.Now()
	return database.Category{
		ID:        uuid.New(),
		Name:      "Beverages",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// --- Tests ---

func TestCategoryCreate_HappyPath(t *testing.T) {
	claims := testClaims("cashier")

	store := &mockCategoryStore{
		createCategoryFn: func(ctx context.Context, arg database.CreateCategoryParams) (database.Category, error) {
			if arg.Name != "Beverages" {
				t.Errorf("name: got %v, want Beverages", arg.Name)
			}
			if arg.Description.Valid {
				t.Error("description should be null when omitted")
			}
			return testCategory(), nil
		},
	}

	router := setupCategoryRouter(store)
	rr := doAuthRequest(t, router, "POST", "/categories", map[string]string{
		"name": "Beverages",
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
}

func TestCategoryCreate_NameRequired(t *testing.T) {
	claims := testClaims("cashier")
	router := setupCategoryRouter(&mockCategoryStore{})

	rr := doAuthRequest(t, router, "POST", "/categories", map[string]string{
		"description": "drinks",
	}, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestCategoryCreate_DuplicateName(t *testing.T) {
	claims := testClaims("cashier")

	store := &mockCategoryStore{
		createCategoryFn: func(ctx context.Context, arg database.CreateCategoryParams) (database.Category, error) {
			return database.Category{}, &pgconn.PgError{Code: "23505"}
		},
	}

	router := setupCategoryRouter(store)
	rr := doAuthRequest(t, router, "POST", "/categories", map[string]string{
		"name": "Beverages",
	}, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestCategoryGet_NotFound(t *testing.T) {
	claims := testClaims("cashier")
	router := setupCategoryRouter(&mockCategoryStore{})

	rr := doAuthRequest(t, router, "GET", "/categories/"+uuid.New().String(), nil, claims)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusNotFound, rr.Body.String())
	}
}

func TestCategoryDelete_BlockedByProducts(t *testing.T) {
	claims := testClaims("cashier")

	store := &mockCategoryStore{
		countLiveProductsByCategoryFn: func(ctx context.Context, categoryID uuid.UUID) (int64, error) {
			return 3, nil
		},
	}

	router := setupCategoryRouter(store)
	rr := doAuthRequest(t, router, "DELETE", "/categories/"+uuid.New().String(), nil, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestCategoryDelete_HappyPath(t *testing.T) {
	claims := testClaims("cashier")
	category := testCategory()

	store := &mockCategoryStore{
		softDeleteCategoryFn: func(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
			return id, nil
		},
	}

	router := setupCategoryRouter(store)
	rr := doAuthRequest(t, router, "DELETE", "/categories/"+category.ID.String(), nil, claims)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusNoContent, rr.Body.String())
	}
}

func TestCategoryRequiresAuth(t *testing.T) {
	router := setupCategoryRouter(&mockCategoryStore{})

	rr := doRequest(t, router, "GET", "/categories", nil)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusUnauthorized, rr.Body.String())
	}
}
