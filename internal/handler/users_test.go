package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/almacen-erp/api/internal/database"
	"github.com/almacen-erp/api/internal/enum"
	"github.com/almacen-erp/api/internal/handler"
	"github.com/almacen-erp/api/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

// --- Mock UserStore ---

type mockUserStore struct {
	listUsersFn      func(ctx context.Context) ([]database.User, error)
	getUserByIDFn    func(ctx context.Context, id uuid.UUID) (database.User, error)
	createUserFn     func(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	updateUserRoleFn func(ctx context.Context, arg database.UpdateUserRoleParams) (database.User, error)
	softDeleteUserFn func(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

func (m *mockUserStore) ListUsers(ctx context.Context) ([]database.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx)
	}
	return []database.User{}, nil
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error) {
	if m.getUserByIDFn != nil {
		return m.getUserByIDFn(ctx, id)
	}
	return database.User{}, pgx.ErrNoRows
}

func (m *mockUserStore) CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(ctx, arg)
	}
	return database.User{}, pgx.ErrNoRows
}

func (m *mockUserStore) UpdateUserRole(ctx context.Context, arg database.UpdateUserRoleParams) (database.User, error) {
	if m.updateUserRoleFn != nil {
		return m.updateUserRoleFn(ctx, arg)
	}
	return database.User{}, pgx.ErrNoRows
}

func (m *mockUserStore) SoftDeleteUser(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	if m.softDeleteUserFn != nil {
		return m.softDeleteUserFn(ctx, id)
	}
	return uuid.Nil, pgx.ErrNoRows
}

// setupUserRouter mounts the user handler behind the same admin gate the
// application router uses.
func setupUserRouter(store *mockUserStore) *chi.Mux {
	h := handler.NewUserHandler(store)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Use(middleware.RequireRole(enum.UserRoleAdmin))
	r.Route("/users", h.RegisterRoutes)
	return r
}

// --- Tests ---

func TestUserCreate_HappyPath(t *testing.T) {
	claims := testClaims("admin")

	store := &mockUserStore{
		createUserFn: func(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
			if arg.Email != "new@almacen.local" {
				t.Errorf("email: got %v, want new@almacen.local", arg.Email)
			}
			if arg.Role != "cashier" {
				t.Errorf("role: got %v, want cashier", arg.Role)
			}
			if err := bcrypt.CompareHashAndPassword([]byte(arg.HashedPassword), []byte("secret123")); err != nil {
				t.Errorf("stored password hash does not match input: %v", err)
			}
			return database.User{
				ID:       uuid.New(),
				FullName: arg.FullName,
				Email:    arg.Email,
				Role:     arg.Role,
			}, nil
		},
	}

	router := setupUserRouter(store)
	rr := doAuthRequest(t, router, "POST", "/users", map[string]string{
		"full_name": "New Cashier",
		"email":     "new@almacen.local",
		"password":  "secret123",
		"role":      "cashier",
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if _, ok := resp["hashed_password"]; ok {
		t.Error("response must not expose hashed_password")
	}
}

func TestUserCreate_InvalidRole(t *testing.T) {
	claims := testClaims("admin")
	router := setupUserRouter(&mockUserStore{})

	rr := doAuthRequest(t, router, "POST", "/users", map[string]string{
		"full_name": "New User",
		"email":     "new@almacen.local",
		"password":  "secret123",
		"role":      "superuser",
	}, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	claims := testClaims("admin")

	store := &mockUserStore{
		createUserFn: func(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
			return database.User{}, &pgconn.PgError{Code: "23505"}
		},
	}

	router := setupUserRouter(store)
	rr := doAuthRequest(t, router, "POST", "/users", map[string]string{
		"full_name": "New User",
		"email":     "taken@almacen.local",
		"password":  "secret123",
		"role":      "manager",
	}, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestUserUpdateRole(t *testing.T) {
	claims := testClaims("admin")
	userID := uuid.New()

	store := &mockUserStore{
		updateUserRoleFn: func(ctx context.Context, arg database.UpdateUserRoleParams) (database.User, error) {
			if arg.ID != userID {
				t.Errorf("id: got %v, want %v", arg.ID, userID)
			}
			if arg.Role != "manager" {
				t.Errorf("role: got %v, want manager", arg.Role)
			}
			return database.User{ID: userID, Role: arg.Role}, nil
		},
	}

	router := setupUserRouter(store)
	rr := doAuthRequest(t, router, "PATCH", "/users/"+userID.String()+"/role",
		map[string]string{"role": "manager"}, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestUserDelete_CannotDeleteSelf(t *testing.T) {
	claims := testClaims("admin")

	store := &mockUserStore{
		softDeleteUserFn: func(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
			t.Error("delete should not be reached for own account")
			return id, nil
		},
	}

	router := setupUserRouter(store)
	rr := doAuthRequest(t, router, "DELETE", "/users/"+claims.UserID.String(), nil, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestUserDelete_HappyPath(t *testing.T) {
	claims := testClaims("admin")

	store := &mockUserStore{
		softDeleteUserFn: func(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
			return id, nil
		},
	}

	router := setupUserRouter(store)
	rr := doAuthRequest(t, router, "DELETE", "/users/"+uuid.New().String(), nil, claims)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusNoContent, rr.Body.String())
	}
}

func TestUserRoutes_ForbiddenForNonAdmin(t *testing.T) {
	claims := testClaims("cashier")
	router := setupUserRouter(&mockUserStore{})

	rr := doAuthRequest(t, router, "GET", "/users", nil, claims)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusForbidden, rr.Body.String())
	}
}
