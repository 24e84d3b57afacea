package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID             uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Role           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      pgtype.Timestamptz
}

type Category struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   pgtype.Timestamptz
}

type Unit struct {
	ID        uuid.UUID
	Name      string
	Symbol    string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt pgtype.Timestamptz
}

type Supplier struct {
	ID          uuid.UUID
	Name        string
	ContactName pgtype.Text
	Email       pgtype.Text
	Phone       pgtype.Text
	Address     pgtype.Text
	Notes       pgtype.Text
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   pgtype.Timestamptz
}

type Customer struct {
	ID        uuid.UUID
	Name      string
	Email     pgtype.Text
	Phone     pgtype.Text
	Address   pgtype.Text
	Notes     pgtype.Text
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt pgtype.Timestamptz
}

type Product struct {
	ID          uuid.UUID
	Sku         string
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	Cost        pgtype.Numeric
	Stock       int32
	MinStock    int32
	CategoryID  uuid.UUID
	UnitID      pgtype.UUID
	SupplierID  pgtype.UUID
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   pgtype.Timestamptz
}

type Order struct {
	ID                 uuid.UUID
	OrderNumber        string
	CustomerID         pgtype.UUID
	Status             string
	PaymentStatus      string
	Subtotal           pgtype.Numeric
	DiscountPercentage pgtype.Numeric
	DiscountAmount     pgtype.Numeric
	TaxAmount          pgtype.Numeric
	Total              pgtype.Numeric
	PaymentMethod      pgtype.Text
	Notes              pgtype.Text
	CreatedBy          uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	UnitPrice pgtype.Numeric
	Total     pgtype.Numeric
}

type StockMovement struct {
	ID            uuid.UUID
	ProductID     uuid.UUID
	Type          string
	Quantity      int32
	ReferenceType pgtype.Text
	ReferenceID   pgtype.UUID
	Notes         pgtype.Text
	CreatedBy     pgtype.UUID
	CreatedAt     time.Time
}

type Invoice struct {
	ID             uuid.UUID
	InvoiceNumber  string
	CustomerID     pgtype.UUID
	OrderID        pgtype.UUID
	Status         string
	Subtotal       pgtype.Numeric
	TaxAmount      pgtype.Numeric
	DiscountAmount pgtype.Numeric
	Total          pgtype.Numeric
	PaidAmount     pgtype.Numeric
	DueDate        pgtype.Date
	Notes          pgtype.Text
	CreatedBy      uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type InvoiceItem struct {
	ID         uuid.UUID
	InvoiceID  uuid.UUID
	ProductID  uuid.UUID
	Quantity   int32
	UnitPrice  pgtype.Numeric
	TotalPrice pgtype.Numeric
}

type Payment struct {
	ID            uuid.UUID
	OrderID       pgtype.UUID
	InvoiceID     pgtype.UUID
	CustomerID    pgtype.UUID
	Amount        pgtype.Numeric
	PaymentMethod string
	Status        string
	PaymentDate   time.Time
	Reference     pgtype.Text
	Notes         pgtype.Text
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type PurchaseOrder struct {
	ID         uuid.UUID
	PoNumber   string
	SupplierID uuid.UUID
	Status     string
	Total      pgtype.Numeric
	Notes      pgtype.Text
	CreatedBy  uuid.UUID
	ReceivedAt pgtype.Timestamptz
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type PurchaseOrderItem struct {
	ID               uuid.UUID
	PurchaseOrderID  uuid.UUID
	ProductID        uuid.UUID
	Quantity         int32
	UnitCost         pgtype.Numeric
	Total            pgtype.Numeric
	ReceivedQuantity int32
}

type RegisterClosure struct {
	ID          uuid.UUID
	ClosureDate pgtype.Date
	TotalSales  pgtype.Numeric
	Details     []byte
	UserID      uuid.UUID
	Notes       pgtype.Text
	ClosedAt    time.Time
}
