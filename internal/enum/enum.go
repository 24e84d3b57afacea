package enum

// ── State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

const (
	OrderPaymentStatusPending = "pending"
	OrderPaymentStatusPartial = "partial"
	OrderPaymentStatusPaid    = "paid"
)

const (
	InvoiceStatusPending   = "pending"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

const (
	PaymentStatusCompleted = "completed"
	PaymentStatusPending   = "pending"
	PaymentStatusFailed    = "failed"
)

const (
	PurchaseOrderStatusPending   = "pending"
	PurchaseOrderStatusOrdered   = "ordered"
	PurchaseOrderStatusReceived  = "received"
	PurchaseOrderStatusCancelled = "cancelled"
)

// ── Audit log types (CHECK constrained in DB) ──

const (
	MovementTypeIn         = "in"
	MovementTypeOut        = "out"
	MovementTypeAdjustment = "adjustment"
	MovementTypeSale       = "sale"
	MovementTypePurchase   = "purchase"
	MovementTypeReturn     = "return"
	MovementTypeLoss       = "loss"
)

const (
	ReferenceTypeSale          = "sale"
	ReferenceTypePurchaseOrder = "purchase_order"
	ReferenceTypeAdjustment    = "adjustment"
)

// ── Roles and configurable labels ──

const (
	UserRoleAdmin   = "admin"
	UserRoleManager = "manager"
	UserRoleCashier = "cashier"
)

const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
	PaymentMethodOther    = "other"
)

const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)
