package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type GetSalesSummaryParams struct {
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
}

type SalesSummaryRow struct {
	OrderCount    int64
	GrossSales    pgtype.Numeric
	DiscountTotal pgtype.Numeric
	TaxTotal      pgtype.Numeric
	NetSales      pgtype.Numeric
}

// GetSalesSummary aggregates non-cancelled orders in the window.
func (q *Queries) GetSalesSummary(ctx context.Context, arg GetSalesSummaryParams) (SalesSummaryRow, error) {
	var r SalesSummaryRow
	err := q.db.QueryRow(ctx,
		`SELECT count(*),
		        COALESCE(sum(subtotal), 0),
		        COALESCE(sum(discount_amount), 0),
		        COALESCE(sum(tax_amount), 0),
		        COALESCE(sum(total), 0)
		 FROM orders
		 WHERE status <> 'cancelled'
		   AND ($1::timestamptz IS NULL OR created_at >= $1)
		   AND ($2::timestamptz IS NULL OR created_at < $2 + interval '1 day')`,
		arg.StartDate, arg.EndDate).
		Scan(&r.OrderCount, &r.GrossSales, &r.DiscountTotal, &r.TaxTotal, &r.NetSales)
	return r, err
}

type ListTopProductsParams struct {
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Limit     int32
}

type TopProductRow struct {
	ProductID    uuid.UUID
	Sku          string
	Name         string
	QuantitySold int64
	Revenue      pgtype.Numeric
}

func (q *Queries) ListTopProducts(ctx context.Context, arg ListTopProductsParams) ([]TopProductRow, error) {
	rows, err := q.db.Query(ctx,
		`SELECT p.id, p.sku, p.name, sum(oi.quantity), COALESCE(sum(oi.total), 0)
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 JOIN products p ON p.id = oi.product_id
		 WHERE o.status <> 'cancelled'
		   AND ($1::timestamptz IS NULL OR o.created_at >= $1)
		   AND ($2::timestamptz IS NULL OR o.created_at < $2 + interval '1 day')
		 GROUP BY p.id, p.sku, p.name
		 ORDER BY sum(oi.quantity) DESC
		 LIMIT $3`,
		arg.StartDate, arg.EndDate, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []TopProductRow
	for rows.Next() {
		var p TopProductRow
		if err := rows.Scan(&p.ProductID, &p.Sku, &p.Name, &p.QuantitySold, &p.Revenue); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (q *Queries) ListLowStockProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE deleted_at IS NULL AND status = 'active' AND stock <= min_stock
		 ORDER BY stock - min_stock, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

type GetPaymentSummaryParams struct {
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
}

type PaymentMethodSummaryRow struct {
	PaymentMethod string
	Count         int64
	Total         pgtype.Numeric
}

func (q *Queries) GetPaymentSummary(ctx context.Context, arg GetPaymentSummaryParams) ([]PaymentMethodSummaryRow, error) {
	rows, err := q.db.Query(ctx,
		`SELECT payment_method, count(*), COALESCE(sum(amount), 0)
		 FROM payments
		 WHERE status = 'completed'
		   AND ($1::timestamptz IS NULL OR payment_date >= $1)
		   AND ($2::timestamptz IS NULL OR payment_date < $2 + interval '1 day')
		 GROUP BY payment_method
		 ORDER BY payment_method`,
		arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summary []PaymentMethodSummaryRow
	for rows.Next() {
		var r PaymentMethodSummaryRow
		if err := rows.Scan(&r.PaymentMethod, &r.Count, &r.Total); err != nil {
			return nil, err
		}
		summary = append(summary, r)
	}
	return summary, rows.Err()
}

type CustomerBalanceRow struct {
	CustomerID uuid.UUID
	Name       string
	OrderTotal pgtype.Numeric
	PaidTotal  pgtype.Numeric
	Balance    pgtype.Numeric
}

// ListCustomerBalances derives each live customer's outstanding balance from
// non-cancelled order totals minus completed payments.
func (q *Queries) ListCustomerBalances(ctx context.Context) ([]CustomerBalanceRow, error) {
	rows, err := q.db.Query(ctx,
		`SELECT c.id, c.name,
		        COALESCE(o.total, 0),
		        COALESCE(p.paid, 0),
		        COALESCE(o.total, 0) - COALESCE(p.paid, 0)
		 FROM customers c
		 LEFT JOIN (
		     SELECT customer_id, sum(total) AS total FROM orders
		     WHERE status <> 'cancelled' GROUP BY customer_id
		 ) o ON o.customer_id = c.id
		 LEFT JOIN (
		     SELECT customer_id, sum(amount) AS paid FROM payments
		     WHERE status = 'completed' GROUP BY customer_id
		 ) p ON p.customer_id = c.id
		 WHERE c.deleted_at IS NULL
		 ORDER BY c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []CustomerBalanceRow
	for rows.Next() {
		var b CustomerBalanceRow
		if err := rows.Scan(&b.CustomerID, &b.Name, &b.OrderTotal, &b.PaidTotal, &b.Balance); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

type SupplierBalanceRow struct {
	SupplierID uuid.UUID
	Name       string
	Balance    pgtype.Numeric
}

func (q *Queries) ListSupplierBalances(ctx context.Context) ([]SupplierBalanceRow, error) {
	rows, err := q.db.Query(ctx,
		`SELECT s.id, s.name, COALESCE(po.total, 0)
		 FROM suppliers s
		 LEFT JOIN (
		     SELECT supplier_id, sum(total) AS total FROM purchase_orders
		     WHERE status <> 'cancelled' GROUP BY supplier_id
		 ) po ON po.supplier_id = s.id
		 WHERE s.deleted_at IS NULL
		 ORDER BY s.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []SupplierBalanceRow
	for rows.Next() {
		var b SupplierBalanceRow
		if err := rows.Scan(&b.SupplierID, &b.Name, &b.Balance); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
