package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cartwheel/storefront/orders-service/internal/domain"
	"github.com/cartwheel/storefront/pkg/orderstatus"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const orderColumns = `id, cart_owner, idempotency_key, customer_email, status, total_price,
	shipping_address, billing_address, payment_method, order_notes, tracking_number,
	created_at, updated_at, shipped_at, delivered_at, cancelled_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

// NewRepositoryFromDB wraps an existing handle.
func NewRepositoryFromDB(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) RunMigrations() error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// CreateOrder inserts the order, its items and the outbox event in one
// transaction. The order's ID and timestamps are filled in on success.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order, event EventBuilder) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO orders (cart_owner, idempotency_key, customer_email, status, total_price,
	              shipping_address, billing_address, payment_method, order_notes)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          RETURNING id, created_at, updated_at`

	insertErr := tx.QueryRowContext(ctx, query,
		order.CartOwner,
		order.IdempotencyKey,
		order.CustomerEmail,
		string(order.Status),
		order.TotalPrice,
		order.ShippingAddress,
		order.BillingAddress,
		order.PaymentMethod,
		order.OrderNotes,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}

	itemQuery := `INSERT INTO order_items (order_id, product_id, title, image_url, unit_price, quantity)
	              VALUES ($1, $2, $3, $4, $5, $6)`
	for _, it := range order.Items {
		if _, err := tx.ExecContext(ctx, itemQuery,
			order.ID, it.ProductID, it.Title, it.ImageURL, it.UnitPrice, it.Quantity); err != nil {
			return fmt.Errorf("insert order item %d: %w", it.ProductID, err)
		}
	}

	if err := insertEvent(ctx, tx, order, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, order *domain.Order, build EventBuilder) error {
	if build == nil {
		return nil
	}
	ev, err := build(order)
	if err != nil {
		return fmt.Errorf("build outbox event: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		ev.AggregateID, ev.EventType, string(ev.Payload))
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	return getOrder(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *Repository) GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return getOrder(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, key)
}

func getOrder(ctx context.Context, q queryer, query string, arg any) (*domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	items, err := loadItems(ctx, q, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	if order.Items == nil {
		order.Items = []domain.OrderItem{}
	}
	return order, nil
}

// ListOrders returns one page, newest first, and the total number of
// orders matching the filter.
func (r *Repository) ListOrders(ctx context.Context, f ListFilter) ([]*domain.Order, int, error) {
	var (
		where string
		args  []any
	)
	if f.Status != "" {
		where = ` WHERE status = $1`
		args = append(args, string(f.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, max(f.Offset, 0))

	orders, err := r.queryOrders(ctx, r.db, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *Repository) queryOrders(ctx context.Context, q queryer, query string, args ...any) ([]*domain.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	var ids []int64
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return orders, nil
	}
	items, err := loadItems(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Items = items[o.ID]
		if o.Items == nil {
			o.Items = []domain.OrderItem{}
		}
	}
	return orders, nil
}

// UpdateStatus moves an order from one status to another only if it is still
// in from. It stamps the matching timestamp and writes the outbox event in the
// same transaction.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from, to orderstatus.Status, event EventBuilder) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE orders SET status = $1, updated_at = NOW(),
	              shipped_at   = CASE WHEN $1::text = 'shipped'   THEN NOW() ELSE shipped_at END,
	              delivered_at = CASE WHEN $1::text = 'delivered' THEN NOW() ELSE delivered_at END,
	              cancelled_at = CASE WHEN $1::text = 'cancelled' THEN NOW() ELSE cancelled_at END
	          WHERE id = $2 AND status = $3`

	res, err := tx.ExecContext(ctx, query, string(to), id, string(from))
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return nil, ErrOrderNotFound
		}
		return nil, ErrStatusConflict
	}

	order, err := getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if err := insertEvent(ctx, tx, order, event); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return order, nil
}

func (r *Repository) UpdateDetails(ctx context.Context, id int64, upd DetailsUpdate) (*domain.Order, error) {
	var (
		sets []string
		args []any
	)
	if upd.OrderNotes != nil {
		args = append(args, *upd.OrderNotes)
		sets = append(sets, fmt.Sprintf("order_notes = $%d", len(args)))
	}
	if upd.TrackingNumber != nil {
		args = append(args, *upd.TrackingNumber)
		sets = append(sets, fmt.Sprintf("tracking_number = $%d", len(args)))
	}
	if len(sets) == 0 {
		return r.GetOrderByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE orders SET %s, updated_at = NOW() WHERE id = $%d`,
		strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update order details: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrOrderNotFound
	}
	return r.GetOrderByID(ctx, id)
}

// Stats aggregates per-status counts and revenue. Cancelled orders do not
// count towards revenue.
func (r *Repository) Stats(ctx context.Context, recent int) (*domain.Stats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(total_price), 0) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query order stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.Stats{
		TotalRevenue: decimal.Zero,
		StatusCounts: make(map[orderstatus.Status]int, len(orderstatus.All)),
	}
	for _, s := range orderstatus.All {
		stats.StatusCounts[s] = 0
	}
	for rows.Next() {
		var (
			status  string
			count   int
			revenue decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &revenue); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		s := orderstatus.Status(status)
		stats.StatusCounts[s] = count
		stats.TotalOrders += count
		if s != orderstatus.Cancelled {
			stats.TotalRevenue = stats.TotalRevenue.Add(revenue)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	stats.RecentOrders, _, err = r.ListOrders(ctx, ListFilter{Limit: recent})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at
		 FROM outbox_events WHERE processed_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event %d: %w", id, err)
	}
	return nil
}

func (r *Repository) PurgeProcessedEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox_events WHERE processed_at IS NOT NULL AND processed_at < $1`,
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge outbox events: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order                           domain.Order
		status                          string
		shipped, delivered, cancelledAt sql.NullTime
	)
	err := row.Scan(
		&order.ID,
		&order.CartOwner,
		&order.IdempotencyKey,
		&order.CustomerEmail,
		&status,
		&order.TotalPrice,
		&order.ShippingAddress,
		&order.BillingAddress,
		&order.PaymentMethod,
		&order.OrderNotes,
		&order.TrackingNumber,
		&order.CreatedAt,
		&order.UpdatedAt,
		&shipped,
		&delivered,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}
	order.Status = orderstatus.Status(status)
	order.ShippedAt = nullTime(shipped)
	order.DeliveredAt = nullTime(delivered)
	order.CancelledAt = nullTime(cancelledAt)
	return &order, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func loadItems(ctx context.Context, q queryer, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT order_id, product_id, title, image_url, unit_price, quantity
		 FROM order_items WHERE order_id = ANY($1) ORDER BY id`, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID, productID int64
			title, imageURL    string
			unitPrice          decimal.Decimal
			quantity           int
		)
		if err := rows.Scan(&orderID, &productID, &title, &imageURL, &unitPrice, &quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out[orderID] = append(out[orderID], domain.NewOrderItem(productID, title, imageURL, unitPrice, quantity))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
