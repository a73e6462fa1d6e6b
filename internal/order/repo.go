// Package order implements the order placement transaction and the status
// state machine over the dialect-neutral store.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sweetlane/sweetshop/internal/store"
)

type Repository interface {
	Place(ctx context.Context, req PlaceRequest) (o *Order, replayed bool, err error)
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	ListAll(ctx context.Context, detailed bool) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, s Status) error
	UpdateItemStatus(ctx context.Context, itemID string, s ItemStatus) error
}

// Options tune the documented compatibility gaps; both default to the legacy
// permissive behavior.
type Options struct {
	TrustClientTotal bool
	StrictStatus     bool
}

type Repo struct {
	db   store.DB
	opts Options
}

func NewRepo(db store.DB, opts Options) *Repo { return &Repo{db: db, opts: opts} }

// Place runs the whole placement as one transaction: per item, lock the sweet
// row, check stock, then insert the order header, the items and the stock
// decrements. Any failure rolls everything back; no partial order can be
// observed. A repeated ClientRef returns the previously created order instead
// of double-ordering.
func (r *Repo) Place(ctx context.Context, req PlaceRequest) (*Order, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if req.ClientRef != "" {
		o, err := r.getByClientRef(ctx, req.ClientRef)
		if err == nil {
			return o, true, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Validate in input order while taking row locks; the locks serialize
	// concurrent placements touching the same sweets.
	type line struct {
		sweetID  string
		quantity int
		price    decimal.Decimal
	}
	lines := make([]line, 0, len(req.Items))
	total := decimal.Zero
	for _, it := range req.Items {
		var stock int
		var price decimal.Decimal
		err := tx.QueryRow(ctx, `
			SELECT stock_quantity, price FROM sweets WHERE id = $1 FOR UPDATE
		`, it.SweetID).Scan(&stock, &price)
		if errors.Is(err, store.ErrNoRows) {
			return nil, false, &UnknownSweetError{SweetID: it.SweetID}
		}
		if err != nil {
			return nil, false, err
		}
		if stock < it.Quantity {
			return nil, false, &InsufficientStockError{
				SweetID:   it.SweetID,
				Available: stock,
				Requested: it.Quantity,
			}
		}
		lines = append(lines, line{sweetID: it.SweetID, quantity: it.Quantity, price: price})
		total = total.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	if req.SuppliedTotal != nil && r.opts.TrustClientTotal {
		total = *req.SuppliedTotal
	}

	o := &Order{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		TotalAmount:     total,
		DeliveryAddress: req.DeliveryAddress,
		Status:          StatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, total_amount, delivery_address, status, client_ref, created_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7)
	`, o.ID, o.UserID, o.TotalAmount, o.DeliveryAddress, o.Status, req.ClientRef, o.CreatedAt)
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a client_ref race; the winner's order is the one to return.
		_ = tx.Rollback(ctx)
		existing, ferr := r.getByClientRef(ctx, req.ClientRef)
		if ferr != nil {
			return nil, false, ferr
		}
		return existing, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	for _, ln := range lines {
		sub := ln.price.Mul(decimal.NewFromInt(int64(ln.quantity)))
		it := Item{
			ID:           uuid.NewString(),
			OrderID:      o.ID,
			SweetID:      ln.sweetID,
			Quantity:     ln.quantity,
			PricePerUnit: ln.price,
			Subtotal:     sub,
			Status:       ItemPending,
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, sweet_id, quantity, price_per_unit, subtotal, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, it.ID, it.OrderID, it.SweetID, it.Quantity, it.PricePerUnit, it.Subtotal, it.Status); err != nil {
			return nil, false, err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE sweets SET stock_quantity = stock_quantity - $1 WHERE id = $2
		`, ln.quantity, ln.sweetID); err != nil {
			return nil, false, err
		}
		o.Items = append(o.Items, it)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return o, false, nil
}

func (r *Repo) getByClientRef(ctx context.Context, ref string) (*Order, error) {
	var o Order
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, total_amount, delivery_address, status, created_at
		FROM orders WHERE client_ref = $1
	`, ref).Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.DeliveryAddress, &o.Status, &o.CreatedAt)
	if errors.Is(err, store.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var o Order
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, total_amount, delivery_address, status, created_at
		FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.DeliveryAddress, &o.Status, &o.CreatedAt)
	if errors.Is(err, store.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, sweet_id, quantity, price_per_unit, subtotal, status
		FROM order_items WHERE order_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.SweetID, &it.Quantity,
			&it.PricePerUnit, &it.Subtotal, &it.Status); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByUser returns the customer's order headers, newest first, without
// items.
func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, total_amount, delivery_address, status, created_at
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.DeliveryAddress,
			&o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListAll returns every order with its items for the back office. The
// detailed variant joins each item with the sweet's name and location.
func (r *Repo) ListAll(ctx context.Context, detailed bool) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, total_amount, delivery_address, status, created_at
		FROM orders
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	var out []Order
	index := map[string]int{}
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.DeliveryAddress,
			&o.Status, &o.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		index[o.ID] = len(out)
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	itemQuery := `
		SELECT id, order_id, sweet_id, quantity, price_per_unit, subtotal, status
		FROM order_items
		ORDER BY order_id, id
	`
	if detailed {
		// LEFT JOIN: the sweet may have been deleted from the catalog since
		// the order was placed; the item's own snapshot still stands.
		itemQuery = `
			SELECT oi.id, oi.order_id, oi.sweet_id, oi.quantity, oi.price_per_unit,
			       oi.subtotal, oi.status, COALESCE(s.sweet_name, ''), COALESCE(s.location, '')
			FROM order_items oi
			LEFT JOIN sweets s ON s.id = oi.sweet_id
			ORDER BY oi.order_id, oi.id
		`
	}
	irows, err := r.db.Query(ctx, itemQuery)
	if err != nil {
		return nil, err
	}
	defer irows.Close()
	for irows.Next() {
		var it Item
		var err error
		if detailed {
			err = irows.Scan(&it.ID, &it.OrderID, &it.SweetID, &it.Quantity,
				&it.PricePerUnit, &it.Subtotal, &it.Status, &it.SweetName, &it.Location)
		} else {
			err = irows.Scan(&it.ID, &it.OrderID, &it.SweetID, &it.Quantity,
				&it.PricePerUnit, &it.Subtotal, &it.Status)
		}
		if err != nil {
			return nil, err
		}
		if i, ok := index[it.OrderID]; ok {
			out[i].Items = append(out[i].Items, it)
		}
	}
	return out, irows.Err()
}

// UpdateStatus sets the order status and cascades the same value onto every
// item of the order, overwriting individually-set item statuses. Both writes
// happen in one transaction.
func (r *Repo) UpdateStatus(ctx context.Context, id string, s Status) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, store.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if r.opts.StrictStatus && current != s && !CanTransition(current, s) {
		return &TransitionError{From: string(current), To: string(s)}
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, s, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE order_items SET status = $1 WHERE order_id = $2`, ItemStatus(s), id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateItemStatus changes one item only; the parent order's status is never
// touched (cascade runs downward, not upward).
func (r *Repo) UpdateItemStatus(ctx context.Context, itemID string, s ItemStatus) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if !r.opts.StrictStatus {
		n, err := r.db.Exec(ctx, `UPDATE order_items SET status = $1 WHERE id = $2`, s, itemID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrItemNotFound
		}
		return nil
	}

	// Strict mode reads before writing, so lock the row to keep two
	// concurrent updates from interleaving.
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current ItemStatus
	err = tx.QueryRow(ctx, `SELECT status FROM order_items WHERE id = $1 FOR UPDATE`, itemID).Scan(&current)
	if errors.Is(err, store.ErrNoRows) {
		return ErrItemNotFound
	}
	if err != nil {
		return err
	}
	if current != s && !CanTransitionItem(current, s) {
		return &TransitionError{From: string(current), To: string(s)}
	}
	if _, err := tx.Exec(ctx, `UPDATE order_items SET status = $1 WHERE id = $2`, s, itemID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
