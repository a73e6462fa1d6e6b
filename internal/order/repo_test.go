package order

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetlane/sweetshop/internal/store"
)

//
// ---------- fake store ----------
//
// fakeDB implements store.DB with just enough SQL dispatch for the repo's
// statements. Transactions stage writes on a cloned state and publish it on
// Commit, so rollback behavior is observable from the committed state.
//

type sweetRow struct {
	stock          int
	price          decimal.Decimal
	name, location string
}

type orderRow struct {
	id, userID, address, status, clientRef string
	total                                  decimal.Decimal
	createdAt                              time.Time
}

type itemRow struct {
	id, orderID, sweetID, status string
	quantity                     int
	price, subtotal              decimal.Decimal
}

type dbState struct {
	sweets map[string]sweetRow
	orders []orderRow
	items  []itemRow
}

func (s *dbState) clone() *dbState {
	c := &dbState{sweets: map[string]sweetRow{}}
	for k, v := range s.sweets {
		c.sweets[k] = v
	}
	c.orders = append([]orderRow(nil), s.orders...)
	c.items = append([]itemRow(nil), s.items...)
	return c
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case Status:
		return string(t)
	case ItemStatus:
		return string(t)
	}
	panic(fmt.Sprintf("asString: unsupported %T", v))
}

func (s *dbState) exec(query string, args []any) (int64, error) {
	switch {
	case strings.Contains(query, "INSERT INTO orders"):
		ref := args[5].(string)
		if ref != "" {
			for _, o := range s.orders {
				if o.clientRef == ref {
					return 0, store.ErrDuplicate
				}
			}
		}
		s.orders = append(s.orders, orderRow{
			id:        args[0].(string),
			userID:    args[1].(string),
			total:     args[2].(decimal.Decimal),
			address:   args[3].(string),
			status:    asString(args[4]),
			clientRef: ref,
			createdAt: args[6].(time.Time),
		})
		return 1, nil

	case strings.Contains(query, "INSERT INTO order_items"):
		s.items = append(s.items, itemRow{
			id:       args[0].(string),
			orderID:  args[1].(string),
			sweetID:  args[2].(string),
			quantity: args[3].(int),
			price:    args[4].(decimal.Decimal),
			subtotal: args[5].(decimal.Decimal),
			status:   asString(args[6]),
		})
		return 1, nil

	case strings.Contains(query, "stock_quantity = stock_quantity -"):
		sw, ok := s.sweets[args[1].(string)]
		if !ok {
			return 0, nil
		}
		sw.stock -= args[0].(int)
		s.sweets[args[1].(string)] = sw
		return 1, nil

	case strings.Contains(query, "UPDATE orders SET status"):
		for i := range s.orders {
			if s.orders[i].id == args[1].(string) {
				s.orders[i].status = asString(args[0])
				return 1, nil
			}
		}
		return 0, nil

	case strings.Contains(query, "UPDATE order_items SET status") && strings.Contains(query, "order_id"):
		var n int64
		for i := range s.items {
			if s.items[i].orderID == args[1].(string) {
				s.items[i].status = asString(args[0])
				n++
			}
		}
		return n, nil

	case strings.Contains(query, "UPDATE order_items SET status"):
		for i := range s.items {
			if s.items[i].id == args[1].(string) {
				s.items[i].status = asString(args[0])
				return 1, nil
			}
		}
		return 0, nil
	}
	return 0, fmt.Errorf("fake exec: unhandled query %q", query)
}

func (s *dbState) queryRow(query string, args []any) store.Row {
	switch {
	case strings.Contains(query, "FROM sweets") && strings.Contains(query, "FOR UPDATE"):
		sw, ok := s.sweets[args[0].(string)]
		if !ok {
			return fakeRow{err: store.ErrNoRows}
		}
		return fakeRow{vals: []any{sw.stock, sw.price}}

	case strings.Contains(query, "client_ref"):
		for _, o := range s.orders {
			if o.clientRef == args[0].(string) {
				return fakeRow{vals: []any{o.id, o.userID, o.total, o.address, o.status, o.createdAt}}
			}
		}
		return fakeRow{err: store.ErrNoRows}

	case strings.Contains(query, "SELECT status FROM orders"):
		for _, o := range s.orders {
			if o.id == args[0].(string) {
				return fakeRow{vals: []any{o.status}}
			}
		}
		return fakeRow{err: store.ErrNoRows}

	case strings.Contains(query, "SELECT status FROM order_items"):
		for _, it := range s.items {
			if it.id == args[0].(string) {
				return fakeRow{vals: []any{it.status}}
			}
		}
		return fakeRow{err: store.ErrNoRows}
	}
	return fakeRow{err: fmt.Errorf("fake queryRow: unhandled query %q", query)}
}

func (s *dbState) query(query string, args []any) (store.Rows, error) {
	orderVals := func(o orderRow) []any {
		return []any{o.id, o.userID, o.total, o.address, o.status, o.createdAt}
	}
	switch {
	case strings.Contains(query, "FROM orders") && strings.Contains(query, "WHERE user_id"):
		var rows [][]any
		for _, o := range s.orders {
			if o.userID == args[0].(string) {
				rows = append(rows, orderVals(o))
			}
		}
		return &fakeRows{rows: rows}, nil

	case strings.Contains(query, "FROM orders"):
		var rows [][]any
		for _, o := range s.orders {
			rows = append(rows, orderVals(o))
		}
		return &fakeRows{rows: rows}, nil

	case strings.Contains(query, "LEFT JOIN sweets"):
		var rows [][]any
		for _, it := range s.items {
			// deleted sweets coalesce to blank name and location
			sw := s.sweets[it.sweetID]
			rows = append(rows, []any{
				it.id, it.orderID, it.sweetID, it.quantity,
				it.price, it.subtotal, it.status, sw.name, sw.location,
			})
		}
		return &fakeRows{rows: rows}, nil

	case strings.Contains(query, "FROM order_items") && strings.Contains(query, "WHERE order_id"):
		var rows [][]any
		for _, it := range s.items {
			if it.orderID == args[0].(string) {
				rows = append(rows, []any{it.id, it.orderID, it.sweetID, it.quantity, it.price, it.subtotal, it.status})
			}
		}
		return &fakeRows{rows: rows}, nil

	case strings.Contains(query, "FROM order_items"):
		var rows [][]any
		for _, it := range s.items {
			rows = append(rows, []any{it.id, it.orderID, it.sweetID, it.quantity, it.price, it.subtotal, it.status})
		}
		return &fakeRows{rows: rows}, nil
	}
	return nil, fmt.Errorf("fake query: unhandled query %q", query)
}

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int:
			*p = r.vals[i].(int)
		case *string:
			*p = r.vals[i].(string)
		case *decimal.Decimal:
			*p = r.vals[i].(decimal.Decimal)
		case *Status:
			*p = Status(r.vals[i].(string))
		case *ItemStatus:
			*p = ItemStatus(r.vals[i].(string))
		case *time.Time:
			*p = r.vals[i].(time.Time)
		default:
			return fmt.Errorf("fake scan: unsupported dest %T", d)
		}
	}
	return nil
}

type fakeRows struct {
	rows [][]any
	i    int
}

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error { return fakeRow{vals: r.rows[r.i-1]}.Scan(dest...) }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close()                 {}

type fakeDB struct {
	*dbState
	begun, commits, rollbacks int
}

func newFakeDB() *fakeDB {
	return &fakeDB{dbState: &dbState{sweets: map[string]sweetRow{}}}
}

func (f *fakeDB) Exec(_ context.Context, query string, args ...any) (int64, error) {
	return f.dbState.exec(query, args)
}

func (f *fakeDB) Query(_ context.Context, query string, args ...any) (store.Rows, error) {
	return f.dbState.query(query, args)
}

func (f *fakeDB) QueryRow(_ context.Context, query string, args ...any) store.Row {
	return f.dbState.queryRow(query, args)
}

func (f *fakeDB) Begin(context.Context) (store.Tx, error) {
	f.begun++
	return &fakeTx{db: f, staged: f.dbState.clone()}, nil
}

func (f *fakeDB) Close() {}

type fakeTx struct {
	db     *fakeDB
	staged *dbState
	done   bool
}

func (t *fakeTx) Exec(_ context.Context, query string, args ...any) (int64, error) {
	return t.staged.exec(query, args)
}

func (t *fakeTx) Query(_ context.Context, query string, args ...any) (store.Rows, error) {
	return t.staged.query(query, args)
}

func (t *fakeTx) QueryRow(_ context.Context, query string, args ...any) store.Row {
	return t.staged.queryRow(query, args)
}

func (t *fakeTx) Commit(context.Context) error {
	t.done = true
	t.db.commits++
	t.db.dbState = t.staged
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.done {
		t.done = true
		t.db.rollbacks++
	}
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

//
// ---------- tests ----------
//

func TestPlace_ComputesTotalAndDecrementsStock(t *testing.T) {
	db := newFakeDB()
	db.sweets["p1"] = sweetRow{stock: 5, price: dec("100")}
	repo := NewRepo(db, Options{})

	o, replayed, err := repo.Place(context.Background(), PlaceRequest{
		UserID:          "u1",
		DeliveryAddress: "12 Fudge Lane",
		Items:           []PlaceItem{{SweetID: "p1", Quantity: 3}},
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.True(t, o.TotalAmount.Equal(dec("300")), "total=%s", o.TotalAmount)
	assert.Equal(t, StatusPending, o.Status)

	assert.Equal(t, 2, db.sweets["p1"].stock)
	require.Len(t, db.orders, 1)
	assert.Equal(t, "pending", db.orders[0].status)
	require.Len(t, db.items, 1)
	assert.Equal(t, 3, db.items[0].quantity)
	assert.True(t, db.items[0].subtotal.Equal(dec("300")))
	assert.Equal(t, "pending", db.items[0].status)
	assert.Equal(t, 1, db.commits)
}

func TestPlace_MultipleItems(t *testing.T) {
	db := newFakeDB()
	db.sweets["p1"] = sweetRow{stock: 10, price: dec("12.50")}
	db.sweets["p2"] = sweetRow{stock: 4, price: dec("3.25")}
	repo := NewRepo(db, Options{})

	o, _, err := repo.Place(context.Background(), PlaceRequest{
		UserID:          "u1",
		DeliveryAddress: "12 Fudge Lane",
		Items: []PlaceItem{
			{SweetID: "p1", Quantity: 2},
			{SweetID: "p2", Quantity: 4},
		},
	})
	require.NoError(t, err)
	assert.True(t, o.TotalAmount.Equal(dec("38")), "total=%s", o.TotalAmount)
	assert.Equal(t, 8, db.sweets["p1"].stock)
	assert.Equal(t, 0, db.sweets["p2"].stock)
	require.Len(t, db.items, 2)
}

func TestPlace_InsufficientStock_RollsBackEverything(t *testing.T) {
	db := newFakeDB()
	db.sweets["p1"] = sweetRow{stock: 5, price: dec("100")}
	repo := NewRepo(db, Options{})

	_, _, err := repo.Place(context.Background(), PlaceRequest{
		UserID:          "u1",
		DeliveryAddress: "12 Fudge Lane",
		Items:           []PlaceItem{{SweetID: "p1", Quantity: 10}},
	})
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "p1", short.SweetID)
	assert.Equal(t, 5, short.Available)
	assert.Equal(t, 10, short.Requested)

	assert.Equal(t, 5, db.sweets["p1"].stock)
	assert.Empty(t, db.orders)
	assert.Empty(t, db.items)
	assert.Equal(t, 0, db.commits)
	assert.Equal(t, 1, db.rollbacks)
}

func TestPlace_UnknownSweet_NoPartialWrites(t *testing.T) {
	db := newFakeDB()
	db.sweets["p1"] = sweetRow{stock: 5, price: dec("100")}
	repo := NewRepo(db, Options{})

	// First item is valid; the second is unknown. Nothing may survive.
	_, _, err := repo.Place(context.Background(), PlaceRequest{
		UserID:          "u1",
		DeliveryAddress: "12 Fudge Lane",
		Items: []PlaceItem{
			{SweetID: "p1", Quantity: 2},
			{SweetID: "ghost", Quantity: 1},
		},
	})
	var unknown *UnknownSweetError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.SweetID)

	assert.Equal(t, 5, db.sweets["p1"].stock)
	assert.Empty(t, db.orders)
	assert.Empty(t, db.items)
	assert.Equal(t, 0, db.commits)
}

func TestPlace_SuppliedTotalIgnoredByDefault(t *testing.T) {
	db := newFakeDB()
	db.sweets["p1"] = sweetRow{stock: 5, price: dec("100")}
	repo := NewRepo(db, Options{})

	supplied := dec("1.00")
	o, _, err := repo.Place(context.Background(), PlaceRequest{
		UserID:          "u1",
		DeliveryAddress: "12 Fudge Lane",
		Items:           []PlaceItem{{SweetID: "p1", Quantity: 3}},
		SuppliedTotal:   &supplied,
	})
	require.NoError(t, err)
	assert.True(t, o.TotalAmount.Equal(dec("300")), "total=%s", o.TotalAmount)
}

func TestPlace_SuppliedTotalTrustedWhenConfigured(t *testing.T) {
	db := newFakeDB()
	db.sweets["p1"] = sweetRow{stock: 5, price: dec("100")}
	repo := NewRepo(db, Options{TrustClientTotal: true})

	supplied := dec("1.00")
	o, _, err := repo.Place(context.Background(), PlaceRequest{
		UserID:          "u1",
		DeliveryAddress: "12 Fudge Lane",
		Items:           []PlaceItem{{SweetID: "p1", Quantity: 3}},
		SuppliedTotal:   &supplied,
	})
	require.NoError(t, err)
	assert.True(t, o.TotalAmount.Equal(dec("1.00")), "total=%s", o.TotalAmount)
	// Item snapshots still carry the catalog price.
	require.Len(t, db.items, 1)
	assert.True(t, db.items[0].price.Equal(dec("100")))
}

func TestPlace_IdempotencyKeyReplaysExistingOrder(t *testing.T) {
	db := newFakeDB()
	db.sweets["p1"] = sweetRow{stock: 5, price: dec("100")}
	repo := NewRepo(db, Options{})

	req := PlaceRequest{
		UserID:          "u1",
		DeliveryAddress: "12 Fudge Lane",
		Items:           []PlaceItem{{SweetID: "p1", Quantity: 3}},
		ClientRef:       "checkout-42",
	}
	first, replayed, err := repo.Place(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 2, db.sweets["p1"].stock)

	second, replayed, err := repo.Place(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	// No second decrement, no second order.
	assert.Equal(t, 2, db.sweets["p1"].stock)
	assert.Len(t, db.orders, 1)
}

func TestUpdateStatus_CascadesToAllItems(t *testing.T) {
	db := newFakeDB()
	db.orders = []orderRow{{id: "o7", userID: "u1", status: "pending"}}
	db.items = []itemRow{
		{id: "i1", orderID: "o7", status: "pending"},
		{id: "i2", orderID: "o7", status: "shipped"},
		{id: "i3", orderID: "o7", status: "pending"},
		{id: "i9", orderID: "other", status: "pending"},
	}
	repo := NewRepo(db, Options{})

	require.NoError(t, repo.UpdateStatus(context.Background(), "o7", StatusDelivered))

	assert.Equal(t, "delivered", db.orders[0].status)
	for _, it := range db.items[:3] {
		assert.Equal(t, "delivered", it.status, "item %s", it.id)
	}
	// Items of other orders are untouched.
	assert.Equal(t, "pending", db.items[3].status)
	assert.Equal(t, 1, db.commits)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	repo := NewRepo(newFakeDB(), Options{})
	err := repo.UpdateStatus(context.Background(), "missing", StatusDelivered)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_StrictRejectsTerminalRewind(t *testing.T) {
	db := newFakeDB()
	db.orders = []orderRow{{id: "o1", status: "delivered"}}
	db.items = []itemRow{{id: "i1", orderID: "o1", status: "delivered"}}
	repo := NewRepo(db, Options{StrictStatus: true})

	err := repo.UpdateStatus(context.Background(), "o1", StatusPending)
	var bad *TransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "delivered", db.orders[0].status)
	assert.Equal(t, "delivered", db.items[0].status)
	assert.Equal(t, 0, db.commits)
}

func TestUpdateStatus_PermissiveAllowsTerminalRewind(t *testing.T) {
	db := newFakeDB()
	db.orders = []orderRow{{id: "o1", status: "delivered"}}
	repo := NewRepo(db, Options{})

	require.NoError(t, repo.UpdateStatus(context.Background(), "o1", StatusPending))
	assert.Equal(t, "pending", db.orders[0].status)
}

func TestUpdateItemStatus_DoesNotTouchParentOrder(t *testing.T) {
	db := newFakeDB()
	db.orders = []orderRow{{id: "o1", status: "pending"}}
	db.items = []itemRow{
		{id: "i1", orderID: "o1", status: "pending"},
		{id: "i2", orderID: "o1", status: "pending"},
	}
	repo := NewRepo(db, Options{})

	require.NoError(t, repo.UpdateItemStatus(context.Background(), "i1", ItemShipped))

	assert.Equal(t, "shipped", db.items[0].status)
	assert.Equal(t, "pending", db.items[1].status)
	assert.Equal(t, "pending", db.orders[0].status)
}

func TestUpdateItemStatus_NotFound(t *testing.T) {
	repo := NewRepo(newFakeDB(), Options{})
	err := repo.UpdateItemStatus(context.Background(), "missing", ItemShipped)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestUpdateItemStatus_StrictRejectsShippedToPending(t *testing.T) {
	db := newFakeDB()
	db.items = []itemRow{{id: "i1", orderID: "o1", status: "shipped"}}
	repo := NewRepo(db, Options{StrictStatus: true})

	err := repo.UpdateItemStatus(context.Background(), "i1", ItemPending)
	var bad *TransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "shipped", db.items[0].status)
	assert.Equal(t, 0, db.commits)
	assert.Equal(t, 1, db.rollbacks)
}

func TestUpdateItemStatus_StrictHoldsRowLockUntilCommit(t *testing.T) {
	db := newFakeDB()
	db.items = []itemRow{{id: "i1", orderID: "o1", status: "shipped"}}
	repo := NewRepo(db, Options{StrictStatus: true})

	// The status read and the write must share one transaction so concurrent
	// strict updates cannot interleave between them.
	require.NoError(t, repo.UpdateItemStatus(context.Background(), "i1", ItemDelivered))
	assert.Equal(t, "delivered", db.items[0].status)
	assert.Equal(t, 1, db.begun)
	assert.Equal(t, 1, db.commits)
}

func TestListAll_GroupsItemsByOrder(t *testing.T) {
	db := newFakeDB()
	db.orders = []orderRow{
		{id: "o1", userID: "u1", total: dec("300"), status: "pending"},
		{id: "o2", userID: "u2", total: dec("25"), status: "delivered"},
	}
	db.items = []itemRow{
		{id: "i1", orderID: "o1", sweetID: "p1", quantity: 3, price: dec("100"), subtotal: dec("300"), status: "pending"},
		{id: "i2", orderID: "o2", sweetID: "p2", quantity: 1, price: dec("25"), subtotal: dec("25"), status: "delivered"},
		{id: "i3", orderID: "o2", sweetID: "p1", quantity: 2, price: dec("100"), subtotal: dec("200"), status: "pending"},
		// stale row pointing at no known order must not surface anywhere
		{id: "i9", orderID: "ghost", status: "pending"},
	}
	repo := NewRepo(db, Options{})

	out, err := repo.ListAll(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, out, 2)

	byID := map[string][]Item{}
	for _, o := range out {
		byID[o.ID] = o.Items
	}
	require.Len(t, byID["o1"], 1)
	assert.Equal(t, "i1", byID["o1"][0].ID)
	require.Len(t, byID["o2"], 2)
	assert.Equal(t, "i2", byID["o2"][0].ID)
	assert.Equal(t, "i3", byID["o2"][1].ID)
	for _, items := range byID {
		for _, it := range items {
			assert.NotEqual(t, "i9", it.ID)
			assert.Empty(t, it.SweetName, "plain listing must not join the catalog")
		}
	}
}

func TestListAll_DetailedJoinsCatalogAndSurvivesDeletedSweet(t *testing.T) {
	db := newFakeDB()
	db.sweets["p1"] = sweetRow{stock: 5, price: dec("100"), name: "Kaju Katli", location: "Pune"}
	db.orders = []orderRow{{id: "o1", userID: "u1", total: dec("500"), status: "pending"}}
	db.items = []itemRow{
		{id: "i1", orderID: "o1", sweetID: "p1", quantity: 3, price: dec("100"), subtotal: dec("300"), status: "pending"},
		// p-gone was deleted from the catalog after the order was placed
		{id: "i2", orderID: "o1", sweetID: "p-gone", quantity: 2, price: dec("100"), subtotal: dec("200"), status: "pending"},
	}
	repo := NewRepo(db, Options{})

	out, err := repo.ListAll(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Items, 2)

	assert.Equal(t, "Kaju Katli", out[0].Items[0].SweetName)
	assert.Equal(t, "Pune", out[0].Items[0].Location)
	// The snapshot survives; only the joined catalog columns go blank.
	assert.Empty(t, out[0].Items[1].SweetName)
	assert.Empty(t, out[0].Items[1].Location)
	assert.True(t, out[0].Items[1].Subtotal.Equal(dec("200")))
}

func TestListAll_Empty(t *testing.T) {
	repo := NewRepo(newFakeDB(), Options{})
	out, err := repo.ListAll(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, out)
}
