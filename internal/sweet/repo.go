// Package sweet provides the repository interface and SQL implementation for
// the catalog.
package sweet

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sweetlane/sweetshop/internal/store"
)

var (
	ErrNotFound = errors.New("sweet not found")
)

type Query struct {
	Q      string
	Limit  int
	Offset int
}

type Repository interface {
	Create(ctx context.Context, s *Sweet) error
	GetByID(ctx context.Context, id string) (*Sweet, error)
	List(ctx context.Context, q Query) ([]Sweet, error)
	Update(ctx context.Context, s *Sweet) error
	Delete(ctx context.Context, id string) (bool, error)
	SetStock(ctx context.Context, id string, quantity int) error
}

type Repo struct{ db store.DB }

func NewRepo(db store.DB) *Repo { return &Repo{db: db} }

const sweetColumns = `id, sweet_name, category, weight, flavor, location, shop_address, price, type, sold, image, stock_quantity`

func (r *Repo) Create(ctx context.Context, s *Sweet) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO sweets (`+sweetColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, s.ID, s.Name, s.Category, s.Weight, s.Flavor, s.Location, s.ShopAddr,
		s.Price, s.Type, s.Sold, s.Image, s.StockQuantity)
	return err
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Sweet, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var s Sweet
	err := r.db.QueryRow(ctx, `
		SELECT `+sweetColumns+`
		FROM sweets WHERE id=$1
	`, id).Scan(&s.ID, &s.Name, &s.Category, &s.Weight, &s.Flavor, &s.Location,
		&s.ShopAddr, &s.Price, &s.Type, &s.Sold, &s.Image, &s.StockQuantity)
	if errors.Is(err, store.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) List(ctx context.Context, q Query) ([]Sweet, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	search := strings.ToLower(strings.TrimSpace(q.Q))

	// LOWER(...) LIKE instead of ILIKE, CONCAT instead of ||, so the query
	// runs on both dialects.
	rows, err := r.db.Query(ctx, `
		SELECT `+sweetColumns+`
		FROM sweets
		WHERE ($1 = '' OR LOWER(sweet_name) LIKE CONCAT('%',$2,'%') OR LOWER(category) LIKE CONCAT('%',$3,'%'))
		ORDER BY sweet_name
		LIMIT $4 OFFSET $5
	`, search, search, search, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sweet
	for rows.Next() {
		var s Sweet
		if err := rows.Scan(&s.ID, &s.Name, &s.Category, &s.Weight, &s.Flavor, &s.Location,
			&s.ShopAddr, &s.Price, &s.Type, &s.Sold, &s.Image, &s.StockQuantity); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) Update(ctx context.Context, s *Sweet) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := r.db.Exec(ctx, `
		UPDATE sweets
		SET sweet_name   = COALESCE(NULLIF($2,''), sweet_name),
		    category     = COALESCE(NULLIF($3,''), category),
		    weight       = COALESCE(NULLIF($4,''), weight),
		    flavor       = $5,
		    location     = COALESCE(NULLIF($6,''), location),
		    shop_address = COALESCE(NULLIF($7,''), shop_address),
		    price        = $8,
		    type         = COALESCE(NULLIF($9,''), type),
		    sold         = $10,
		    image        = $11,
		    stock_quantity = $12
		WHERE id = $1
	`, s.ID, s.Name, s.Category, s.Weight, s.Flavor, s.Location, s.ShopAddr,
		s.Price, s.Type, s.Sold, s.Image, s.StockQuantity)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := r.db.Exec(ctx, `DELETE FROM sweets WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetStock sets the absolute stock quantity (admin back-office operation).
// Callers validate quantity >= 0.
func (r *Repo) SetStock(ctx context.Context, id string, quantity int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := r.db.Exec(ctx, `
		UPDATE sweets SET stock_quantity = $2 WHERE id = $1
	`, id, quantity)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
