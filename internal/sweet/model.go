package sweet

import "github.com/shopspring/decimal"

type Sweet struct {
	ID       string `json:"id"`
	Name     string `json:"sweet_name"`
	Category string `json:"category"`
	Weight   string `json:"weight"`
	Flavor   string `json:"flavor,omitempty"`
	Location string `json:"location"`
	ShopAddr string `json:"shop_address"`
	// Price stays in decimal to avoid rounding errors (NUMERIC/DECIMAL column).
	Price decimal.Decimal `json:"price"`
	Type  string          `json:"type"`
	// Sold is a legacy flag superseded by StockQuantity; kept for the old UI.
	Sold          bool   `json:"sold"`
	Image         string `json:"image"`
	StockQuantity int    `json:"stock_quantity"`
}

// CreateSweetRequest is the POST /api/addsweet payload.
type CreateSweetRequest struct {
	Name          string          `json:"sweet_name"`
	Category      string          `json:"category"`
	Weight        string          `json:"weight"`
	Flavor        string          `json:"flavor"`
	Location      string          `json:"location"`
	ShopAddr      string          `json:"shop_address"`
	Price         decimal.Decimal `json:"price"`
	Type          string          `json:"type"`
	Image         string          `json:"image"`
	StockQuantity int             `json:"stock_quantity"`
}
