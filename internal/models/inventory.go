package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalogue entry. Name is the fallback display name; NameEN
// and NameFA are the per-language overrides.
type Product struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	NameEN    string          `json:"name_en,omitempty"`
	NameFA    string          `json:"name_fa,omitempty"`
	Price     decimal.Decimal `json:"price"`
	IsDeleted bool            `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}

// DisplayName returns the product name for lang, falling back to Name.
func (p *Product) DisplayName(lang string) string {
	var n string
	switch lang {
	case LangEnglish:
		n = p.NameEN
	case LangFarsi:
		n = p.NameFA
	}
	if n == "" {
		return p.Name
	}
	return n
}

// InventoryItem is one purchasable unit of a product. Payload is sealed at
// rest. BuyerID and PurchasedAt are set together with IsPurchased.
type InventoryItem struct {
	ID          uuid.UUID  `json:"id"`
	ProductID   uuid.UUID  `json:"product_id"`
	Payload     []byte     `json:"-"`
	IsPurchased bool       `json:"is_purchased"`
	IsDeleted   bool       `json:"-"`
	BuyerID     *int64     `json:"buyer_id,omitempty"`
	PurchasedAt *time.Time `json:"purchased_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Purchase is a purchased item joined with its product, for history views.
type Purchase struct {
	ItemID      uuid.UUID       `json:"item_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Payload     []byte          `json:"-"`
	PurchasedAt time.Time       `json:"purchased_at"`
}
