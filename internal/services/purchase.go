package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RezaTaheri01/telegram-store-bot/internal/ledger"
	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

// ProductLookup loads a live product.
type ProductLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Allocator is the ledger's purchase operation.
type Allocator interface {
	DebitAndAllocate(ctx context.Context, accountID int64, productID uuid.UUID, price decimal.Decimal) (*models.InventoryItem, ledger.Outcome, error)
}

// ItemNotifier delivers a purchased item's sealed payload.
type ItemNotifier interface {
	ItemDelivered(ctx context.Context, accountID int64, product *models.Product, sealed []byte) error
}

// PurchaseResult is what the buyer is told. Item is set only on Success.
type PurchaseResult struct {
	Outcome ledger.Outcome
	Product *models.Product
	Item    *models.InventoryItem
}

// PurchaseFlow charges a buyer and hands them one unit of a product.
type PurchaseFlow struct {
	products  ProductLookup
	allocator Allocator
	notifier  ItemNotifier
	log       *slog.Logger
}

func NewPurchaseFlow(products ProductLookup, allocator Allocator, notifier ItemNotifier, log *slog.Logger) *PurchaseFlow {
	if log == nil {
		log = slog.Default()
	}
	return &PurchaseFlow{products: products, allocator: allocator, notifier: notifier, log: log}
}

// Purchase runs one purchase. A missing or deleted product is reported as
// SoldOut. Delivery is queued after the debit commits and its failure does
// not undo the purchase; the buyer can re-view the item in their history.
func (f *PurchaseFlow) Purchase(ctx context.Context, accountID int64, productID uuid.UUID) (*PurchaseResult, error) {
	product, err := f.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &PurchaseResult{Outcome: ledger.SoldOut}, nil
		}
		return nil, fmt.Errorf("load product: %w", err)
	}

	item, out, err := f.allocator.DebitAndAllocate(ctx, accountID, product.ID, product.Price)
	if err != nil {
		return nil, err
	}
	res := &PurchaseResult{Outcome: out, Product: product}
	if out != ledger.Success {
		return res, nil
	}
	res.Item = item

	f.log.Info("item purchased", "account_id", accountID, "product_id", product.ID, "item_id", item.ID, "price", product.Price.String())
	if f.notifier != nil {
		if err := f.notifier.ItemDelivered(ctx, accountID, product, item.Payload); err != nil {
			f.log.Warn("item delivery not queued", "account_id", accountID, "item_id", item.ID, "error", err)
		}
	}
	return res, nil
}
