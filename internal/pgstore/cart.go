package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"offersync/internal/cart"
	"offersync/internal/models"
)

// Carts hands out one buyer-scoped cart view per buyer.
type Carts struct {
	Pool *pgxpool.Pool
}

func NewCarts(pool *pgxpool.Pool) *Carts {
	return &Carts{Pool: pool}
}

func (c *Carts) ForBuyer(buyerID string) cart.Cart {
	return &buyerCart{pool: c.Pool, buyerID: buyerID}
}

// buyerCart reads and rewrites the cart_items rows of a single buyer.
type buyerCart struct {
	pool    *pgxpool.Pool
	buyerID string
}

func (c *buyerCart) Items(ctx context.Context) ([]models.CartItem, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, product_id, name, quantity, price, COALESCE(offer_id::text, '')
		FROM cart_items
		WHERE buyer_id=$1
		ORDER BY created_at
	`, c.buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		var it models.CartItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Name, &it.Quantity, &it.Price, &it.OfferID); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ReplaceItems deletes the buyer's offer-linked lines that are absent from
// the kept set. Lines without an offer id are never touched, so only the
// pruned rows go away.
func (c *buyerCart) ReplaceItems(ctx context.Context, items []models.CartItem) error {
	keep := make([]string, 0, len(items))
	for _, it := range items {
		if it.OfferID != "" {
			keep = append(keep, it.OfferID)
		}
	}

	return pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			DELETE FROM cart_items
			WHERE buyer_id=$1 AND offer_id IS NOT NULL AND NOT (offer_id::text = ANY($2))
		`, c.buyerID, keep)
		return err
	})
}
