package cart

import (
	"context"
	"errors"

	"offersync/internal/models"
)

// Cart is the external cart collection's read surface.
type Cart interface {
	Items(ctx context.Context) ([]models.CartItem, error)
}

// ItemReplacer is the direct item-replace mutation shape.
type ItemReplacer interface {
	ReplaceItems(ctx context.Context, items []models.CartItem) error
}

// StatePatcher is the generic state-patch mutation shape.
type StatePatcher interface {
	Patch(ctx context.Context, fields map[string]any) error
}

var ErrNoMutator = errors.New("cart exposes no mutation primitive")

// Statuses whose offers must not remain purchasable in the cart.
var invalid = map[models.OfferStatus]bool{
	models.OfferExpired:   true,
	models.OfferRejected:  true,
	models.OfferCancelled: true,
	models.OfferPaid:      true,
}

// PruneInvalid removes cart lines referencing offers in a terminal or
// invalid state. Lines with no offer id pass through untouched. When
// nothing needs removing the mutation primitive is not invoked.
func PruneInvalid(ctx context.Context, c Cart, offers []models.Offer) (int, error) {
	if c == nil {
		return 0, nil
	}
	items, err := c.Items(ctx)
	if err != nil {
		return 0, err
	}

	bad := make(map[string]bool)
	for _, o := range offers {
		if o.ID != "" && invalid[o.Status] {
			bad[o.ID] = true
		}
	}

	kept := make([]models.CartItem, 0, len(items))
	removed := 0
	for _, it := range items {
		if it.OfferID != "" && bad[it.OfferID] {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	if removed == 0 {
		return 0, nil
	}

	switch m := c.(type) {
	case ItemReplacer:
		err = m.ReplaceItems(ctx, kept)
	case StatePatcher:
		err = m.Patch(ctx, map[string]any{"items": kept})
	default:
		return 0, ErrNoMutator
	}
	if err != nil {
		return 0, err
	}
	return removed, nil
}
