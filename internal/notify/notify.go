package notify

import (
	"context"
	"log"

	"offersync/internal/models"
)

// Service receives offer lifecycle events. Implementations are best-effort:
// the engine logs failures and never lets them reach the main flow.
type Service interface {
	OfferReceived(ctx context.Context, offer models.Offer) error
	OfferResponded(ctx context.Context, offer models.Offer, accepted bool) error
}

// Nop is the default when no notification collaborator is wired.
type Nop struct{}

func (Nop) OfferReceived(context.Context, models.Offer) error { return nil }

func (Nop) OfferResponded(context.Context, models.Offer, bool) error { return nil }

// Log writes events to the process log. Useful as a stand-in collaborator.
type Log struct{}

func (Log) OfferReceived(_ context.Context, offer models.Offer) error {
	log.Printf("notify: offer received id=%s supplier=%s product=%s", offer.ID, offer.Supplier.ID, offer.Product.ID)
	return nil
}

func (Log) OfferResponded(_ context.Context, offer models.Offer, accepted bool) error {
	log.Printf("notify: offer responded id=%s buyer=%s accepted=%v", offer.ID, offer.Buyer.ID, accepted)
	return nil
}
