package offers

import (
	"context"
	"errors"
	"log"

	"offersync/internal/snapshot"
)

var ErrNoFeed = errors.New("no change feed configured")

// SubscribeBuyer opens the push channel for one buyer's rows. Any change
// event forces a fresh fetch; the payload is ignored. Re-subscribing tears
// down the previous channel for this side.
func (e *Engine) SubscribeBuyer(buyerID string) error {
	return e.subscribe(snapshot.BucketBuyer, buyerID)
}

// SubscribeSupplier is the counter-party equivalent.
func (e *Engine) SubscribeSupplier(supplierID string) error {
	return e.subscribe(snapshot.BucketSupplier, supplierID)
}

func (e *Engine) subscribe(sideName, actorID string) error {
	if e.feed == nil {
		return ErrNoFeed
	}
	if actorID == "" {
		return ErrMissingActorID
	}

	onChange := func() {
		var err error
		if sideName == snapshot.BucketBuyer {
			_, err = e.LoadBuyerOffers(context.Background(), actorID, ForceNetwork())
		} else {
			_, err = e.LoadSupplierOffers(context.Background(), actorID, ForceNetwork())
		}
		if err != nil {
			log.Printf("%s offers: change-driven refresh failed actor=%s: %v", sideName, actorID, err)
		}
	}

	sub, err := e.feed.Subscribe(sideName, actorID, onChange)
	if err != nil {
		return err
	}

	e.subMu.Lock()
	prev := e.buyerSub
	if sideName == snapshot.BucketBuyer {
		e.buyerSub = sub
	} else {
		prev = e.supplierSub
		e.supplierSub = sub
	}
	e.subMu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			log.Printf("%s offers: previous subscription close failed: %v", sideName, err)
		}
	}
	e.state.AddSubscription(sub)
	return nil
}

// UnsubscribeAll tears down every push channel tracked by the state
// container.
func (e *Engine) UnsubscribeAll() {
	e.subMu.Lock()
	e.buyerSub = nil
	e.supplierSub = nil
	e.subMu.Unlock()
	e.state.CloseSubscriptions()
}
