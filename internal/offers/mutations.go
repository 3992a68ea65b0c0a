package offers

import (
	"context"
	"errors"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"

	"offersync/internal/models"
	"offersync/internal/state"
)

var (
	ErrInvalidOffer     = errors.New("invalid offer data")
	ErrLimitReached     = errors.New("monthly offer limit reached")
	ErrDuplicatePending = errors.New("a pending offer already exists for this product")
)

// Upper bound on accepted quantities.
const maxOfferQuantity = 1_000_000

var (
	scriptTagRe    = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	eventHandlerRe = regexp.MustCompile(`(?i)on(?:error|load)\s*=\s*"[^"]*"`)
)

func sanitizeMessage(msg string) string {
	msg = scriptTagRe.ReplaceAllString(msg, "")
	return eventHandlerRe.ReplaceAllString(msg, "")
}

// CreateOffer validates and submits a new offer, appends it to the buyer
// view on success, and fires the best-effort "offer received" notification.
func (e *Engine) CreateOffer(ctx context.Context, req models.CreateOfferRequest) (models.CreateOfferReply, error) {
	if req.BuyerID == "" || req.SupplierID == "" || req.ProductID == "" ||
		req.Price <= 0 || req.Quantity <= 0 || req.Quantity > maxOfferQuantity {
		return models.CreateOfferReply{}, ErrInvalidOffer
	}
	req.Message = sanitizeMessage(req.Message)

	limits := e.ValidateLimits(ctx, LimitsQuery{BuyerID: req.BuyerID, SupplierID: req.SupplierID, ProductID: req.ProductID})
	if !limits.Allowed {
		e.setError("create offer: " + limits.Reason)
		return models.CreateOfferReply{}, ErrLimitReached
	}

	reply, err := e.backend.CreateOffer(ctx, req)
	if err != nil {
		e.setError("create offer: " + err.Error())
		return models.CreateOfferReply{}, err
	}
	if reply.Duplicate {
		e.setError("create offer: " + reply.Err)
		return reply, ErrDuplicatePending
	}
	if reply.OfferID == "" {
		reply.OfferID = uuid.NewString()
	}

	offer := models.Offer{
		ID:        reply.OfferID,
		Status:    models.OfferPending,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Product:   models.ProductSnapshot{ID: req.ProductID, Name: req.ProductName},
		Buyer:     models.PartySnapshot{ID: req.BuyerID, Name: req.BuyerName},
		Supplier:  models.PartySnapshot{ID: req.SupplierID},
		Message:   req.Message,
		ExpiresAt: reply.ExpiresAt,
		CreatedAt: e.now(),
	}
	e.state.Apply(func(sn *state.Snapshot) {
		next := make([]models.Offer, 0, len(sn.BuyerOffers)+1)
		next = append(next, sn.BuyerOffers...)
		sn.BuyerOffers = append(next, offer)
		sn.Err = ""
	})

	e.notifyReceived(offer)
	return reply, nil
}

// AcceptOffer marks a supplier-side offer approved and records the purchase
// deadline the backend granted.
func (e *Engine) AcceptOffer(ctx context.Context, offerID string) error {
	before, _ := e.findSupplierOffer(offerID)

	reply, err := e.backend.RespondOffer(ctx, offerID, true, "")
	if err != nil {
		e.setError("accept offer: " + err.Error())
		return err
	}

	// The state lists share their backing arrays with cache entries and with
	// slices handed to earlier Load callers, so mutations always build a
	// fresh slice.
	var updated models.Offer
	e.state.Apply(func(sn *state.Snapshot) {
		next := make([]models.Offer, len(sn.SupplierOffers))
		copy(next, sn.SupplierOffers)
		for i, o := range next {
			if o.ID == offerID {
				o.Status = models.OfferApproved
				o.PurchaseDeadline = reply.PurchaseDeadline
				next[i] = o
				updated = o
			}
		}
		sn.SupplierOffers = next
		sn.Err = ""
	})
	if updated.ID == "" {
		updated = before
		updated.ID = offerID
		updated.Status = models.OfferApproved
		updated.PurchaseDeadline = reply.PurchaseDeadline
	}

	e.notifyResponded(updated, true)
	return nil
}

// RejectOffer marks a supplier-side offer rejected, keeping the free-text
// reason if one was given.
func (e *Engine) RejectOffer(ctx context.Context, offerID, reason string) error {
	before, _ := e.findSupplierOffer(offerID)

	if _, err := e.backend.RespondOffer(ctx, offerID, false, reason); err != nil {
		e.setError("reject offer: " + err.Error())
		return err
	}

	var updated models.Offer
	e.state.Apply(func(sn *state.Snapshot) {
		next := make([]models.Offer, len(sn.SupplierOffers))
		copy(next, sn.SupplierOffers)
		for i, o := range next {
			if o.ID == offerID {
				o.Status = models.OfferRejected
				o.RejectionReason = reason
				next[i] = o
				updated = o
			}
		}
		sn.SupplierOffers = next
		sn.Err = ""
	})
	if updated.ID == "" {
		updated = before
		updated.ID = offerID
		updated.Status = models.OfferRejected
		updated.RejectionReason = reason
	}

	e.notifyResponded(updated, false)
	return nil
}

// CancelOffer is the buyer-side withdrawal of a pending offer.
func (e *Engine) CancelOffer(ctx context.Context, offerID string) error {
	if err := e.backend.CancelOffer(ctx, offerID); err != nil {
		e.setError("cancel offer: " + err.Error())
		return err
	}
	e.state.Apply(func(sn *state.Snapshot) {
		next := make([]models.Offer, len(sn.BuyerOffers))
		copy(next, sn.BuyerOffers)
		for i := range next {
			if next[i].ID == offerID {
				next[i].Status = models.OfferCancelled
			}
		}
		sn.BuyerOffers = next
		sn.Err = ""
	})
	return nil
}

// MarkReserved transitions an approved offer to reserved once its line is in
// the cart, optionally linking the order that carried it.
func (e *Engine) MarkReserved(ctx context.Context, offerID, orderID string) error {
	if err := e.backend.ReserveOffer(ctx, offerID, orderID); err != nil {
		e.setError("reserve offer: " + err.Error())
		return err
	}
	e.state.Apply(func(sn *state.Snapshot) {
		next := make([]models.Offer, len(sn.BuyerOffers))
		copy(next, sn.BuyerOffers)
		for i := range next {
			if next[i].ID == offerID {
				next[i].Status = models.OfferReserved
			}
		}
		sn.BuyerOffers = next
		sn.Err = ""
	})
	return nil
}

// DeleteOffer removes an offer from the buyer view. The backend call is
// best-effort cleanup; a failure only logs.
func (e *Engine) DeleteOffer(ctx context.Context, offerID string) error {
	if err := e.backend.DeleteOffer(ctx, offerID); err != nil {
		log.Printf("delete offer %s: backend cleanup failed: %v", offerID, err)
	}
	e.state.Apply(func(sn *state.Snapshot) {
		kept := make([]models.Offer, 0, len(sn.BuyerOffers))
		for _, o := range sn.BuyerOffers {
			if o.ID != offerID {
				kept = append(kept, o)
			}
		}
		sn.BuyerOffers = kept
	})
	return nil
}

// ValidatePriceTiers checks an offered price against the product's tier
// table.
func (e *Engine) ValidatePriceTiers(ctx context.Context, productID string, quantity int64, price float64) (models.TierValidation, error) {
	return e.backend.PriceTiers(ctx, productID, quantity, price)
}

func (e *Engine) findSupplierOffer(offerID string) (models.Offer, bool) {
	for _, o := range e.state.Get().SupplierOffers {
		if o.ID == offerID {
			return o, true
		}
	}
	return models.Offer{}, false
}

func (e *Engine) setError(msg string) {
	e.state.Apply(func(sn *state.Snapshot) { sn.Err = msg })
}

// Notification hooks never fail the main flow.

func (e *Engine) notifyReceived(offer models.Offer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.notifier.OfferReceived(ctx, offer); err != nil {
		log.Printf("notify offer received failed id=%s: %v", offer.ID, err)
	}
}

func (e *Engine) notifyResponded(offer models.Offer, accepted bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.notifier.OfferResponded(ctx, offer, accepted); err != nil {
		log.Printf("notify offer responded failed id=%s: %v", offer.ID, err)
	}
}
