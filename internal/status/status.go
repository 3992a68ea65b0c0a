package status

import (
	"time"

	"offersync/internal/models"
)

// Normalizer maps upstream status spellings onto the canonical taxonomy and
// derives time-based terminal states at observation time. The stored status
// is not authoritative for expiry: a pending row whose expires_at has passed
// must be observed as expired even before the backend rewrites it.
type Normalizer struct {
	Now func() time.Time

	// ExpireAcceptedOnDeadline additionally expires approved offers whose
	// purchase_deadline has passed. The upstream system documented this but
	// never evaluated it, so it stays behind a switch, off by default.
	ExpireAcceptedOnDeadline bool
}

func (n Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

// Normalize maps a raw upstream status plus its expiry deadline to the
// canonical status. Malformed timestamps never expire anything.
func (n Normalizer) Normalize(raw, expiresAt string) models.OfferStatus {
	mapped := models.OfferStatus(raw)
	switch raw {
	case "accepted":
		mapped = models.OfferApproved
	case "purchased":
		mapped = models.OfferReserved
	}
	if mapped == models.OfferPending && isPast(expiresAt, n.now()) {
		return models.OfferExpired
	}
	return mapped
}

// NormalizeRow turns a raw backend row into an Offer: status mapping,
// price/quantity resolution across the historical column names, and the
// denormalized product and party snapshots.
func (n Normalizer) NormalizeRow(row models.OfferRow) models.Offer {
	st := n.Normalize(row.Status, row.ExpiresAt)
	if n.ExpireAcceptedOnDeadline && st == models.OfferApproved && isPast(row.PurchaseDeadline, n.now()) {
		st = models.OfferExpired
	}

	prev := row.BasePriceAtOffer
	if prev == nil {
		prev = row.CurrentProductPrice
	}

	return models.Offer{
		ID:       row.ID,
		Status:   st,
		Price:    firstFloat(row.Price, row.OfferedPrice),
		Quantity: firstInt(row.Quantity, row.OfferedQuantity),
		Product: models.ProductSnapshot{
			ID:            row.ProductID,
			Name:          row.ProductName,
			Thumbnail:     row.ProductThumbnail,
			Stock:         row.CurrentStock,
			PreviousPrice: prev,
			PriceTiers:    row.PriceTiers,
		},
		Buyer:            models.PartySnapshot{ID: row.BuyerID, Name: row.BuyerName},
		Supplier:         models.PartySnapshot{ID: row.SupplierID, Name: row.SupplierName},
		Message:          row.Message,
		ExpiresAt:        row.ExpiresAt,
		PurchaseDeadline: row.PurchaseDeadline,
		RejectionReason:  row.RejectionReason,
		CancelReason:     row.CancelReason,
		CreatedAt:        row.CreatedAt,
	}
}

func (n Normalizer) NormalizeAll(rows []models.OfferRow) []models.Offer {
	offers := make([]models.Offer, 0, len(rows))
	for _, row := range rows {
		offers = append(offers, n.NormalizeRow(row))
	}
	return offers
}

// TimeRemaining reports the seconds left to act on an offer: until
// expires_at while pending, until purchase_deadline while approved,
// zero otherwise. Floored at zero.
func TimeRemaining(o models.Offer, now time.Time) int64 {
	var deadline string
	switch o.Status {
	case models.OfferPending:
		deadline = o.ExpiresAt
	case models.OfferApproved:
		deadline = o.PurchaseDeadline
	default:
		return 0
	}
	t, err := time.Parse(time.RFC3339, deadline)
	if err != nil {
		return 0
	}
	left := t.Sub(now) / time.Second
	if left < 0 {
		return 0
	}
	return int64(left)
}

func isPast(ts string, now time.Time) bool {
	if ts == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return false
	}
	return t.Before(now)
}

func firstFloat(vals ...*float64) float64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstInt(vals ...*int64) int64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}
