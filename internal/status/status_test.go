package status

import (
	"testing"
	"time"

	"offersync/internal/models"
)

var refNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return refNow }

func TestNormalizeMapsLegacySpellings(t *testing.T) {
	n := Normalizer{Now: fixedNow}
	future := refNow.Add(time.Hour).Format(time.RFC3339)

	cases := []struct {
		raw  string
		want models.OfferStatus
	}{
		{"pending", models.OfferPending},
		{"accepted", models.OfferApproved},
		{"approved", models.OfferApproved},
		{"purchased", models.OfferReserved},
		{"reserved", models.OfferReserved},
		{"paid", models.OfferPaid},
		{"rejected", models.OfferRejected},
		{"cancelled", models.OfferCancelled},
		{"expired", models.OfferExpired},
	}
	for _, tc := range cases {
		if got := n.Normalize(tc.raw, future); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeTimeDerivedExpiry(t *testing.T) {
	n := Normalizer{Now: fixedNow}
	past := refNow.Add(-time.Minute).Format(time.RFC3339)
	future := refNow.Add(time.Minute).Format(time.RFC3339)

	if got := n.Normalize("pending", past); got != models.OfferExpired {
		t.Errorf("pending past deadline = %q, want expired", got)
	}
	if got := n.Normalize("pending", future); got != models.OfferPending {
		t.Errorf("pending future deadline = %q, want pending", got)
	}
	// Only pending is subject to the expires_at override.
	if got := n.Normalize("accepted", past); got != models.OfferApproved {
		t.Errorf("accepted past deadline = %q, want approved", got)
	}
	if got := n.Normalize("rejected", past); got != models.OfferRejected {
		t.Errorf("rejected past deadline = %q, want rejected", got)
	}
}

func TestNormalizeMalformedTimestamp(t *testing.T) {
	n := Normalizer{Now: fixedNow}
	for _, ts := range []string{"", "not-a-date", "2025-13-45T99:99:99Z"} {
		if got := n.Normalize("pending", ts); got != models.OfferPending {
			t.Errorf("Normalize(pending, %q) = %q, want pending", ts, got)
		}
	}
}

func TestNormalizeRowResolvesPriceAndQuantity(t *testing.T) {
	n := Normalizer{Now: fixedNow}
	offered := 90.0
	generic := 100.0
	qty := int64(5)

	// Generic column wins when both are present.
	row := models.OfferRow{ID: "o1", Status: "pending", Price: &generic, OfferedPrice: &offered, OfferedQuantity: &qty}
	o := n.NormalizeRow(row)
	if o.Price != 100 {
		t.Errorf("price = %v, want 100", o.Price)
	}
	if o.Quantity != 5 {
		t.Errorf("quantity = %v, want 5", o.Quantity)
	}

	// Offered column is the fallback.
	row = models.OfferRow{ID: "o2", Status: "pending", OfferedPrice: &offered}
	if o := n.NormalizeRow(row); o.Price != 90 {
		t.Errorf("fallback price = %v, want 90", o.Price)
	}
}

func TestNormalizeRowProductSnapshot(t *testing.T) {
	n := Normalizer{Now: fixedNow}
	stock := int64(40)
	base := 120.0
	current := 110.0

	row := models.OfferRow{
		ID: "o1", Status: "accepted",
		ProductID: "p1", ProductName: "Widget", ProductThumbnail: "t.png",
		CurrentStock: &stock, BasePriceAtOffer: &base, CurrentProductPrice: &current,
		BuyerID: "b1", BuyerName: "Buyer", SupplierID: "s1", SupplierName: "Supplier",
	}
	o := n.NormalizeRow(row)
	if o.Product.ID != "p1" || o.Product.Name != "Widget" || o.Product.Thumbnail != "t.png" {
		t.Errorf("product snapshot = %+v", o.Product)
	}
	if o.Product.Stock == nil || *o.Product.Stock != 40 {
		t.Errorf("stock = %v, want 40", o.Product.Stock)
	}
	if o.Product.PreviousPrice == nil || *o.Product.PreviousPrice != 120 {
		t.Errorf("previous price = %v, want base_price_at_offer", o.Product.PreviousPrice)
	}
	if o.Buyer.Name != "Buyer" || o.Supplier.Name != "Supplier" {
		t.Errorf("party snapshots = %+v / %+v", o.Buyer, o.Supplier)
	}

	// Without the at-offer snapshot the current product price fills in.
	row.BasePriceAtOffer = nil
	o = n.NormalizeRow(row)
	if o.Product.PreviousPrice == nil || *o.Product.PreviousPrice != 110 {
		t.Errorf("previous price fallback = %v, want 110", o.Product.PreviousPrice)
	}
}

func TestExpireAcceptedOnDeadline(t *testing.T) {
	past := refNow.Add(-time.Hour).Format(time.RFC3339)
	row := models.OfferRow{ID: "o1", Status: "accepted", PurchaseDeadline: past}

	off := Normalizer{Now: fixedNow}
	if got := off.NormalizeRow(row).Status; got != models.OfferApproved {
		t.Errorf("switch off: status = %q, want approved", got)
	}

	on := Normalizer{Now: fixedNow, ExpireAcceptedOnDeadline: true}
	if got := on.NormalizeRow(row).Status; got != models.OfferExpired {
		t.Errorf("switch on: status = %q, want expired", got)
	}

	// A future deadline never expires, switch or not.
	row.PurchaseDeadline = refNow.Add(time.Hour).Format(time.RFC3339)
	if got := on.NormalizeRow(row).Status; got != models.OfferApproved {
		t.Errorf("switch on, future deadline: status = %q, want approved", got)
	}
}

func TestTimeRemaining(t *testing.T) {
	in90 := refNow.Add(90 * time.Second).Format(time.RFC3339)

	o := models.Offer{Status: models.OfferPending, ExpiresAt: in90}
	if got := TimeRemaining(o, refNow); got != 90 {
		t.Errorf("pending remaining = %d, want 90", got)
	}

	o = models.Offer{Status: models.OfferApproved, PurchaseDeadline: in90}
	if got := TimeRemaining(o, refNow); got != 90 {
		t.Errorf("approved remaining = %d, want 90", got)
	}

	o = models.Offer{Status: models.OfferPending, ExpiresAt: refNow.Add(-time.Second).Format(time.RFC3339)}
	if got := TimeRemaining(o, refNow); got != 0 {
		t.Errorf("past deadline remaining = %d, want 0", got)
	}

	o = models.Offer{Status: models.OfferPaid, ExpiresAt: in90}
	if got := TimeRemaining(o, refNow); got != 0 {
		t.Errorf("terminal status remaining = %d, want 0", got)
	}
}
