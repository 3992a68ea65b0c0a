package offers

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"offersync/internal/models"
)

// Default monthly limits when the backend omits them.
const (
	defaultProductLimit  = 3
	defaultSupplierLimit = 5
)

// LimitsQuery identifies one (buyer, supplier, product) combination.
type LimitsQuery struct {
	BuyerID    string `json:"buyer_id"`
	SupplierID string `json:"supplier_id"`
	ProductID  string `json:"product_id"`
}

// limitsCache is separate from the list caches, with its own short TTL and
// in-flight group.
type limitsCache struct {
	mu      sync.Mutex
	entries map[string]limitsEntry
	flight  singleflight.Group
	ttl     time.Duration
}

type limitsEntry struct {
	at     time.Time
	result models.LimitsResult
}

func newLimitsCache(ttl time.Duration) *limitsCache {
	return &limitsCache{entries: make(map[string]limitsEntry), ttl: ttl}
}

func (c *limitsCache) get(key string, now time.Time) (models.LimitsResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || now.Sub(entry.at) >= c.ttl {
		return models.LimitsResult{}, false
	}
	return entry.result, true
}

func (c *limitsCache) put(key string, r models.LimitsResult, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = limitsEntry{at: now, result: r}
}

// ValidateLimits checks whether the buyer may open another offer for this
// product/supplier. Backend trouble fails open: Allowed=true with Reason
// and Err populated instead of an error return.
func (e *Engine) ValidateLimits(ctx context.Context, q LimitsQuery) models.LimitsResult {
	if q.BuyerID == "" || q.SupplierID == "" || q.ProductID == "" {
		return failOpen("buyer, supplier and product ids are required")
	}

	key := q.BuyerID + "|" + q.SupplierID + "|" + q.ProductID
	if r, ok := e.limits.get(key, e.now()); ok {
		return r
	}

	v, err, _ := e.limits.flight.Do(key, func() (any, error) {
		row, err := e.backend.OfferLimits(ctx, q.BuyerID, q.SupplierID, q.ProductID)
		if err != nil {
			return nil, err
		}
		r := limitsResult(row)
		e.limits.put(key, r, e.now())
		return r, nil
	})
	if err != nil {
		log.Printf("validate limits failed (failing open) buyer=%s product=%s: %v", q.BuyerID, q.ProductID, err)
		return failOpen("limits check unavailable: " + err.Error())
	}
	return v.(models.LimitsResult)
}

// ValidateLimitsLegacy keeps the deprecated positional calling convention
// alive: (buyer, supplier, product), always in that order.
func (e *Engine) ValidateLimitsLegacy(ctx context.Context, buyerID, supplierID, productID string) models.LimitsResult {
	log.Printf("ValidateLimits: deprecated positional arguments, use LimitsQuery")
	return e.ValidateLimits(ctx, LimitsQuery{BuyerID: buyerID, SupplierID: supplierID, ProductID: productID})
}

func limitsResult(row models.LimitsRow) models.LimitsResult {
	productLimit := row.ProductLimit
	if productLimit <= 0 {
		productLimit = defaultProductLimit
	}
	supplierLimit := row.SupplierLimit
	if supplierLimit <= 0 {
		supplierLimit = defaultSupplierLimit
	}

	reason := row.Reason
	if reason == "" && !row.Allowed {
		switch {
		case row.ProductCount >= productLimit:
			reason = "monthly offer limit reached for this product"
		case row.SupplierCount >= supplierLimit:
			reason = "monthly offer limit reached with this supplier"
		}
	}

	return models.LimitsResult{
		Allowed:       row.Allowed,
		CurrentCount:  row.ProductCount,
		ProductCount:  row.ProductCount,
		SupplierCount: row.SupplierCount,
		Limit:         productLimit,
		ProductLimit:  productLimit,
		SupplierLimit: supplierLimit,
		Reason:        reason,
	}
}

func failOpen(detail string) models.LimitsResult {
	return models.LimitsResult{
		Allowed:       true,
		Limit:         defaultProductLimit,
		ProductLimit:  defaultProductLimit,
		SupplierLimit: defaultSupplierLimit,
		Reason:        "could not validate offer limits",
		Err:           "validate limits: " + detail,
	}
}
