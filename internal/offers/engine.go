package offers

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"offersync/internal/cart"
	"offersync/internal/models"
	"offersync/internal/notify"
	"offersync/internal/snapshot"
	"offersync/internal/state"
	"offersync/internal/status"
)

// Backend is the persistence/query collaborator: a named remote procedure
// per query shape, a filtered read on the denormalized detail view as the
// fallback, the limits check, and the mutation procedures.
type Backend interface {
	OfferList(ctx context.Context, procedure, actorID string) ([]models.OfferRow, error)
	OfferView(ctx context.Context, column, actorID string) ([]models.OfferRow, error)
	OfferLimits(ctx context.Context, buyerID, supplierID, productID string) (models.LimitsRow, error)
	CreateOffer(ctx context.Context, req models.CreateOfferRequest) (models.CreateOfferReply, error)
	RespondOffer(ctx context.Context, offerID string, accept bool, reason string) (models.RespondReply, error)
	CancelOffer(ctx context.Context, offerID string) error
	ReserveOffer(ctx context.Context, offerID, orderID string) error
	DeleteOffer(ctx context.Context, offerID string) error
	PriceTiers(ctx context.Context, productID string, quantity int64, price float64) (models.TierValidation, error)
}

// CartSource resolves the cart collection for one buyer.
type CartSource interface {
	ForBuyer(buyerID string) cart.Cart
}

// ChangeFeed opens a push channel for row changes scoped to one actor.
type ChangeFeed interface {
	Subscribe(side, actorID string, onChange func()) (state.Subscription, error)
}

var ErrMissingActorID = errors.New("actor id is required")

// Config wires the engine. Backend and State are required; everything else
// has a usable default or is optional.
type Config struct {
	Backend   Backend
	State     *state.Container
	Cart      CartSource
	Notifier  notify.Service
	Feed      ChangeFeed
	Snapshots *snapshot.Store

	CacheTTL      time.Duration // offer-list freshness window, default 1m
	SWREnabled    bool          // serve stale and revalidate in background
	ValidationTTL time.Duration // limits-check freshness window, default 5s

	BuyerAttempts    int // default 3
	SupplierAttempts int // default 1

	ExpireAcceptedOnDeadline bool
}

// Engine keeps the client-side view of offers consistent with the backend:
// TTL/SWR caching, in-flight request coalescing, retry with backoff, push
// invalidation, and the cart-pruning side effect.
type Engine struct {
	backend  Backend
	state    *state.Container
	carts    CartSource
	notifier notify.Service
	feed     ChangeFeed
	snap     *snapshot.Store
	norm     status.Normalizer

	ttl time.Duration
	swr bool

	buyer    *side
	supplier *side
	limits   *limitsCache

	subMu       sync.Mutex
	buyerSub    state.Subscription
	supplierSub state.Subscription

	now   func() time.Time
	sleep func(time.Duration)
}

// side is one query shape: its own cache bucket and in-flight group so the
// two key spaces never collide.
type side struct {
	name      string
	procedure string
	column    string
	attempts  int

	mu         sync.Mutex
	cache      map[string]cacheEntry
	refreshing map[string]bool
	flight     singleflight.Group
}

type cacheEntry struct {
	at     time.Time
	offers []models.Offer
}

func New(cfg Config) *Engine {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.ValidationTTL <= 0 {
		cfg.ValidationTTL = 5 * time.Second
	}
	if cfg.BuyerAttempts <= 0 {
		cfg.BuyerAttempts = 3
	}
	if cfg.SupplierAttempts <= 0 {
		cfg.SupplierAttempts = 1
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}

	e := &Engine{
		backend:  cfg.Backend,
		state:    cfg.State,
		carts:    cfg.Cart,
		notifier: cfg.Notifier,
		feed:     cfg.Feed,
		snap:     cfg.Snapshots,
		ttl:      cfg.CacheTTL,
		swr:      cfg.SWREnabled,
		buyer: &side{
			name:       snapshot.BucketBuyer,
			procedure:  "get_buyer_offers",
			column:     "buyer_id",
			attempts:   cfg.BuyerAttempts,
			cache:      make(map[string]cacheEntry),
			refreshing: make(map[string]bool),
		},
		supplier: &side{
			name:       snapshot.BucketSupplier,
			procedure:  "get_supplier_offers",
			column:     "supplier_id",
			attempts:   cfg.SupplierAttempts,
			cache:      make(map[string]cacheEntry),
			refreshing: make(map[string]bool),
		},
		limits: newLimitsCache(cfg.ValidationTTL),
		now:    time.Now,
		sleep:  time.Sleep,
	}
	e.norm = status.Normalizer{Now: func() time.Time { return e.now() }, ExpireAcceptedOnDeadline: cfg.ExpireAcceptedOnDeadline}
	return e
}

type loadOptions struct {
	force  bool
	silent bool
}

type LoadOption func(*loadOptions)

// ForceNetwork bypasses the cache entirely.
func ForceNetwork() LoadOption {
	return func(o *loadOptions) { o.force = true }
}

// Background fetches without touching the shared state container; the
// result still lands in the cache.
func Background() LoadOption {
	return func(o *loadOptions) { o.silent = true }
}

// LoadBuyerOffers returns the buyer-side offer list for one actor, serving
// from cache under the freshness policy and coalescing concurrent fetches.
func (e *Engine) LoadBuyerOffers(ctx context.Context, buyerID string, opts ...LoadOption) ([]models.Offer, error) {
	return e.load(ctx, e.buyer, buyerID, opts)
}

// LoadSupplierOffers is the counter-party view of the same algorithm.
func (e *Engine) LoadSupplierOffers(ctx context.Context, supplierID string, opts ...LoadOption) ([]models.Offer, error) {
	return e.load(ctx, e.supplier, supplierID, opts)
}

func (e *Engine) load(ctx context.Context, s *side, actorID string, opts []LoadOption) ([]models.Offer, error) {
	if actorID == "" {
		return nil, ErrMissingActorID
	}
	var lo loadOptions
	for _, opt := range opts {
		opt(&lo)
	}

	if !lo.force {
		if entry, ok := s.get(actorID); ok {
			if e.now().Sub(entry.at) < e.ttl {
				return entry.offers, nil
			}
			if e.swr {
				if s.beginRefresh(actorID) {
					go e.revalidate(s, actorID)
				}
				return entry.offers, nil
			}
		}
	}

	// The coalesced fetch runs on a detached context so one canceled caller
	// cannot fail the joiners sharing the flight.
	v, err, _ := s.flight.Do(actorID, func() (any, error) {
		return e.fetch(context.Background(), s, actorID, lo.silent)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Offer), nil
}

// revalidate runs the stale-while-revalidate refresh; its failure never
// surfaces to the caller that was served the stale value.
func (e *Engine) revalidate(s *side, actorID string) {
	defer s.endRefresh(actorID)
	_, err, _ := s.flight.Do(actorID, func() (any, error) {
		return e.fetch(context.Background(), s, actorID, false)
	})
	if err != nil {
		log.Printf("%s offers: background refresh failed actor=%s: %v", s.name, actorID, err)
	}
}

func (e *Engine) fetch(ctx context.Context, s *side, actorID string, silent bool) ([]models.Offer, error) {
	if !silent {
		e.state.Apply(func(sn *state.Snapshot) {
			sn.Loading = true
			sn.Err = ""
		})
	}

	offers, err := e.fetchWithRetry(ctx, s, actorID)
	if err != nil {
		e.failLoad(s, actorID, err)
		return nil, err
	}
	e.commit(s, actorID, offers, silent)
	return offers, nil
}

func (e *Engine) fetchWithRetry(ctx context.Context, s *side, actorID string) ([]models.Offer, error) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		rows, err := e.fetchOnce(ctx, s, actorID)
		if err == nil {
			return e.norm.NormalizeAll(rows), nil
		}
		lastErr = err
		if isDefinitive(err) || attempt == s.attempts {
			break
		}
		e.sleep(10 * time.Millisecond << (attempt - 1))
	}
	return nil, lastErr
}

// fetchOnce prefers the named procedure and falls back to the filtered
// detail-view read when the backend reports the procedure does not exist.
func (e *Engine) fetchOnce(ctx context.Context, s *side, actorID string) ([]models.OfferRow, error) {
	rows, err := e.backend.OfferList(ctx, s.procedure, actorID)
	if err != nil && isMissingProcedure(err) {
		return e.backend.OfferView(ctx, s.column, actorID)
	}
	return rows, err
}

func (e *Engine) commit(s *side, actorID string, offers []models.Offer, silent bool) {
	now := e.now()
	s.put(actorID, cacheEntry{at: now, offers: offers})

	if e.snap != nil {
		if err := e.snap.Save(s.name, actorID, snapshot.Entry{At: now, Offers: offers}); err != nil {
			log.Printf("%s offers: snapshot save failed actor=%s: %v", s.name, actorID, err)
		}
	}

	if !silent {
		e.state.Apply(func(sn *state.Snapshot) {
			if s == e.buyer {
				sn.BuyerOffers = offers
			} else {
				sn.SupplierOffers = offers
			}
			sn.Loading = false
			sn.Err = ""
		})
	}

	if s == e.buyer {
		e.pruneCart(actorID, offers)
	}
}

// failLoad keeps any stale cached view; only a cold, cache-empty failure
// clears the list for that key.
func (e *Engine) failLoad(s *side, actorID string, err error) {
	_, cached := s.get(actorID)
	e.state.Apply(func(sn *state.Snapshot) {
		sn.Loading = false
		sn.Err = "load " + s.name + " offers: " + err.Error()
		if !cached {
			if s == e.buyer {
				sn.BuyerOffers = nil
			} else {
				sn.SupplierOffers = nil
			}
		}
	})
}

// pruneCart is a side effect: its failure never fails the load.
func (e *Engine) pruneCart(buyerID string, offers []models.Offer) {
	if e.carts == nil {
		return
	}
	removed, err := cart.PruneInvalid(context.Background(), e.carts.ForBuyer(buyerID), offers)
	if err != nil {
		log.Printf("cart prune failed buyer=%s: %v", buyerID, err)
		return
	}
	if removed > 0 {
		log.Printf("cart prune buyer=%s removed=%d", buyerID, removed)
	}
}

// WarmStart seeds the caches from the snapshot store.
func (e *Engine) WarmStart() {
	if e.snap == nil {
		return
	}
	for _, s := range []*side{e.buyer, e.supplier} {
		err := e.snap.Each(s.name, func(actorID string, entry snapshot.Entry) error {
			s.put(actorID, cacheEntry{at: entry.At, offers: entry.Offers})
			return nil
		})
		if err != nil {
			log.Printf("%s offers: warm start failed: %v", s.name, err)
		}
	}
}

// ClearError resets the user-visible error field.
func (e *Engine) ClearError() {
	e.state.Apply(func(sn *state.Snapshot) { sn.Err = "" })
}

func (s *side) get(actorID string) (cacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[actorID]
	return entry, ok
}

func (s *side) put(actorID string, entry cacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[actorID] = entry
}

// beginRefresh claims the background-refresh slot for a key; at most one
// revalidation runs per key at a time.
func (s *side) beginRefresh(actorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshing[actorID] {
		return false
	}
	s.refreshing[actorID] = true
	return true
}

func (s *side) endRefresh(actorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshing, actorID)
}

// The backend signals both definitive failures and missing procedures in
// the error message.
func isDefinitive(err error) bool {
	m := strings.ToLower(err.Error())
	return strings.Contains(m, "database error") || strings.Contains(m, "network error")
}

func isMissingProcedure(err error) bool {
	m := strings.ToLower(err.Error())
	return strings.Contains(m, "could not find the function") || strings.Contains(m, "does not exist")
}
