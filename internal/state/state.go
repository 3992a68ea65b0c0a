package state

import (
	"log"
	"sync"

	"offersync/internal/models"
)

// Snapshot is the shared view this subsystem maintains: one offer list per
// side, a loading flag and the last user-visible error.
type Snapshot struct {
	BuyerOffers    []models.Offer
	SupplierOffers []models.Offer
	Loading        bool
	Err            string
}

// Subscription is a teardown handle for a push channel.
type Subscription interface {
	Close() error
}

// Container holds the snapshot behind a lock and tracks open push
// subscriptions so they can all be torn down together.
type Container struct {
	mu   sync.RWMutex
	snap Snapshot
	subs []Subscription
}

func New() *Container {
	return &Container{}
}

// Get returns a copy of the current snapshot. The slices are shared; callers
// treat them as read-only.
func (c *Container) Get() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Apply mutates the snapshot under the lock.
func (c *Container) Apply(fn func(*Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.snap)
}

func (c *Container) AddSubscription(s Subscription) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, s)
}

// CloseSubscriptions tears down every tracked push channel.
func (c *Container) CloseSubscriptions() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		if err := s.Close(); err != nil {
			log.Printf("subscription close failed: %v", err)
		}
	}
}
