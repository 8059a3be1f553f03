package gateway

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/saravenpi/chatterbox/internal/log"
	"github.com/saravenpi/chatterbox/internal/models"
)

const contactsKey = "contacts"

// Cached wraps a Gateway and serves ListContacts from memory for ttl.
// Failed lookups are never cached. Other calls pass straight through.
type Cached struct {
	Gateway
	cache *gocache.Cache
	ttl   time.Duration
}

// NewCached returns a caching decorator around gw. A ttl <= 0 returns a
// decorator that never caches.
func NewCached(gw Gateway, ttl time.Duration) *Cached {
	return &Cached{
		Gateway: gw,
		cache:   gocache.New(ttl, 2*ttl),
		ttl:     ttl,
	}
}

func (c *Cached) ListContacts(ctx context.Context) ([]models.Contact, error) {
	if c.ttl <= 0 {
		return c.Gateway.ListContacts(ctx)
	}

	if value, found := c.cache.Get(contactsKey); found {
		if contacts, ok := value.([]models.Contact); ok {
			log.Debug(log.CatCache, "cache hit", "key", contactsKey)
			return append([]models.Contact(nil), contacts...), nil
		}
		log.Error(log.CatCache, "wrong type assertion when getting value", "key", contactsKey)
	}

	contacts, err := c.Gateway.ListContacts(ctx)
	if err != nil {
		return nil, err
	}

	c.cache.Set(contactsKey, append([]models.Contact(nil), contacts...), c.ttl)
	return contacts, nil
}

// Invalidate drops the cached contact list.
func (c *Cached) Invalidate() {
	c.cache.Delete(contactsKey)
}
