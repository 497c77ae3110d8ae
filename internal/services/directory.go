package services

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"xui-shop-core/internal/cache"
	"xui-shop-core/internal/constants"
	"xui-shop-core/internal/metrics"
	"xui-shop-core/internal/models"
)

// InboundLister fetches the full inbound list from the panel
type InboundLister interface {
	ListInbounds(ctx context.Context, session *models.Session) ([]models.Inbound, error)
}

// ClientLookup is a cached lookup result
type ClientLookup struct {
	Inbound models.Inbound      `json:"inbound"`
	Client  models.ClientRecord `json:"client"`
}

// ClientDirectory finds client records by email with a short-lived cache.
// Only hits are cached, so a miss always reflects a fresh panel read.
type ClientDirectory struct {
	lister  InboundLister
	cache   cache.Cache[ClientLookup]
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewClientDirectory creates a new client directory
func NewClientDirectory(lister InboundLister, c cache.Cache[ClientLookup], ttl time.Duration, m *metrics.Metrics, logger *logrus.Logger) *ClientDirectory {
	return &ClientDirectory{
		lister:  lister,
		cache:   c,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

// Lookup returns the inbound and client holding identity. inboundID 0 scans every
// inbound. A nil client with a nil error means not found.
func (d *ClientDirectory) Lookup(ctx context.Context, session *models.Session, identity string, inboundID int) (*models.Inbound, models.ClientRecord, error) {
	key := cacheKey(identity, inboundID)

	if d.ttl > 0 {
		entry, found, err := d.cache.Get(ctx, key)
		if err != nil {
			d.logger.Warnf("Failed to read client cache for %s: %v", identity, err)
		}
		if found && entry.Age(time.Now()) < d.ttl {
			d.metrics.CacheLookup(true)
			inbound := entry.Value.Inbound
			return &inbound, entry.Value.Client, nil
		}
	}
	d.metrics.CacheLookup(false)

	inbounds, err := d.lister.ListInbounds(ctx, session)
	if err != nil {
		return nil, nil, err
	}

	for i := range inbounds {
		if inboundID != 0 && inbounds[i].ID != inboundID {
			continue
		}
		client := inbounds[i].FindClient(identity)
		if client == nil {
			continue
		}

		d.logger.Debugf("Inbound fetched for email=%s (inbound=%d)", identity, inbounds[i].ID)
		if d.ttl > 0 {
			if err := d.cache.Set(ctx, key, ClientLookup{Inbound: inbounds[i], Client: client}, d.ttl); err != nil {
				d.logger.Warnf("Failed to cache client %s: %v", identity, err)
			}
		}
		return &inbounds[i], client, nil
	}

	return nil, nil, nil
}

// Invalidate drops every cached lookup of identity regardless of inbound
func (d *ClientDirectory) Invalidate(ctx context.Context, identity string) {
	if err := d.cache.DeletePrefix(ctx, constants.ClientCachePrefix+identity+"|"); err != nil {
		d.logger.Warnf("Failed to invalidate client cache for %s: %v", identity, err)
	}
}

// Snapshot returns the full, uncached inbound list
func (d *ClientDirectory) Snapshot(ctx context.Context, session *models.Session) ([]models.Inbound, error) {
	return d.lister.ListInbounds(ctx, session)
}

func cacheKey(identity string, inboundID int) string {
	scope := constants.WildcardInbound
	if inboundID != 0 {
		scope = strconv.Itoa(inboundID)
	}
	return constants.ClientCachePrefix + identity + "|" + scope
}
