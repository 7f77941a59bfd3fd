// Package resources serves protected-resource metadata cache-first with
// the relational store as the system of record.
package resources

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pagegate-org/pagegate/internal/cache"
	"github.com/pagegate-org/pagegate/internal/faults"
	"github.com/pagegate-org/pagegate/internal/models"
	"github.com/pagegate-org/pagegate/internal/store"
	"github.com/sirupsen/logrus"
)

// envelope is the cache wire form. The model excludes CredentialHash from
// JSON so it can never leak through an API response; the cache copy still
// needs it for verification, hence the explicit field.
type envelope struct {
	ID              uint   `json:"id"`
	OwnerID         uint   `json:"owner_id"`
	Slug            string `json:"slug"`
	UpstreamAddress string `json:"upstream_address"`
	CredentialHash  string `json:"credential_hash"`
	Title           string `json:"title"`
}

func wrap(r *models.ProtectedResource) envelope {
	return envelope{
		ID:              r.ID,
		OwnerID:         r.OwnerID,
		Slug:            r.Slug,
		UpstreamAddress: r.UpstreamAddress,
		CredentialHash:  r.CredentialHash,
		Title:           r.Title,
	}
}

func (e envelope) unwrap() *models.ProtectedResource {
	return &models.ProtectedResource{
		ID:              e.ID,
		OwnerID:         e.OwnerID,
		Slug:            e.Slug,
		UpstreamAddress: e.UpstreamAddress,
		CredentialHash:  e.CredentialHash,
		Title:           e.Title,
	}
}

type Cache struct {
	cache        cache.Cache
	store        store.ResourceStore
	ttl          time.Duration
	cacheTimeout time.Duration
	log          *logrus.Entry
}

func NewCache(logger *logrus.Logger, c cache.Cache, s store.ResourceStore, ttl, cacheTimeout time.Duration) *Cache {
	return &Cache{
		cache:        c,
		store:        s,
		ttl:          ttl,
		cacheTimeout: cacheTimeout,
		log:          logger.WithField("component", "resource_cache"),
	}
}

// Get tries the cache under a short deadline and falls back to the store
// on any miss, timeout or decode problem. The fetched row repopulates the
// cache; a lost race between two instances is a duplicate write with the
// same value and is tolerated.
func (c *Cache) Get(ctx context.Context, slug string) (*models.ProtectedResource, error) {
	key := cache.MetadataPrefix + slug

	cacheCtx, cancel := context.WithTimeout(ctx, c.cacheTimeout)
	raw, err := c.cache.Get(cacheCtx, key)
	cancel()
	if err == nil {
		var cached envelope
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached.unwrap(), nil
		}
		c.log.WithField("slug", slug).Warn("Discarding undecodable metadata cache entry")
	}

	resource, err := c.store.GetBySlug(ctx, slug)
	if errors.Is(err, faults.ErrStoreUnavailable) {
		resource, err = c.store.GetBySlug(ctx, slug)
	}
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(wrap(resource)); err == nil {
		setCtx, cancel := context.WithTimeout(ctx, c.cacheTimeout)
		if err := c.cache.SetWithTTL(setCtx, key, encoded, c.ttl); err != nil {
			c.log.WithError(err).WithField("slug", slug).Warn("Failed to populate metadata cache")
		}
		cancel()
	}

	return resource, nil
}
