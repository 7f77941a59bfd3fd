// Package relay serves upstream static sub-resources byte-identical from
// the gateway's own origin, so rewritten pages can load their assets
// without mixed-origin or framing failures.
package relay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pagegate-org/pagegate/internal/faults"
	"github.com/pagegate-org/pagegate/internal/rewrite"
	"github.com/pagegate-org/pagegate/internal/storage"
	"github.com/sirupsen/logrus"
)

// Result carries what the handler needs to answer an asset request.
type Result struct {
	Body       []byte
	MediaType  string
	StatusCode int

	// Cacheable is false for propagated upstream 4xx responses, which go
	// out as-is but are never stored.
	Cacheable bool
}

type Relay struct {
	storage        storage.Storage
	fetcher        rewrite.Fetcher
	upstreamOrigin string
	prefixes       []string
	ttl            time.Duration
	log            *logrus.Entry
}

func New(logger *logrus.Logger, st storage.Storage, fetcher rewrite.Fetcher, upstreamOrigin string, prefixes []string, ttl time.Duration) *Relay {
	return &Relay{
		storage:        st,
		fetcher:        fetcher,
		upstreamOrigin: strings.TrimRight(upstreamOrigin, "/"),
		prefixes:       prefixes,
		ttl:            ttl,
		log:            logger.WithField("component", "asset_relay"),
	}
}

// Matches reports whether path falls under a relayed asset prefix.
func (r *Relay) Matches(path string) bool {
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// cacheKey hashes the full upstream URL; raw URLs exceed what object keys
// and the primary-key column comfortably hold.
func cacheKey(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return "assets/" + hex.EncodeToString(sum[:])
}

// Relay answers an asset request cache-first by full upstream URL. Two
// instances racing on a miss both fetch and both write; last write wins
// with identical bytes.
func (r *Relay) Relay(ctx context.Context, pathAndQuery string) (*Result, error) {
	// Detached from caller cancellation: a disconnect mid-fetch still
	// completes and caches; only the response write is lost.
	ctx = context.WithoutCancel(ctx)
	sourceURL := r.upstreamOrigin + pathAndQuery
	key := cacheKey(sourceURL)
	log := r.log.WithField("url", sourceURL)

	if content, mediaType, err := r.storage.Get(ctx, key); err == nil {
		return &Result{Body: content, MediaType: mediaType, StatusCode: http.StatusOK, Cacheable: true}, nil
	}

	resp, err := r.fetcher.Get(ctx, sourceURL)
	if err != nil {
		log.WithError(err).Error("Asset fetch failed")
		return nil, faults.ErrUpstreamFailure
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		log.WithField("status", resp.StatusCode).Error("Asset fetch returned server error")
		return nil, faults.ErrUpstreamFailure
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.ErrUpstreamFailure
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	if resp.StatusCode >= 400 {
		// Client errors pass through so the page sees real 404s, but a
		// missing asset today may exist tomorrow; never cache them.
		return &Result{Body: body, MediaType: mediaType, StatusCode: resp.StatusCode, Cacheable: false}, nil
	}

	if err := r.storage.Put(ctx, key, sourceURL, body, mediaType, r.ttl); err != nil {
		log.WithError(err).Warn("Failed to cache asset")
	}

	return &Result{Body: body, MediaType: mediaType, StatusCode: http.StatusOK, Cacheable: true}, nil
}
