package rewrite

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/pagegate-org/pagegate/internal/cache"
	"github.com/pagegate-org/pagegate/internal/faults"
	"github.com/sirupsen/logrus"
)

// Fetcher abstracts the upstream HTTP client so tests can point the
// engines at a local server.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*http.Response, error)
}

// Strategy transforms fetched script source. The literal implementation
// below is best-effort by design; a parser-based one can replace it
// without touching callers.
type Strategy interface {
	Rewrite(src []byte) []byte
}

// ScriptContentType is what every proxied script is served as.
const ScriptContentType = "application/javascript"

// guardPrelude is prepended whenever a pattern matched. The stubs keep the
// call surface of the originals so dependent upstream code runs instead of
// throwing: worker messaging becomes a no-op, storage-directory access
// rejects.
const guardPrelude = `/* embedded-context guards */
class __gwStubWorker {
	constructor() {
		this.onmessage = null;
		this.onerror = null;
		this.port = { postMessage() {}, start() {}, close() {}, addEventListener() {}, removeEventListener() {} };
	}
	postMessage() {}
	terminate() {}
	addEventListener() {}
	removeEventListener() {}
}
function __gwDeniedDirectory() {
	return Promise.reject(new DOMException("storage directory unavailable", "SecurityError"));
}
`

var (
	// Whitespace inside the call is tolerated; renamed or aliased
	// constructors are not matched. That gap is accepted, not a bug.
	workerPattern       = regexp.MustCompile(`new\s+Worker\s*\(`)
	sharedWorkerPattern = regexp.MustCompile(`new\s+SharedWorker\s*\(`)
	storageDirPattern   = regexp.MustCompile(`navigator\s*\.\s*storage\s*\.\s*getDirectory\s*\(`)
)

// LiteralStrategy applies the fixed, ordered substitution set.
type LiteralStrategy struct{}

func (LiteralStrategy) Rewrite(src []byte) []byte {
	rewritten := workerPattern.ReplaceAll(src, []byte("new __gwStubWorker("))
	rewritten = sharedWorkerPattern.ReplaceAll(rewritten, []byte("new __gwStubWorker("))
	rewritten = storageDirPattern.ReplaceAll(rewritten, []byte("__gwDeniedDirectory("))

	if bytes.Equal(rewritten, src) {
		return src
	}
	return append([]byte(guardPrelude), rewritten...)
}

// ScriptEngine serves upstream scripts with unsafe browser APIs
// neutralized, cache-first with a 24h namespace.
type ScriptEngine struct {
	cache        cache.Cache
	fetcher      Fetcher
	strategy     Strategy
	ttl          time.Duration
	cacheTimeout time.Duration
	log          *logrus.Entry
}

func NewScriptEngine(logger *logrus.Logger, c cache.Cache, fetcher Fetcher, strategy Strategy, ttl, cacheTimeout time.Duration) *ScriptEngine {
	return &ScriptEngine{
		cache:        c,
		fetcher:      fetcher,
		strategy:     strategy,
		ttl:          ttl,
		cacheTimeout: cacheTimeout,
		log:          logger.WithField("component", "script_engine"),
	}
}

func (e *ScriptEngine) RewriteScript(ctx context.Context, scriptURL string) ([]byte, string, error) {
	// A caller disconnect must not abort a fetch that is about to populate
	// the cache; the client's own timeout still bounds the work.
	ctx = context.WithoutCancel(ctx)
	key := cache.ScriptPrefix + scriptURL

	cacheCtx, cancel := context.WithTimeout(ctx, e.cacheTimeout)
	cached, err := e.cache.Get(cacheCtx, key)
	cancel()
	if err == nil {
		return cached, ScriptContentType, nil
	}

	resp, err := e.fetcher.Get(ctx, scriptURL)
	if err != nil {
		e.log.WithError(err).WithField("url", scriptURL).Error("Script fetch failed")
		return nil, "", faults.ErrUpstreamFailure
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.log.WithFields(logrus.Fields{"url": scriptURL, "status": resp.StatusCode}).Error("Script fetch returned non-200")
		return nil, "", faults.ErrUpstreamFailure
	}

	src, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read script body", faults.ErrUpstreamFailure)
	}

	rewritten := e.strategy.Rewrite(src)

	setCtx, cancel := context.WithTimeout(ctx, e.cacheTimeout)
	if err := e.cache.SetWithTTL(setCtx, key, rewritten, e.ttl); err != nil {
		e.log.WithError(err).WithField("url", scriptURL).Warn("Failed to cache rewritten script")
	}
	cancel()

	return rewritten, ScriptContentType, nil
}
