package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/pagegate-org/pagegate/internal/cache"
	"github.com/pagegate-org/pagegate/internal/config"
	"github.com/pagegate-org/pagegate/internal/faults"
	"github.com/pagegate-org/pagegate/internal/gate"
	"github.com/pagegate-org/pagegate/internal/models"
	"github.com/pagegate-org/pagegate/internal/ratelimit"
	"github.com/pagegate-org/pagegate/internal/relay"
	"github.com/pagegate-org/pagegate/internal/resources"
	"github.com/pagegate-org/pagegate/internal/rewrite"
	"github.com/pagegate-org/pagegate/internal/token"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const testPage = `<html><head><title>Doc</title><script src="/js/app.js"></script></head><body>content</body></html>`

// routeFetcher plays the upstream host: documents, scripts and assets by
// path.
type routeFetcher struct{}

func (routeFetcher) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	respond := func(status int, contentType, body string) (*http.Response, error) {
		header := http.Header{}
		header.Set("Content-Type", contentType)
		return &http.Response{
			StatusCode: status,
			Header:     header,
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	}

	switch {
	case strings.HasPrefix(u.Path, "/share/"):
		return respond(http.StatusOK, "text/html", testPage)
	case strings.HasSuffix(u.Path, ".js"):
		return respond(http.StatusOK, "text/javascript", `const w = new Worker("/w.js");`)
	case strings.HasPrefix(u.Path, "/static/"):
		return respond(http.StatusOK, "text/css", "body{}")
	default:
		return respond(http.StatusNotFound, "text/plain", "nope")
	}
}

type memoryAssetStorage struct {
	mu      sync.Mutex
	entries map[string][]byte
	types   map[string]string
}

func (m *memoryAssetStorage) Get(ctx context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if content, ok := m.entries[key]; ok {
		return content, m.types[key], nil
	}
	return nil, "", faults.ErrNotFound
}

func (m *memoryAssetStorage) Put(ctx context.Context, key, sourceURL string, content []byte, mediaType string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = content
	m.types[key] = mediaType
	return nil
}

func (m *memoryAssetStorage) Delete(ctx context.Context, key string) error { return nil }

func (m *memoryAssetStorage) UpdateLastAccess(ctx context.Context, key string) error { return nil }

type routerResourceStore struct {
	rows map[string]*models.ProtectedResource
}

func (s *routerResourceStore) GetBySlug(ctx context.Context, slug string) (*models.ProtectedResource, error) {
	if row, ok := s.rows[slug]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, faults.ErrNotFound
}

func (s *routerResourceStore) GetByID(ctx context.Context, id uint) (*models.ProtectedResource, error) {
	for _, row := range s.rows {
		if row.ID == id {
			copied := *row
			return &copied, nil
		}
	}
	return nil, faults.ErrNotFound
}

func (s *routerResourceStore) IncrementVisits(ctx context.Context, id uint) error { return nil }

type noopAudit struct{}

func (noopAudit) AppendAttempt(ctx context.Context, attempt *models.AccessAttempt) error { return nil }

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	cfg := &config.Config{
		UpstreamOrigin:    "https://upstream.example",
		AssetPrefixes:     []string{"/static/"},
		MaxFailedAttempts: 5,
		AttemptWindow:     15 * time.Minute,
	}

	rs := &routerResourceStore{rows: map[string]*models.ProtectedResource{
		"abc123": {
			ID:              1,
			Slug:            "abc123",
			Title:           "Quarterly report",
			UpstreamAddress: "https://upstream.example/share/doc1",
			CredentialHash:  string(hash),
		},
	}}

	mem := cache.NewMemoryCache()
	fetcher := routeFetcher{}
	tokens := token.NewManager("test-secret", 24*time.Hour)
	limiter := ratelimit.New(mem, cfg.MaxFailedAttempts, cfg.AttemptWindow, time.Second)
	res := resources.NewCache(logger, mem, rs, time.Hour, time.Second)
	accessGate := gate.New(logger, res, rs, noopAudit{}, limiter, tokens, "pepper")
	contentEngine := rewrite.NewContentEngine(logger, res, tokens, fetcher)
	scriptEngine := rewrite.NewScriptEngine(logger, mem, fetcher, rewrite.LiteralStrategy{}, 24*time.Hour, time.Second)
	assetStorage := &memoryAssetStorage{entries: make(map[string][]byte), types: make(map[string]string)}
	assetRelay := relay.New(logger, assetStorage, fetcher, cfg.UpstreamOrigin, cfg.AssetPrefixes, 24*time.Hour)

	r := mux.NewRouter()
	RegisterRoutes(r, NewGatewayHandler(logger, cfg, accessGate, contentEngine, scriptEngine, assetRelay))
	return r
}

func postPassword(router *mux.Router, slug, password string) *httptest.ResponseRecorder {
	body := strings.NewReader(`{"password":"` + password + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/"+slug, body)
	req.RemoteAddr = "10.0.0.1:50000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestVerifyEndpointIssuesGrant(t *testing.T) {
	router := newTestRouter(t)

	rec := postPassword(router, "abc123", "correct")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var grant gate.Grant
	if err := json.Unmarshal(rec.Body.Bytes(), &grant); err != nil {
		t.Fatalf("decode grant: %v", err)
	}
	if grant.RedirectTarget != "/view/abc123" {
		t.Errorf("redirectTarget = %q", grant.RedirectTarget)
	}
	if grant.AccessToken == "" {
		t.Error("accessToken empty")
	}
}

func TestVerifyEndpointRateLimits(t *testing.T) {
	router := newTestRouter(t)

	for i := 0; i < 5; i++ {
		if rec := postPassword(router, "abc123", "wrong"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d", i+1, rec.Code)
		}
	}

	rec := postPassword(router, "abc123", "correct")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("limited attempt status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

func TestVerifyEndpointHidesResourceExistence(t *testing.T) {
	router := newTestRouter(t)

	missing := postPassword(router, "missing", "whatever")
	wrong := postPassword(router, "abc123", "wrong")

	if missing.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("status codes %d/%d, want 401/401", missing.Code, wrong.Code)
	}
	if missing.Body.String() != wrong.Body.String() {
		t.Error("unknown slug and wrong password responses differ")
	}
}

func TestInfoEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/abc123/info", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Quarterly report") {
		t.Errorf("body = %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/missing/info", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing info status = %d, want 404", rec.Code)
	}
}

func grantFor(t *testing.T, router *mux.Router) gate.Grant {
	t.Helper()
	rec := postPassword(router, "abc123", "correct")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d", rec.Code)
	}
	var grant gate.Grant
	if err := json.Unmarshal(rec.Body.Bytes(), &grant); err != nil {
		t.Fatalf("decode grant: %v", err)
	}
	return grant
}

func TestRenderEndpoint(t *testing.T) {
	router := newTestRouter(t)
	grant := grantFor(t, router)

	req := httptest.NewRequest(http.MethodGet, "/view/abc123", nil)
	req.Header.Set("Authorization", "Bearer "+grant.AccessToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	page := rec.Body.String()
	if !strings.Contains(page, `<base href="https://upstream.example/">`) {
		t.Error("base reference missing from rendered page")
	}
	if !strings.Contains(page, "/js-proxy?url=") {
		t.Error("linked script not proxied")
	}
}

func TestRenderEndpointRejectsMissingAndMismatchedTokens(t *testing.T) {
	router := newTestRouter(t)
	grant := grantFor(t, router)

	req := httptest.NewRequest(http.MethodGet, "/view/abc123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}

	// Token is scoped to abc123; any other slug must be refused.
	req = httptest.NewRequest(http.MethodGet, "/view/other", nil)
	req.Header.Set("Authorization", "Bearer "+grant.AccessToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("mismatched token status = %d, want 403", rec.Code)
	}
}

func TestScriptProxyEndpoint(t *testing.T) {
	router := newTestRouter(t)

	target := url.QueryEscape("https://upstream.example/js/app.js")
	req := httptest.NewRequest(http.MethodGet, "/js-proxy?url="+target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != rewrite.ScriptContentType {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "__gwStubWorker") {
		t.Error("script not rewritten")
	}

	req = httptest.NewRequest(http.MethodGet, "/js-proxy?url=ftp%3A%2F%2Fbad", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad scheme status = %d, want 400", rec.Code)
	}
}

func TestAssetEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/static/app.css", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/css" {
		t.Errorf("content type = %q", ct)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("permissive CORS header missing")
	}
	if rec.Header().Get("X-Frame-Options") != "" || rec.Header().Get("Content-Security-Policy") != "" {
		t.Error("isolation headers leaked through relay")
	}
}
