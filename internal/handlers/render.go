package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pagegate-org/pagegate/internal/faults"
)

// HandleRender serves the rewritten document for a slug to a caller that
// already holds a valid access token.
func (h *GatewayHandler) HandleRender(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	accessToken := bearerToken(r)
	if accessToken == "" {
		writeError(w, h.log, faults.ErrTokenInvalid)
		return
	}

	html, err := h.content.Render(r.Context(), slug, accessToken)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(html)
}

// HandleScript proxies a linked upstream script through the rewrite
// engine.
func (h *GatewayHandler) HandleScript(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		http.Error(w, "Invalid script url", http.StatusBadRequest)
		return
	}

	body, contentType, err := h.scripts.RewriteScript(r.Context(), parsed.String())
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(body)
}

// HandleAsset relays an upstream static sub-resource.
func (h *GatewayHandler) HandleAsset(w http.ResponseWriter, r *http.Request) {
	pathAndQuery := r.URL.Path
	if r.URL.RawQuery != "" {
		pathAndQuery += "?" + r.URL.RawQuery
	}

	result, err := h.relay.Relay(r.Context(), pathAndQuery)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	w.Header().Set("Content-Type", result.MediaType)
	if result.Cacheable {
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.WriteHeader(result.StatusCode)
	w.Write(result.Body)
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// Browser navigations cannot set headers; the redirect target carries
	// the token as a query parameter instead.
	return r.URL.Query().Get("token")
}
