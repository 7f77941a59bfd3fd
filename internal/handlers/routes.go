package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes wires the gateway surface. Fixed routes go first so a
// slug can never shadow them; asset prefixes are relayed verbatim.
func RegisterRoutes(r *mux.Router, h *GatewayHandler) {
	r.HandleFunc("/healthz", HandleHealth).Methods("GET")
	r.HandleFunc("/js-proxy", h.HandleScript).Methods("GET")
	r.HandleFunc("/view/{slug}", h.HandleRender).Methods("GET")

	for _, prefix := range h.cfg.AssetPrefixes {
		r.PathPrefix(prefix).HandlerFunc(h.HandleAsset).Methods("GET")
	}

	r.HandleFunc("/{slug}/info", h.HandleInfo).Methods("GET")
	r.HandleFunc("/{slug}", h.HandleVerify).Methods("POST")
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
