package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pagegate-org/pagegate/internal/faults"
)

type verifyRequest struct {
	Password string `json:"password"`
}

// HandleVerify is the interactive password step: POST /{slug} with
// {password}. The client network address is the abuse fingerprint; the
// gate stores it only hashed.
func (h *GatewayHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeError(w, h.log, faults.ErrInvalidCredential)
		return
	}

	grant, err := h.gate.Verify(r.Context(), slug, req.Password, getClientIP(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, grant)
}

// HandleInfo serves the unauthenticated password-prompt data.
func (h *GatewayHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.gate.PublicInfo(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
