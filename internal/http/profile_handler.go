package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/grocery-cart/internal/checkout"
)

// ProfileHandler stores the signed-in buyer for a session. The login flow that
// produces it lives elsewhere; this is where the storefront keeps the result.
type ProfileHandler struct {
	profiles *checkout.Profiles
	timeout  time.Duration
}

func NewProfileHandler(profiles *checkout.Profiles, timeout time.Duration) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, timeout: timeout}
}

// GET /api/v1/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	prof, ok := h.profiles.Get(ctx, getSessionID(ctx))
	if !ok {
		respondError(w, http.StatusNotFound, "profile_not_found", "no profile stored for this session")
		return
	}
	respondJSON(w, http.StatusOK, prof)
}

// PUT /api/v1/profile
func (h *ProfileHandler) PutProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var prof checkout.Profile
	if err := json.NewDecoder(r.Body).Decode(&prof); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if prof.BuyerID() <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_customer_id", "id or customerId must be a positive integer")
		return
	}

	if err := h.profiles.Put(ctx, getSessionID(ctx), prof); err != nil {
		respondErrorDetails(w, http.StatusInternalServerError, "storage_error", "failed to store profile", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, prof)
}

// DELETE /api/v1/profile
func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.profiles.Delete(ctx, getSessionID(ctx)); err != nil {
		respondErrorDetails(w, http.StatusInternalServerError, "storage_error", "failed to delete profile", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
