package httpapi

import (
	"errors"
	"net/http"
	"time"

	"acadgen/internal/auth"
	"acadgen/internal/utils"
)

// handleServiceToken exchanges a service key for a short-lived JWT
// carrying the service role
func (d *Dependencies) handleServiceToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	serviceKey := r.Header.Get("X-API-Key")
	if serviceKey == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "API key is required")
		return
	}

	account, err := d.ServiceKeys.Lookup(r.Context(), serviceKey)
	if err != nil {
		if errors.Is(err, auth.ErrKeyNotFound) {
			utils.RespondWithError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "error validating API key")
		return
	}

	token, exp, err := auth.GenerateActorJWT(account.ID, []auth.Role{auth.RoleService}, d.JWTSecret, 15*time.Minute)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "error generating token")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"exp":   exp,
	})
}
