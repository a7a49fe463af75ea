package httpapi

import (
	"net/http"
	"strconv"

	"acadgen/internal/middleware"
	"acadgen/internal/utils"
)

// handleUsage serves GET /api/ai/usage. Instructors read their own
// records by default; actor_id selects another actor's records.
func (d *Dependencies) handleUsage(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetActorClaims(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	actorID := r.URL.Query().Get("actor_id")
	if actorID == "" {
		actorID = claims.ActorID()
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			utils.RespondWithError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	records, err := d.Usage.ListByActor(r.Context(), actorID, limit)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to load usage records")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"actor_id": actorID,
		"records":  records,
	})
}
