package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"llmd/pkg/types"
)

// deleteSession godoc
// @Summary      Release a chat session
// @Tags         sessions
// @Produce      json
// @Param        id   path      string  true  "Session id"
// @Success      200  {object}  types.MessageResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /v1/sessions/{id} [delete]
func (a *api) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if a.sessions == nil || !a.sessions.Remove(id) {
		writeJSONError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, types.MessageResponse{Message: "Session removed successfully"})
}
